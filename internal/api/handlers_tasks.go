package api

import (
	"net/http"

	"github.com/deeppomo/deeppomo/internal/tasks"
)

// Task handlers

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := tasks.Filter{
		ParentID: q.int64Ptr("parent_id"),
		Status:   tasks.Status(q.get("status")),
		Skip:     q.int("skip"),
		Limit:    q.int("limit"),
	}
	if b := q.boolPtr("include_deleted"); b != nil {
		filter.IncludeDeleted = *b
	}
	if err := q.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid status")
		return
	}

	list, err := s.tasks.List(r.Context(), userID(r), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var input tasks.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := s.tasks.Create(r.Context(), userID(r), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := s.tasks.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) replaceTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	var input tasks.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.updateTask(w, r, id, tasks.Replace(input))
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	var patch tasks.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.updateTask(w, r, id, patch)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request, id int64, patch tasks.Patch) {
	task, err := s.tasks.Update(r.Context(), userID(r), id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// deleteTask soft-deletes unless ?permanent=true is given.
func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	q := newQuery(r)
	permanent := q.boolPtr("permanent")
	if err := q.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	soft := permanent == nil || !*permanent

	deleted, err := s.tasks.Delete(r.Context(), userID(r), id, soft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) restoreTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	task, err := s.tasks.Restore(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) taskBreadcrumb(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	crumbs, err := s.tasks.Breadcrumb(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, crumbs)
}

func (s *Server) taskChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	children, err := s.tasks.Children(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

func (s *Server) taskTree(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	tree, err := s.tasks.Tree(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) taskHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	entries, err := s.tasks.History(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
