package api

import (
	"net/http"

	"github.com/deeppomo/deeppomo/internal/associations"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
)

// Pomodoro handlers

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	filter := pomodoro.Filter{
		Completed:   q.boolPtr("completed"),
		SessionType: pomodoro.SessionType(q.get("session_type")),
		StartDate:   q.timePtr("start_date"),
		EndDate:     q.timePtr("end_date"),
		Skip:        q.int("skip"),
		Limit:       q.int("limit"),
	}
	if err := q.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.SessionType != "" && !filter.SessionType.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "invalid session_type")
		return
	}

	list, err := s.sessions.List(r.Context(), userID(r), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var input pomodoro.CreateInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Create(r.Context(), userID(r), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// createPresetSession starts a session whose duration comes from the
// user's settings for ?session_type (work when absent).
func (s *Server) createPresetSession(w http.ResponseWriter, r *http.Request) {
	sessionType := pomodoro.SessionType(newQuery(r).get("session_type"))
	if sessionType == "" {
		sessionType = pomodoro.TypeWork
	}

	sess, err := s.sessions.CreatePreset(r.Context(), userID(r), sessionType)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.sessions.Get(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var patch pomodoro.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Update(r.Context(), userID(r), id, patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	q := newQuery(r)
	permanent := q.boolPtr("permanent")
	if err := q.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	soft := permanent == nil || !*permanent

	deleted, err := s.sessions.Delete(r.Context(), userID(r), id, soft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// completeSession takes its overrides from the query string, a JSON body,
// or both; query values win.
func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var input pomodoro.CompleteInput
	if r.ContentLength != 0 && r.Body != nil {
		if err := decodeJSON(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	q := newQuery(r)
	if v := q.timePtr("end_time"); v != nil {
		input.EndTime = v
	}
	if v := q.int64Ptr("actual_duration"); v != nil {
		input.ActualDuration = v
	}
	if v := q.stringPtr("interruption_reason"); v != nil {
		input.InterruptionReason = v
	}
	if err := q.err(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.sessions.Complete(r.Context(), userID(r), id, input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.sessions.Pause(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.sessions.Resume(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) sessionPauseStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	stats, err := s.sessions.PauseStats(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) sessionInterruptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	list, err := s.sessions.Interruptions(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Association handlers

func (s *Server) associateTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	var input associations.Input
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if input.SessionID == 0 {
		input.SessionID = id
	}
	if input.SessionID != id {
		writeError(w, http.StatusBadRequest, "pomodoro_session_id does not match the URL")
		return
	}

	link, err := s.links.Associate(r.Context(), userID(r), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (s *Server) tasksForSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if _, err := s.sessions.Get(r.Context(), userID(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	links, err := s.links.TasksFor(r.Context(), userID(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

func (s *Server) sessionsForTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "taskID")
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if _, err := s.tasks.Get(r.Context(), userID(r), taskID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	list, err := s.links.SessionsFor(r.Context(), userID(r), taskID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
