package tasks

import (
	"strconv"
	"strings"
)

// childPath returns the path of task id placed under parentPath. An empty
// parentPath makes it a root.
func childPath(parentPath string, id int64) string {
	own := strconv.FormatInt(id, 10)
	if parentPath == "" {
		return own
	}
	return parentPath + "." + own
}

// pathIDs splits a path into its ids, root first.
func pathIDs(path string) ([]int64, error) {
	parts := strings.Split(path, ".")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// hasSegment reports whether id is one of the segments of path. Segment
// matching keeps 1 from matching inside 12 or 21.
func hasSegment(path string, id int64) bool {
	own := strconv.FormatInt(id, 10)
	for _, p := range strings.Split(path, ".") {
		if p == own {
			return true
		}
	}
	return false
}

// descendantPattern is the LIKE pattern matching every path strictly below path.
func descendantPattern(path string) string {
	return path + ".%"
}

// comparePaths orders paths segment by segment numerically, so "1.2" sorts
// before "1.10".
func comparePaths(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		x, _ := strconv.ParseInt(as[i], 10, 64)
		y, _ := strconv.ParseInt(bs[i], 10, 64)
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return len(as) - len(bs)
}
