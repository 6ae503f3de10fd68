// Package query reads list and number parameters from request URLs
package query

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// List collects the values of key, which may repeat or be comma-separated.
// ?name=OwnedBy,MemberOf&name=OwnedBy returns [OwnedBy MemberOf].
func List(r *http.Request, key string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

// Set is List as a membership set
func Set(r *http.Request, key string) map[string]bool {
	set := map[string]bool{}
	for _, v := range List(r, key) {
		set[v] = true
	}
	return set
}

// Int parses key as an integer no smaller than min, returning def when the
// parameter is absent
func Int(r *http.Request, key string, def, min int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return 0, fmt.Errorf("%s must be an integer >= %d", key, min)
	}
	return n, nil
}
