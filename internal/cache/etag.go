package cache

import (
	"net/http"
	"strings"
)

// ETag returns a strong entity tag for responses derived from the snapshot
// with the given fingerprint
func ETag(fingerprint string) string {
	return `"` + shortFingerprint(fingerprint) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into its entity tags
func ParseIfNoneMatch(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []string{"*"}
	}

	var etags []string
	for _, part := range strings.Split(header, ",") {
		if part = strings.TrimSpace(part); part != "" {
			etags = append(etags, part)
		}
	}
	return etags
}

// MatchesETag reports whether etag matches any of etags using weak comparison
func MatchesETag(etag string, etags []string) bool {
	if len(etags) == 1 && etags[0] == "*" {
		return true
	}
	for _, e := range etags {
		if strings.TrimPrefix(e, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}

// CheckNotModified sets the ETag header and, when the request's
// If-None-Match matches it, writes 304 and returns true
func CheckNotModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	if MatchesETag(etag, ParseIfNoneMatch(r.Header.Get("If-None-Match"))) {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}
