package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// timeNow is swappable in tests that pin the clock.
var timeNow = time.Now

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// localPath restricts a return-to location to same-origin paths. Anything
// that is not a plain absolute path falls back, so a crafted next value
// can never redirect off-site.
func localPath(p, fallback string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return fallback
	}
	return p
}

// parseID parses a positive record id from a form or query value.
func parseID(v string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pickMonth validates the requested month against the available months.
// Default is the current month when it has records, else the most recent
// month, else empty.
func pickMonth(requested string, available []string, now time.Time) string {
	for _, m := range available {
		if m == requested {
			return requested
		}
	}
	current := now.Format("2006-01")
	for _, m := range available {
		if m == current {
			return current
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}

// parseSort maps the sort query value to oldest-first. Default is
// newest-first.
func parseSort(v string) (oldestFirst bool) {
	return v == "old"
}

func seeOther(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}
