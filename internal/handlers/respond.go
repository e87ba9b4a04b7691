// Package handlers exposes the JSON API. Handlers own HTTP semantics and
// formatting; computation lives in the schedule engine and storage.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseTime accepts RFC 3339 with or without a zone offset; the schedule
// operates on local naive timestamps so a bare "2006-01-02T15:04:05" is the
// common case.
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02T15:04", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
