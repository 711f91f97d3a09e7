package handler

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"pdfdesk/internal/history"
)

// HandleHealth reports liveness.
func HandleHealth(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"history": app.HistoryEnabled(),
		})
	}
}

// HandleHistory lists recent jobs. The optional limit query parameter is
// clamped to history.MaxLimit.
func HandleHistory(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !app.HistoryEnabled() {
			WriteError(w, http.StatusNotFound, "job history is disabled")
			return
		}

		limit := history.DefaultLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		jobs, err := app.History(limit)
		if err != nil {
			log.Printf("[History] list failed: %v", err)
			WriteError(w, http.StatusInternalServerError, "failed to load job history")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
	}
}

// HandleHistoryByID returns one job, addressed as /api/history/{id}.
func HandleHistoryByID(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !app.HistoryEnabled() {
			WriteError(w, http.StatusNotFound, "job history is disabled")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/history/")
		if !isValidHexID(id) {
			WriteError(w, http.StatusBadRequest, "invalid job id")
			return
		}
		job, err := app.Job(id)
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

// isValidHexID checks if the given string is a valid 32-character lowercase hex ID.
func isValidHexID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
