package handlers

import (
	"net/http"
	"strconv"

	"github.com/webtermd/webterm/internal/auth"
	"github.com/webtermd/webterm/internal/logging"
)

const defaultLogLines = 200

// authenticated reports whether the request carries a valid credential, or
// the gate is disabled.
func authenticated(r *http.Request) bool {
	if !Gate.Enabled() {
		return true
	}
	cookie, err := r.Cookie(auth.CookieName)
	return err == nil && Credentials.Validate(cookie.Value)
}

// Logs handles GET /api/logs?lines=N: the tail of the server log.
func Logs(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	lines := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid lines parameter")
			return
		}
		lines = n
	}
	tail, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": tail})
}

// ClearLogs handles DELETE /api/logs.
func ClearLogs(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if err := logging.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
