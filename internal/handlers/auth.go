package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/webtermd/webterm/internal/auth"
)

// Gate and Credentials are set from main during init.
var (
	Gate        *auth.Gate
	Credentials *auth.CredentialStore
)

func setCredentialCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(Credentials.MaxAge().Seconds()),
	})
}

func clearCredentialCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// PinLength handles GET /pin-length. The login UI sizes its input field
// from this; 0 means no code is configured.
func PinLength(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"length": Gate.CodeLength()})
}

// RequirePin handles GET /api/require-pin. The client uses it to decide
// whether to show a logout affordance.
func RequirePin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"success":  true,
		"required": Gate.Enabled(),
	})
}

// VerifyPin handles POST /verify-pin. On success a credential cookie is
// set; on failure the remaining attempts are reported; locked-out callers
// get 429 with the minutes remaining.
func VerifyPin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	addr := clientAddr(r)

	if locked, remaining := Gate.IsLockedOut(addr); locked {
		minutes := int(math.Ceil(remaining.Minutes()))
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Too many attempts. Try again in %d minute(s).", minutes))
		return
	}

	ok, attemptsLeft := Gate.Verify(addr, body.Pin)
	if !ok {
		if locked, remaining := Gate.IsLockedOut(addr); locked {
			minutes := int(math.Ceil(remaining.Minutes()))
			writeError(w, http.StatusTooManyRequests,
				fmt.Sprintf("Too many attempts. Try again in %d minute(s).", minutes))
			return
		}
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":        "Invalid PIN",
			"attemptsLeft": attemptsLeft,
		})
		return
	}

	token, err := Credentials.Issue()
	if err != nil {
		log.Printf("[gate] credential issue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	setCredentialCookie(w, r, token)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout handles POST /logout: revokes the credential and clears the cookie.
func Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		Credentials.Revoke(cookie.Value)
	}
	clearCredentialCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
