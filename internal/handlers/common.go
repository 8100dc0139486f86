package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/emilyats/authmed/internal/identity"
	"github.com/emilyats/authmed/internal/services"
)

// extractBearerToken pulls the session token out of an Authorization header.
func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireAuth resolves the request's session to a user id. A missing or
// stale token yields ("", 401); a session-store failure yields ("", 500)
// rather than reading as unauthenticated; success is (id, 0).
func requireAuth(r *http.Request) (string, int) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", http.StatusUnauthorized
	}
	userID, ok, err := services.Sessions.Resolve(r.Context(), token)
	if err != nil {
		return "", http.StatusInternalServerError
	}
	if !ok {
		return "", http.StatusUnauthorized
	}
	return userID.String(), 0
}

// authFailureMessage picks the envelope message for a requireAuth status.
func authFailureMessage(status int) string {
	if status == http.StatusInternalServerError {
		return "Something went wrong. Please try again."
	}
	return "Authentication required"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// statusForAuthError maps a provider error code onto the HTTP status the
// mobile client expects.
func statusForAuthError(err error) int {
	switch identity.CodeOf(err) {
	case identity.CodeInvalidCredential, identity.CodeRequiresRecentLogin:
		return http.StatusUnauthorized
	case identity.CodeUserNotFound:
		return http.StatusNotFound
	case identity.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case identity.CodeInvalidEmail, identity.CodeWeakPassword, identity.CodeTokenExpired:
		return http.StatusBadRequest
	case identity.CodeEmailNotVerified:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
