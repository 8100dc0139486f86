package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/emilyats/authmed/internal/identity"
)

var (
	authGateway      *identity.Gateway
	identityProvider *identity.PostgresProvider
)

// InitAuth wires the identity gateway used by the auth endpoints.
func InitAuth(gateway *identity.Gateway, provider *identity.PostgresProvider) {
	authGateway = gateway
	identityProvider = provider
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AuthResponse is the common auth endpoint envelope.
type AuthResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	User    map[string]interface{} `json:"user,omitempty"`
	Token   string                 `json:"token,omitempty"`
}

// Signup creates an account, sends the verification email, and leaves the
// user signed out until they verify.
func Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	acct, err := authGateway.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: identity.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "Account created. Please check your email to verify your address before logging in.",
		User:    accountMap(acct),
	})
}

// Signin authenticates and returns a session token. Unverified accounts are
// signed back out by the gateway and refused here.
func Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	token, acct, err := authGateway.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: identity.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Login successful",
		User:    accountMap(acct),
		Token:   token,
	})
}

// Signout invalidates the session. Idempotent; a missing or stale token
// still succeeds.
func Signout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	_ = authGateway.SignOut(r.Context(), token)

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Signed out",
	})
}

// ForgotPassword triggers a provider-side reset email.
func ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	if err := authGateway.ResetPassword(r.Context(), req.Email); err != nil {
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: identity.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Password reset email sent.",
	})
}

// ResetPassword redeems a reset token for a new password.
func ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token == "" || req.NewPassword == "" {
		http.Error(w, "Token and new password are required", http.StatusBadRequest)
		return
	}

	if err := identityProvider.RedeemPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: identity.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Password updated. You can now log in.",
	})
}

// ChangePassword re-authenticates with the current credential before
// updating; wrong current password and weak new password are distinct
// failures.
func ChangePassword(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, AuthResponse{
			Success: false,
			Message: "Authentication required",
		})
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		http.Error(w, "Current and new password are required", http.StatusBadRequest)
		return
	}

	if err := authGateway.ChangePassword(r.Context(), token, req.CurrentPassword, req.NewPassword); err != nil {
		msg := identity.Message(err)
		if identity.CodeOf(err) == identity.CodeInvalidCredential {
			msg = "Current password is incorrect."
		}
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: msg,
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Password changed successfully.",
	})
}

// VerifyEmail redeems a verification token from the emailed link.
func VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	if err := identityProvider.VerifyEmail(r.Context(), token); err != nil {
		writeJSON(w, statusForAuthError(err), AuthResponse{
			Success: false,
			Message: identity.Message(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Email verified. You can now log in.",
	})
}

// GetMe returns the current session's account.
func GetMe(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	acct, err := authGateway.CurrentUser(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, AuthResponse{
			Success: false,
			Message: "Authentication required",
		})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "OK",
		User:    accountMap(acct),
	})
}

func accountMap(acct *identity.Account) map[string]interface{} {
	return map[string]interface{}{
		"id":             acct.ID.String(),
		"email":          acct.Email,
		"email_verified": acct.EmailVerified,
		"created_at":     acct.CreatedAt,
	}
}
