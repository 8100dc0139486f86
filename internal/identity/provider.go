package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is the provider-held identity as consumed by the app: id, email
// and the email-verified flag. Passwords never leave the provider.
type Account struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	CreatedAt     time.Time
}

// Code identifies a provider failure. The set mirrors the upstream auth
// provider's error taxonomy so callers can map codes to user-facing
// messages without string matching.
type Code string

const (
	CodeInvalidCredential   Code = "auth/invalid-credential"
	CodeUserNotFound        Code = "auth/user-not-found"
	CodeEmailAlreadyInUse   Code = "auth/email-already-in-use"
	CodeInvalidEmail        Code = "auth/invalid-email"
	CodeWeakPassword        Code = "auth/weak-password"
	CodeEmailNotVerified    Code = "auth/email-not-verified"
	CodeRequiresRecentLogin Code = "auth/requires-recent-login"
	CodeTokenExpired        Code = "auth/expired-action-code"
	CodeInternal            Code = "auth/internal-error"
)

// Error is a provider failure carrying its taxonomy code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a provider code. err may be nil.
func NewError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the provider code from err, or CodeInternal for anything
// outside the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*Error); ok {
		return pe.Code
	}
	return CodeInternal
}

// Provider is the identity backend. The production implementation stores
// accounts in PostgreSQL; tests substitute fakes.
type Provider interface {
	// CreateAccount registers a new, unverified identity.
	CreateAccount(ctx context.Context, email, password string) (*Account, error)
	// Authenticate checks the credential and returns the account.
	// Wrong password and unknown email both come back as
	// CodeInvalidCredential / CodeUserNotFound per the provider taxonomy.
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	// SendVerificationEmail issues a verification mail for the account.
	SendVerificationEmail(ctx context.Context, accountID uuid.UUID) error
	// SendPasswordReset issues a reset mail; CodeUserNotFound when the
	// address has no account.
	SendPasswordReset(ctx context.Context, email string) error
	// UpdatePassword replaces the credential. The caller is responsible
	// for re-authentication first.
	UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error
	// GetAccount looks up an account by id.
	GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error)
}

// Mailer delivers verification and reset mails. The default implementation
// logs; deployments plug in a real delivery service.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}
