package identity

import (
	"context"

	"github.com/google/uuid"
)

// SessionStore holds live sessions. The production implementation keeps
// them in Redis; tests use an in-memory fake.
type SessionStore interface {
	Create(ctx context.Context, accountID uuid.UUID) (string, error)
	Invalidate(ctx context.Context, token string) error
	Resolve(ctx context.Context, token string) (uuid.UUID, bool, error)
}

// Gateway wraps the identity provider and the session store. It owns the
// sign-in/up/out flows and the verified-email gate; it holds no state of
// its own beyond what the provider and store hold.
type Gateway struct {
	provider Provider
	sessions SessionStore
}

func NewGateway(provider Provider, sessions SessionStore) *Gateway {
	return &Gateway{provider: provider, sessions: sessions}
}

// SignIn authenticates and opens a session. If the account's email is not
// verified the session is signed out again before returning; an unverified
// identity never gets access.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (string, *Account, error) {
	acct, err := g.provider.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}

	token, err := g.sessions.Create(ctx, acct.ID)
	if err != nil {
		return "", nil, NewError(CodeInternal, err)
	}

	if !acct.EmailVerified {
		_ = g.sessions.Invalidate(ctx, token)
		return "", nil, NewError(CodeEmailNotVerified, nil)
	}

	return token, acct, nil
}

// SignUp creates the identity, issues exactly one verification email, and
// signs the fresh session back out so the first real login happens only
// after verification.
func (g *Gateway) SignUp(ctx context.Context, email, password string) (*Account, error) {
	acct, err := g.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := g.provider.SendVerificationEmail(ctx, acct.ID); err != nil {
		return nil, err
	}

	// The provider signs a new account in implicitly; undo that.
	token, err := g.sessions.Create(ctx, acct.ID)
	if err == nil {
		_ = g.sessions.Invalidate(ctx, token)
	}

	return acct, nil
}

// ResetPassword triggers a provider-side reset email. The provider's own
// taxonomy (including user-not-found) is passed through untouched.
func (g *Gateway) ResetPassword(ctx context.Context, email string) error {
	return g.provider.SendPasswordReset(ctx, email)
}

// ChangePassword re-authenticates with the current credential before
// attempting the update; the provider refuses sensitive changes without a
// recent credential.
func (g *Gateway) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	accountID, ok, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		return NewError(CodeInternal, err)
	}
	if !ok {
		return NewError(CodeRequiresRecentLogin, nil)
	}

	acct, err := g.provider.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if _, err := g.provider.Authenticate(ctx, acct.Email, currentPassword); err != nil {
		// Wrong current password, distinct from a weak new one.
		return NewError(CodeInvalidCredential, nil)
	}

	return g.provider.UpdatePassword(ctx, accountID, newPassword)
}

// SignOut clears the session. Idempotent; an unknown or empty token is not
// an error.
func (g *Gateway) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return g.sessions.Invalidate(ctx, token)
}

// CurrentUser resolves the session token to its account.
func (g *Gateway) CurrentUser(ctx context.Context, token string) (*Account, error) {
	accountID, ok, err := g.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, NewError(CodeInternal, err)
	}
	if !ok {
		return nil, NewError(CodeUserNotFound, nil)
	}
	return g.provider.GetAccount(ctx, accountID)
}

// Message maps a provider failure to the fixed set of user-facing messages.
func Message(err error) string {
	switch CodeOf(err) {
	case CodeInvalidCredential:
		return "Incorrect email or password."
	case CodeUserNotFound:
		return "No account found with this email."
	case CodeEmailAlreadyInUse:
		return "An account with this email already exists."
	case CodeInvalidEmail:
		return "Please enter a valid email address."
	case CodeWeakPassword:
		return "Password must be at least 6 characters."
	case CodeEmailNotVerified:
		return "Please verify your email before logging in."
	case CodeRequiresRecentLogin:
		return "Please log in again before changing your password."
	case CodeTokenExpired:
		return "This link has expired. Please request a new one."
	default:
		return "Something went wrong. Please try again."
	}
}
