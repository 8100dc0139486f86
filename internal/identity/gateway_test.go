package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// fakeProvider is an in-memory Provider that records which operations ran.
type fakeProvider struct {
	accounts map[string]*fakeAccount

	verificationEmails int
	resetEmails        int
	updatedPasswords   int
}

type fakeAccount struct {
	id       uuid.UUID
	password string
	verified bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: make(map[string]*fakeAccount)}
}

func (p *fakeProvider) addAccount(email, password string, verified bool) uuid.UUID {
	id := uuid.New()
	p.accounts[email] = &fakeAccount{id: id, password: password, verified: verified}
	return id
}

func (p *fakeProvider) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	if _, exists := p.accounts[email]; exists {
		return nil, NewError(CodeEmailAlreadyInUse, nil)
	}
	if len(password) < MinPasswordLength {
		return nil, NewError(CodeWeakPassword, nil)
	}
	id := p.addAccount(email, password, false)
	return &Account{ID: id, Email: email}, nil
}

func (p *fakeProvider) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	acct, ok := p.accounts[email]
	if !ok || acct.password != password {
		return nil, NewError(CodeInvalidCredential, nil)
	}
	return &Account{ID: acct.id, Email: email, EmailVerified: acct.verified}, nil
}

func (p *fakeProvider) SendVerificationEmail(ctx context.Context, accountID uuid.UUID) error {
	p.verificationEmails++
	return nil
}

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email string) error {
	if _, ok := p.accounts[email]; !ok {
		return NewError(CodeUserNotFound, nil)
	}
	p.resetEmails++
	return nil
}

func (p *fakeProvider) UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return NewError(CodeWeakPassword, nil)
	}
	for _, acct := range p.accounts {
		if acct.id == accountID {
			acct.password = newPassword
			p.updatedPasswords++
			return nil
		}
	}
	return NewError(CodeUserNotFound, nil)
}

func (p *fakeProvider) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	for email, acct := range p.accounts {
		if acct.id == accountID {
			return &Account{ID: acct.id, Email: email, EmailVerified: acct.verified}, nil
		}
	}
	return nil, NewError(CodeUserNotFound, nil)
}

// fakeSessions counts creations and invalidations so tests can assert that
// unverified identities never keep a live session.
type fakeSessions struct {
	live        map[string]uuid.UUID
	created     int
	invalidated int
	resolveErr  error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{live: make(map[string]uuid.UUID)}
}

func (s *fakeSessions) Create(ctx context.Context, accountID uuid.UUID) (string, error) {
	s.created++
	token := fmt.Sprintf("token-%d", s.created)
	s.live[token] = accountID
	return token, nil
}

func (s *fakeSessions) Invalidate(ctx context.Context, token string) error {
	s.invalidated++
	delete(s.live, token)
	return nil
}

func (s *fakeSessions) Resolve(ctx context.Context, token string) (uuid.UUID, bool, error) {
	if s.resolveErr != nil {
		return uuid.Nil, false, s.resolveErr
	}
	id, ok := s.live[token]
	return id, ok, nil
}

func TestSignInVerified(t *testing.T) {
	provider := newFakeProvider()
	provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	g := NewGateway(provider, sessions)

	token, acct, err := g.SignIn(context.Background(), "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}
	if acct.Email != "ana@example.com" {
		t.Errorf("wrong account: %s", acct.Email)
	}
	if len(sessions.live) != 1 {
		t.Errorf("expected 1 live session, got %d", len(sessions.live))
	}
}

func TestSignInUnverifiedIsRefusedAndSignedOut(t *testing.T) {
	provider := newFakeProvider()
	provider.addAccount("ben@example.com", "secret123", false)
	sessions := newFakeSessions()
	g := NewGateway(provider, sessions)

	token, _, err := g.SignIn(context.Background(), "ben@example.com", "secret123")
	if CodeOf(err) != CodeEmailNotVerified {
		t.Fatalf("expected email-not-verified, got %v", err)
	}
	if token != "" {
		t.Error("no token should be returned for an unverified account")
	}
	// The session that was opened must be torn down exactly once.
	if sessions.invalidated != 1 {
		t.Errorf("expected exactly 1 invalidation, got %d", sessions.invalidated)
	}
	if len(sessions.live) != 0 {
		t.Errorf("unverified sign-in left %d live sessions", len(sessions.live))
	}
}

func TestSignInWrongPassword(t *testing.T) {
	provider := newFakeProvider()
	provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	g := NewGateway(provider, sessions)

	_, _, err := g.SignIn(context.Background(), "ana@example.com", "wrong")
	if CodeOf(err) != CodeInvalidCredential {
		t.Fatalf("expected invalid-credential, got %v", err)
	}
	if sessions.created != 0 {
		t.Error("no session should be created for a failed sign-in")
	}
}

func TestSignUpSendsOneVerificationEmailAndSignsOut(t *testing.T) {
	provider := newFakeProvider()
	sessions := newFakeSessions()
	g := NewGateway(provider, sessions)

	acct, err := g.SignUp(context.Background(), "new@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if acct.EmailVerified {
		t.Error("new accounts must start unverified")
	}
	if provider.verificationEmails != 1 {
		t.Errorf("expected exactly 1 verification email, got %d", provider.verificationEmails)
	}
	if len(sessions.live) != 0 {
		t.Errorf("sign-up left %d live sessions", len(sessions.live))
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	provider := newFakeProvider()
	provider.addAccount("dup@example.com", "secret123", true)
	g := NewGateway(provider, newFakeSessions())

	_, err := g.SignUp(context.Background(), "dup@example.com", "secret123")
	if CodeOf(err) != CodeEmailAlreadyInUse {
		t.Fatalf("expected email-already-in-use, got %v", err)
	}
	if provider.verificationEmails != 0 {
		t.Error("no verification email for a refused sign-up")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	provider := newFakeProvider()
	id := provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	token, _ := sessions.Create(context.Background(), id)
	g := NewGateway(provider, sessions)

	err := g.ChangePassword(context.Background(), token, "not-the-password", "another456")
	if CodeOf(err) != CodeInvalidCredential {
		t.Fatalf("expected invalid-credential for wrong current password, got %v", err)
	}
	if provider.updatedPasswords != 0 {
		t.Error("password must not change when re-authentication fails")
	}
}

func TestChangePasswordWeakNew(t *testing.T) {
	provider := newFakeProvider()
	id := provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	token, _ := sessions.Create(context.Background(), id)
	g := NewGateway(provider, sessions)

	err := g.ChangePassword(context.Background(), token, "secret123", "short")
	if CodeOf(err) != CodeWeakPassword {
		t.Fatalf("expected weak-password for short new password, got %v", err)
	}
}

func TestChangePasswordNoSession(t *testing.T) {
	g := NewGateway(newFakeProvider(), newFakeSessions())

	err := g.ChangePassword(context.Background(), "stale-token", "secret123", "another456")
	if CodeOf(err) != CodeRequiresRecentLogin {
		t.Fatalf("expected requires-recent-login, got %v", err)
	}
}

func TestChangePasswordSessionStoreDown(t *testing.T) {
	provider := newFakeProvider()
	id := provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	token, _ := sessions.Create(context.Background(), id)
	g := NewGateway(provider, sessions)

	// A session-store outage is an internal failure, not a request to log
	// in again.
	sessions.resolveErr = errors.New("store unavailable")
	err := g.ChangePassword(context.Background(), token, "secret123", "another456")
	if CodeOf(err) != CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestChangePasswordSuccess(t *testing.T) {
	provider := newFakeProvider()
	id := provider.addAccount("ana@example.com", "secret123", true)
	sessions := newFakeSessions()
	token, _ := sessions.Create(context.Background(), id)
	g := NewGateway(provider, sessions)

	if err := g.ChangePassword(context.Background(), token, "secret123", "another456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if _, _, err := g.SignIn(context.Background(), "ana@example.com", "another456"); err != nil {
		t.Errorf("sign-in with new password failed: %v", err)
	}
}

func TestSignOutIsIdempotent(t *testing.T) {
	sessions := newFakeSessions()
	g := NewGateway(newFakeProvider(), sessions)

	if err := g.SignOut(context.Background(), ""); err != nil {
		t.Errorf("empty-token sign-out returned %v", err)
	}
	if err := g.SignOut(context.Background(), "never-issued"); err != nil {
		t.Errorf("unknown-token sign-out returned %v", err)
	}
	if err := g.SignOut(context.Background(), "never-issued"); err != nil {
		t.Errorf("repeated sign-out returned %v", err)
	}
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	g := NewGateway(newFakeProvider(), newFakeSessions())

	err := g.ResetPassword(context.Background(), "nobody@example.com")
	if CodeOf(err) != CodeUserNotFound {
		t.Fatalf("expected user-not-found, got %v", err)
	}
}

func TestMessageMapping(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{CodeInvalidCredential, "Incorrect email or password."},
		{CodeUserNotFound, "No account found with this email."},
		{CodeEmailAlreadyInUse, "An account with this email already exists."},
		{CodeInvalidEmail, "Please enter a valid email address."},
		{CodeWeakPassword, "Password must be at least 6 characters."},
		{CodeEmailNotVerified, "Please verify your email before logging in."},
		{CodeRequiresRecentLogin, "Please log in again before changing your password."},
		{CodeTokenExpired, "This link has expired. Please request a new one."},
	}
	for _, tc := range cases {
		if got := Message(NewError(tc.code, nil)); got != tc.want {
			t.Errorf("Message(%s) = %q, want %q", tc.code, got, tc.want)
		}
	}
	if got := Message(errors.New("boom")); got != "Something went wrong. Please try again." {
		t.Errorf("unmapped error message = %q", got)
	}
}
