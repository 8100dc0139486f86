package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/emilyats/authmed/internal/database"
	"github.com/emilyats/authmed/pkg/utils"
)

const (
	// MinPasswordLength matches the upstream provider's weak-password rule.
	MinPasswordLength = 6

	tokenPurposeVerify = "verify"
	tokenPurposeReset  = "reset"

	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = 1 * time.Hour
)

// PostgresProvider implements Provider on top of the accounts tables.
type PostgresProvider struct {
	mailer Mailer
}

// NewPostgresProvider returns a provider backed by database.PostgresDB.
// A nil mailer falls back to the logging mailer.
func NewPostgresProvider(mailer Mailer) *PostgresProvider {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &PostgresProvider{mailer: mailer}
}

func (p *PostgresProvider) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, NewError(CodeInvalidEmail, err)
	}
	if len(password) < MinPasswordLength {
		return nil, NewError(CodeWeakPassword, nil)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, NewError(CodeInternal, err)
	}

	accountID := uuid.New()
	now := time.Now().UTC()
	_, err = database.PostgresDB.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)
	`, accountID, email, hash, now)
	if err != nil {
		// The UNIQUE constraint is the duplicate check; a racing signup
		// for the same email loses here, not in a pre-read.
		if isUniqueViolation(err) {
			return nil, NewError(CodeEmailAlreadyInUse, nil)
		}
		return nil, NewError(CodeInternal, err)
	}

	return &Account{ID: accountID, Email: email, EmailVerified: false, CreatedAt: now}, nil
}

func (p *PostgresProvider) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)

	var acct Account
	var hash string
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, email_verified, created_at
		FROM accounts WHERE email = $1
	`, email).Scan(&acct.ID, &acct.Email, &hash, &acct.EmailVerified, &acct.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, NewError(CodeUserNotFound, nil)
		}
		return nil, NewError(CodeInternal, err)
	}

	valid, err := utils.VerifyPassword(password, hash)
	if err != nil || !valid {
		return nil, NewError(CodeInvalidCredential, nil)
	}

	return &acct, nil
}

func (p *PostgresProvider) SendVerificationEmail(ctx context.Context, accountID uuid.UUID) error {
	acct, err := p.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	token, err := p.issueToken(ctx, accountID, tokenPurposeVerify, verifyTokenTTL)
	if err != nil {
		return err
	}

	if err := p.mailer.SendVerification(ctx, acct.Email, token); err != nil {
		return NewError(CodeInternal, err)
	}
	return nil
}

func (p *PostgresProvider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	var accountID uuid.UUID
	err := database.PostgresDB.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE email = $1", email).Scan(&accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return NewError(CodeUserNotFound, nil)
		}
		return NewError(CodeInternal, err)
	}

	token, err := p.issueToken(ctx, accountID, tokenPurposeReset, resetTokenTTL)
	if err != nil {
		return err
	}

	if err := p.mailer.SendPasswordReset(ctx, email, token); err != nil {
		return NewError(CodeInternal, err)
	}
	return nil
}

func (p *PostgresProvider) UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return NewError(CodeWeakPassword, nil)
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return NewError(CodeInternal, err)
	}

	res, err := database.PostgresDB.ExecContext(ctx, `
		UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2
	`, hash, accountID)
	if err != nil {
		return NewError(CodeInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewError(CodeUserNotFound, nil)
	}
	return nil
}

func (p *PostgresProvider) GetAccount(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	var acct Account
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT id, email, email_verified, created_at
		FROM accounts WHERE id = $1
	`, accountID).Scan(&acct.ID, &acct.Email, &acct.EmailVerified, &acct.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, NewError(CodeUserNotFound, nil)
		}
		return nil, NewError(CodeInternal, err)
	}
	return &acct, nil
}

// VerifyEmail redeems a verification token and marks the account verified.
func (p *PostgresProvider) VerifyEmail(ctx context.Context, token string) error {
	accountID, err := p.redeemToken(ctx, token, tokenPurposeVerify)
	if err != nil {
		return err
	}

	_, err = database.PostgresDB.ExecContext(ctx, `
		UPDATE accounts SET email_verified = TRUE, updated_at = NOW() WHERE id = $1
	`, accountID)
	if err != nil {
		return NewError(CodeInternal, err)
	}
	return nil
}

// RedeemPasswordReset consumes a reset token and sets the new password.
func (p *PostgresProvider) RedeemPasswordReset(ctx context.Context, token, newPassword string) error {
	accountID, err := p.redeemToken(ctx, token, tokenPurposeReset)
	if err != nil {
		return err
	}
	return p.UpdatePassword(ctx, accountID, newPassword)
}

func (p *PostgresProvider) issueToken(ctx context.Context, accountID uuid.UUID, purpose string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", NewError(CodeInternal, err)
	}
	token := base64.URLEncoding.EncodeToString(raw)

	_, err := database.PostgresDB.ExecContext(ctx, `
		INSERT INTO account_tokens (id, account_id, token, purpose, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NOW(), $5)
	`, uuid.New(), accountID, token, purpose, time.Now().UTC().Add(ttl))
	if err != nil {
		return "", NewError(CodeInternal, err)
	}
	return token, nil
}

func (p *PostgresProvider) redeemToken(ctx context.Context, token, purpose string) (uuid.UUID, error) {
	var accountID uuid.UUID
	var expiresAt time.Time
	var usedAt sql.NullTime
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT account_id, expires_at, used_at
		FROM account_tokens WHERE token = $1 AND purpose = $2
	`, token, purpose).Scan(&accountID, &expiresAt, &usedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return uuid.Nil, NewError(CodeTokenExpired, nil)
		}
		return uuid.Nil, NewError(CodeInternal, err)
	}
	if usedAt.Valid || time.Now().UTC().After(expiresAt) {
		return uuid.Nil, NewError(CodeTokenExpired, nil)
	}

	_, err = database.PostgresDB.ExecContext(ctx,
		"UPDATE account_tokens SET used_at = NOW() WHERE token = $1", token)
	if err != nil {
		return uuid.Nil, NewError(CodeInternal, err)
	}
	return accountID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// failure (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// LogMailer writes mails to the process log. It stands in wherever no real
// delivery service is configured.
type LogMailer struct{}

func (LogMailer) SendVerification(ctx context.Context, email, token string) error {
	log.Printf("📧 Verification email to %s (token %s...)", email, safePrefix(token))
	return nil
}

func (LogMailer) SendPasswordReset(ctx context.Context, email, token string) error {
	log.Printf("📧 Password reset email to %s (token %s...)", email, safePrefix(token))
	return nil
}

func safePrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
