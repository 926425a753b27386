package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
	"libraryhub/internal/store"
)

const (
	defaultLoginRate  = rate.Limit(5.0 / 60.0) // 5 attempts per minute
	defaultLoginBurst = 5
)

// service implements the Service interface.
type service struct {
	store       *store.Store
	tokens      *Tokens
	rateLimiter *loginLimiter
	logger      logging.Logger
	now         func() time.Time
}

// Option configures the access gate.
type Option func(*service)

// WithLoginLimit sets the token bucket applied to login attempts for each
// username.
func WithLoginLimit(limit rate.Limit, burst int) Option {
	return func(s *service) {
		s.rateLimiter = newLoginLimiter(limit, burst)
	}
}

// WithLogger sets the logger for authentication outcomes.
func WithLogger(logger logging.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService creates a new access gate instance.
func NewService(st *store.Store, tokens *Tokens, opts ...Option) Service {
	s := &service{
		store:       st,
		tokens:      tokens,
		rateLimiter: newLoginLimiter(defaultLoginRate, defaultLoginBurst),
		logger:      logging.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies a librarian's credentials and issues an access
// token.
func (s *service) Authenticate(ctx context.Context, username, password string) (*AccessToken, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, errs.ErrMissingCredentials
	}

	if !s.rateLimiter.allow(username, s.now()) {
		s.logger.Warn("login rate limit exceeded", "username", username)
		return nil, errs.ErrRateLimited
	}

	row, err := s.getLibrarianByUsername(ctx, username)
	if errors.Is(err, errs.ErrLibrarianNotFound) {
		s.logger.Info("login rejected", "username", username, "reason", "unknown username")
		return nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := row.credential().Verify(password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.logger.Info("login rejected", "username", username, "reason", "password mismatch")
		return nil, errs.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(row.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("librarian logged in", "librarian_id", row.ID)
	return &AccessToken{Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveIdentity returns the librarian id bound to token.
func (s *service) ResolveIdentity(_ context.Context, token string) (uuid.UUID, error) {
	return s.tokens.Verify(token)
}

// Profile returns the librarian identified by id.
func (s *service) Profile(ctx context.Context, id uuid.UUID) (*Librarian, error) {
	query := s.store.Rebind(`
		SELECT id, username, created_at, updated_at
		FROM librarians
		WHERE id = ?
	`)
	librarian := &Librarian{}
	if err := s.store.DB().GetContext(ctx, librarian, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrLibrarianNotFound
		}
		return nil, errs.Storage(fmt.Errorf("get librarian: %w", err))
	}
	return librarian, nil
}

// CreateLibrarian registers a new librarian account.
func (s *service) CreateLibrarian(ctx context.Context, username, password string) (*Librarian, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errs.ErrMissingCredentials
	}

	var credential Credential
	if err := credential.SetPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	row := librarianRow{
		Librarian: Librarian{
			ID:        uuid.New(),
			Username:  username,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: credential.hash,
		Salt:         credential.salt,
	}

	query := s.store.Rebind(`
		INSERT INTO librarians (id, username, password_hash, salt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.store.DB().ExecContext(ctx, query, row.ID, row.Username, row.PasswordHash, row.Salt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errs.ErrDuplicateUsername
		}
		return nil, errs.Storage(fmt.Errorf("insert librarian: %w", err))
	}

	s.logger.Info("librarian created", "librarian_id", row.ID, "username", row.Username)
	return &row.Librarian, nil
}

func (s *service) getLibrarianByUsername(ctx context.Context, username string) (*librarianRow, error) {
	query := s.store.Rebind(`
		SELECT id, username, password_hash, salt, created_at, updated_at
		FROM librarians
		WHERE username = ?
	`)
	row := &librarianRow{}
	if err := s.store.DB().GetContext(ctx, row, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrLibrarianNotFound
		}
		return nil, errs.Storage(fmt.Errorf("get librarian by username: %w", err))
	}
	return row, nil
}
