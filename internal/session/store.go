// Package session holds the current user's bearer token and identity, restores
// them from durable storage and keeps storage in step with login and logout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/domain/events"
	"github.com/supersquad/eventsweb/internal/metrics"
)

// Authenticator exchanges credentials for a token. *apiclient.Client
// satisfies it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (apiclient.LoginResult, error)
}

// Session is a point-in-time copy of a Store's state.
type Session struct {
	Token string
	User  *events.User
}

// Authenticated reports whether a token is held.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Store is the session for one browser (web) or one user (CLI). It starts in
// the loading state; Restore ends it.
type Store struct {
	storage Storage
	auth    Authenticator
	logger  zerolog.Logger

	restoreOnce sync.Once

	mu      sync.RWMutex
	loading bool
	token   string
	user    *events.User
}

// New creates an empty, loading Store.
func New(storage Storage, auth Authenticator, logger zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		auth:    auth,
		logger:  logger,
		loading: true,
	}
}

// IsLoading is true until Restore has completed.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the logged-in user, or nil.
func (s *Store) User() *events.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.user)
}

// Snapshot returns the token and user together.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{Token: s.token, User: copyUser(s.user)}
}

// Restore loads the persisted session. Only the first call does any work.
// A persisted user that is absent, corrupt, or held without a token is
// discarded and its entry removed; the token is kept whenever present.
// Storage failures are logged, never returned.
func (s *Store) Restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		token, user, result := s.readPersisted(ctx)

		s.mu.Lock()
		s.token = token
		s.user = user
		s.loading = false
		s.mu.Unlock()

		metrics.SessionRestoresTotal.WithLabelValues(result).Inc()
	})
}

func (s *Store) readPersisted(ctx context.Context) (string, *events.User, string) {
	token, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("unreadable session token; starting logged out")
		token = ""
	} else if !ok {
		token = ""
	}

	raw, ok, err := s.storage.Get(ctx, UserKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("unreadable session user; discarding")
		s.removeEntry(ctx, UserKey)
		return token, nil, resultFor(token, nil, true)
	}
	if !ok {
		return token, nil, resultFor(token, nil, false)
	}

	user, err := parseUser(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("corrupt session user; discarding")
		s.removeEntry(ctx, UserKey)
		return token, nil, resultFor(token, nil, true)
	}
	if token == "" {
		s.logger.Warn().Int64("user_id", user.ID).Msg("session user without token; discarding")
		s.removeEntry(ctx, UserKey)
		return "", nil, resultFor("", nil, true)
	}
	return token, user, resultFor(token, user, false)
}

func resultFor(token string, user *events.User, healed bool) string {
	switch {
	case healed:
		return "healed"
	case token == "":
		return "anonymous"
	case user == nil:
		return "token_only"
	default:
		return "authenticated"
	}
}

// errCorruptUser marks a persisted user entry that cannot be used.
var errCorruptUser = errors.New("corrupt persisted user")

func parseUser(raw string) (*events.User, error) {
	switch raw {
	case "", "undefined", "null":
		return nil, fmt.Errorf("%w: %q", errCorruptUser, raw)
	}
	var stored struct {
		ID    *int64  `json:"id"`
		Email *string `json:"email"`
	}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptUser, err)
	}
	if stored.ID == nil || stored.Email == nil {
		return nil, fmt.Errorf("%w: missing id or email", errCorruptUser)
	}
	return &events.User{ID: *stored.ID, Email: *stored.Email}, nil
}

// Login authenticates and, on success, persists then holds the new session.
// Rejected credentials come back as apiclient.ErrAuthentication carrying the
// server's message or "Login failed".
func (s *Store) Login(ctx context.Context, email, password string) error {
	result, err := s.auth.Login(ctx, email, password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		if errors.Is(err, apiclient.ErrAuthentication) {
			return err
		}
		return &apiclient.Error{Kind: apiclient.ErrAuthentication, Message: loginMessage(err), Err: err}
	}

	encoded, err := json.Marshal(result.User)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("encode session user: %w", err)
	}
	if err := s.storage.Set(ctx, TokenKey, result.Token); err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("persist session token: %w", err)
	}
	if err := s.storage.Set(ctx, UserKey, string(encoded)); err != nil {
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		// Never leave a token persisted without its user.
		s.removeEntry(ctx, TokenKey)
		return fmt.Errorf("persist session user: %w", err)
	}

	s.mu.Lock()
	s.token = result.Token
	s.user = copyUser(result.User)
	s.loading = false
	s.mu.Unlock()

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	s.logger.Info().Int64("user_id", userID(result.User)).Msg("logged in")
	return nil
}

func loginMessage(err error) string {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return apiclient.MsgLoginFailed
}

// Logout forgets the session in memory and in storage. It never fails;
// storage errors are logged.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.loading = false
	s.mu.Unlock()

	s.removeEntry(ctx, TokenKey)
	s.removeEntry(ctx, UserKey)
}

func (s *Store) removeEntry(ctx context.Context, key string) {
	if err := s.storage.Remove(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to remove session entry")
	}
}

func copyUser(u *events.User) *events.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func userID(u *events.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}
