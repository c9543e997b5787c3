package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/credstore"
	"github.com/ButyrinIA/blogsync/internal/logging"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type SessionState int

const (
	Anonymous SessionState = iota
	Authenticating
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Session owns the credential token and the signed-in identity. The token is
// persisted in the credential store; the identity is loaded lazily.
type Session struct {
	auth  AuthAPI
	store credstore.Store
	log   *slog.Logger
	now   func() time.Time

	// op serializes login, register and logout.
	op sync.Mutex

	mu       sync.RWMutex
	state    SessionState
	token    string
	identity *models.Identity
	err      string
}

func NewSession(auth AuthAPI, store credstore.Store, logger *slog.Logger) *Session {
	if store == nil {
		store = credstore.NewMemory()
	}
	return &Session{
		auth:  auth,
		store: store,
		log:   logging.Or(logger).With("component", "session"),
		now:   time.Now,
	}
}

type sessionSnapshot struct {
	state    SessionState
	token    string
	identity *models.Identity
}

// Restore loads the persisted token on cold start. A JWT whose expiry has
// passed is discarded. The identity stays empty until Refresh.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.store.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore token: %w", err)
	}
	if token != "" && s.expired(token) {
		s.log.Info("Stored token expired, discarding")
		if err := s.store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear token: %w", err)
		}
		token = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.identity = nil
	if token != "" {
		s.state = Authenticated
	} else {
		s.state = Anonymous
	}
	return nil
}

// expired reports whether token is a JWT with an exp claim in the past.
// Opaque tokens are never considered expired.
func (s *Session) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(s.now())
}

func (s *Session) begin() sessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := sessionSnapshot{state: s.state, token: s.token, identity: s.identity}
	s.state = Authenticating
	s.err = ""
	return prev
}

// fail returns the session to its state before the attempt. An unauthorized
// failure leaves it anonymous since the API has already rejected the token.
func (s *Session) fail(ctx context.Context, prev sessionSnapshot, err error) error {
	if apperr.IsUnauthorized(err) {
		prev = sessionSnapshot{state: Anonymous}
	}
	if storeErr := s.store.SetToken(ctx, prev.token); storeErr != nil {
		s.log.Warn("Failed to restore token", "error", storeErr)
	}

	s.mu.Lock()
	s.state = prev.state
	s.token = prev.token
	s.identity = prev.identity
	s.err = err.Error()
	s.mu.Unlock()
	return err
}

func (s *Session) establish(token string, user *models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.identity = user
	s.state = Authenticated
	s.err = ""
}

func (s *Session) Register(ctx context.Context, in models.Registration) (*models.Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := checkInput(in, nil); err != nil {
		return nil, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	prev := s.begin()
	res, err := s.auth.Register(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, prev, err)
	}
	if res.Token == "" {
		// регистрация без автоматического входа
		s.mu.Lock()
		s.state = prev.state
		s.mu.Unlock()
		return res.User, nil
	}
	if err := s.store.SetToken(ctx, res.Token); err != nil {
		return nil, s.fail(ctx, prev, fmt.Errorf("failed to save token: %w", err))
	}

	user := res.User
	if user == nil {
		if user, err = s.auth.Me(ctx); err != nil {
			return nil, s.fail(ctx, prev, err)
		}
	}
	s.establish(res.Token, user)
	s.log.Info("Registered", "user_id", user.ID)
	return cloneIdentity(user), nil
}

// Login exchanges credentials for a token, persists it, then loads the identity.
func (s *Session) Login(ctx context.Context, in models.Credentials) (*models.Identity, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := checkInput(in, nil); err != nil {
		return nil, err
	}

	s.op.Lock()
	defer s.op.Unlock()

	prev := s.begin()
	token, err := s.auth.Login(ctx, in)
	if err != nil {
		return nil, s.fail(ctx, prev, err)
	}
	// /users/details читает токен из хранилища
	if err := s.store.SetToken(ctx, token); err != nil {
		return nil, s.fail(ctx, prev, fmt.Errorf("failed to save token: %w", err))
	}
	user, err := s.auth.Me(ctx)
	if err != nil {
		return nil, s.fail(ctx, prev, err)
	}

	s.establish(token, user)
	s.log.Info("Logged in", "user_id", user.ID, "role", user.Role)
	return cloneIdentity(user), nil
}

// Refresh loads the identity for the current token. Without a token it
// returns nil and does nothing.
func (s *Session) Refresh(ctx context.Context) (*models.Identity, error) {
	if s.Token() == "" {
		return nil, nil
	}
	user, err := s.auth.Me(ctx)
	if err != nil {
		s.mu.Lock()
		s.err = err.Error()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// токен могли сбросить, пока шел запрос
	if s.token == "" {
		return nil, nil
	}
	s.identity = user
	s.state = Authenticated
	return cloneIdentity(user), nil
}

// Logout is local: it always leaves the session anonymous, and only reports a
// failure to clear the persisted token.
func (s *Session) Logout(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.reset()
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	s.log.Info("Logged out")
	return nil
}

// Expire handles the API's unauthorized signal. It is idempotent.
func (s *Session) Expire() {
	if !s.reset() {
		return
	}
	if err := s.store.Clear(context.Background()); err != nil {
		s.log.Warn("Failed to clear token", "error", err)
	}
	s.log.Info("Session expired by API")
}

func (s *Session) reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" && s.identity == nil && s.state == Anonymous {
		return false
	}
	s.token = ""
	s.identity = nil
	s.state = Anonymous
	return true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Identity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIdentity(s.identity)
}

func (s *Session) IsAdmin() bool {
	return s.Identity().IsAdmin()
}

func (s *Session) Busy() bool {
	return s.State() == Authenticating
}

// Err is the message of the last failed session operation.
func (s *Session) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func cloneIdentity(i *models.Identity) *models.Identity {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}
