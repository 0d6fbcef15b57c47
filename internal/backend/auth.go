package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AuthClient is the auth surface. The current session lives in memory and is
// mirrored to an optional SessionStore.
type AuthClient struct {
	client *Client
	store  SessionStore
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session *Session
}

// NewAuthClient creates an AuthClient. store may be nil.
func NewAuthClient(client *Client, store SessionStore) *AuthClient {
	return &AuthClient{
		client: client,
		store:  store,
		log:    client.log.With().Str("surface", "auth").Logger(),
		now:    time.Now,
	}
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword verifies email + password and makes the returned
// session current.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := a.client.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password",
		passwordGrant{Email: email, Password: password}, &s, "")
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("sign in: empty access token")
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = a.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}

	a.setSession(&s)
	if a.store != nil {
		if err := a.store.Save(ctx, &s); err != nil {
			// The in-memory session is still valid for this process.
			a.log.Warn().Err(err).Msg("Persist session failed")
		}
	}
	return &s, nil
}

// CurrentSession returns the session or nil. No network call; an expired
// session is reported as nil.
func (a *AuthClient) CurrentSession() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil || a.session.Expired(a.now()) {
		return nil
	}
	return a.session
}

// SetSession adopts a session obtained elsewhere (e.g. a bearer token sent
// to the bridge) without persisting it.
func (a *AuthClient) SetSession(s *Session) {
	a.setSession(s)
}

// Restore loads a persisted session into memory. Missing or expired
// sessions leave the client signed out.
func (a *AuthClient) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	s, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if s == nil || s.Expired(a.now()) {
		return nil
	}
	a.setSession(s)
	return nil
}

// GetUser asks the provider who owns the current session, which verifies the
// access token. The verified user replaces any user decoded from the token.
func (a *AuthClient) GetUser(ctx context.Context) (*User, error) {
	s := a.CurrentSession()
	if s == nil {
		return nil, ErrNoSession
	}

	var u User
	if err := a.client.do(ctx, http.MethodGet, "/auth/v1/user", nil, &u, s.AccessToken); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("get user: empty user id")
	}

	a.mu.Lock()
	if a.session == s {
		verified := *s
		verified.User = &u
		a.session = &verified
	}
	a.mu.Unlock()
	return &u, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (a *AuthClient) SignOut(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	var storeErr error
	if a.store != nil {
		storeErr = a.store.Clear(ctx)
	}

	if s == nil {
		return storeErr
	}
	if err := a.client.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, s.AccessToken); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if storeErr != nil {
		return fmt.Errorf("clear session: %w", storeErr)
	}
	return nil
}

func (a *AuthClient) setSession(s *Session) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}
