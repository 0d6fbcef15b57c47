package backend

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the account attached to a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a server-issued credential returned by a password grant.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	// ExpiresAt is unix seconds.
	ExpiresAt int64 `json:"expires_at"`
	User      *User `json:"user,omitempty"`
}

// Expiry returns the absolute expiry time. Zero when unknown.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if exp, err := s.claims().GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	return time.Time{}
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	exp := s.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// UserID resolves the account id from the user object, falling back to the
// access token subject for sessions restored without one.
func (s *Session) UserID() string {
	if s.User != nil && s.User.ID != "" {
		return s.User.ID
	}
	sub, err := s.claims().GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// claims reads the access token payload without verifying the signature;
// the provider verifies tokens, the client only needs sub and exp.
func (s *Session) claims() jwt.MapClaims {
	claims := jwt.MapClaims{}
	if s.AccessToken == "" {
		return claims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return jwt.MapClaims{}
	}
	return claims
}

// SessionStore persists the current session across process restarts.
type SessionStore interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}
