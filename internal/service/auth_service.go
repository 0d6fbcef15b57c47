package service

import (
	"context"
	"errors"

	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/metrics"
	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/observability"
	"github.com/rs/zerolog"
)

// ProfileFinder is the profile query surface: exactly one row matching all filters.
type ProfileFinder interface {
	FindOne(ctx context.Context, filters ...backend.Filter) (*model.Profile, error)
}

// Authenticator is the auth provider surface.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error)
	CurrentSession() *backend.Session
	GetUser(ctx context.Context) (*backend.User, error)
	SignOut(ctx context.Context) error
}

// AuthService resolves unique ids to accounts and drives the provider session.
type AuthService struct {
	profiles ProfileFinder
	auth     Authenticator
	log      zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(profiles ProfileFinder, auth Authenticator, log zerolog.Logger) *AuthService {
	return &AuthService{
		profiles: profiles,
		auth:     auth,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// SignIn looks up the active profile for uniqueID, then verifies password
// against that profile's email. uniqueID must already be normalized.
//
// The returned profile is the one read before verification; it is not
// re-fetched afterwards.
func (s *AuthService) SignIn(ctx context.Context, uniqueID, password string) (*model.Profile, error) {
	log := s.log.With().Str("unique_id", uniqueID).Logger()

	profile, err := s.profiles.FindOne(ctx,
		backend.Eq("unique_id", uniqueID),
		backend.Eq("is_active", true),
	)
	if err != nil {
		log.Info().Err(err).Msg("Profile lookup failed")
		metrics.ObserveSignIn(metrics.OutcomeAccountNotFound)
		return nil, newAuthError(ErrAccountNotFound, MsgAccountNotFound, err)
	}

	if _, err := s.auth.SignInWithPassword(ctx, profile.Email, password); err != nil {
		log.Info().Err(err).Msg("Credential verification failed")
		metrics.ObserveSignIn(metrics.OutcomeInvalidCredentials)
		return nil, newAuthError(ErrInvalidCredentials, MsgInvalidCredentials, err)
	}

	log.Info().Str("profile_id", profile.ID).Str("role", string(profile.Role)).Msg("Signed in")
	metrics.ObserveSignIn(metrics.OutcomeSuccess)
	return profile, nil
}

// GetCurrentProfile returns the signed-in member's profile, or nil when there
// is no session or the lookup fails. Failures are logged and reported, never returned.
func (s *AuthService) GetCurrentProfile(ctx context.Context) *model.Profile {
	session := s.auth.CurrentSession()
	if session == nil {
		return nil
	}

	userID := session.UserID()
	if userID == "" {
		s.reportLookupFailure(errors.New("session has no user id"))
		return nil
	}

	profile, err := s.profiles.FindOne(ctx, backend.Eq("id", userID))
	if err != nil {
		s.reportLookupFailure(err)
		return nil
	}
	return profile
}

func (s *AuthService) reportLookupFailure(err error) {
	wrapped := &AuthError{Kind: ErrSessionLookup, Err: err}
	s.log.Warn().Err(err).Msg("Current profile lookup failed")
	metrics.SessionLookupFailures.Inc()
	observability.CaptureErr(wrapped)
}

// VerifySession has the provider confirm the current session. Sessions
// adopted from a bearer token must pass this before their user id is trusted.
func (s *AuthService) VerifySession(ctx context.Context) error {
	if _, err := s.auth.GetUser(ctx); err != nil {
		s.log.Info().Err(err).Msg("Session verification failed")
		return &AuthError{Kind: ErrSessionLookup, Err: err}
	}
	return nil
}

// SignOut ends the provider session. Best effort: failures are only logged.
func (s *AuthService) SignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Sign out failed")
		metrics.SignOutFailures.Inc()
		observability.CaptureErr(err)
		return
	}
	s.log.Info().Msg("Signed out")
}

// IsLoggedIn reports whether a session is held locally. No network call, so
// it may be stale relative to server-side revocation.
func (s *AuthService) IsLoggedIn() bool {
	return s.auth.CurrentSession() != nil
}

// Session exposes the current provider session, nil when signed out.
func (s *AuthService) Session() *backend.Session {
	return s.auth.CurrentSession()
}
