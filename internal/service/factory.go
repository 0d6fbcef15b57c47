package service

import (
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/rs/zerolog"
)

// Factory builds one AuthService per caller over shared backend plumbing.
// The bridge serves many members at once, so each request or connection
// gets its own auth client and session.
type Factory struct {
	client   *backend.Client
	profiles ProfileFinder
	log      zerolog.Logger
}

// NewFactory creates a Factory. A nil profiles source means profiles are
// read through the record API with the caller's session.
func NewFactory(client *backend.Client, profiles ProfileFinder, log zerolog.Logger) *Factory {
	return &Factory{client: client, profiles: profiles, log: log}
}

// New returns an AuthService holding session, which may be nil.
func (f *Factory) New(session *backend.Session) *AuthService {
	auth := backend.NewAuthClient(f.client, nil)
	if session != nil {
		auth.SetSession(session)
	}
	profiles := f.profiles
	if profiles == nil {
		profiles = backend.NewProfileTable(backend.NewRestClient(f.client, auth))
	}
	return NewAuthService(profiles, auth, f.log)
}
