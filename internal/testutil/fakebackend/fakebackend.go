// Package fakebackend is an in-memory stand-in for the hosted backend, usable
// in-process (ProfileFinder + Authenticator) or over HTTP via Handler.
package fakebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const APIKey = "fake-anon-key"

var errInvalidLogin = &backend.APIError{
	Status:  http.StatusBadRequest,
	Code:    "invalid_credentials",
	Message: "Invalid login credentials",
}

// Backend holds profiles and bcrypt password hashes keyed by email.
type Backend struct {
	secret []byte
	ttl    time.Duration

	mu       sync.Mutex
	profiles []model.Profile
	hashes   map[string][]byte
	session  *backend.Session
	lookupFn func() error

	signIns atomic.Int64
	lookups atomic.Int64
}

// New creates an empty Backend issuing one-hour sessions.
func New() *Backend {
	return &Backend{
		secret: []byte(uuid.NewString()),
		ttl:    time.Hour,
		hashes: make(map[string][]byte),
	}
}

// AddProfile stores a profile and the password for its email. An empty ID
// gets a fresh uuid. Returns the stored profile.
func (b *Backend) AddProfile(p model.Profile, password string) model.Profile {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles = append(b.profiles, p)
	b.hashes[p.Email] = hash
	return p
}

// FailLookups makes every profile lookup return err (nil restores normal behavior).
func (b *Backend) FailLookups(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.lookupFn = nil
		return
	}
	b.lookupFn = func() error { return err }
}

// SignInCalls counts credential verifications attempted.
func (b *Backend) SignInCalls() int { return int(b.signIns.Load()) }

// LookupCalls counts profile lookups attempted.
func (b *Backend) LookupCalls() int { return int(b.lookups.Load()) }

// FindOne implements the profile query surface.
func (b *Backend) FindOne(_ context.Context, filters ...backend.Filter) (*model.Profile, error) {
	lits := make(map[string]string, len(filters))
	for _, f := range filters {
		lits[f.Column] = fmt.Sprint(f.Value)
	}
	rows, err := b.match(lits)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("%s: %w (got %d)", backend.ProfilesTable, backend.ErrNotSingle, len(rows))
	}
	p := rows[0]
	return &p, nil
}

func (b *Backend) match(lits map[string]string) ([]model.Profile, error) {
	b.lookups.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lookupFn != nil {
		if err := b.lookupFn(); err != nil {
			return nil, err
		}
	}

	var out []model.Profile
	for _, p := range b.profiles {
		raw, _ := json.Marshal(p)
		var row map[string]interface{}
		_ = json.Unmarshal(raw, &row)

		ok := true
		for col, want := range lits {
			if got, present := row[col]; !present || fmt.Sprint(got) != want {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// SignInWithPassword implements the auth surface and makes the session current.
func (b *Backend) SignInWithPassword(_ context.Context, email, password string) (*backend.Session, error) {
	s, err := b.issue(email, password)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
	return s, nil
}

func (b *Backend) issue(email, password string) (*backend.Session, error) {
	b.signIns.Add(1)

	b.mu.Lock()
	hash, ok := b.hashes[email]
	var userID string
	for _, p := range b.profiles {
		if p.Email == email {
			userID = p.ID
			break
		}
	}
	b.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, errInvalidLogin
	}

	now := time.Now()
	exp := now.Add(b.ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}).SignedString(b.secret)
	if err != nil {
		return nil, err
	}
	return &backend.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		TokenType:    "bearer",
		ExpiresIn:    int64(b.ttl.Seconds()),
		ExpiresAt:    exp.Unix(),
		User:         &backend.User{ID: userID, Email: email},
	}, nil
}

// CurrentSession implements the auth surface.
func (b *Backend) CurrentSession() *backend.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// GetUser implements the auth surface.
func (b *Backend) GetUser(context.Context) (*backend.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil, backend.ErrNoSession
	}
	return b.session.User, nil
}

// SignOut implements the auth surface.
func (b *Backend) SignOut(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
	return nil
}

// verify checks the signature and expiry and returns the token claims.
func (b *Backend) verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return claims, err
}

// Handler serves the auth and record APIs over HTTP for backend.Client.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", b.handleToken)
	mux.HandleFunc("/auth/v1/logout", b.handleLogout)
	mux.HandleFunc("/auth/v1/user", b.handleUser)
	mux.HandleFunc("/auth/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": "fakebackend"})
	})
	mux.HandleFunc("/rest/v1/profiles", b.handleProfiles)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *Backend) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Query().Get("grant_type") != "password" || r.Header.Get("apikey") != APIKey {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "unsupported request"})
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"msg": "invalid body"})
		return
	}
	s, err := b.issue(body.Email, body.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code": http.StatusBadRequest, "error_code": errInvalidLogin.Code, "msg": errInvalidLogin.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, err := b.verify(token); r.Method != http.MethodPost || err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid token"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := b.verify(token)
	if r.Method != http.MethodGet || err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
		return
	}
	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	writeJSON(w, http.StatusOK, backend.User{ID: sub, Email: email})
}

func (b *Backend) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") != APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	lits := make(map[string]string)
	for col, vals := range r.URL.Query() {
		if col == "select" || len(vals) == 0 {
			continue
		}
		lits[col] = strings.TrimPrefix(vals[0], "eq.")
	}
	rows, err := b.match(lits)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "XX000", "message": err.Error()})
		return
	}
	if rows == nil {
		rows = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, rows)
}
