package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/middleware"
	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/response"
	"github.com/oxedro/erp-client/internal/service"
	"github.com/oxedro/erp-client/internal/validator"
	"github.com/rs/zerolog"
)

// AuthHandler exposes the login flow over REST. Every request drives its own
// LoginController and AuthService, so members never share a session.
type AuthHandler struct {
	gateways *service.Factory
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(gateways *service.Factory) *AuthHandler {
	return &AuthHandler{gateways: gateways}
}

// recordingGateway keeps the last gateway error so the handler can map its
// kind to a status code; the controller only keeps the message.
type recordingGateway struct {
	next controller.Gateway
	err  error
}

func (g *recordingGateway) SignIn(ctx context.Context, uniqueID, password string) (*model.Profile, error) {
	p, err := g.next.SignIn(ctx, uniqueID, password)
	g.err = err
	return p, err
}

// Login godoc
// POST /api/v1/auth/login
// Resolves unique_id to an account, verifies the password and returns the
// profile with the provider session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	log := zerolog.Ctx(c.Request.Context())
	svc := h.gateways.New(nil)
	gw := &recordingGateway{next: svc}
	ctrl := controller.NewLoginController(gw, *log)
	defer ctrl.Close()

	// A client that hangs up abandons the attempt.
	stop := context.AfterFunc(c.Request.Context(), ctrl.Close)
	defer stop()

	ctrl.SetUniqueID(req.UniqueID)
	ctrl.SetPassword(req.Password)
	started := ctrl.Login()
	ctrl.Wait()

	state := ctrl.State()
	switch {
	case state.Status == model.AuthSuccess:
		response.Success(c, http.StatusOK, model.LoginResponse{
			Profile: state.Profile,
			Session: sessionInfo(svc.Session()),
		})
	case !started:
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, state.Message)
	case errors.Is(gw.err, service.ErrAccountNotFound):
		response.FailWithMessage(c, http.StatusUnauthorized, response.ErrAccountNotFound, state.Message)
	case errors.Is(gw.err, service.ErrInvalidCredentials):
		response.FailWithMessage(c, http.StatusUnauthorized, response.ErrInvalidCredentials, state.Message)
	default:
		log.Error().Err(gw.err).Msg("Login attempt ended unexpectedly")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile behind the bearer token.
func (h *AuthHandler) Me(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	svc := h.gateways.New(session)
	if err := svc.VerifySession(ctx); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	profile := svc.GetCurrentProfile(ctx)
	if profile == nil {
		response.Fail(c, http.StatusNotFound, response.ErrProfileUnavailable)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"profile": profile})
}

// Logout godoc
// POST /api/v1/auth/logout
// Revokes the bearer token at the provider. Best effort: always succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := middleware.GetSession(c)
	if session == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.gateways.New(session).SignOut(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{})
}

func sessionInfo(s *backend.Session) *model.SessionInfo {
	if s == nil {
		return nil
	}
	info := &model.SessionInfo{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	if exp := s.Expiry(); !exp.IsZero() {
		info.ExpiresAt = exp.UTC().Truncate(time.Second)
	}
	return info
}
