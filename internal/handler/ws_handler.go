package handler

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/service"
	ws "github.com/oxedro/erp-client/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves an interactive login form over a WebSocket. Each
// connection owns one LoginController; the client sends form actions and
// receives every state transition.
type WSHandler struct {
	gateways *service.Factory
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(gateways *service.Factory, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		gateways: gateways,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// loginConn serializes writes: gorilla allows one concurrent writer, and
// both the read loop and the state pump write.
type loginConn struct {
	conn *websocket.Conn
	ctrl *controller.LoginController
	svc  *service.AuthService

	mu sync.Mutex
}

func (lc *loginConn) writeState(state model.AuthState) error {
	resp := ws.StateResponse{
		Event: ws.EventState,
		State: state,
		Form:  lc.ctrl.Form(),
	}
	if state.Status == model.AuthSuccess {
		resp.Session = sessionInfo(lc.svc.Session())
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return ws.WriteTyped(lc.conn, resp)
}

func (lc *loginConn) write(v interface{}) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return ws.WriteTyped(lc.conn, v)
}

// LoginStream godoc
// WS /ws/v1/auth/login
// Upgrades to WebSocket and drives a login form for the connection.
func (h *WSHandler) LoginStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().Str("remote", c.ClientIP()).Logger()
	svc := h.gateways.New(nil)
	ctrl := controller.NewLoginController(svc, wsLog)
	lc := &loginConn{conn: conn, ctrl: ctrl, svc: svc}

	states, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for state := range states {
			if err := lc.writeState(state); err != nil {
				wsLog.Debug().Err(err).Msg("State push failed")
				return
			}
		}
	}()

	wsLog.Info().Msg("Login form connected")
	h.readLoop(lc, wsLog)

	// Close ends the subscription, which stops the pump.
	ctrl.Close()
	<-pumpDone
}

func (h *WSHandler) readLoop(lc *loginConn, wsLog zerolog.Logger) {
	for {
		req, err := ws.ReadRequest(lc.conn)
		if errors.Is(err, ws.ErrMalformed) {
			_ = lc.write(ws.ErrorResponse{Event: ws.EventError, Error: "malformed action"})
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctrl := lc.ctrl
		switch req.Action {
		case ws.ActionSetUniqueID:
			ctrl.SetUniqueID(req.Value)
		case ws.ActionSetPassword:
			ctrl.SetPassword(req.Value)
		case ws.ActionTogglePassword:
			ctrl.TogglePasswordVisibility()
		case ws.ActionLogin:
			// Transitions arrive through the subscription. An ignored
			// login changes nothing, so echo the state back instead.
			if !ctrl.Login() {
				if state := ctrl.State(); !state.CanSubmit() {
					_ = lc.writeState(state)
				}
			}
			continue
		case ws.ActionReset:
			ctrl.ResetAuthState()
			continue
		case ws.ActionPing:
			_ = lc.write(ws.PongResponse{Event: ws.EventPong})
			continue
		default:
			wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = lc.write(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(req.Action)})
			continue
		}

		// Form edits do not change the AuthState, so echo the form explicitly.
		if err := lc.writeState(ctrl.State()); err != nil {
			return
		}
	}
}
