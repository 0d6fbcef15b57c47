package websocket

import (
	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSetUniqueID    Action = "set_unique_id"
	ActionSetPassword    Action = "set_password"
	ActionTogglePassword Action = "toggle_password_visibility"
	ActionLogin          Action = "login"
	ActionReset          Action = "reset"
	ActionPing           Action = "ping"
)

// Request is a client action. Value carries the field text for the
// set_* actions and is ignored otherwise.
type Request struct {
	Action Action `json:"action"`
	Value  string `json:"value,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// StateResponse is pushed on connect and after every action or transition.
type StateResponse struct {
	Event   Event                `json:"event"`
	State   model.AuthState      `json:"state"`
	Form    controller.FormState `json:"form"`
	Session *model.SessionInfo   `json:"session,omitempty"`
}

// ErrorResponse reports a malformed or unknown action. Login failures are
// not errors here; they arrive as a state event with status "error".
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
