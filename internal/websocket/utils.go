package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ErrMalformed marks a message that arrived intact but is not a valid action.
// The connection stays usable.
var ErrMalformed = errors.New("malformed action")

const (
	writeWait = 10 * time.Second
	// idleWait closes login sockets left untouched on an abandoned form.
	idleWait = 5 * time.Minute
	// maxMessageSize bounds a single action; ids and passwords are short.
	maxMessageSize = 4096
)

// Prepare applies read limits to a freshly upgraded connection.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadRequest reads and decodes the next client action, resetting the idle
// deadline.
func ReadRequest(conn *websocket.Conn) (Request, error) {
	conn.SetReadDeadline(time.Now().Add(idleWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return req, nil
}
