package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/config"
	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/handler"
	"github.com/oxedro/erp-client/internal/model"
	"github.com/oxedro/erp-client/internal/service"
	"github.com/oxedro/erp-client/internal/testutil/fakebackend"
	"github.com/oxedro/erp-client/internal/validator"
	"github.com/rs/zerolog"
)

func init() {
	validator.Setup()
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

type testBridge struct {
	fb      *fakebackend.Backend
	student model.Profile
	server  *httptest.Server
}

func newTestBridge(t *testing.T, rateLimit int) *testBridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	fb := fakebackend.New()
	student := fb.AddProfile(model.Profile{
		UniqueID:  "TIME25ST9367",
		Email:     "s@school.edu",
		FirstName: "Sita",
		Role:      model.RoleStudent,
		IsActive:  true,
	}, "correct-pass")
	provider := httptest.NewServer(fb.Handler())
	t.Cleanup(provider.Close)

	client, err := backend.NewClient(backend.Config{Endpoint: provider.URL, APIKey: fakebackend.APIKey, Timeout: 5 * time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	factory := service.NewFactory(client, nil, zerolog.Nop())

	cfg := &config.Config{GinMode: gin.TestMode, AuthRateLimit: rateLimit}
	r := SetupRouter(ctx, &Handlers{
		Auth:   handler.NewAuthHandler(factory),
		WS:     handler.NewWSHandler(factory, zerolog.Nop(), nil),
		Health: handler.NewHealthHandler(map[string]handler.Check{"backend": client.Ping}),
	}, cfg, zerolog.Nop())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testBridge{fb: fb, student: student, server: srv}
}

func (b *testBridge) do(t *testing.T, method, path, token string, body interface{}) (int, envelope, http.Header) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env, resp.Header
}

func (b *testBridge) login(t *testing.T, uniqueID, password string) (int, envelope) {
	t.Helper()
	status, env, _ := b.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"unique_id": uniqueID,
		"password":  password,
	})
	return status, env
}

func forgeToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("not-the-provider-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestLoginEndpoint(t *testing.T) {
	b := newTestBridge(t, 100)

	t.Run("success_returns_profile_and_session", func(t *testing.T) {
		status, env := b.login(t, "time25st9367", "correct-pass")
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d: %+v", status, env.Error)
		}
		var data model.LoginResponse
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if data.Profile == nil || data.Profile.ID != b.student.ID {
			t.Fatalf("unexpected profile %+v", data.Profile)
		}
		if data.Session == nil || data.Session.AccessToken == "" || data.Session.ExpiresAt.IsZero() {
			t.Fatalf("expected session, got %+v", data.Session)
		}
		if env.Metadata.RequestID == "" {
			t.Fatal("expected request id in metadata")
		}
	})

	cases := []struct {
		name     string
		uniqueID string
		password string
		status   int
		code     string
		message  string
	}{
		{"blank_fields", "", "", http.StatusBadRequest, "VALIDATION_ERROR", "Please fill all fields"},
		{"wrong_password", "TIME25ST9367", "wrong", http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login credentials"},
		{"unknown_unique_id", "nobody", "correct-pass", http.StatusUnauthorized, "ACCOUNT_NOT_FOUND", "Account not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := b.login(t, tc.uniqueID, tc.password)
			if status != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, status)
			}
			if env.Error == nil || env.Error.Code != tc.code || env.Error.Message != tc.message {
				t.Fatalf("unexpected error body %+v", env.Error)
			}
		})
	}

	t.Run("oversized_field_rejected_by_binding", func(t *testing.T) {
		status, env := b.login(t, strings.Repeat("A", 65), "pw")
		if status != http.StatusBadRequest || env.Error == nil {
			t.Fatalf("expected 400, got %d", status)
		}
		if _, ok := env.Error.Fields["unique_id"]; !ok {
			t.Fatalf("expected unique_id field error, got %+v", env.Error.Fields)
		}
	})
}

func TestMeAndLogout(t *testing.T) {
	b := newTestBridge(t, 100)

	status, env := b.login(t, "TIME25ST9367", "correct-pass")
	if status != http.StatusOK {
		t.Fatalf("login: %d", status)
	}
	var data model.LoginResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	token := data.Session.AccessToken

	status, env, headers := b.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %+v", status, env.Error)
	}
	var me struct {
		Profile model.Profile `json:"profile"`
	}
	_ = json.Unmarshal(env.Data, &me)
	if me.Profile.ID != b.student.ID {
		t.Fatalf("unexpected profile %+v", me.Profile)
	}
	if headers.Get("Cache-Control") != "no-store" {
		t.Fatal("expected auth responses to be uncacheable")
	}

	if status, _, _ := b.do(t, http.MethodGet, "/api/v1/auth/me", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	// A well-formed token the provider never issued.
	forged := forgeToken(t, b.student.ID)
	if status, env, _ := b.do(t, http.MethodGet, "/api/v1/auth/me", forged, nil); status != http.StatusUnauthorized || env.Error.Code != "TOKEN_INVALID" {
		t.Fatalf("expected forged token rejected, got %d", status)
	}

	if status, _, _ := b.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}
}

func TestRateLimitedAuth(t *testing.T) {
	b := newTestBridge(t, 2)

	for i := 0; i < 2; i++ {
		if status, _ := b.login(t, "TIME25ST9367", "wrong"); status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, status)
		}
	}
	status, env := b.login(t, "TIME25ST9367", "correct-pass")
	if status != http.StatusTooManyRequests || env.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected 429, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	b := newTestBridge(t, 100)

	status, env, _ := b.do(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", status)
	}
	var report struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	_ = json.Unmarshal(env.Data, &report)
	if report.Status != "ok" || report.Checks["backend"] != "ok" {
		t.Fatalf("unexpected report %+v", report)
	}

	b.login(t, "TIME25ST9367", "correct-pass")
	resp, err := http.Get(b.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `oxedro_sign_in_attempts_total{outcome="success"}`) {
		t.Fatal("expected sign-in counter in exposition")
	}
}

type wsMessage struct {
	Event   string               `json:"event"`
	State   model.AuthState      `json:"state"`
	Form    controller.FormState `json:"form"`
	Session *model.SessionInfo   `json:"session"`
	Error   string               `json:"error"`
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func sendWS(t *testing.T, conn *websocket.Conn, action, value string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]string{"action": action, "value": value}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntilSettled skips Loading, which may be conflated away.
func readUntilSettled(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		msg := readWS(t, conn)
		if msg.Event == "state" && msg.State.Status != model.AuthLoading {
			return msg
		}
	}
}

func TestLoginWebSocket(t *testing.T) {
	b := newTestBridge(t, 100)

	url := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/v1/auth/login"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readWS(t, conn); msg.Event != "state" || msg.State.Status != model.AuthInitial {
		t.Fatalf("expected initial state, got %+v", msg)
	}

	sendWS(t, conn, "login", "")
	if msg := readUntilSettled(t, conn); msg.State.Status != model.AuthError || msg.State.Message != "Please fill all fields" {
		t.Fatalf("expected blank-field error, got %+v", msg.State)
	}

	sendWS(t, conn, "set_unique_id", "time25st9367")
	if msg := readWS(t, conn); msg.Form.UniqueID != "TIME25ST9367" {
		t.Fatalf("expected upper-cased id, got %q", msg.Form.UniqueID)
	}
	sendWS(t, conn, "toggle_password_visibility", "")
	if msg := readWS(t, conn); !msg.Form.PasswordVisible {
		t.Fatal("expected password visible")
	}

	sendWS(t, conn, "set_password", "wrong")
	readWS(t, conn)
	sendWS(t, conn, "login", "")
	if msg := readUntilSettled(t, conn); msg.State.Status != model.AuthError || msg.State.Message != "Invalid login credentials" {
		t.Fatalf("expected provider error, got %+v", msg.State)
	}

	sendWS(t, conn, "reset", "")
	if msg := readWS(t, conn); msg.State.Status != model.AuthInitial {
		t.Fatalf("expected reset to initial, got %+v", msg.State)
	}

	sendWS(t, conn, "set_password", "correct-pass")
	if msg := readWS(t, conn); !msg.Form.PasswordEntered {
		t.Fatal("expected password entered")
	}
	sendWS(t, conn, "login", "")
	msg := readUntilSettled(t, conn)
	if msg.State.Status != model.AuthSuccess || msg.State.Profile == nil || msg.State.Profile.ID != b.student.ID {
		t.Fatalf("expected success, got %+v", msg.State)
	}
	if msg.Session == nil || msg.Session.AccessToken == "" {
		t.Fatal("expected session on success")
	}

	sendWS(t, conn, "login", "")
	if msg := readWS(t, conn); msg.State.Status != model.AuthSuccess {
		t.Fatalf("expected repeated login to echo success, got %+v", msg.State)
	}

	sendWS(t, conn, "launch_rockets", "")
	if msg := readWS(t, conn); msg.Event != "error" || !strings.Contains(msg.Error, "launch_rockets") {
		t.Fatalf("expected unknown action error, got %+v", msg)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Event != "error" {
		t.Fatalf("expected malformed action error, got %+v", msg)
	}
}

func TestWebSocketClosesCleanly(t *testing.T) {
	b := newTestBridge(t, 100)

	url := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws/v1/auth/login"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readWS(t, conn)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("expected close frame, got %v", err)
			}
			break
		}
	}
	conn.Close()
}
