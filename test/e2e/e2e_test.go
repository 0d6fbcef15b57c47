//go:build e2e
// +build e2e

// Package e2e exercises a running bridge against a real backend. Run with
// `go test -tags e2e ./test/e2e` after starting cmd/server; the account in
// E2E_UNIQUE_ID / E2E_PASSWORD must exist on the backend.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/oxedro/erp-client/internal/model"
)

const defaultBaseURL = "http://localhost:8080"

var (
	baseURL  string
	uniqueID string
	password string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")

	baseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uniqueID = os.Getenv("E2E_UNIQUE_ID")
	password = os.Getenv("E2E_PASSWORD")
	if uniqueID == "" || password == "" {
		fmt.Println("E2E_UNIQUE_ID and E2E_PASSWORD are required")
		os.Exit(0)
	}

	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func makeRequest(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	if status, env := makeRequest(t, http.MethodGet, "/health", "", nil); status != http.StatusOK {
		t.Fatalf("expected healthy bridge, got %d: %s", status, env.Data)
	}
}

func TestRESTFlow(t *testing.T) {
	status, env := makeRequest(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{
		UniqueID: strings.ToLower(uniqueID),
		Password: password,
	})
	if status != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %+v", status, env.Error)
	}
	var login model.LoginResponse
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Profile.UniqueID != strings.ToUpper(uniqueID) {
		t.Fatalf("unexpected profile %+v", login.Profile)
	}
	token := login.Session.AccessToken

	if status, env := makeRequest(t, http.MethodGet, "/api/v1/auth/me", token, nil); status != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %+v", status, env.Error)
	}
	if status, _ := makeRequest(t, http.MethodPost, "/api/v1/auth/logout", token, nil); status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}

	status, env = makeRequest(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{
		UniqueID: uniqueID,
		Password: password + "-wrong",
	})
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Message == "" {
		t.Fatalf("wrong password: expected 401 with message, got %d", status)
	}
}

func TestWebSocketFlow(t *testing.T) {
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/v1/auth/login"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, action := range []map[string]string{
		{"action": "set_unique_id", "value": uniqueID},
		{"action": "set_password", "value": password},
		{"action": "login"},
	} {
		if err := conn.WriteJSON(action); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg struct {
			Event string          `json:"event"`
			State model.AuthState `json:"state"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.State.Status {
		case model.AuthSuccess:
			return
		case model.AuthError:
			t.Fatalf("login failed: %s", msg.State.Message)
		}
	}
}
