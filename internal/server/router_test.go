package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messagely/internal/auth"
	"messagely/internal/config"
	"messagely/internal/store"
)

type testServer struct {
	engine *gin.Engine
	users  *store.MemoryUsers
	msgs   *store.MemoryMessages
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", JWTSecret: "router-test", Env: "dev", BcryptWorkFactor: 4, HashWorkers: 2}
	users := store.NewMemoryUsers()
	msgs := store.NewMemoryMessages()
	d, err := NewDeps(cfg, users, msgs)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return testServer{engine: SetupRouter(cfg, d), users: users, msgs: msgs}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s testServer) register(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "password": username + "-pw",
		"first_name": strings.ToUpper(username[:1]) + username[1:], "last_name": "Test", "phone": "555",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (s testServer) send(t *testing.T, token, to, body string) uint {
	t.Helper()
	w := s.do(t, http.MethodPost, "/messages", token, map[string]string{"to_username": to, "body": body})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode(t, w)["message"].(map[string]any)
	return uint(msg["id"].(float64))
}

func path(format string, id uint) string {
	return strings.Replace(format, ":id", strconv.FormatUint(uint64(id), 10), 1)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRoutes(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"login ok", "/auth/login", map[string]string{"username": "alice", "password": "alice-pw"}, http.StatusOK},
		{"wrong password", "/auth/login", map[string]string{"username": "alice", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", "/auth/login", map[string]string{"username": "ghost", "password": "nope"}, http.StatusUnauthorized},
		{"login missing password", "/auth/login", map[string]string{"username": "alice"}, http.StatusBadRequest},
		{"register duplicate", "/auth/register", map[string]string{"username": "alice", "password": "x", "first_name": "A", "last_name": "B", "phone": "1"}, http.StatusConflict},
		{"register missing phone", "/auth/register", map[string]string{"username": "bob", "password": "x", "first_name": "B", "last_name": "B"}, http.StatusBadRequest},
		{"register long password", "/auth/register", map[string]string{"username": "bob", "password": strings.Repeat("x", 73), "first_name": "B", "last_name": "B", "phone": "1"}, http.StatusBadRequest},
		{"malformed json", "/auth/login", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want != http.StatusOK {
				assert.NotEmpty(t, decode(t, w)["error"])
			}
		})
	}
	assert.Equal(t, 1, s.users.Len(), "failed registrations must not store anything")
}

func TestLoginErrorsAreIdentical(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")
	wrong := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	ghost := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "nope"})
	assert.Equal(t, wrong.Code, ghost.Code)
	assert.Equal(t, wrong.Body.String(), ghost.Body.String())
}

func TestMessageFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	carol := s.register(t, "carol")

	id := s.send(t, alice, "bob", "hello bob")

	t.Run("participants can read", func(t *testing.T) {
		for _, tok := range []string{alice, bob} {
			w := s.do(t, http.MethodGet, path("/messages/:id", id), tok, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			msg := decode(t, w)["message"].(map[string]any)
			assert.Equal(t, "hello bob", msg["body"])
			assert.Equal(t, "alice", msg["from_user"].(map[string]any)["username"])
			assert.Equal(t, "Bob", msg["to_user"].(map[string]any)["first_name"])
			assert.Nil(t, msg["read_at"])
		}
	})

	t.Run("outsider is forbidden", func(t *testing.T) {
		w := s.do(t, http.MethodGet, path("/messages/:id", id), carol, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("sender cannot mark read", func(t *testing.T) {
		w := s.do(t, http.MethodPost, path("/messages/:id/read", id), alice, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("recipient marks read once", func(t *testing.T) {
		w := s.do(t, http.MethodPost, path("/messages/:id/read", id), bob, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		first := decode(t, w)["message"].(map[string]any)["read_at"]
		require.NotNil(t, first)

		w = s.do(t, http.MethodPost, path("/messages/:id/read", id), bob, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, first, decode(t, w)["message"].(map[string]any)["read_at"])
	})

	t.Run("missing and malformed ids", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/messages/999", carol, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/messages/abc", alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/messages/999/read", bob, nil).Code)
	})

	t.Run("no token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path("/messages/:id", id), "", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, path("/messages/:id", id), "garbage", nil).Code)
	})
}

func TestSendRejections(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	s.register(t, "bob")
	minter, err := auth.NewTokenService([]byte("router-test"), 0)
	require.NoError(t, err)
	ghost, err := minter.Issue("ghost")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"unauthenticated", "", map[string]string{"to_username": "bob", "body": "hi"}, http.StatusUnauthorized},
		{"missing body", alice, map[string]string{"to_username": "bob"}, http.StatusBadRequest},
		{"missing recipient", alice, map[string]string{"body": "hi"}, http.StatusBadRequest},
		{"unknown recipient", alice, map[string]string{"to_username": "carol", "body": "hi"}, http.StatusNotFound},
		{"valid token for unknown sender", ghost, map[string]string{"to_username": "bob", "body": "hi"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/messages", tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, s.msgs.Len())
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")
	s.send(t, alice, "bob", "one")
	s.send(t, bob, "alice", "two")

	t.Run("list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/users", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		users := decode(t, w)["users"].([]any)
		require.Len(t, users, 2)
		first := users[0].(map[string]any)
		assert.Equal(t, "alice", first["username"])
		assert.NotContains(t, first, "secret_hash")
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/users", "", nil).Code)
	})

	t.Run("own detail", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/users/alice", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		user := decode(t, w)["user"].(map[string]any)
		assert.Equal(t, "Alice", user["first_name"])
		assert.NotNil(t, user["last_login_at"])
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		for _, p := range []string{"/users/bob", "/users/bob/to", "/users/bob/from"} {
			assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, p, alice, nil).Code, p)
		}
	})

	t.Run("sent and received", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/users/alice/from", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		sent := decode(t, w)["messages"].([]any)
		require.Len(t, sent, 1)
		assert.Equal(t, "bob", sent[0].(map[string]any)["to_user"].(map[string]any)["username"])

		w = s.do(t, http.MethodGet, "/users/alice/to", alice, nil)
		require.Equal(t, http.StatusOK, w.Code)
		got := decode(t, w)["messages"].([]any)
		require.Len(t, got, 1)
		assert.Equal(t, "two", got[0].(map[string]any)["body"])
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
