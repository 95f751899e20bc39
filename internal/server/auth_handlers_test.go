package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tidepool/internal/config"
	"tidepool/internal/models"
	"tidepool/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	db := setupTestDB(t)
	s := &Server{
		config:   &config.Config{JWTSecret: "test-secret-key", Port: "0"},
		db:       db,
		userRepo: repository.NewUserRepository(db),
	}
	app := fiber.New()
	app.Post("/api/auth/signup", s.Signup)
	app.Post("/api/auth/login", s.Login)
	return s, app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func TestSignup(t *testing.T) {
	t.Parallel()

	s, app := newAuthTestServer(t)

	resp := postJSON(t, app, "/api/auth/signup", fiber.Map{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "supersecret",
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "alice", out.User.Username)
	require.NotEmpty(t, out.Token)

	// The token verifies against the configured secret and claims.
	token, err := jwt.Parse(out.Token, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer("tidepool-api"), jwt.WithAudience("tidepool-client"))
	require.NoError(t, err)
	assert.True(t, token.Valid)

	// The password hash never leaves the API.
	var stored models.User
	require.NoError(t, s.db.First(&stored, out.User.ID).Error)
	assert.True(t, stored.CheckPassword("supersecret"))
}

func TestSignup_Validation(t *testing.T) {
	t.Parallel()

	_, app := newAuthTestServer(t)

	tests := []struct {
		name   string
		body   fiber.Map
		status int
	}{
		{"missing fields", fiber.Map{"username": "alice"}, http.StatusBadRequest},
		{"short username", fiber.Map{"username": "ab", "email": "a@b.c", "password": "supersecret"}, http.StatusBadRequest},
		{"bad email", fiber.Map{"username": "alice", "email": "nope", "password": "supersecret"}, http.StatusBadRequest},
		{"short password", fiber.Map{"username": "alice", "email": "a@b.c", "password": "short"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := postJSON(t, app, "/api/auth/signup", tt.body)
		_ = resp.Body.Close()
		assert.Equal(t, tt.status, resp.StatusCode, tt.name)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	t.Parallel()

	_, app := newAuthTestServer(t)

	body := fiber.Map{"username": "alice", "email": "alice@example.com", "password": "supersecret"}
	resp := postJSON(t, app, "/api/auth/signup", body)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, app, "/api/auth/signup", body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	_, app := newAuthTestServer(t)

	resp := postJSON(t, app, "/api/auth/signup", fiber.Map{
		"username": "alice", "email": "alice@example.com", "password": "supersecret",
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, app, "/api/auth/login", fiber.Map{"username": "alice", "password": "supersecret"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Wrong password and unknown user both come back unauthorized.
	bad := postJSON(t, app, "/api/auth/login", fiber.Map{"username": "alice", "password": "wrong"})
	_ = bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	missing := postJSON(t, app, "/api/auth/login", fiber.Map{"username": "nobody", "password": "supersecret"})
	_ = missing.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, missing.StatusCode)
}
