package api

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-teamchat/internal/config"
	"github.com/npezzotti/go-teamchat/internal/database"
	"github.com/npezzotti/go-teamchat/internal/realtime"
	"github.com/npezzotti/go-teamchat/internal/stats"
	"github.com/npezzotti/go-teamchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T, db database.TeamChatRepository) (*TeamChatApp, *realtime.RealtimeServer) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cfg, err := config.NewConfig(
		"localhost:8000",
		"host=localhost",
		base64.StdEncoding.EncodeToString([]byte("test-signing-key")),
		[]string{"http://localhost:3000"},
	)
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	logger := testutil.TestLogger(t)
	rs, err := realtime.NewRealtimeServer(logger, su, cfg)
	if err != nil {
		t.Fatalf("failed to create test RealtimeServer: %v", err)
	}

	app := NewTeamChatApp(http.NewServeMux(), logger, rs, db, su, cfg)
	return app, rs
}

func signTestToken(t *testing.T, key []byte, userId string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
	})

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	app, _ := newTestApp(t, &database.MockTeamChatRepository{})

	handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		assert.True(t, ok, "expected user id in request context")
		assert.Equal(t, "u1", userId, "expected user id from token claim")
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		w := httptest.NewRecorder()

		handler(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "expected 401 without token cookie")
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "not-a-token"})
		w := httptest.NewRecorder()

		handler(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "expected 401 with malformed token")
	})

	t.Run("token signed with wrong key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: signTestToken(t, []byte("wrong-key"), "u1"),
		})
		w := httptest.NewRecorder()

		handler(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "expected 401 with wrong signing key")
	})

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: signTestToken(t, []byte("test-signing-key"), "u1"),
		})
		w := httptest.NewRecorder()

		handler(w, r)
		assert.Equal(t, http.StatusOK, w.Code, "expected handler to run with valid token")
		assert.Contains(t, w.Header().Get("Cache-Control"), "no-store",
			"expected authenticated responses to be uncacheable")
	})
}

func Test_extractUserIdFromToken(t *testing.T) {
	app, _ := newTestApp(t, &database.MockTeamChatRepository{})

	t.Run("valid token", func(t *testing.T) {
		userId, err := app.extractUserIdFromToken(signTestToken(t, []byte("test-signing-key"), "u1"))
		assert.NoError(t, err, "expected no error for valid token")
		assert.Equal(t, "u1", userId, "expected user id from claim")
	})

	t.Run("missing user id claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"})
		signed, err := token.SignedString([]byte("test-signing-key"))
		assert.NoError(t, err, "expected no signing error")

		_, err = app.extractUserIdFromToken(signed)
		assert.Error(t, err, "expected error for missing user id claim")
	})
}
