package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/webchat-dev/webchat/internal/config"
	"github.com/webchat-dev/webchat/internal/database"
	"github.com/webchat-dev/webchat/internal/server"
	"github.com/webchat-dev/webchat/internal/stats"
	"github.com/webchat-dev/webchat/internal/testutil"
)

func newTestApp(t *testing.T, db database.ChatRepository) *ChatApp {
	t.Helper()

	cfg := &config.Config{
		ServerAddr:        "localhost:0",
		DatabaseDSN:       "unused",
		SigningKey:        []byte("0123456789abcdef0123456789abcdef"),
		AllowedOrigins:    []string{"http://localhost:3000"},
		PageSize:          config.DefaultPageSize,
		RequireMembership: true,
	}

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	cs := server.NewChatServer(db, logger, su, cfg)

	return NewChatApp(logger, cs, db, cfg, nil)
}

func TestJwtRoundTrip(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{})

	token, err := app.createJwtForSession(42, time.Hour)
	assert.NoError(t, err)

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err)
	assert.Equal(t, 42, userId)
}

func TestJwtExpiredToken(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{})

	token, err := app.createJwtForSession(42, -time.Minute)
	assert.NoError(t, err)

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err)
}

func TestJwtWrongKey(t *testing.T) {
	app := newTestApp(t, &database.MockChatRepository{})
	other := newTestApp(t, &database.MockChatRepository{})
	other.signingKey = []byte("a different signing key entirely")

	token, err := other.createJwtForSession(42, time.Hour)
	assert.NoError(t, err)

	_, err = app.extractUserIdFromToken(token)
	assert.Error(t, err)
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "cookie-token"})

	token, err := requestToken(r)
	assert.NoError(t, err)
	assert.Equal(t, "cookie-token", token)

	r = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	r.Header.Set("Authorization", "Bearer header-token")

	token, err = requestToken(r)
	assert.NoError(t, err)
	assert.Equal(t, "header-token", token)

	r = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	_, err = requestToken(r)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := hashPassword("s3cret")
	assert.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, verifyPassword(hash, "s3cret"))
	assert.False(t, verifyPassword(hash, "wrong"))
}
