package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/devcoons/software-governance-sub000/internal/sessions"
	"github.com/devcoons/software-governance-sub000/internal/store"
)

func newSessionManager(t *testing.T) *sessions.Manager {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return sessions.NewManager(store.New(client, 2*time.Second))
}

func seedSession(t *testing.T, sm *sessions.Manager, force bool) *sessions.Record {
	t.Helper()
	now := time.Now().UTC()
	rec := &sessions.Record{
		SID:    "sid-1",
		UserID: "user-1",
		Claims: sessions.Claims{
			Username:            "alice",
			Roles:               []string{"admin"},
			ForcePasswordChange: force,
		},
		IssuedAt:  now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
	require.NoError(t, sm.Put(context.Background(), rec))
	return rec
}

func TestSessionAuth_NoCookie(t *testing.T) {
	sm := newSessionManager(t)
	g := gin.New()
	g.GET("/", SessionAuth(sm), func(c *gin.Context) { c.Status(http.StatusOK) })

	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestSessionAuth_UnknownSession(t *testing.T) {
	sm := newSessionManager(t)
	g := gin.New()
	g.GET("/", SessionAuth(sm), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "no-such-sid"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestSessionAuth_ValidSession(t *testing.T) {
	sm := newSessionManager(t)
	seedSession(t, sm, false)

	g := gin.New()
	g.GET("/", SessionAuth(sm), func(c *gin.Context) {
		rec := SessionFromContext(c)
		require.NotNil(t, rec)
		require.Equal(t, "alice", rec.Claims.Username)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sid-1"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
}

func TestRequirePasswordChanged_BlocksForcedAccounts(t *testing.T) {
	sm := newSessionManager(t)
	seedSession(t, sm, true)

	g := gin.New()
	g.GET("/", SessionAuth(sm), RequirePasswordChanged(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sid-1"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusForbidden, rw.Code)
}

func TestRequirePasswordChanged_PassesNormalAccounts(t *testing.T) {
	sm := newSessionManager(t)
	seedSession(t, sm, false)

	g := gin.New()
	g.GET("/", SessionAuth(sm), RequirePasswordChanged(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "sid-1"})
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)
}
