package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/devcoons/software-governance-sub000/internal/auth"
	"github.com/devcoons/software-governance-sub000/internal/config"
	"github.com/devcoons/software-governance-sub000/pkg/logger"
	"github.com/devcoons/software-governance-sub000/pkg/metrics"
)

const loginPath = "/login"

// guardClaims is the signed loop-guard marker. It records which refresh id
// the bridge last attempted and how many times in the current window.
type guardClaims struct {
	RID      string `json:"rid"`
	Attempts int    `json:"attempts"`
	jwt.RegisteredClaims
}

// BridgeHandler is the stateless re-authentication hop for clients that hold
// a refresh cookie but lost their session cookie.
type BridgeHandler struct {
	cfg *config.Config
	svc *auth.Service
	now func() time.Time
}

func NewBridgeHandler(cfg *config.Config, svc *auth.Service) *BridgeHandler {
	return &BridgeHandler{cfg: cfg, svc: svc, now: time.Now}
}

func (h *BridgeHandler) Register(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	rg.GET("/auth/bridge", limit, h.Bridge)
}

// Bridge converts the refresh cookie into a fresh cookie pair and redirects
// to the caller's destination. Failures clear both auth cookies and land on
// the login surface with only a coarse reason tag; the detail stays in logs.
// A signed marker cookie counts attempts per refresh id so a permanently dead
// token cannot drive an infinite redirect loop through here.
func (h *BridgeHandler) Bridge(c *gin.Context) {
	next := sanitizeNext(c.Query("next"))

	rid, err := c.Cookie(refreshCookie)
	if err != nil || rid == "" {
		h.fail(c, "no_refresh")
		return
	}

	attempts := h.guardAttempts(c, rid)
	if attempts >= h.cfg.Auth.BridgeMaxAttempts {
		logger.Warnf("bridge: loop detected for refresh %s after %d attempts", rid, attempts)
		metrics.BridgeAttempts.WithLabelValues("loop").Inc()
		clearPair(c, h.cfg)
		clearBridgeGuard(c, h.cfg)
		c.Redirect(http.StatusSeeOther, loginPath+"?reason=session")
		return
	}
	h.setGuard(c, rid, attempts+1)

	pair, err := h.svc.Refresh(c.Request.Context(), rid, deviceFrom(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrReused):
			h.failTagged(c, "reused")
		case errors.Is(err, auth.ErrRefreshExpiredAbsolute), errors.Is(err, auth.ErrRefreshExpiredIdle):
			h.failTagged(c, "expired")
		case errors.Is(err, auth.ErrUAMismatch), errors.Is(err, auth.ErrIPMismatch):
			h.failTagged(c, "binding")
		case errors.Is(err, auth.ErrUserNotActive):
			h.failTagged(c, "not_active")
		default:
			h.failTagged(c, "invalid")
		}
		return
	}

	metrics.BridgeAttempts.WithLabelValues("success").Inc()
	setPair(c, h.cfg, pair)
	clearBridgeGuard(c, h.cfg)
	c.Redirect(http.StatusSeeOther, next)
}

func (h *BridgeHandler) fail(c *gin.Context, tag string) {
	metrics.BridgeAttempts.WithLabelValues(tag).Inc()
	clearPair(c, h.cfg)
	c.Redirect(http.StatusSeeOther, loginPath+"?reason=session")
}

func (h *BridgeHandler) failTagged(c *gin.Context, tag string) {
	logger.Infof("bridge: refresh rejected (%s)", tag)
	h.fail(c, tag)
}

// guardAttempts reads the marker cookie and returns how many bridge attempts
// this refresh id has already made within the window. A missing, unparsable,
// expired, or foreign-rid marker counts as zero.
func (h *BridgeHandler) guardAttempts(c *gin.Context, rid string) int {
	raw, err := c.Cookie(bridgeCookie)
	if err != nil || raw == "" {
		return 0
	}
	var claims guardClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.cfg.Auth.GuardSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return 0
	}
	if claims.RID != rid {
		return 0
	}
	if claims.IssuedAt == nil || h.now().Sub(claims.IssuedAt.Time) > h.cfg.Auth.BridgeWindow {
		return 0
	}
	return claims.Attempts
}

func (h *BridgeHandler) setGuard(c *gin.Context, rid string, attempts int) {
	now := h.now()
	claims := guardClaims{
		RID:      rid,
		Attempts: attempts,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.Auth.BridgeWindow)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.Auth.GuardSecret))
	if err != nil {
		logger.Errorf("bridge: sign guard: %v", err)
		return
	}
	c.SetSameSite(sameSiteMode(h.cfg))
	c.SetCookie(bridgeCookie, signed, int(h.cfg.Auth.BridgeWindow.Seconds()), "/", "", h.cfg.Auth.CookieSecure, true)
}

// sanitizeNext only accepts same-site absolute paths as redirect targets.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}
