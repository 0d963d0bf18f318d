package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devcoons/software-governance-sub000/internal/auth"
	"github.com/devcoons/software-governance-sub000/internal/config"
	"github.com/devcoons/software-governance-sub000/pkg/middleware"
)

// Cookie names. The session cookie name is owned by pkg/middleware since the
// auth middleware reads it; the other two only exist on this surface.
const (
	sessionCookie = middleware.SessionCookie
	refreshCookie = "sg_refresh"
	bridgeCookie  = "sg_bridge"
)

func sameSiteMode(cfg *config.Config) http.SameSite {
	switch cfg.Auth.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// setPair issues both auth cookies together. The refresh cookie is
// browser-session-scoped unless the user asked to be remembered; the session
// cookie always carries its short TTL.
func setPair(c *gin.Context, cfg *config.Config, pair *auth.Pair) {
	c.SetSameSite(sameSiteMode(cfg))
	c.SetCookie(sessionCookie, pair.Session.SID, int(cfg.Auth.SessionTTL.Seconds()), "/", "", cfg.Auth.CookieSecure, true)
	refreshAge := 0
	if pair.RememberMe {
		refreshAge = int(cfg.Auth.RememberMeAbsoluteTTL.Seconds())
	}
	c.SetCookie(refreshCookie, pair.RefreshID, refreshAge, "/", "", cfg.Auth.CookieSecure, true)
}

// clearPair removes both auth cookies together. A client is never left
// holding one half of an invalid pair.
func clearPair(c *gin.Context, cfg *config.Config) {
	c.SetSameSite(sameSiteMode(cfg))
	c.SetCookie(sessionCookie, "", -1, "/", "", cfg.Auth.CookieSecure, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", cfg.Auth.CookieSecure, true)
}

func clearBridgeGuard(c *gin.Context, cfg *config.Config) {
	c.SetSameSite(sameSiteMode(cfg))
	c.SetCookie(bridgeCookie, "", -1, "/", "", cfg.Auth.CookieSecure, true)
}
