package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devcoons/software-governance-sub000/internal/auth"
	"github.com/devcoons/software-governance-sub000/internal/config"
	"github.com/devcoons/software-governance-sub000/internal/totp"
	"github.com/devcoons/software-governance-sub000/pkg/logger"
	"github.com/devcoons/software-governance-sub000/pkg/metrics"
	"github.com/devcoons/software-governance-sub000/pkg/middleware"
)

// LoginRequest carries interactive credentials presented at the login surface.
type LoginRequest struct {
	Login      string `json:"login" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

type ResetPasswordRequest struct {
	Login       string `json:"login" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg  *config.Config
	svc  *auth.Service
	totp *totp.Verifier
}

func NewAuthHandler(cfg *config.Config, svc *auth.Service, verifier *totp.Verifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, svc: svc, totp: verifier}
}

// Register routes under /auth. sessionAuth guards the surfaces that require a
// live session; limit runs after it so authenticated traffic is budgeted per
// user rather than per IP. Accounts in the forced-change state can still reach
// password/change, me, and logout; everything else is gated until the change
// completes.
func (h *AuthHandler) Register(rg *gin.RouterGroup, sessionAuth, limit gin.HandlerFunc) {
	changed := middleware.RequirePasswordChanged()
	a := rg.Group("/auth")
	a.POST("/login", limit, h.Login)
	a.POST("/refresh", limit, h.Refresh)
	a.POST("/logout", limit, h.Logout)
	a.POST("/password/reset", limit, h.ResetPassword)
	a.POST("/password/change", sessionAuth, limit, h.ChangePassword)
	a.GET("/me", sessionAuth, limit, h.Me)
	a.GET("/totp/setup", sessionAuth, limit, changed, h.TOTPSetup)
	a.POST("/totp/verify", sessionAuth, limit, changed, h.TOTPVerify)
	a.GET("/sessions", sessionAuth, limit, changed, h.ListSessions)
	a.POST("/users/:id/temp-password", sessionAuth, limit, changed, h.IssueTempPassword)
}

// deviceFrom captures the caller's binding fingerprints. The user agent is
// hashed so the stored record carries no raw header text.
func deviceFrom(c *gin.Context) auth.Device {
	sum := sha256.Sum256([]byte(c.Request.UserAgent()))
	return auth.Device{
		UAHash: hex.EncodeToString(sum[:]),
		IPHint: c.ClientIP(),
	}
}

// Login verifies credentials and sets the session/refresh cookie pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), auth.LoginInput{
		Login:      req.Login,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Device:     deviceFrom(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			metrics.Logins.WithLabelValues("invalid_credentials").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, auth.ErrUserNotActive):
			metrics.Logins.WithLabelValues("not_active").Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "account is not active"})
		default:
			metrics.Logins.WithLabelValues("error").Inc()
			logger.Errorf("login failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}
	metrics.Logins.WithLabelValues("success").Inc()

	setPair(c, h.cfg, pair)
	c.JSON(http.StatusOK, gin.H{
		"username":            pair.Session.Claims.Username,
		"roles":               pair.Session.Claims.Roles,
		"forcePasswordChange": pair.ForcePasswordChange,
		"expiresIn":           int(h.svc.SessionTTL().Seconds()),
	})
}

// Refresh rotates the refresh cookie into a new cookie pair. Every failure
// mode clears both cookies: the client is never left holding credentials the
// server considers invalid.
func (h *AuthHandler) Refresh(c *gin.Context) {
	rid, err := c.Cookie(refreshCookie)
	if err != nil || rid == "" {
		clearPair(c, h.cfg)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "re-authentication required"})
		return
	}

	pair, err := h.svc.Refresh(c.Request.Context(), rid, deviceFrom(c))
	if err != nil {
		logger.Infof("refresh rejected: %v", err)
		clearPair(c, h.cfg)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "re-authentication required"})
		return
	}

	setPair(c, h.cfg, pair)
	c.JSON(http.StatusOK, gin.H{
		"username":            pair.Session.Claims.Username,
		"roles":               pair.Session.Claims.Roles,
		"forcePasswordChange": pair.ForcePasswordChange,
		"expiresIn":           int(h.svc.SessionTTL().Seconds()),
	})
}

// Logout revokes whatever credentials the request carries and clears both
// cookies. Always succeeds from the client's point of view.
func (h *AuthHandler) Logout(c *gin.Context) {
	sid, _ := c.Cookie(sessionCookie)
	rid, _ := c.Cookie(refreshCookie)
	h.svc.Logout(c.Request.Context(), sid, rid)
	clearPair(c, h.cfg)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ResetPassword sets a new password after TOTP proof. The success response is
// identical whether or not the account exists.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.ResetPasswordWithSecondFactor(c.Request.Context(), req.Login, req.NewPassword, req.Code)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "password updated if the account exists"})
	case errors.Is(err, auth.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many reset attempts"})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet the strength policy"})
	case errors.Is(err, auth.ErrInvalidTOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
	case errors.Is(err, auth.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": "password reset is not available for this account"})
	default:
		logger.Errorf("password reset failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password reset failed"})
	}
}

// ChangePassword serves the forced-change flow (and voluntary changes). The
// calling session survives; every other credential of the account is revoked.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.svc.ChangePassword(c.Request.Context(), rec.UserID, req.CurrentPassword, req.NewPassword, rec.SID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "password changed"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet the strength policy"})
	default:
		logger.Errorf("password change failed for %s: %v", rec.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "password change failed"})
	}
}

// TOTPSetup returns the provisioning URI for the caller's second factor,
// creating the secret on first call.
func (h *AuthHandler) TOTPSetup(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	prov, err := h.totp.GetOrCreateURI(c.Request.Context(), rec.UserID)
	if err != nil {
		logger.Errorf("totp setup for %s: %v", rec.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "setup failed"})
		return
	}
	c.JSON(http.StatusOK, prov)
}

// TOTPVerify checks a code against the caller's secret; the first success
// completes enrollment.
func (h *AuthHandler) TOTPVerify(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.totp.Verify(c.Request.Context(), rec.UserID, req.Code); err != nil {
		switch {
		case errors.Is(err, totp.ErrInvalidCode):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		case errors.Is(err, totp.ErrNoSecret):
			c.JSON(http.StatusConflict, gin.H{"error": "second factor is not set up"})
		default:
			logger.Errorf("totp verify for %s: %v", rec.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verified"})
}

// ListSessions returns the caller's live sessions, marking which one is the
// session making the request.
func (h *AuthHandler) ListSessions(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	recs, err := h.svc.ListSessions(c.Request.Context(), rec.UserID)
	if err != nil {
		logger.Errorf("list sessions for %s: %v", rec.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, s := range recs {
		out = append(out, gin.H{
			"sid":       s.SID,
			"issuedAt":  s.IssuedAt,
			"expiresAt": s.ExpiresAt,
			"current":   s.SID == rec.SID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// IssueTempPassword is the administrative entry into the forced-change flow:
// it hands back a single-use temporary password for the target account and
// revokes everything the account currently holds.
func (h *AuthHandler) IssueTempPassword(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if !hasRole(rec.Claims.Roles, "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}
	plain, err := h.svc.IssueTempPassword(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
			return
		}
		logger.Errorf("issue temp password for %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issuing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tempPassword": plain})
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// Me returns the claims snapshot of the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	rec := middleware.SessionFromContext(c)
	if rec == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":    rec.UserID,
		"claims":    rec.Claims,
		"issuedAt":  rec.IssuedAt,
		"expiresAt": rec.ExpiresAt,
	})
}
