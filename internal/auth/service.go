package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/devcoons/software-governance-sub000/internal/config"
	"github.com/devcoons/software-governance-sub000/internal/credentials"
	"github.com/devcoons/software-governance-sub000/internal/models"
	"github.com/devcoons/software-governance-sub000/internal/refresh"
	"github.com/devcoons/software-governance-sub000/internal/sessions"
	"github.com/devcoons/software-governance-sub000/internal/token"
	"github.com/devcoons/software-governance-sub000/internal/totp"
	"github.com/devcoons/software-governance-sub000/internal/users"
	"github.com/devcoons/software-governance-sub000/pkg/logger"
	"github.com/devcoons/software-governance-sub000/pkg/metrics"
)

// Counter bounds repeated attempts per identity; the storage backend behind
// it is an external concern.
type Counter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Device carries the caller's binding fingerprints captured by the HTTP layer.
type Device struct {
	UAHash string
	IPHint string
}

// Pair is the credential pair handed back to the cookie layer.
type Pair struct {
	Session             *sessions.Record
	RefreshID           string
	RememberMe          bool
	ForcePasswordChange bool
	User                *models.User
}

// LoginInput are the credentials presented at the login surface.
type LoginInput struct {
	Login      string
	Password   string
	RememberMe bool
	Device     Device
}

// Service orchestrates the credential lifecycle: login, refresh, logout, and
// the password-reset/force-change flows.
type Service struct {
	policy       config.AuthConfig
	users        users.Repository
	hasher       *credentials.Hasher
	sessions     *sessions.Manager
	refresh      *refresh.Manager
	totp         *totp.Verifier
	resetCounter Counter
	now          func() time.Time
}

func NewService(policy config.AuthConfig, dir users.Repository, hasher *credentials.Hasher,
	sm *sessions.Manager, rm *refresh.Manager, verifier *totp.Verifier, resetCounter Counter) *Service {
	return &Service{
		policy:       policy,
		users:        dir,
		hasher:       hasher,
		sessions:     sm,
		refresh:      rm,
		totp:         verifier,
		resetCounter: resetCounter,
		now:          time.Now,
	}
}

// Login verifies credentials and mints a fresh session/refresh pair. A
// successful login with an active temporary password burns it: the temp
// password is single-use even if the account authenticates twice before
// changing it.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Pair, error) {
	u, err := s.users.FindByLogin(ctx, in.Login)
	if err != nil {
		return nil, ErrUnknown
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(u.PasswordHash, in.Password)
	if err != nil {
		logger.Errorf("login: digest verify for user %s: %v", u.ID, err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrUserNotActive
	}

	if u.HasActiveTempPassword() {
		if err := s.users.BurnTemporaryPassword(ctx, u.ID, s.hasher.UnusableDigest()); err != nil {
			return nil, ErrUnknown
		}
	}

	now := s.now().UTC()
	absTTL := s.policy.RefreshAbsoluteTTL
	if in.RememberMe {
		absTTL = s.policy.RememberMeAbsoluteTTL
	}
	rid, err := token.NewID()
	if err != nil {
		return nil, ErrUnknown
	}
	rec := &refresh.Record{
		RID:           rid,
		UserID:        u.ID,
		RememberMe:    in.RememberMe,
		UAHash:        in.Device.UAHash,
		IPHint:        in.Device.IPHint,
		CreatedAt:     now,
		LastUsedAt:    now,
		AbsoluteExpAt: now.Add(absTTL),
	}
	if err := s.refresh.Create(ctx, rec); err != nil {
		logger.Errorf("login: create refresh: %v", err)
		return nil, ErrUnknown
	}

	sess, err := s.mintSession(ctx, u, rid)
	if err != nil {
		return nil, ErrUnknown
	}
	if err := s.users.UpdateLastLogin(ctx, u.ID); err != nil {
		logger.Warnf("login: update last login for %s: %v", u.ID, err)
	}

	return &Pair{
		Session:             sess,
		RefreshID:           rid,
		RememberMe:          in.RememberMe,
		ForcePasswordChange: u.ForcePasswordChange,
		User:                u,
	}, nil
}

// Refresh rotates the presented refresh token and mints a new session with
// freshly snapshotted claims. On detected reuse the whole credential family
// of the user is revoked; the caller must clear both cookies.
func (s *Service) Refresh(ctx context.Context, rid string, dev Device) (*Pair, error) {
	rec, err := s.refresh.Get(ctx, rid)
	if err != nil {
		return nil, ErrUnknown
	}
	if rec == nil {
		return nil, ErrInvalidRefresh
	}

	now := s.now().UTC()
	if !rec.Poisoned {
		// logical double checks; the store TTL normally enforces both
		if now.After(rec.AbsoluteExpAt) {
			return nil, ErrRefreshExpiredAbsolute
		}
		if s.policy.RefreshIdleTTL > 0 && now.Sub(rec.LastUsedAt) > s.policy.RefreshIdleTTL {
			return nil, ErrRefreshExpiredIdle
		}
		if s.policy.BindUserAgent && rec.UAHash != "" && rec.UAHash != dev.UAHash {
			return nil, ErrUAMismatch
		}
		if s.policy.BindIP && rec.IPHint != "" && rec.IPHint != dev.IPHint {
			return nil, ErrIPMismatch
		}
	}

	// deactivation kills refresh capability immediately, even though an old
	// session record may still be technically unexpired
	u, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, ErrUnknown
	}
	if u == nil || !u.Active {
		return nil, ErrUserNotActive
	}

	res, err := s.refresh.Rotate(ctx, refresh.RotateRequest{
		OldRID: rid,
		UserID: rec.UserID,
		UAHash: dev.UAHash,
		IPHint: dev.IPHint,
	})
	if err != nil {
		logger.Errorf("refresh: rotate %s: %v", rid, err)
		return nil, ErrUnknown
	}
	metrics.Rotations.WithLabelValues(string(res.Outcome)).Inc()

	switch res.Outcome {
	case refresh.OutcomeRotated, refresh.OutcomeAlreadyRotated:
		// fall through below
	case refresh.OutcomeReused:
		s.killFamily(ctx, rec.UserID)
		return nil, ErrReused
	case refresh.OutcomeBusy:
		return nil, ErrRotationFailed
	case refresh.OutcomeBindingMismatch:
		return nil, ErrUAMismatch
	case refresh.OutcomeExpired:
		return nil, ErrRefreshExpiredAbsolute
	default:
		return nil, ErrInvalidRefresh
	}

	succ, err := s.refresh.Get(ctx, res.NewRID)
	if err != nil {
		return nil, ErrUnknown
	}
	if succ == nil || succ.Poisoned {
		// the grace-window successor of a terminal (logout) rotation is unusable
		return nil, ErrInvalidRefresh
	}

	sess, err := s.mintSession(ctx, u, succ.RID)
	if err != nil {
		return nil, ErrUnknown
	}
	return &Pair{
		Session:             sess,
		RefreshID:           succ.RID,
		RememberMe:          succ.RememberMe,
		ForcePasswordChange: u.ForcePasswordChange,
		User:                u,
	}, nil
}

// Logout best-effort revokes the given credentials. The refresh token is not
// simply deleted: it is terminally rotated into a poisoned successor so a
// later replay of the old id still trips replay detection.
func (s *Service) Logout(ctx context.Context, sid, rid string) {
	if sid != "" {
		if err := s.sessions.Delete(ctx, sid); err != nil {
			logger.Warnf("logout: delete session: %v", err)
		}
	}
	if rid == "" {
		return
	}
	rec, err := s.refresh.Get(ctx, rid)
	if err != nil || rec == nil || rec.Poisoned {
		return
	}
	if _, err := s.refresh.Rotate(ctx, refresh.RotateRequest{
		OldRID:   rid,
		UserID:   rec.UserID,
		Terminal: true,
	}); err != nil {
		logger.Warnf("logout: terminal rotation: %v", err)
	}
}

// ResetPasswordWithSecondFactor sets a new password after TOTP verification.
// A lookup miss returns success on purpose: the reset surface must not reveal
// whether an account exists.
func (s *Service) ResetPasswordWithSecondFactor(ctx context.Context, login, newPassword, code string) error {
	if s.resetCounter != nil {
		ok, err := s.resetCounter.Allow(ctx, "reset:"+strings.ToLower(strings.TrimSpace(login)))
		if err != nil {
			return ErrUnknown
		}
		if !ok {
			return ErrRateLimited
		}
	}
	if err := checkStrength(newPassword, s.policy.MinPasswordLength, s.policy.MinPasswordClasses); err != nil {
		return err
	}
	u, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return ErrUnknown
	}
	if u == nil {
		return nil
	}
	if !u.Active || !u.TotpEnabled {
		return ErrNotAllowed
	}
	if err := s.totp.Verify(ctx, u.ID, code); err != nil {
		switch {
		case errors.Is(err, totp.ErrInvalidCode):
			return ErrInvalidTOTP
		case errors.Is(err, totp.ErrNoSecret):
			return ErrNotAllowed
		default:
			return ErrUnknown
		}
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return ErrUnknown
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return ErrUnknown
	}
	// revoke refresh tokens alongside sessions: a reset strands no live path
	// back into the account
	s.killFamily(ctx, u.ID)
	return nil
}

// ChangePassword is the dedicated endpoint behind the forced-change flow. It
// verifies the current password, applies the strength policy, clears the
// force-change flag, and revokes every other credential. An account whose
// temporary password was already consumed at login has no verifiable current
// password left; the live session that login minted stands in as the proof.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword, keepSID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return ErrUnknown
	}
	if u == nil || !u.Active {
		return ErrInvalidCredentials
	}
	// a temp-password login leaves a burned digest behind
	consumedTemp := u.ForcePasswordChange && u.TempPasswordIssuedAt == nil
	if !consumedTemp {
		ok, err := s.hasher.Verify(u.PasswordHash, current)
		if err != nil || !ok {
			return ErrInvalidCredentials
		}
	}
	if err := checkStrength(newPassword, s.policy.MinPasswordLength, s.policy.MinPasswordClasses); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return ErrUnknown
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return ErrUnknown
	}
	if _, err := s.sessions.RevokeAllForUser(ctx, u.ID, keepSID); err != nil {
		logger.Warnf("change password: revoke sessions for %s: %v", u.ID, err)
	}
	if _, err := s.refresh.RevokeAllForUser(ctx, u.ID); err != nil {
		logger.Warnf("change password: revoke refresh for %s: %v", u.ID, err)
	}
	// re-snapshot the kept session so it stops carrying the force-change flag
	if keepSID != "" {
		if rec, err := s.sessions.Get(ctx, keepSID); err == nil && rec != nil {
			rec.Claims.ForcePasswordChange = false
			if err := s.sessions.Put(ctx, rec); err != nil {
				logger.Warnf("change password: refresh session claims: %v", err)
			}
		}
	}
	return nil
}

// ListSessions returns the caller's live sessions for the "where am I logged
// in" surface.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*sessions.Record, error) {
	recs, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, ErrUnknown
	}
	return recs, nil
}

// IssueTempPassword generates a single-use temporary password for the account
// and flags it for a forced change. Every existing credential of the account
// is revoked; the plaintext is returned once for out-of-band delivery and is
// never stored or logged.
func (s *Service) IssueTempPassword(ctx context.Context, userID string) (string, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", ErrUnknown
	}
	if u == nil {
		return "", ErrInvalidCredentials
	}
	plain, err := token.NewID()
	if err != nil {
		return "", ErrUnknown
	}
	plain = plain[:16]
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return "", ErrUnknown
	}
	if err := s.users.IssueTempPassword(ctx, u.ID, hash); err != nil {
		return "", ErrUnknown
	}
	s.killFamily(ctx, u.ID)
	return plain, nil
}

// killFamily revokes every session and refresh record of the user. This is
// the mandatory response to token reuse and the defense-in-depth response to
// a password reset.
func (s *Service) killFamily(ctx context.Context, userID string) {
	if n, err := s.sessions.RevokeAllForUser(ctx, userID, ""); err != nil {
		logger.Errorf("family kill: sessions for %s: %v", userID, err)
	} else {
		logger.Infof("family kill: removed %d sessions for %s", n, userID)
	}
	if n, err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		logger.Errorf("family kill: refresh for %s: %v", userID, err)
	} else {
		logger.Infof("family kill: removed %d refresh records for %s", n, userID)
	}
	metrics.FamilyKills.Inc()
}

// mintSession snapshots the user's authorization attributes into a new
// session record. The snapshot is a point-in-time grant: it is not re-joined
// against the directory until the session is replaced or revoked.
func (s *Service) mintSession(ctx context.Context, u *models.User, parentRID string) (*sessions.Record, error) {
	sid, err := token.NewID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := &sessions.Record{
		SID:    sid,
		UserID: u.ID,
		Claims: sessions.Claims{
			Username:            u.Username,
			Email:               u.Email,
			Roles:               u.Roles,
			Permissions:         u.Permissions,
			ForcePasswordChange: u.ForcePasswordChange,
			TotpEnabled:         u.TotpEnabled,
		},
		IssuedAt:  now,
		ExpiresAt: now.Add(s.policy.SessionTTL),
		ParentRID: parentRID,
	}
	if err := s.sessions.Put(ctx, rec); err != nil {
		logger.Errorf("mint session for %s: %v", u.ID, err)
		return nil, err
	}
	return rec, nil
}

// SessionTTL exposes the configured session lifetime for the cookie layer.
func (s *Service) SessionTTL() time.Duration { return s.policy.SessionTTL }
