package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devcoons/software-governance-sub000/internal/store"
	"github.com/devcoons/software-governance-sub000/internal/token"
)

const (
	recordPrefix = "auth:refresh:"
	setPrefix    = "auth:user:refresh:"
	zsetPrefix   = "auth:user:refresh:recent:"
)

// Outcome classifies a rotation attempt. Expected policy states are outcomes,
// not errors; only infrastructure failures surface as errors.
type Outcome string

const (
	OutcomeRotated         Outcome = "rotated"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeAlreadyRotated  Outcome = "already_rotated"
	OutcomeReused          Outcome = "reused"
	OutcomeBusy            Outcome = "busy"
	OutcomeBindingMismatch Outcome = "binding_mismatch"
	OutcomeExpired         Outcome = "expired"
)

// Policy carries the rotation policy knobs (all configurable, none protocol).
type Policy struct {
	IdleTTL       time.Duration
	ReplayGrace   time.Duration
	StaleLock     time.Duration
	TombstoneTTL  time.Duration
	MaxFamilies   int
	BindUserAgent bool
	BindIP        bool
}

// RotateRequest identifies the record to rotate plus the caller's binding
// fingerprints. Terminal marks a logout rotation: the successor is born
// poisoned so the family ends while the replay-detection trail survives.
type RotateRequest struct {
	OldRID   string
	UserID   string
	UAHash   string
	IPHint   string
	Terminal bool
}

type RotateResult struct {
	Outcome Outcome
	NewRID  string
}

// busyRetryDelay is how long a caller waits before its single busy retry.
const busyRetryDelay = 50 * time.Millisecond

// Manager provides CRUD plus atomic rotation over refresh records.
type Manager struct {
	store  *store.Store
	policy Policy
	now    func() time.Time
}

func NewManager(s *store.Store, p Policy) *Manager {
	return &Manager{store: s, policy: p, now: time.Now}
}

func recordKey(rid string) string { return recordPrefix + rid }
func setKey(userID string) string { return setPrefix + userID }
func zKey(userID string) string   { return zsetPrefix + userID }

// Get returns the record or nil when absent.
func (m *Manager) Get(ctx context.Context, rid string) (*Record, error) {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	fields, err := m.store.Client().HGetAll(ctx, recordKey(rid)).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh: get: %w", err)
	}
	return parseRecord(fields), nil
}

// Create persists a brand-new token family (login path) with
// TTL = min(idle window, remaining absolute time) and enforces the per-user
// family cap by evicting the oldest surplus entries. The multi-step sequence
// here is safely repeatable; only rotation needs the atomic script.
func (m *Manager) Create(ctx context.Context, rec *Record) error {
	now := m.now().UTC()
	ttl := rec.AbsoluteExpAt.Sub(now)
	if m.policy.IdleTTL < ttl {
		ttl = m.policy.IdleTTL
	}
	if ttl <= 0 {
		return fmt.Errorf("refresh: create: record already past absolute expiry")
	}

	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()

	if err := c.HSet(ctx, recordKey(rec.RID), rec.fields()).Err(); err != nil {
		return fmt.Errorf("refresh: create: %w", err)
	}
	if err := c.Expire(ctx, recordKey(rec.RID), ttl).Err(); err != nil {
		return fmt.Errorf("refresh: create: %w", err)
	}
	if err := c.SAdd(ctx, setKey(rec.UserID), rec.RID).Err(); err != nil {
		return fmt.Errorf("refresh: index: %w", err)
	}
	if err := c.ZAdd(ctx, zKey(rec.UserID), redis.Z{Score: float64(rec.CreatedAt.Unix()), Member: rec.RID}).Err(); err != nil {
		return fmt.Errorf("refresh: index: %w", err)
	}

	return m.enforceCap(ctx, rec.UserID)
}

// Rotate retires oldRid and creates its single successor in one atomic server
// round trip. On busy it retries once after a short delay, then attempts a
// best-effort salvage read of the old record's successor (covers a lock holder
// that crashed after writing the new record).
func (m *Manager) Rotate(ctx context.Context, req RotateRequest) (*RotateResult, error) {
	res, err := m.runRotate(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Outcome != OutcomeBusy {
		return res, nil
	}

	time.Sleep(busyRetryDelay)
	res, err = m.runRotate(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Outcome != OutcomeBusy {
		return res, nil
	}

	rec, err := m.Get(ctx, req.OldRID)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.RotatedTo != "" {
		return &RotateResult{Outcome: OutcomeAlreadyRotated, NewRID: rec.RotatedTo}, nil
	}
	return &RotateResult{Outcome: OutcomeBusy}, nil
}

func (m *Manager) runRotate(ctx context.Context, req RotateRequest) (*RotateResult, error) {
	newRID, err := token.NewID()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()

	keys := []string{
		recordKey(req.OldRID),
		recordKey(newRID),
		setKey(req.UserID),
		zKey(req.UserID),
	}
	argv := []interface{}{
		now.Unix(),
		newRID,
		int(m.policy.ReplayGrace.Seconds()),
		int(m.policy.StaleLock.Seconds()),
		int(m.policy.TombstoneTTL.Seconds()),
		int(m.policy.IdleTTL.Seconds()),
		boolField(m.policy.BindUserAgent),
		boolField(m.policy.BindIP),
		req.UAHash,
		req.IPHint,
		m.policy.MaxFamilies,
		recordPrefix,
		boolField(req.Terminal),
	}

	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	raw, err := rotateScript.Run(ctx, m.store.Client(), keys, argv...).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh: rotate: %w", err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return nil, fmt.Errorf("refresh: rotate: unexpected script reply %v", raw)
	}
	outcome, _ := reply[0].(string)
	successor, _ := reply[1].(string)
	return &RotateResult{Outcome: Outcome(outcome), NewRID: successor}, nil
}

// RevokeAllForUser deletes every refresh record referenced by the user's id
// set, then clears both indexes. Returns the count removed.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()

	rids, err := c.SMembers(ctx, setKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("refresh: revoke all: %w", err)
	}
	removed := 0
	for _, rid := range rids {
		n, err := c.Del(ctx, recordKey(rid)).Result()
		if err != nil {
			return removed, fmt.Errorf("refresh: revoke all: %w", err)
		}
		removed += int(n)
	}
	if err := c.Del(ctx, setKey(userID), zKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("refresh: revoke all: %w", err)
	}
	return removed, nil
}

func (m *Manager) enforceCap(ctx context.Context, userID string) error {
	if m.policy.MaxFamilies <= 0 {
		return nil
	}
	c := m.store.Client()
	n, err := c.ZCard(ctx, zKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("refresh: cap: %w", err)
	}
	if int(n) <= m.policy.MaxFamilies {
		return nil
	}
	surplus, err := c.ZRange(ctx, zKey(userID), 0, n-int64(m.policy.MaxFamilies)-1).Result()
	if err != nil {
		return fmt.Errorf("refresh: cap: %w", err)
	}
	for _, rid := range surplus {
		_ = c.Del(ctx, recordKey(rid)).Err()
		_ = c.ZRem(ctx, zKey(userID), rid).Err()
		_ = c.SRem(ctx, setKey(userID), rid).Err()
	}
	return nil
}
