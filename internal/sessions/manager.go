package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devcoons/software-governance-sub000/internal/store"
)

const (
	recordPrefix = "auth:session:"
	userPrefix   = "auth:user:sessions:"
	parentPrefix = "auth:refresh:session:"
)

// Manager provides CRUD over session records. Records are stored as JSON under
// "auth:session:<sid>" with TTL = exp - now, indexed per user, with a
// refresh-id side index so a rotation's session replaces its predecessor.
type Manager struct {
	store *store.Store
}

func NewManager(s *store.Store) *Manager { return &Manager{store: s} }

func recordKey(sid string) string  { return recordPrefix + sid }
func userKey(userID string) string { return userPrefix + userID }
func parentKey(rid string) string  { return parentPrefix + rid }

// Get returns the session or nil when absent. A found-but-expired record is
// treated identically to absent: store TTL granularity may outlive the
// clock-based expiry, so the logical expiry is double-checked here.
func (m *Manager) Get(ctx context.Context, sid string) (*Record, error) {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	b, err := m.store.Client().Get(ctx, recordKey(sid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("sessions: decode: %w", err)
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		_ = m.store.Client().Del(ctx, recordKey(sid)).Err()
		return nil, nil
	}
	return &rec, nil
}

// Put upserts the record and its user-index membership. When ParentRID is set
// it also repairs the refresh→session side index: any previous session minted
// from the same refresh id is disposed of, so concurrent uses of one refresh
// never leave orphaned sessions behind.
func (m *Manager) Put(ctx context.Context, rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessions: encode: %w", err)
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()

	if err := c.Set(ctx, recordKey(rec.SID), b, ttl).Err(); err != nil {
		return fmt.Errorf("sessions: put: %w", err)
	}
	if err := c.SAdd(ctx, userKey(rec.UserID), rec.SID).Err(); err != nil {
		return fmt.Errorf("sessions: index: %w", err)
	}

	if rec.ParentRID != "" {
		pk := parentKey(rec.ParentRID)
		prev, err := c.Get(ctx, pk).Result()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("sessions: parent index: %w", err)
		}
		if err := c.Set(ctx, pk, rec.SID, ttl).Err(); err != nil {
			return fmt.Errorf("sessions: parent index: %w", err)
		}
		if prev != "" && prev != rec.SID {
			_ = c.Del(ctx, recordKey(prev)).Err()
			_ = c.SRem(ctx, userKey(rec.UserID), prev).Err()
		}
	}
	return nil
}

// Delete removes the record and its user-index membership. Idempotent.
func (m *Manager) Delete(ctx context.Context, sid string) error {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()
	rec, err := m.getRaw(ctx, sid)
	if err != nil {
		return err
	}
	if err := c.Del(ctx, recordKey(sid)).Err(); err != nil {
		return fmt.Errorf("sessions: delete: %w", err)
	}
	if rec != nil {
		_ = c.SRem(ctx, userKey(rec.UserID), sid).Err()
	}
	return nil
}

// ListForUser returns the user's live sessions. Index entries whose record
// has already expired are pruned on the way through.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()
	sids, err := c.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}
	out := make([]*Record, 0, len(sids))
	for _, sid := range sids {
		rec, err := m.Get(ctx, sid)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			_ = c.SRem(ctx, userKey(userID), sid).Err()
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// RevokeAllForUser deletes every session in the user's index except the
// optionally preserved one. Returns the number of sessions removed.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, keepSID string) (int, error) {
	ctx, cancel := m.store.Context(ctx)
	defer cancel()
	c := m.store.Client()
	sids, err := c.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("sessions: revoke all: %w", err)
	}
	removed := 0
	for _, sid := range sids {
		if sid == keepSID {
			continue
		}
		if err := c.Del(ctx, recordKey(sid)).Err(); err != nil {
			return removed, fmt.Errorf("sessions: revoke all: %w", err)
		}
		_ = c.SRem(ctx, userKey(userID), sid).Err()
		removed++
	}
	return removed, nil
}

// getRaw loads a record without the logical-expiry check (Delete must be able
// to clean up expired-but-present records).
func (m *Manager) getRaw(ctx context.Context, sid string) (*Record, error) {
	b, err := m.store.Client().Get(ctx, recordKey(sid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("sessions: decode: %w", err)
	}
	return &rec, nil
}
