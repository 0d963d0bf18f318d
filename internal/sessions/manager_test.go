package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/devcoons/software-governance-sub000/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewManager(store.New(client, 2*time.Second)), m
}

func newRecord(sid, uid string, ttl time.Duration) *Record {
	now := time.Now().UTC()
	return &Record{
		SID:       sid,
		UserID:    uid,
		Claims:    Claims{Username: "alice", Roles: []string{"admin"}},
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestManager_PutGetDelete(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	rec := newRecord("s1", "u1", 5*time.Minute)
	require.NoError(t, mgr.Put(ctx, rec))

	got, err := mgr.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "u1", got.UserID)
	require.Equal(t, "alice", got.Claims.Username)

	require.NoError(t, mgr.Delete(ctx, "s1"))
	got2, err := mgr.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got2)

	// idempotent
	require.NoError(t, mgr.Delete(ctx, "s1"))
}

func TestManager_TTLExpiry(t *testing.T) {
	mgr, m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Put(ctx, newRecord("s2", "u1", time.Second)))

	got, err := mgr.Get(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got2, err := mgr.Get(ctx, "s2")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestManager_LogicalExpiryDoubleCheck(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	// exp already in the past while the store TTL (1s floor) keeps the key alive
	rec := newRecord("s3", "u1", -time.Minute)
	require.NoError(t, mgr.Put(ctx, rec))

	got, err := mgr.Get(ctx, "s3")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestManager_ParentIndexRepair(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first := newRecord("sA", "u1", 5*time.Minute)
	first.ParentRID = "r1"
	require.NoError(t, mgr.Put(ctx, first))

	// a second session minted from the same refresh id replaces the first
	second := newRecord("sB", "u1", 5*time.Minute)
	second.ParentRID = "r1"
	require.NoError(t, mgr.Put(ctx, second))

	gone, err := mgr.Get(ctx, "sA")
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := mgr.Get(ctx, "sB")
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestManager_ListForUser(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Put(ctx, newRecord("l1", "u1", 5*time.Minute)))
	require.NoError(t, mgr.Put(ctx, newRecord("l2", "u1", 5*time.Minute)))
	require.NoError(t, mgr.Put(ctx, newRecord("other", "u2", 5*time.Minute)))
	// logically expired entry gets pruned from the index during listing
	require.NoError(t, mgr.Put(ctx, newRecord("l3", "u1", -time.Minute)))

	recs, err := mgr.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	sids := []string{recs[0].SID, recs[1].SID}
	require.ElementsMatch(t, []string{"l1", "l2"}, sids)
}

func TestManager_RevokeAllForUser(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Put(ctx, newRecord("k1", "u1", 5*time.Minute)))
	require.NoError(t, mgr.Put(ctx, newRecord("k2", "u1", 5*time.Minute)))
	require.NoError(t, mgr.Put(ctx, newRecord("k3", "u1", 5*time.Minute)))
	require.NoError(t, mgr.Put(ctx, newRecord("other", "u2", 5*time.Minute)))

	removed, err := mgr.RevokeAllForUser(ctx, "u1", "k2")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	kept, err := mgr.Get(ctx, "k2")
	require.NoError(t, err)
	require.NotNil(t, kept)

	for _, sid := range []string{"k1", "k3"} {
		got, err := mgr.Get(ctx, sid)
		require.NoError(t, err)
		require.Nil(t, got)
	}

	// unrelated user untouched
	u2, err := mgr.Get(ctx, "other")
	require.NoError(t, err)
	require.NotNil(t, u2)
}
