package totp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devcoons/software-governance-sub000/internal/models"
	"github.com/devcoons/software-governance-sub000/internal/users"
)

func seedUser(t *testing.T, dir *users.MemoryRepository, enabled bool, secret string) *models.User {
	t.Helper()
	u, err := dir.Create(context.Background(), &models.User{
		Username:    "alice",
		Email:       "alice@example.com",
		Active:      true,
		TotpSecret:  secret,
		TotpEnabled: enabled,
	})
	require.NoError(t, err)
	return u
}

func TestGetOrCreateURI_Idempotent(t *testing.T) {
	dir := users.NewMemoryRepository()
	u := seedUser(t, dir, false, "")
	v := NewVerifier(dir, "Test Issuer")
	ctx := context.Background()

	p1, err := v.GetOrCreateURI(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, p1.Enabled)
	require.Contains(t, p1.OtpauthURL, "otpauth://totp/")
	require.Contains(t, p1.OtpauthURL, "issuer=Test+Issuer")

	// second call must not rotate the secret
	p2, err := v.GetOrCreateURI(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, p1.OtpauthURL, p2.OtpauthURL)
}

func TestVerify_EnrollmentSideEffect(t *testing.T) {
	dir := users.NewMemoryRepository()
	u := seedUser(t, dir, false, "")
	v := NewVerifier(dir, "")
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := v.GetOrCreateURI(ctx, u.ID)
	require.NoError(t, err)
	secret, err := dir.GetTotpSecret(ctx, u.ID)
	require.NoError(t, err)

	code, err := codeAt(secret, now)
	require.NoError(t, err)

	before, err := dir.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, before.TotpEnabled)

	require.NoError(t, v.Verify(ctx, u.ID, code))

	after, err := dir.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, after.TotpEnabled)
}

func TestVerify_ClockSkewWindow(t *testing.T) {
	dir := users.NewMemoryRepository()
	secret, err := generateSecret()
	require.NoError(t, err)
	u := seedUser(t, dir, true, secret)
	v := NewVerifier(dir, "")
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	cur, err := codeAt(secret, now)
	require.NoError(t, err)
	prev, err := codeAt(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	next, err := codeAt(secret, now.Add(30*time.Second))
	require.NoError(t, err)
	far, err := codeAt(secret, now.Add(90*time.Second))
	require.NoError(t, err)

	require.NoError(t, v.Verify(ctx, u.ID, prev))
	require.NoError(t, v.Verify(ctx, u.ID, next))
	if far != prev && far != next && far != cur {
		require.ErrorIs(t, v.Verify(ctx, u.ID, far), ErrInvalidCode)
	}
}

func TestVerify_InputNormalization(t *testing.T) {
	dir := users.NewMemoryRepository()
	secret, err := generateSecret()
	require.NoError(t, err)
	u := seedUser(t, dir, true, secret)
	v := NewVerifier(dir, "")
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }
	ctx := context.Background()

	code, err := codeAt(secret, now)
	require.NoError(t, err)

	// spaces and dashes are stripped before validation
	spaced := code[:3] + " " + code[3:]
	require.NoError(t, v.Verify(ctx, u.ID, spaced))

	// too few digits after stripping is rejected outright
	require.ErrorIs(t, v.Verify(ctx, u.ID, "12345"), ErrInvalidCode)
}

func TestVerify_NoSecretFailsClosed(t *testing.T) {
	dir := users.NewMemoryRepository()
	u := seedUser(t, dir, false, "")
	v := NewVerifier(dir, "")

	require.ErrorIs(t, v.Verify(context.Background(), u.ID, "000000"), ErrNoSecret)
}
