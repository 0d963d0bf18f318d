package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	// small cost factors to keep the test fast
	h := NewHasher(Params{MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1})

	digest, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(digest, "$argon2id$"))

	ok, err := h.Verify(digest, "correct horse battery staple")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.Verify(digest, "wrong password")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyReadsParamsFromDigest(t *testing.T) {
	old := NewHasher(Params{MemoryKiB: 8 * 1024, Time: 2, Parallelism: 1})
	digest, err := old.Hash("pw-with-old-costs")
	require.NoError(t, err)

	// a hasher with different configured costs still verifies old digests
	fresh := NewHasher(Params{MemoryKiB: 16 * 1024, Time: 1, Parallelism: 2})
	ok, err := fresh.Verify(digest, "pw-with-old-costs")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnusableDigestNeverVerifies(t *testing.T) {
	h := NewHasher(Params{MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1})
	burned := h.UnusableDigest()

	ok, err := h.Verify(burned, "anything")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.Verify(burned, burned)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := NewHasher(DefaultParams())
	_, err := h.Verify("$bcrypt$whatever", "pw")
	require.ErrorIs(t, err, ErrMalformedDigest)

	ok, err := h.Verify("", "pw")
	require.NoError(t, err)
	require.False(t, ok)
}
