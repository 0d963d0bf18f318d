package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2id cost factors. They come from configuration; the core
// never hard-codes them.
type Params struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultParams returns interactive-login cost factors.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024,
		Time:        1,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

var ErrMalformedDigest = errors.New("credentials: malformed digest")

// unusable is a digest that can never verify. Written over an account's hash
// when a temporary password is burned.
const unusable = "!"

// Hasher hashes and verifies passwords using argon2id with PHC-encoded
// digests. Callers must not log or persist plaintext passwords.
type Hasher struct {
	params Params
}

func NewHasher(p Params) *Hasher {
	if p.SaltLen == 0 {
		p.SaltLen = 16
	}
	if p.KeyLen == 0 {
		p.KeyLen = 32
	}
	if p.MemoryKiB == 0 || p.Time == 0 || p.Parallelism == 0 {
		d := DefaultParams()
		if p.MemoryKiB == 0 {
			p.MemoryKiB = d.MemoryKiB
		}
		if p.Time == 0 {
			p.Time = d.Time
		}
		if p.Parallelism == 0 {
			p.Parallelism = d.Parallelism
		}
	}
	return &Hasher{params: p}
}

// Hash produces a self-describing digest of the form
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key> (base64, no padding).
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credentials: salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.MemoryKiB, h.params.Time, h.params.Parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(key)), nil
}

// Verify reports whether plaintext matches the stored digest. Cost factors are
// read out of the digest itself so stored hashes survive parameter changes.
// An unusable (burned) digest never verifies.
func (h *Hasher) Verify(digest, plaintext string) (bool, error) {
	if digest == "" || strings.HasPrefix(digest, unusable) {
		return false, nil
	}
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedDigest
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrMalformedDigest
	}
	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false, ErrMalformedDigest
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedDigest
	}
	want, err := enc.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedDigest
	}
	got := argon2.IDKey([]byte(plaintext), salt, iters, mem, par, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// UnusableDigest returns a digest no password can ever match. Used to burn
// single-use temporary passwords after their first successful login.
func (h *Hasher) UnusableDigest() string {
	return unusable + "burned"
}
