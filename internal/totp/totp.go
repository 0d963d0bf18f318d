package totp

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devcoons/software-governance-sub000/internal/models"
)

const (
	secretBytes = 20
	digits      = 6
	period      = 30
	skewSteps   = 1
)

var (
	ErrNoSecret    = errors.New("totp: no secret enrolled")
	ErrInvalidCode = errors.New("totp: invalid code")
)

// Directory is the slice of the user directory the verifier needs.
type Directory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	GetTotpSecret(ctx context.Context, id string) (string, error)
	UpsertTotpSecret(ctx context.Context, id, secret string) error
	SetTotpEnabled(ctx context.Context, id string) error
}

// Provisioning describes a user's second-factor enrollment state.
type Provisioning struct {
	Enabled    bool   `json:"enabled"`
	Account    string `json:"account"`
	OtpauthURL string `json:"otpauthUrl"`
}

// Verifier generates and validates RFC 6238 time-based one-time codes bound
// to a user, persisting secrets through the user directory.
type Verifier struct {
	dir    Directory
	issuer string
	now    func() time.Time
}

func NewVerifier(dir Directory, issuer string) *Verifier {
	if issuer == "" {
		issuer = "Software Governance"
	}
	return &Verifier{dir: dir, issuer: issuer, now: time.Now}
}

// GetOrCreateURI returns the provisioning URI for the user's secret, creating
// the secret lazily on first call. Repeated calls never rotate an existing
// secret: an authenticator app that already scanned the QR must stay in sync.
func (v *Verifier) GetOrCreateURI(ctx context.Context, userID string) (*Provisioning, error) {
	u, err := v.dir.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNoSecret
	}
	secret := u.TotpSecret
	if secret == "" {
		secret, err = generateSecret()
		if err != nil {
			return nil, err
		}
		if err := v.dir.UpsertTotpSecret(ctx, userID, secret); err != nil {
			return nil, err
		}
	}
	account := u.Email
	if account == "" {
		account = u.Username
	}
	return &Provisioning{
		Enabled:    u.TotpEnabled,
		Account:    account,
		OtpauthURL: v.otpauthURL(secret, account),
	}, nil
}

// Verify checks a 6-digit code against the user's stored secret, allowing one
// period of clock skew either side. The first successful verification is the
// enrollment-completion event: it flips the account's TOTP-enabled flag.
func (v *Verifier) Verify(ctx context.Context, userID, code string) error {
	secret, err := v.dir.GetTotpSecret(ctx, userID)
	if err != nil {
		return err
	}
	if secret == "" {
		return ErrNoSecret
	}
	if !verifyCode(secret, code, v.now().UTC()) {
		return ErrInvalidCode
	}
	u, err := v.dir.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u != nil && !u.TotpEnabled {
		if err := v.dir.SetTotpEnabled(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

func generateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// normalizeCode strips everything that is not a digit from client input.
func normalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func verifyCode(secret, code string, now time.Time) bool {
	code = normalizeCode(code)
	if len(code) != digits {
		return false
	}
	for i := -skewSteps; i <= skewSteps; i++ {
		at := now.Add(time.Duration(i*period) * time.Second)
		expected, err := codeAt(secret, at)
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

func codeAt(secret string, at time.Time) (string, error) {
	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", err
	}

	counter := uint64(at.Unix() / period)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, decoded)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	binCode := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", binCode%1000000), nil
}

func (v *Verifier) otpauthURL(secret, account string) string {
	label := url.PathEscape(v.issuer + ":" + account)
	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", v.issuer)
	values.Set("algorithm", "SHA1")
	values.Set("digits", strconv.Itoa(digits))
	values.Set("period", strconv.Itoa(period))
	return "otpauth://totp/" + label + "?" + values.Encode()
}
