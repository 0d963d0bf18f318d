package sessions

import "time"

// Claims is the authorization-relevant snapshot of a user taken when the
// session is minted. It is deliberately NOT live-joined against the user
// directory on later reads; revocation is the only early re-sync path.
type Claims struct {
	Username            string   `json:"username"`
	Email               string   `json:"email"`
	Roles               []string `json:"roles"`
	Permissions         []string `json:"permissions"`
	ForcePasswordChange bool     `json:"forcePasswordChange"`
	TotpEnabled         bool     `json:"totpEnabled"`
}

// Record is a short-lived proof of authentication stored in Redis.
type Record struct {
	SID       string    `json:"sid"`
	UserID    string    `json:"userId"`
	Claims    Claims    `json:"claims"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	// ParentRID is the refresh id this session is paired with: the login rid
	// or, after a rotation, the successor rid.
	ParentRID string `json:"parentRid,omitempty"`
}
