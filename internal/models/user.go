package models

import "time"

// User represents an administrative account in the user directory.
type User struct {
	ID                   string     `bson:"_id,omitempty" json:"id"`
	Username             string     `bson:"username" json:"username"`
	Email                string     `bson:"email" json:"email"`
	PasswordHash         string     `bson:"passwordHash" json:"-"`
	Roles                []string   `bson:"roles" json:"roles"`
	Permissions          []string   `bson:"permissions" json:"permissions"`
	Active               bool       `bson:"active" json:"active"`
	ForcePasswordChange  bool       `bson:"forcePasswordChange" json:"forcePasswordChange"`
	TempPasswordIssuedAt *time.Time `bson:"tempPasswordIssuedAt,omitempty" json:"-"`
	TotpSecret           string     `bson:"totpSecret,omitempty" json:"-"`
	TotpEnabled          bool       `bson:"totpEnabled" json:"totpEnabled"`
	LastLoginAt          *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
	CreatedAt            time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// HasActiveTempPassword reports whether the account currently carries an
// unconsumed temporary password issued by an administrator.
func (u *User) HasActiveTempPassword() bool {
	return u.ForcePasswordChange && u.TempPasswordIssuedAt != nil
}
