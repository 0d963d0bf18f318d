package refresh

import (
	"strconv"
	"time"
)

// Record is a long-lived, single-use-per-rotation credential stored as a Redis
// hash. The rotation bookkeeping fields (Poisoned, RotatedTo, RotatedAt) are
// managed exclusively by the rotate script and never exposed to HTTP callers.
type Record struct {
	RID           string
	UserID        string
	RememberMe    bool
	UAHash        string
	IPHint        string
	CreatedAt     time.Time
	LastUsedAt    time.Time
	AbsoluteExpAt time.Time
	Poisoned      bool
	RotatedTo     string
	RotatedAt     time.Time
}

func (r *Record) fields() map[string]interface{} {
	return map[string]interface{}{
		"rid":             r.RID,
		"user_id":         r.UserID,
		"remember_me":     boolField(r.RememberMe),
		"ua_hash":         r.UAHash,
		"ip_hint":         r.IPHint,
		"created_at":      r.CreatedAt.Unix(),
		"last_used_at":    r.LastUsedAt.Unix(),
		"absolute_exp_at": r.AbsoluteExpAt.Unix(),
		"poisoned":        boolField(r.Poisoned),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseRecord(m map[string]string) *Record {
	if len(m) == 0 {
		return nil
	}
	return &Record{
		RID:           m["rid"],
		UserID:        m["user_id"],
		RememberMe:    m["remember_me"] == "1",
		UAHash:        m["ua_hash"],
		IPHint:        m["ip_hint"],
		CreatedAt:     unixField(m["created_at"]),
		LastUsedAt:    unixField(m["last_used_at"]),
		AbsoluteExpAt: unixField(m["absolute_exp_at"]),
		Poisoned:      m["poisoned"] == "1",
		RotatedTo:     m["rotated_to"],
		RotatedAt:     unixField(m["rotated_at"]),
	}
}

func unixField(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
