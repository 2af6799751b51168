package model

import "time"

// TokenIDLength is the length of an encoded access token id.
const TokenIDLength = 64

// AccessToken is an opaque credential issued to a client. The ID is the only
// secret; it is generated at creation and never changes.
type AccessToken struct {
	ID      string    `json:"id" db:"id"`
	TTL     *int64    `json:"ttl,omitempty" db:"ttl"` // seconds, nil = never expires
	UserID  string    `json:"user_id,omitempty" db:"user_id"`
	AppID   string    `json:"app_id,omitempty" db:"app_id"`
	Created time.Time `json:"created" db:"created"`
}

// ExpiresAt returns the instant after which the token is no longer valid, and
// false if the token has no ttl.
func (t *AccessToken) ExpiresAt() (time.Time, bool) {
	if t.TTL == nil {
		return time.Time{}, false
	}
	return t.Created.Add(time.Duration(*t.TTL) * time.Second), true
}

// ExpiredAt reports whether the token is past its ttl at the given time.
func (t *AccessToken) ExpiredAt(now time.Time) bool {
	exp, ok := t.ExpiresAt()
	return ok && now.After(exp)
}
