package model

import "time"

// TokenState holds the persisted OAuth credentials for the marketplace.
// There is a single instance, stored in the property repository and
// refreshed in place; last writer wins across invocations.
type TokenState struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch milliseconds
}

// ExpiresWithin reports whether the access token expires inside the
// given buffer from now.
func (t TokenState) ExpiresWithin(buffer time.Duration) bool {
	return time.Now().Add(buffer).UnixMilli() >= t.ExpiresAt
}
