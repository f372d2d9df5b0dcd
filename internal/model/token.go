package model

import "time"

// TokenTypeRefresh marks single-use session refresh tokens.
const TokenTypeRefresh = "refresh"

// Token is a persisted one-time credential. Only the SHA-256 digest of the
// secret handed to the client is stored.
type Token struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	Type      string     `db:"type"`
	TokenHash string     `db:"token_hash"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}
