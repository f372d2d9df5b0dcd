package repository

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/soberly/recovery/internal/model"
)

var ErrTokenNotFound = errors.New("token not found")

type TokenRepository interface {
	Create(userID, tokenType, secret string, expiresAt time.Time) error
	Consume(secret, tokenType string) (*model.Token, error)
	RevokeAll(userID, tokenType string) error
	Prune(olderThan time.Duration) (int64, error)
}

type tokenRepository struct {
	db *sqlx.DB
}

func NewTokenRepository(db *sqlx.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (r *tokenRepository) Create(userID, tokenType, secret string, expiresAt time.Time) error {
	query := `
		INSERT INTO tokens (id, user_id, type, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(query,
		uuid.New().String(),
		userID,
		tokenType,
		hashSecret(secret),
		expiresAt.UTC(),
		time.Now().UTC(),
	)
	return err
}

// Consume marks a live token as used in a single statement, so concurrent
// callers presenting the same secret cannot both succeed.
func (r *tokenRepository) Consume(secret, tokenType string) (*model.Token, error) {
	now := time.Now().UTC()
	query := `
		UPDATE tokens
		SET used_at = $1
		WHERE token_hash = $2
		AND type = $3
		AND used_at IS NULL
		AND expires_at > $1
		RETURNING id, user_id, type, token_hash, expires_at, used_at, created_at
	`

	var t model.Token
	err := r.db.Get(&t, query, now, hashSecret(secret), tokenType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RevokeAll invalidates every unused token of tokenType held by the user.
func (r *tokenRepository) RevokeAll(userID, tokenType string) error {
	_, err := r.db.Exec(`DELETE FROM tokens WHERE user_id = $1 AND type = $2 AND used_at IS NULL`, userID, tokenType)
	return err
}

// Prune deletes tokens that were used or expired before now minus olderThan.
func (r *tokenRepository) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.Exec(`
		DELETE FROM tokens
		WHERE (used_at IS NOT NULL AND used_at < $1)
		   OR expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
