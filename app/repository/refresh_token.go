package repository

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
)

type RefreshTokenRepository struct {
	db DBTX
}

func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *entity.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token_id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// DeleteByID removes one issued token. Zero rows means it was already rotated
// or revoked, which callers treat as an invalid token.
func (r *RefreshTokenRepository) DeleteByID(ctx context.Context, tokenID, userID string) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE token_id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, query, tokenID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) error {
	query := `DELETE FROM refresh_tokens WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at <= ?`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
