package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
)

const selectUserColumns = `
		SELECT id, email, password_hash, name, role, is_verified, last_login_at,
		       verification_code, verification_code_expires_at, reset_token, reset_token_expires_at,
		       pending_email, pending_email_code, pending_email_expires_at,
		       phone, gender, dob, location, created_at, updated_at
		FROM users`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. A clash on the unique email index yields ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, is_verified, verification_code, verification_code_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.IsVerified,
		user.VerificationCode,
		user.VerificationCodeExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE email = ?`, email)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	return r.findOne(ctx, selectUserColumns+` WHERE id = ?`, id)
}

// FindByVerificationCode only matches codes that have not expired at now.
func (r *UserRepository) FindByVerificationCode(ctx context.Context, code string, now time.Time) (*entity.User, error) {
	query := selectUserColumns + ` WHERE verification_code = ? AND verification_code_expires_at > ? LIMIT 1`
	return r.findOne(ctx, query, code, now)
}

// FindByResetToken only matches tokens that have not expired at now.
func (r *UserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*entity.User, error) {
	query := selectUserColumns + ` WHERE reset_token = ? AND reset_token_expires_at > ? LIMIT 1`
	return r.findOne(ctx, query, tokenHash, now)
}

// MarkVerified flips is_verified and clears the code in one conditional write.
// It reports false when the code was already consumed or has expired.
func (r *UserRepository) MarkVerified(ctx context.Context, id, code string, now time.Time) (bool, error) {
	query := `
		UPDATE users SET
			is_verified = 1,
			verification_code = NULL,
			verification_code_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND verification_code = ? AND verification_code_expires_at > ?
	`
	return r.execConditional(ctx, query, now, id, code, now)
}

func (r *UserRepository) SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error {
	query := `
		UPDATE users SET
			verification_code = ?,
			verification_code_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, code, expiresAt, time.Now(), id)
	return err
}

func (r *UserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users SET
			reset_token = ?,
			reset_token_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, tokenHash, expiresAt, time.Now(), id)
	return err
}

// ResetPassword stores the new hash and clears the reset token, provided the
// token is still the current one and unexpired.
func (r *UserRepository) ResetPassword(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	query := `
		UPDATE users SET
			password_hash = ?,
			reset_token = NULL,
			reset_token_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND reset_token = ? AND reset_token_expires_at > ?
	`
	return r.execConditional(ctx, query, passwordHash, now, id, tokenHash, now)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, lastLogin time.Time) error {
	query := `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, lastLogin, lastLogin, id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	return err
}

// SetPendingEmailChange replaces any earlier pending request.
func (r *UserRepository) SetPendingEmailChange(ctx context.Context, id, email, code string, expiresAt time.Time) error {
	query := `
		UPDATE users SET
			pending_email = ?,
			pending_email_code = ?,
			pending_email_expires_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, email, code, expiresAt, time.Now(), id)
	return err
}

// ConfirmEmailChange swaps the email to the pending one when both the address
// and the code match an unexpired request.
func (r *UserRepository) ConfirmEmailChange(ctx context.Context, id, email, code string, now time.Time) (bool, error) {
	query := `
		UPDATE users SET
			email = pending_email,
			pending_email = NULL,
			pending_email_code = NULL,
			pending_email_expires_at = NULL,
			updated_at = ?
		WHERE id = ? AND pending_email = ? AND pending_email_code = ? AND pending_email_expires_at > ?
	`
	ok, err := r.execConditional(ctx, query, now, id, email, code, now)
	if isDuplicateEntry(err) {
		return false, ErrDuplicateEmail
	}
	return ok, err
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id, name string, profile entity.Profile) error {
	query := `
		UPDATE users SET
			name = ?,
			phone = ?,
			gender = ?,
			dob = ?,
			location = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		name,
		profile.Phone,
		profile.Gender,
		profile.DOB,
		profile.Location,
		time.Now(),
		id,
	)
	return err
}

// UpdateRole is only reachable from the operator CLI.
func (r *UserRepository) UpdateRole(ctx context.Context, email, role string) (bool, error) {
	query := `UPDATE users SET role = ?, updated_at = ? WHERE email = ?`
	return r.execConditional(ctx, query, role, time.Now(), email)
}

func (r *UserRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.execConditional(ctx, `DELETE FROM users WHERE id = ?`, id)
}

func (r *UserRepository) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*entity.User, error) {
	user := &entity.User{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.Role,
		&user.IsVerified,
		&user.LastLoginAt,
		&user.VerificationCode,
		&user.VerificationCodeExpiresAt,
		&user.ResetToken,
		&user.ResetTokenExpiresAt,
		&user.PendingEmail,
		&user.PendingEmailCode,
		&user.PendingEmailExpiresAt,
		&user.Profile.Phone,
		&user.Profile.Gender,
		&user.Profile.DOB,
		&user.Profile.Location,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
