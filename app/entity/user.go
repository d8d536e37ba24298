package entity

import (
	"database/sql"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID                        string
	Email                     string
	PasswordHash              string
	Name                      string
	Role                      string
	IsVerified                bool
	LastLoginAt               sql.NullTime
	VerificationCode          sql.NullString
	VerificationCodeExpiresAt sql.NullTime
	ResetToken                sql.NullString
	ResetTokenExpiresAt       sql.NullTime
	PendingEmail              sql.NullString
	PendingEmailCode          sql.NullString
	PendingEmailExpiresAt     sql.NullTime
	Profile                   Profile
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Profile holds the co-resident fields that do not take part in authentication.
type Profile struct {
	Phone    sql.NullString
	Gender   sql.NullString
	DOB      sql.NullTime
	Location sql.NullString
}

type RefreshToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
