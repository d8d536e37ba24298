package http

import (
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
)

const dateLayout = "2006-01-02"

// Envelope is embedded in every response body.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UserPayload struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	IsVerified  bool       `json:"isVerified"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DOB         string     `json:"dob,omitempty"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewUserPayload renders a user without any credential or code material.
func NewUserPayload(user *entity.User) *UserPayload {
	if user == nil {
		return nil
	}

	payload := &UserPayload{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		Phone:      user.Profile.Phone.String,
		Gender:     user.Profile.Gender.String,
		Location:   user.Profile.Location.String,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
	if user.LastLoginAt.Valid {
		lastLogin := user.LastLoginAt.Time
		payload.LastLoginAt = &lastLogin
	}
	if user.Profile.DOB.Valid {
		payload.DOB = user.Profile.DOB.Time.Format(dateLayout)
	}
	return payload
}

type MessageResponse struct {
	Envelope
}

type UserResponse struct {
	Envelope
	User *UserPayload `json:"user"`
}

// RefreshResponse also returns the tokens for clients that cannot read cookies.
type RefreshResponse struct {
	Envelope
	User         *UserPayload `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type HealthResponse struct {
	Envelope
	Status string `json:"status"`
}

type ErrorResponse struct {
	Envelope
	Kind         string `json:"kind,omitempty"`
	Field        string `json:"field,omitempty"`
	TokenExpired bool   `json:"tokenExpired,omitempty"`
	Error        string `json:"error,omitempty"`
}

func OK(message string) Envelope {
	return Envelope{Success: true, Message: message}
}

func Failure(message string) Envelope {
	return Envelope{Success: false, Message: message}
}
