package dto

import "github.com/vibast-solutions/ms-go-parish-auth/app/entity"

// Session is the token pair bound to cookies after a successful auth operation.
type Session struct {
	AccessToken  string
	RefreshToken string
}

type AuthResult struct {
	User    *entity.User
	Session *Session
}
