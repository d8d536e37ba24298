package controller

import (
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/dto"
	"github.com/vibast-solutions/ms-go-parish-auth/app/middleware"

	"github.com/labstack/echo/v4"
)

// SessionBinder moves token pairs between responses and cookies. Cookies are
// the only place tokens travel, apart from the refresh endpoint body.
type SessionBinder struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionBinder(secure bool, accessTTL, refreshTTL time.Duration) *SessionBinder {
	return &SessionBinder{
		secure:     secure,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (b *SessionBinder) Attach(ctx echo.Context, session *dto.Session) {
	if session == nil {
		return
	}
	ctx.SetCookie(b.cookie(middleware.AccessTokenCookie, session.AccessToken, b.accessTTL))
	ctx.SetCookie(b.cookie(middleware.RefreshTokenCookie, session.RefreshToken, b.refreshTTL))
}

func (b *SessionBinder) Clear(ctx echo.Context) {
	for _, name := range []string{middleware.AccessTokenCookie, middleware.RefreshTokenCookie} {
		cookie := b.cookie(name, "", 0)
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		ctx.SetCookie(cookie)
	}
}

func (b *SessionBinder) RefreshToken(ctx echo.Context) string {
	cookie, err := ctx.Cookie(middleware.RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (b *SessionBinder) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   b.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
