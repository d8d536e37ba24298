package middleware

import (
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-parish-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-parish-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenCookie  = "token"
	RefreshTokenCookie = "refreshToken"

	identityKey = "identity"
)

// Identity is the authenticated caller attached to the request by RequireAuth.
type Identity struct {
	UserID string
}

type accessTokenVerifier interface {
	Verify(tokenString string, kind service.TokenKind) (*service.Claims, error)
}

type AuthMiddleware struct {
	tokens accessTokenVerifier
}

func NewAuthMiddleware(tokens accessTokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth only checks the access-token cookie; it never loads the user.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(AccessTokenCookie)
		if err != nil || cookie.Value == "" {
			logrus.Debug("Missing access token cookie")
			return unauthorized(c, "no token", false)
		}

		claims, err := m.tokens.Verify(cookie.Value, service.AccessToken)
		if errors.Is(err, service.ErrTokenExpired) {
			logrus.Debug("Expired access token")
			return unauthorized(c, "token expired", true)
		}
		if err != nil {
			logrus.Debug("Invalid access token")
			return unauthorized(c, "invalid token", false)
		}

		c.Set(identityKey, &Identity{UserID: claims.UserID})

		return next(c)
	}
}

// IdentityFrom returns the caller set by RequireAuth.
func IdentityFrom(c echo.Context) (*Identity, bool) {
	identity, ok := c.Get(identityKey).(*Identity)
	return identity, ok && identity != nil && identity.UserID != ""
}

func unauthorized(c echo.Context, message string, expired bool) error {
	return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{
		Envelope:     httpdto.Failure(message),
		Kind:         string(service.KindUnauthorized),
		TokenExpired: expired,
	})
}
