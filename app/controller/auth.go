package controller

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-parish-auth/app/dto/http"
	"github.com/vibast-solutions/ms-go-parish-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-parish-auth/app/service"
	"github.com/vibast-solutions/ms-go-parish-auth/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	authService service.AuthService
	sessions    *SessionBinder
	// exposeErrors adds internal error detail to 5xx bodies outside production.
	exposeErrors bool
}

func NewAuthController(authService service.AuthService, sessions *SessionBinder, exposeErrors bool) *AuthController {
	return &AuthController{
		authService:  authService,
		sessions:     sessions,
		exposeErrors: exposeErrors,
	}
}

func (c *AuthController) Signup(ctx echo.Context) error {
	req, err := types.NewSignupRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "signup")
	}

	logrus.WithField("email", req.Email).Info("Signup request received")
	result, err := c.authService.Signup(ctx.Request().Context(), req)
	if err != nil {
		return c.fail(ctx, err, "Signup failed", logrus.Fields{"email": req.Email})
	}

	c.sessions.Attach(ctx, result.Session)
	logrus.WithField("user_id", result.User.ID).Info("User signed up")
	return ctx.JSON(http.StatusCreated, httpdto.UserResponse{
		Envelope: httpdto.OK("User created successfully"),
		User:     httpdto.NewUserPayload(result.User),
	})
}

func (c *AuthController) VerifyEmail(ctx echo.Context) error {
	req, err := types.NewVerifyEmailRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "verify email")
	}

	user, err := c.authService.VerifyEmail(ctx.Request().Context(), req)
	if err != nil {
		return c.fail(ctx, err, "Verify email failed", nil)
	}

	logrus.WithField("user_id", user.ID).Info("Email verified")
	return ctx.JSON(http.StatusOK, httpdto.UserResponse{
		Envelope: httpdto.OK("Email verified successfully"),
		User:     httpdto.NewUserPayload(user),
	})
}

func (c *AuthController) ResendVerification(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Resend verification failed", nil)
	}

	if err := c.authService.ResendVerification(ctx.Request().Context(), userID); err != nil {
		return c.fail(ctx, err, "Resend verification failed", logrus.Fields{"user_id": userID})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Verification code sent")})
}

func (c *AuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "login")
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	result, err := c.authService.Login(ctx.Request().Context(), req)
	if err != nil {
		return c.fail(ctx, err, "Login failed", logrus.Fields{"email": req.Email})
	}

	c.sessions.Attach(ctx, result.Session)
	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.UserResponse{
		Envelope: httpdto.OK("Logged in successfully"),
		User:     httpdto.NewUserPayload(result.User),
	})
}

// Logout always succeeds, even without a session.
func (c *AuthController) Logout(ctx echo.Context) error {
	c.authService.Logout(ctx.Request().Context(), c.sessions.RefreshToken(ctx))
	c.sessions.Clear(ctx)

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Logged out successfully")})
}

func (c *AuthController) RefreshToken(ctx echo.Context) error {
	result, err := c.authService.Refresh(ctx.Request().Context(), c.sessions.RefreshToken(ctx))
	if err != nil {
		c.sessions.Clear(ctx)
		return c.fail(ctx, err, "Refresh token failed", nil)
	}

	c.sessions.Attach(ctx, result.Session)
	logrus.WithField("user_id", result.User.ID).Info("Session refreshed")
	return ctx.JSON(http.StatusOK, httpdto.RefreshResponse{
		Envelope:     httpdto.OK("Token refreshed successfully"),
		User:         httpdto.NewUserPayload(result.User),
		AccessToken:  result.Session.AccessToken,
		RefreshToken: result.Session.RefreshToken,
	})
}

func (c *AuthController) ForgotPassword(ctx echo.Context) error {
	req, err := types.NewForgotPasswordRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "forgot password")
	}

	logrus.WithField("email", req.Email).Info("Forgot password request received")
	if err = c.authService.ForgotPassword(ctx.Request().Context(), req); err != nil {
		return c.fail(ctx, err, "Forgot password failed", logrus.Fields{"email": req.Email})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Password reset link sent to your email")})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	req, err := types.NewResetPasswordRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "reset password")
	}

	if err = c.authService.ResetPassword(ctx.Request().Context(), req); err != nil {
		return c.fail(ctx, err, "Reset password failed", nil)
	}

	logrus.Info("Password reset")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Password reset successful")})
}

func (c *AuthController) CheckAuth(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Check auth failed", nil)
	}

	user, err := c.authService.CurrentUser(ctx.Request().Context(), userID)
	if err != nil {
		return c.fail(ctx, err, "Check auth failed", logrus.Fields{"user_id": userID})
	}

	return ctx.JSON(http.StatusOK, httpdto.UserResponse{
		Envelope: httpdto.OK("Authenticated"),
		User:     httpdto.NewUserPayload(user),
	})
}

func (c *AuthController) Reauth(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Reauth failed", nil)
	}
	req, err := types.NewReauthRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "reauth")
	}

	if err = c.authService.Reauth(ctx.Request().Context(), userID, req); err != nil {
		return c.fail(ctx, err, "Reauth failed", logrus.Fields{"user_id": userID})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Password confirmed")})
}

func (c *AuthController) ChangePassword(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Change password failed", nil)
	}
	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "change password")
	}

	session, err := c.authService.ChangePassword(ctx.Request().Context(), userID, req)
	if err != nil {
		return c.fail(ctx, err, "Change password failed", logrus.Fields{"user_id": userID})
	}

	c.sessions.Attach(ctx, session)
	logrus.WithField("user_id", userID).Info("Password changed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Password changed successfully")})
}

func (c *AuthController) RequestEmailChange(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Email change request failed", nil)
	}
	req, err := types.NewRequestEmailChangeRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "email change request")
	}

	if err = c.authService.RequestEmailChange(ctx.Request().Context(), userID, req); err != nil {
		return c.fail(ctx, err, "Email change request failed", logrus.Fields{"user_id": userID})
	}

	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Verification code sent to the new email")})
}

func (c *AuthController) ConfirmEmailChange(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Email change confirmation failed", nil)
	}
	req, err := types.NewConfirmEmailChangeRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "email change confirmation")
	}

	user, err := c.authService.ConfirmEmailChange(ctx.Request().Context(), userID, req)
	if err != nil {
		return c.fail(ctx, err, "Email change confirmation failed", logrus.Fields{"user_id": userID})
	}

	logrus.WithField("user_id", userID).Info("Email changed")
	return ctx.JSON(http.StatusOK, httpdto.UserResponse{
		Envelope: httpdto.OK("Email updated successfully"),
		User:     httpdto.NewUserPayload(user),
	})
}

func (c *AuthController) DeleteAccount(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Delete account failed", nil)
	}
	req, err := types.NewDeleteAccountRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "delete account")
	}

	if err = c.authService.DeleteAccount(ctx.Request().Context(), userID, req); err != nil {
		return c.fail(ctx, err, "Delete account failed", logrus.Fields{"user_id": userID})
	}

	c.sessions.Clear(ctx)
	logrus.WithField("user_id", userID).Info("Account deleted")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Envelope: httpdto.OK("Account deleted successfully")})
}

func (c *AuthController) UpdateProfile(ctx echo.Context) error {
	userID, ok := c.callerID(ctx)
	if !ok {
		return c.fail(ctx, service.ErrUnauthorized, "Update profile failed", nil)
	}
	req, err := types.NewUpdateProfileRequestFromContext(ctx)
	if err != nil {
		return c.badBody(ctx, err, "update profile")
	}

	user, err := c.authService.UpdateProfile(ctx.Request().Context(), userID, req)
	if err != nil {
		return c.fail(ctx, err, "Update profile failed", logrus.Fields{"user_id": userID})
	}

	return ctx.JSON(http.StatusOK, httpdto.UserResponse{
		Envelope: httpdto.OK("Profile updated successfully"),
		User:     httpdto.NewUserPayload(user),
	})
}

func (c *AuthController) callerID(ctx echo.Context) (string, bool) {
	identity, ok := middleware.IdentityFrom(ctx)
	if !ok {
		logrus.Warn("Missing identity in context")
		return "", false
	}
	return identity.UserID, true
}

func (c *AuthController) badBody(ctx echo.Context, err error, operation string) error {
	logrus.WithError(err).Debugf("Failed to bind %s request", operation)
	return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{
		Envelope: httpdto.Failure("invalid request body"),
		Kind:     string(service.KindValidation),
	})
}

func (c *AuthController) fail(ctx echo.Context, err error, logMessage string, fields logrus.Fields) error {
	svcErr := service.AsError(err)
	status := statusForKind(svcErr.Kind)

	entry := logrus.WithFields(fields).WithField("kind", svcErr.Kind)
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error(logMessage)
	} else {
		entry.Warn(logMessage)
	}

	resp := httpdto.ErrorResponse{
		Envelope: httpdto.Failure(svcErr.Message),
		Kind:     string(svcErr.Kind),
		Field:    svcErr.Field,
	}
	if c.exposeErrors && status >= http.StatusInternalServerError && svcErr.Err != nil {
		resp.Error = svcErr.Err.Error()
	}
	return ctx.JSON(status, resp)
}

func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindValidation,
		service.KindDuplicateEmail,
		service.KindInvalidOrExpiredCode,
		service.KindInvalidOrExpiredToken:
		return http.StatusBadRequest
	case service.KindInvalidCredentials, service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
