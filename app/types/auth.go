package types

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their json name so error payloads match the request body.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return strings.SplitN(field.Tag.Get("param"), ",", 2)[0]
		}
		return name
	})
	return v
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,max=120"`
}

func NewSignupRequestFromContext(ctx echo.Context) (*SignupRequest, error) {
	var body SignupRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *SignupRequest) Validate() error {
	return validate.Struct(r)
}

type VerifyEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func NewVerifyEmailRequestFromContext(ctx echo.Context) (*VerifyEmailRequest, error) {
	var body VerifyEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *VerifyEmailRequest) Validate() error {
	return validate.Struct(r)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func NewForgotPasswordRequestFromContext(ctx echo.Context) (*ForgotPasswordRequest, error) {
	var body ForgotPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ForgotPasswordRequest) Validate() error {
	return validate.Struct(r)
}

// ResetPasswordRequest takes the token from the path and the password from the body.
type ResetPasswordRequest struct {
	Token    string `json:"-" param:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func NewResetPasswordRequestFromContext(ctx echo.Context) (*ResetPasswordRequest, error) {
	var body ResetPasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.Token = ctx.Param("token")

	return &body, nil
}

func (r *ResetPasswordRequest) Validate() error {
	return validate.Struct(r)
}

type ReauthRequest struct {
	Password string `json:"password" validate:"required"`
}

func NewReauthRequestFromContext(ctx echo.Context) (*ReauthRequest, error) {
	var body ReauthRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ReauthRequest) Validate() error {
	return validate.Struct(r)
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current" validate:"required"`
	NewPassword     string `json:"new" validate:"required"`
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	var body ChangePasswordRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ChangePasswordRequest) Validate() error {
	return validate.Struct(r)
}

type RequestEmailChangeRequest struct {
	NewEmail string `json:"newEmail" validate:"required,email"`
}

func NewRequestEmailChangeRequestFromContext(ctx echo.Context) (*RequestEmailChangeRequest, error) {
	var body RequestEmailChangeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *RequestEmailChangeRequest) Validate() error {
	return validate.Struct(r)
}

type ConfirmEmailChangeRequest struct {
	NewEmail string `json:"newEmail" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

func NewConfirmEmailChangeRequestFromContext(ctx echo.Context) (*ConfirmEmailChangeRequest, error) {
	var body ConfirmEmailChangeRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *ConfirmEmailChangeRequest) Validate() error {
	return validate.Struct(r)
}

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

func NewDeleteAccountRequestFromContext(ctx echo.Context) (*DeleteAccountRequest, error) {
	var body DeleteAccountRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *DeleteAccountRequest) Validate() error {
	return validate.Struct(r)
}

type UpdateProfileRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Gender   string `json:"gender" validate:"omitempty,max=32"`
	DOB      string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Location string `json:"location" validate:"omitempty,max=255"`
}

func NewUpdateProfileRequestFromContext(ctx echo.Context) (*UpdateProfileRequest, error) {
	var body UpdateProfileRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *UpdateProfileRequest) Validate() error {
	return validate.Struct(r)
}
