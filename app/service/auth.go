package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/dto"
	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
	"github.com/vibast-solutions/ms-go-parish-auth/app/repository"
	"github.com/vibast-solutions/ms-go-parish-auth/app/types"
	"github.com/vibast-solutions/ms-go-parish-auth/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	notificationTimeout = 10 * time.Second
	dateLayout          = "2006-01-02"
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByVerificationCode(ctx context.Context, code string, now time.Time) (*entity.User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*entity.User, error)
	MarkVerified(ctx context.Context, id, code string, now time.Time) (bool, error)
	SetVerificationCode(ctx context.Context, id, code string, expiresAt time.Time) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, lastLogin time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetPendingEmailChange(ctx context.Context, id, email, code string, expiresAt time.Time) error
	ConfirmEmailChange(ctx context.Context, id, email, code string, now time.Time) (bool, error)
	UpdateProfile(ctx context.Context, id, name string, profile entity.Profile) error
	Delete(ctx context.Context, id string) (bool, error)
}

type refreshTokenRepository interface {
	Create(ctx context.Context, token *entity.RefreshToken) error
	DeleteByID(ctx context.Context, tokenID, userID string) (int64, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

type AuthService interface {
	Signup(ctx context.Context, req *types.SignupRequest) (*dto.AuthResult, error)
	VerifyEmail(ctx context.Context, req *types.VerifyEmailRequest) (*entity.User, error)
	ResendVerification(ctx context.Context, userID string) error
	Login(ctx context.Context, req *types.LoginRequest) (*dto.AuthResult, error)
	Logout(ctx context.Context, refreshToken string)
	Refresh(ctx context.Context, refreshToken string) (*dto.AuthResult, error)
	ForgotPassword(ctx context.Context, req *types.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error
	CurrentUser(ctx context.Context, userID string) (*entity.User, error)
	Reauth(ctx context.Context, userID string, req *types.ReauthRequest) error
	ChangePassword(ctx context.Context, userID string, req *types.ChangePasswordRequest) (*dto.Session, error)
	RequestEmailChange(ctx context.Context, userID string, req *types.RequestEmailChangeRequest) error
	ConfirmEmailChange(ctx context.Context, userID string, req *types.ConfirmEmailChangeRequest) (*entity.User, error)
	DeleteAccount(ctx context.Context, userID string, req *types.DeleteAccountRequest) error
	UpdateProfile(ctx context.Context, userID string, req *types.UpdateProfileRequest) (*entity.User, error)
}

type AsyncRunner func(task func())

type AuthServiceOption func(*authService)

type authService struct {
	userRepo         userRepository
	refreshTokenRepo refreshTokenRepository
	tokens           *TokenService
	hasher           *PasswordHasher
	notifier         Notifier
	cfg              *config.Config
	asyncRunner      AsyncRunner
	now              func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	userRepo userRepository,
	refreshTokenRepo refreshTokenRepository,
	tokens *TokenService,
	hasher *PasswordHasher,
	notifier Notifier,
	cfg *config.Config,
	opts ...AuthServiceOption,
) AuthService {
	svc := &authService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		tokens:           tokens,
		hasher:           hasher,
		notifier:         notifier,
		cfg:              cfg,
		asyncRunner: func(task func()) {
			go task()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) AuthServiceOption {
	return func(s *authService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

// WithClock overrides the time source used for code and token expiry.
func WithClock(now func() time.Time) AuthServiceOption {
	return func(s *authService) {
		if now != nil {
			s.now = now
		}
	}
}

func (s *authService) Signup(ctx context.Context, req *types.SignupRequest) (*dto.AuthResult, error) {
	req.Email = NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.checkPassword("password", req.Password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, internalError(err)
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(err)
	}
	code, err := generateCode()
	if err != nil {
		return nil, internalError(err)
	}

	now := s.now()
	user := &entity.User{
		ID:                        uuid.NewString(),
		Email:                     req.Email,
		PasswordHash:              passwordHash,
		Name:                      req.Name,
		Role:                      entity.RoleUser,
		IsVerified:                false,
		VerificationCode:          sql.NullString{String: code, Valid: true},
		VerificationCodeExpiresAt: sql.NullTime{Time: now.Add(s.cfg.Codes.VerificationTTL), Valid: true},
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
	if err = s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError(err)
	}

	// The account is stored at this point; a missing session only means the
	// caller has to log in.
	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to issue session after signup")
		session = nil
	}

	to, name := user.Email, user.Name
	s.dispatch("verification_code", user.ID, func(ctx context.Context) error {
		return s.notifier.SendVerificationCode(ctx, to, name, code)
	})

	return &dto.AuthResult{User: user, Session: session}, nil
}

func (s *authService) VerifyEmail(ctx context.Context, req *types.VerifyEmailRequest) (*entity.User, error) {
	req.Code = strings.TrimSpace(req.Code)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	user, err := s.userRepo.FindByVerificationCode(ctx, req.Code, now)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredCode
	}

	ok, err := s.userRepo.MarkVerified(ctx, user.ID, req.Code, now)
	if err != nil {
		return nil, internalError(err)
	}
	if !ok {
		return nil, ErrInvalidOrExpiredCode
	}

	user.IsVerified = true
	user.VerificationCode = sql.NullString{}
	user.VerificationCodeExpiresAt = sql.NullTime{}
	user.UpdatedAt = now

	to, name := user.Email, user.Name
	s.dispatch("welcome", user.ID, func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, to, name)
	})

	return user, nil
}

func (s *authService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return validationError("", "account is already verified")
	}

	code, err := generateCode()
	if err != nil {
		return internalError(err)
	}
	if err = s.userRepo.SetVerificationCode(ctx, user.ID, code, s.now().Add(s.cfg.Codes.VerificationTTL)); err != nil {
		return internalError(err)
	}

	to, name := user.Email, user.Name
	s.dispatch("verification_code", user.ID, func(ctx context.Context) error {
		return s.notifier.SendVerificationCode(ctx, to, name, code)
	})
	return nil
}

func (s *authService) Login(ctx context.Context, req *types.LoginRequest) (*dto.AuthResult, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		// Spend the same hashing time as a real mismatch.
		s.hasher.Verify(req.Password, s.dummyPasswordHash())
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	if err = s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to update last_login")
	} else {
		user.LastLoginAt = sql.NullTime{Time: now, Valid: true}
	}

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, Session: session}, nil
}

// Logout revokes the presented refresh token when it can be identified. It never fails.
func (s *authService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := s.tokens.Verify(refreshToken, RefreshToken)
	if err != nil {
		return
	}
	if _, err = s.refreshTokenRepo.DeleteByID(ctx, claims.ID, claims.UserID); err != nil {
		logrus.WithError(err).WithField("user_id", claims.UserID).Warn("failed to revoke refresh token on logout")
	}
}

// Refresh rotates the session. The presented token is consumed, so replaying
// it after a successful rotation fails with ErrUnauthorized.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.tokens.Verify(refreshToken, RefreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return nil, ErrUnauthorized
	}

	deleted, err := s.refreshTokenRepo.DeleteByID(ctx, claims.ID, claims.UserID)
	if err != nil {
		return nil, internalError(err)
	}
	if deleted == 0 {
		logrus.WithField("user_id", claims.UserID).Warn("refresh token reuse or revoked token presented")
		return nil, ErrUnauthorized
	}

	session, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResult{User: user, Session: session}, nil
}

// ForgotPassword is the one operation whose email failure is returned to the caller.
func (s *authService) ForgotPassword(ctx context.Context, req *types.ForgotPasswordRequest) error {
	req.Email = NormalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return err
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return internalError(err)
	}
	if user == nil {
		return ErrNotFound
	}

	raw, tokenHash, err := generateResetToken()
	if err != nil {
		return internalError(err)
	}
	if err = s.userRepo.SetResetToken(ctx, user.ID, tokenHash, s.now().Add(s.cfg.Codes.ResetTTL)); err != nil {
		return internalError(err)
	}

	link := s.cfg.ClientURL + "/reset-password/" + raw
	if err = s.notifier.SendResetLink(ctx, user.Email, user.Name, link); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to send reset link")
		return &Error{Kind: KindEmailDeliveryFailed, Message: ErrEmailDeliveryFailed.Message, Err: err}
	}

	return nil
}

func (s *authService) ResetPassword(ctx context.Context, req *types.ResetPasswordRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	if err := validateRequest(req); err != nil {
		return err
	}
	if err := s.checkPassword("password", req.Password); err != nil {
		return err
	}

	now := s.now()
	tokenHash := hashResetToken(req.Token)
	user, err := s.userRepo.FindByResetToken(ctx, tokenHash, now)
	if err != nil {
		return internalError(err)
	}
	if user == nil {
		return ErrInvalidOrExpiredToken
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return internalError(err)
	}
	ok, err := s.userRepo.ResetPassword(ctx, user.ID, tokenHash, passwordHash, now)
	if err != nil {
		return internalError(err)
	}
	if !ok {
		return ErrInvalidOrExpiredToken
	}

	if err = s.refreshTokenRepo.DeleteByUserID(ctx, user.ID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to revoke sessions after password reset")
	}

	to, name := user.Email, user.Name
	s.dispatch("reset_success", user.ID, func(ctx context.Context) error {
		return s.notifier.SendResetSuccess(ctx, to, name)
	})

	return nil
}

func (s *authService) CurrentUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// Reauth confirms the caller's password without changing anything.
func (s *authService) Reauth(ctx context.Context, userID string, req *types.ReauthRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return &Error{Kind: KindInvalidCredentials, Field: "password", Message: "password is incorrect"}
	}
	return nil
}

// ChangePassword revokes every existing session and returns a fresh one for the caller.
func (s *authService) ChangePassword(ctx context.Context, userID string, req *types.ChangePasswordRequest) (*dto.Session, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		return nil, &Error{Kind: KindInvalidCredentials, Field: "current", Message: "current password is incorrect"}
	}
	if err = s.checkPassword("new", req.NewPassword); err != nil {
		return nil, err
	}
	if req.NewPassword == req.CurrentPassword {
		return nil, validationError("new", "new password must differ from the current password")
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, internalError(err)
	}
	if err = s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return nil, internalError(err)
	}
	if err = s.refreshTokenRepo.DeleteByUserID(ctx, user.ID); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to revoke sessions after password change")
	}

	return s.issueSession(ctx, user.ID)
}

func (s *authService) RequestEmailChange(ctx context.Context, userID string, req *types.RequestEmailChangeRequest) error {
	req.NewEmail = NormalizeEmail(req.NewEmail)
	if err := validateRequest(req); err != nil {
		return err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if req.NewEmail == user.Email {
		return validationError("newEmail", "new email must differ from the current email")
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.NewEmail)
	if err != nil {
		return internalError(err)
	}
	if existing != nil {
		return &Error{Kind: KindDuplicateEmail, Field: "newEmail", Message: ErrDuplicateEmail.Message}
	}

	code, err := generateCode()
	if err != nil {
		return internalError(err)
	}
	expiresAt := s.now().Add(s.cfg.Codes.EmailChangeTTL)
	if err = s.userRepo.SetPendingEmailChange(ctx, user.ID, req.NewEmail, code, expiresAt); err != nil {
		return internalError(err)
	}

	to, name := req.NewEmail, user.Name
	s.dispatch("email_change_code", user.ID, func(ctx context.Context) error {
		return s.notifier.SendEmailChangeCode(ctx, to, name, code)
	})
	return nil
}

func (s *authService) ConfirmEmailChange(ctx context.Context, userID string, req *types.ConfirmEmailChangeRequest) (*entity.User, error) {
	req.NewEmail = NormalizeEmail(req.NewEmail)
	req.Code = strings.TrimSpace(req.Code)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ok, err := s.userRepo.ConfirmEmailChange(ctx, userID, req.NewEmail, req.Code, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, &Error{Kind: KindDuplicateEmail, Field: "newEmail", Message: ErrDuplicateEmail.Message}
		}
		return nil, internalError(err)
	}
	if !ok {
		return nil, ErrInvalidOrExpiredCode
	}

	return s.CurrentUser(ctx, userID)
}

func (s *authService) DeleteAccount(ctx context.Context, userID string, req *types.DeleteAccountRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return &Error{Kind: KindInvalidCredentials, Field: "password", Message: "password is incorrect"}
	}

	if err = s.refreshTokenRepo.DeleteByUserID(ctx, user.ID); err != nil {
		return internalError(err)
	}
	if _, err = s.userRepo.Delete(ctx, user.ID); err != nil {
		return internalError(err)
	}
	return nil
}

func (s *authService) UpdateProfile(ctx context.Context, userID string, req *types.UpdateProfileRequest) (*entity.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	profile := entity.Profile{
		Phone:    nullString(req.Phone),
		Gender:   nullString(req.Gender),
		Location: nullString(req.Location),
	}
	if req.DOB != "" {
		dob, err := time.Parse(dateLayout, req.DOB)
		if err != nil {
			return nil, validationError("dob", "dob must be a date in YYYY-MM-DD format")
		}
		profile.DOB = sql.NullTime{Time: dob, Valid: true}
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, req.Name, profile); err != nil {
		return nil, internalError(err)
	}
	return s.CurrentUser(ctx, userID)
}

// requireUser loads the authenticated caller. A token for a deleted account is unauthorized.
func (s *authService) requireUser(ctx context.Context, userID string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, internalError(err)
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

func (s *authService) checkPassword(field, password string) error {
	if err := s.cfg.Password.Policy.Validate(password); err != nil {
		return validationError(field, err.Error())
	}
	if len(password) > MaxPasswordBytes {
		return validationError(field, fmt.Sprintf("%s must be at most %d bytes", field, MaxPasswordBytes))
	}
	return nil
}

func (s *authService) issueSession(ctx context.Context, userID string) (*dto.Session, error) {
	accessToken, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, internalError(err)
	}
	refreshToken, claims, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, internalError(err)
	}

	record := &entity.RefreshToken{
		ID:        claims.ID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: claims.IssuedAt.Time,
	}
	if err = s.refreshTokenRepo.Create(ctx, record); err != nil {
		return nil, internalError(err)
	}

	return &dto.Session{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// dispatch sends a notification after the state change has been stored.
// Failures are logged and never reach the caller.
func (s *authService) dispatch(kind, userID string, send func(ctx context.Context) error) {
	s.asyncRunner(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id":      userID,
				"notification": kind,
			}).Warn("failed to send notification")
		}
	})
}

func (s *authService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}
