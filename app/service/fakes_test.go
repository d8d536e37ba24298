package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/entity"
	"github.com/vibast-solutions/ms-go-parish-auth/app/repository"
	"github.com/vibast-solutions/ms-go-parish-auth/app/service"
	"github.com/vibast-solutions/ms-go-parish-auth/config"

	"golang.org/x/crypto/bcrypt"
)

const testClientURL = "http://localhost:5173"

// memStore keeps users and refresh tokens in memory and applies the same
// conditional-write rules as the MySQL repositories.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*entity.User
	tokens map[string]*entity.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]*entity.User{},
		tokens: map[string]*entity.RefreshToken{},
	}
}

func (m *memStore) user(id string) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memStore) userByEmail(email string) *entity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memStore) tokenCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tok := range m.tokens {
		if tok.UserID == userID {
			n++
		}
	}
	return n
}

type fakeUsers struct {
	*memStore
}

func (f fakeUsers) Create(_ context.Context, user *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f fakeUsers) find(match func(u *entity.User) bool) *entity.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return u.Email == email }), nil
}

func (f fakeUsers) FindByID(_ context.Context, id string) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return u.ID == id }), nil
}

func (f fakeUsers) FindByVerificationCode(_ context.Context, code string, now time.Time) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return verificationMatches(u, code, now) }), nil
}

func (f fakeUsers) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*entity.User, error) {
	return f.find(func(u *entity.User) bool { return resetMatches(u, tokenHash, now) }), nil
}

func (f fakeUsers) MarkVerified(_ context.Context, id, code string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !verificationMatches(u, code, now) {
		return false, nil
	}
	u.IsVerified = true
	u.VerificationCode = sql.NullString{}
	u.VerificationCodeExpiresAt = sql.NullTime{}
	u.UpdatedAt = now
	return true, nil
}

func (f fakeUsers) SetVerificationCode(_ context.Context, id, code string, expiresAt time.Time) error {
	return f.update(id, func(u *entity.User) {
		u.VerificationCode = sql.NullString{String: code, Valid: true}
		u.VerificationCodeExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
	})
}

func (f fakeUsers) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return f.update(id, func(u *entity.User) {
		u.ResetToken = sql.NullString{String: tokenHash, Valid: true}
		u.ResetTokenExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
	})
}

func (f fakeUsers) ResetPassword(_ context.Context, id, tokenHash, passwordHash string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !resetMatches(u, tokenHash, now) {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.ResetToken = sql.NullString{}
	u.ResetTokenExpiresAt = sql.NullTime{}
	return true, nil
}

func (f fakeUsers) UpdateLastLogin(_ context.Context, id string, lastLogin time.Time) error {
	return f.update(id, func(u *entity.User) {
		u.LastLoginAt = sql.NullTime{Time: lastLogin, Valid: true}
	})
}

func (f fakeUsers) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return f.update(id, func(u *entity.User) {
		u.PasswordHash = passwordHash
	})
}

func (f fakeUsers) SetPendingEmailChange(_ context.Context, id, email, code string, expiresAt time.Time) error {
	return f.update(id, func(u *entity.User) {
		u.PendingEmail = sql.NullString{String: email, Valid: true}
		u.PendingEmailCode = sql.NullString{String: code, Valid: true}
		u.PendingEmailExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
	})
}

func (f fakeUsers) ConfirmEmailChange(_ context.Context, id, email, code string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !u.PendingEmail.Valid || u.PendingEmail.String != email ||
		u.PendingEmailCode.String != code || !u.PendingEmailExpiresAt.Time.After(now) {
		return false, nil
	}
	for otherID, other := range f.users {
		if otherID != id && other.Email == email {
			return false, repository.ErrDuplicateEmail
		}
	}
	u.Email = email
	u.PendingEmail = sql.NullString{}
	u.PendingEmailCode = sql.NullString{}
	u.PendingEmailExpiresAt = sql.NullTime{}
	return true, nil
}

func (f fakeUsers) UpdateProfile(_ context.Context, id, name string, profile entity.Profile) error {
	return f.update(id, func(u *entity.User) {
		u.Name = name
		u.Profile = profile
	})
}

func (f fakeUsers) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return false, nil
	}
	delete(f.users, id)
	return true, nil
}

func (f fakeUsers) update(id string, apply func(u *entity.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		apply(u)
	}
	return nil
}

func verificationMatches(u *entity.User, code string, now time.Time) bool {
	return u.VerificationCode.Valid && u.VerificationCode.String == code &&
		u.VerificationCodeExpiresAt.Valid && u.VerificationCodeExpiresAt.Time.After(now)
}

func resetMatches(u *entity.User, tokenHash string, now time.Time) bool {
	return u.ResetToken.Valid && u.ResetToken.String == tokenHash &&
		u.ResetTokenExpiresAt.Valid && u.ResetTokenExpiresAt.Time.After(now)
}

type fakeTokens struct {
	*memStore
}

func (f fakeTokens) Create(_ context.Context, token *entity.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f fakeTokens) DeleteByID(_ context.Context, tokenID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[tokenID]
	if !ok || tok.UserID != userID {
		return 0, nil
	}
	delete(f.tokens, tokenID)
	return 1, nil
}

func (f fakeTokens) DeleteByUserID(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, tok := range f.tokens {
		if tok.UserID == userID {
			delete(f.tokens, id)
		}
	}
	return nil
}

type sentMessage struct {
	Kind  string
	To    string
	Value string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failAll error
}

func (n *fakeNotifier) record(kind, to, value string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll != nil {
		return n.failAll
	}
	n.sent = append(n.sent, sentMessage{Kind: kind, To: to, Value: value})
	return nil
}

func (n *fakeNotifier) SendVerificationCode(_ context.Context, to, _, code string) error {
	return n.record("verification_code", to, code)
}

func (n *fakeNotifier) SendWelcome(_ context.Context, to, _ string) error {
	return n.record("welcome", to, "")
}

func (n *fakeNotifier) SendResetLink(_ context.Context, to, _, link string) error {
	return n.record("reset_link", to, link)
}

func (n *fakeNotifier) SendResetSuccess(_ context.Context, to, _ string) error {
	return n.record("reset_success", to, "")
}

func (n *fakeNotifier) SendEmailChangeCode(_ context.Context, to, _, code string) error {
	return n.record("email_change_code", to, code)
}

// last returns the most recent message of kind.
func (n *fakeNotifier) last(kind string) (sentMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return sentMessage{}, false
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.sent {
		if msg.Kind == kind {
			c++
		}
	}
	return c
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      service.AuthService
	store    *memStore
	notifier *fakeNotifier
	clock    *testClock
	tokens   *service.TokenService
	cfg      *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		ClientURL: testClientURL,
		JWT: config.JWTConfig{
			AccessSecret:    "test-access-secret",
			RefreshSecret:   "test-refresh-secret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Codes: config.CodeConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			EmailChangeTTL:  15 * time.Minute,
		},
		Password: config.PasswordConfig{
			BcryptCost: bcrypt.MinCost,
			Policy:     config.PasswordPolicy{MinLength: 6},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testConfig()
	store := newMemStore()
	notifier := &fakeNotifier{}
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	tokens := service.NewTokenService(cfg.JWT)

	svc := service.NewAuthService(
		fakeUsers{store},
		fakeTokens{store},
		tokens,
		service.NewPasswordHasher(cfg.Password.BcryptCost),
		notifier,
		cfg,
		service.WithAsyncRunner(func(task func()) { task() }),
		service.WithClock(clock.Now),
	)

	return &fixture{
		svc:      svc,
		store:    store,
		notifier: notifier,
		clock:    clock,
		tokens:   tokens,
		cfg:      cfg,
	}
}

func assertKind(t *testing.T, err error, kind service.ErrorKind) *service.Error {
	t.Helper()
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected *service.Error of kind %q, got %v", kind, err)
	}
	if svcErr.Kind != kind {
		t.Fatalf("expected kind %q, got %q (%v)", kind, svcErr.Kind, err)
	}
	return svcErr
}
