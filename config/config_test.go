package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/parish?parseTime=true")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret")
}

func chdirTemp(t *testing.T) string {
	t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("GoodPass1!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestDefaultPasswordPolicyOnlyChecksLength(t *testing.T) {
	policy := loadPasswordPolicy()
	if err := policy.Validate("abc12"); err == nil {
		t.Fatalf("expected error for 5 character password")
	}
	if err := policy.Validate("secret"); err != nil {
		t.Fatalf("expected 6 character password to pass, got %v", err)
	}
	if err := policy.Validate("ééé"); err == nil {
		t.Fatalf("expected 3 character multi-byte password to fail")
	}
	if err := policy.Validate("éééééé"); err != nil {
		t.Fatalf("expected 6 character multi-byte password to pass, got %v", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when MYSQL_DSN is missing")
	}
}

func TestLoadRequiresBothSecrets(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_SECRET", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when JWT_ACCESS_SECRET is missing")
	}

	setRequiredEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when JWT_REFRESH_SECRET is missing")
	}
}

func TestLoadRejectsSharedSecret(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", "access-secret")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when access and refresh secrets are equal")
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8080" || cfg.GRPC.Port != "9090" {
		t.Fatalf("unexpected default ports: %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.JWT.AccessTokenTTL != 15*time.Minute || cfg.JWT.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected jwt ttl: %v %v", cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Codes.VerificationTTL != 24*time.Hour || cfg.Codes.ResetTTL != time.Hour {
		t.Fatalf("unexpected code ttl: %v %v", cfg.Codes.VerificationTTL, cfg.Codes.ResetTTL)
	}
	if cfg.Password.BcryptCost != 12 || cfg.Password.Policy.MinLength != 6 {
		t.Fatalf("unexpected password config: %+v", cfg.Password)
	}
	if cfg.IsProduction() {
		t.Fatalf("expected development env by default")
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "20")
	t.Setenv("JWT_REFRESH_TOKEN_TTL", "60")
	t.Setenv("VERIFICATION_CODE_TTL", "120")
	t.Setenv("RESET_TOKEN_TTL", "30")
	t.Setenv("EMAIL_CHANGE_CODE_TTL", "5")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("CLIENT_URL", "https://parish.example/")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.HTTP.Port != "8081" || cfg.GRPC.Port != "9091" {
		t.Fatalf("unexpected ports: %s %s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.JWT.AccessTokenTTL != 20*time.Minute || cfg.JWT.RefreshTokenTTL != 60*time.Minute {
		t.Fatalf("unexpected jwt ttl: %v %v", cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Codes.VerificationTTL != 120*time.Minute || cfg.Codes.ResetTTL != 30*time.Minute || cfg.Codes.EmailChangeTTL != 5*time.Minute {
		t.Fatalf("unexpected code ttl: %+v", cfg.Codes)
	}
	if cfg.Password.BcryptCost != 10 {
		t.Fatalf("unexpected bcrypt cost: %d", cfg.Password.BcryptCost)
	}
	if cfg.ClientURL != "https://parish.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.ClientURL)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.RateLimit.PerMinute != 50 {
		t.Fatalf("unexpected redis/rate limit config: %+v %+v", cfg.Redis, cfg.RateLimit)
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)
	t.Cleanup(func() {
		for _, key := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "MYSQL_DSN", "HTTP_PORT"} {
			_ = os.Unsetenv(key)
		}
	})

	envPath := filepath.Join(tmp, ".env")
	content := "JWT_ACCESS_SECRET=envfile-access\nJWT_REFRESH_SECRET=envfile-refresh\nMYSQL_DSN=user:pass@tcp(localhost:3306)/parish?parseTime=true\nHTTP_PORT=9099\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.AccessSecret != "envfile-access" || cfg.HTTP.Port != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.JWT.AccessSecret, cfg.HTTP.Port)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{MySQL: MySQLConfig{DSN: "user:pass@tcp(localhost:3306)/parish?parseTime=true"}}
	if got := cfg.DSN(); got != cfg.MySQL.DSN {
		t.Fatalf("expected %q, got %q", cfg.MySQL.DSN, got)
	}
}
