package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/contestvn/exam-backend/internal/config"
	"github.com/contestvn/exam-backend/internal/model"
	"github.com/contestvn/exam-backend/internal/repository"
)

// Registration and login limits. Counters live in Redis with TTLs, so
// the windows slide automatically without a cleanup job.
const (
	registerIPMaxPerHour     = 5
	registerDeviceMaxPerHour = 3
	registerWindow           = time.Hour

	loginFailMax    = 5
	loginFailWindow = 10 * time.Minute
)

// Common auth errors.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrTooManyLoginFails   = errors.New("too many failed login attempts")
	ErrRegistrationLimited = errors.New("registration limit reached")
)

// TokenType distinguishes contestant vs admin tokens.
type TokenType string

const (
	TokenTypeUser  TokenType = "user"
	TokenTypeAdmin TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
	UserID    string    `json:"user_id,omitempty"`
}

// AuthService handles registration, login, JWT issuance, and the
// Redis-backed abuse counters.
type AuthService struct {
	cfg      *config.Config
	rdb      *redis.Client
	accounts *repository.AccountRepository
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, accounts *repository.AccountRepository, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:      cfg,
		rdb:      rdb,
		accounts: accounts,
		log:      log.With().Str("component", "auth_service").Logger(),
		now:      time.Now,
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Register creates an account after the per-IP and per-device
// registration caps pass, then signs the contestant in directly.
// Duplicate-identity errors from the repository pass through for
// field-specific messages.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, ip string) (*model.Account, string, error) {
	if err := s.checkRegistrationLimit(ctx, ip, req.DeviceID); err != nil {
		return nil, "", err
	}

	dob, err := time.Parse("2006-01-02", req.DOB)
	if err != nil || dob.After(s.now()) {
		return nil, "", fmt.Errorf("invalid date of birth")
	}

	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	acc := &model.Account{
		FullName:     req.FullName,
		Email:        model.NormalizeEmail(req.Email),
		NationalID:   model.NormalizeNationalID(req.NationalID),
		Phone:        model.NormalizePhone(req.Phone),
		DOB:          dob,
		PasswordHash: hash,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, "", err
	}

	s.bumpRegistrationCounters(ctx, ip, req.DeviceID)

	token, err := s.GenerateToken(ctx, TokenTypeUser, acc.ID.String())
	if err != nil {
		return nil, "", err
	}

	s.log.Info().Str("user_id", acc.ID.String()).Msg("Account registered")
	return acc, token, nil
}

// Login authenticates by email or national ID. Failures are counted per
// (ip, identifier); past the threshold logins are refused for the rest
// of the window without touching bcrypt.
func (s *AuthService) Login(ctx context.Context, identifier, password, ip string) (*model.Account, string, error) {
	failKey := config.CacheKey.LoginFailKey(ip, identifier)

	fails, err := s.rdb.Get(ctx, failKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("check login failures: %w", err)
	}
	if fails >= loginFailMax {
		return nil, "", ErrTooManyLoginFails
	}

	acc, err := s.accounts.GetByIdentifier(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		s.recordLoginFailure(ctx, failKey)
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup account: %w", err)
	}

	if err := s.CheckPassword(acc.PasswordHash, password); err != nil {
		s.recordLoginFailure(ctx, failKey)
		return nil, "", ErrInvalidCredentials
	}

	// Reset the counter on success so earlier typos don't linger.
	_ = s.rdb.Del(ctx, failKey).Err()

	token, err := s.GenerateToken(ctx, TokenTypeUser, acc.ID.String())
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

// AdminLogin checks env-provisioned admin credentials and issues an
// admin token. There is no admin table.
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (string, error) {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if model.NormalizeEmail(email) != model.NormalizeEmail(s.cfg.AdminEmail) {
		return "", ErrInvalidCredentials
	}
	if err := s.CheckPassword(s.cfg.AdminPasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(ctx, TokenTypeAdmin, "")
}

// GenerateToken mints a signed JWT. For user tokens the JTI is recorded
// as the account's single active session; a newer login supersedes any
// older token.
func (s *AuthService) GenerateToken(ctx context.Context, tokenType TokenType, userID string) (string, error) {
	jti := uuid.New().String()
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: tokenType,
		UserID:    userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if tokenType == TokenTypeUser {
		sessionKey := config.CacheKey.UserSessionKey(userID)
		if err := s.rdb.Set(ctx, sessionKey, jti, s.cfg.JWTExpiry).Err(); err != nil {
			return "", fmt.Errorf("record session: %w", err)
		}
	}

	return signed, nil
}

// ValidateToken parses and verifies a JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// CheckActiveSession verifies that the token's JTI is still the
// account's current session. Superseded tokens (a newer login) fail.
func (s *AuthService) CheckActiveSession(ctx context.Context, claims *Claims) error {
	current, err := s.rdb.Get(ctx, config.CacheKey.UserSessionKey(claims.UserID)).Result()
	if errors.Is(err, redis.Nil) {
		return errors.New("session expired")
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if current != claims.ID {
		return errors.New("session superseded by a newer login")
	}
	return nil
}

// Logout invalidates the account's active session.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, config.CacheKey.UserSessionKey(userID)).Err()
}

func (s *AuthService) checkRegistrationLimit(ctx context.Context, ip, deviceID string) error {
	ipCount, err := s.rdb.Get(ctx, config.CacheKey.RegisterIPKey(ip)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("check ip counter: %w", err)
	}
	if ipCount >= registerIPMaxPerHour {
		return ErrRegistrationLimited
	}

	if deviceID != "" {
		deviceCount, err := s.rdb.Get(ctx, config.CacheKey.RegisterDeviceKey(deviceID)).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("check device counter: %w", err)
		}
		if deviceCount >= registerDeviceMaxPerHour {
			return ErrRegistrationLimited
		}
	}
	return nil
}

func (s *AuthService) bumpRegistrationCounters(ctx context.Context, ip, deviceID string) {
	s.bumpCounter(ctx, config.CacheKey.RegisterIPKey(ip), registerWindow)
	if deviceID != "" {
		s.bumpCounter(ctx, config.CacheKey.RegisterDeviceKey(deviceID), registerWindow)
	}
}

func (s *AuthService) recordLoginFailure(ctx context.Context, key string) {
	s.bumpCounter(ctx, key, loginFailWindow)
}

// bumpCounter increments a windowed counter, setting the TTL on first
// increment. Counter failures are logged, never surfaced: abuse limits
// must not take logins down with Redis.
func (s *AuthService) bumpCounter(ctx context.Context, key string, window time.Duration) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Counter increment failed")
		return
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Counter expire failed")
		}
	}
}
