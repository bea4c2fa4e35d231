// Package auth implements signup with one-time-code verification, password
// login, password reset and JWT bearer tokens.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CodeTTL is how long an OTP or reset code stays valid
	CodeTTL = 10 * time.Minute
	// PendingRetention is how long an unverified signup is kept
	PendingRetention = time.Hour
	// MinPasswordLength applies to signup and reset
	MinPasswordLength = 6
	// DefaultTokenTTL is used when Config.TokenTTL is zero
	DefaultTokenTTL = 7 * 24 * time.Hour
)

var (
	ErrUserExists           = errors.New("User already exists")
	ErrNoPendingSignup      = errors.New("No pending signup found. Please signup again.")
	ErrOTPExpired           = errors.New("OTP has expired. Please request a new one.")
	ErrOTPMismatch          = errors.New("Invalid OTP")
	ErrVerificationRequired = errors.New("Please verify your email first. Check your inbox for OTP.")
	ErrInvalidCredentials   = errors.New("Invalid credentials")
	ErrAccountNotFound      = errors.New("No account found with this email")
	ErrInvalidResetCode     = errors.New("Invalid or expired reset code")
	ErrInvalidToken         = errors.New("Token is not valid")
)

// Store persists users and pending signups
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SavePendingUser(ctx context.Context, p *models.PendingUser) error
	GetPendingUser(ctx context.Context, email string) (*models.PendingUser, error)
	PromotePendingUser(ctx context.Context, email string, user *models.User) error
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier delivers account messages. Implementations must not block.
type Notifier interface {
	OTPIssued(email, name, code string)
	UserVerified(email, name string)
	ResetRequested(email, name, code string)
}

type nopNotifier struct{}

func (nopNotifier) OTPIssued(string, string, string) {}
func (nopNotifier) UserVerified(string, string) {}
func (nopNotifier) ResetRequested(string, string, string) {}

// Config holds the token settings
type Config struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

// AuthService handles user authentication
type AuthService struct {
	store    Store
	notifier Notifier
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	code     func() (string, error)
	cost     int
}

// NewAuthService creates a new auth service. A nil notifier discards messages.
func NewAuthService(store Store, cfg Config, notifier Notifier, log zerolog.Logger) *AuthService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "auth").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		code:     generateCode,
		cost:     bcrypt.DefaultCost,
	}
}

// Session is returned by a successful login or verification
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// generateCode returns a uniformly random 6-digit code
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errs.Invalid("password", "Password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Signup stages an unverified account and issues an OTP
func (s *AuthService) Signup(ctx context.Context, name, email, password string) (*models.PendingUser, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, errs.Invalid("name", "Name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errs.Invalid("email", "Please include a valid email")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, errs.Storage("get user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	code, err := s.code()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	pending := &models.PendingUser{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		OTP:          code,
		OTPExpiry:    now.Add(CodeTTL),
		CreatedAt:    now,
	}
	if err := s.store.SavePendingUser(ctx, pending); err != nil {
		return nil, errs.Storage("save pending user", err)
	}

	s.log.Info().Str("email", email).Msg("signup pending verification")
	s.notifier.OTPIssued(email, name, code)
	return pending, nil
}

func (s *AuthService) pending(ctx context.Context, email string) (*models.PendingUser, error) {
	p, err := s.store.GetPendingUser(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrNoPendingSignup
		}
		return nil, errs.Storage("get pending user", err)
	}
	return p, nil
}

// ResendOTP replaces the code and expiry of a pending signup
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	p, err := s.pending(ctx, email)
	if err != nil {
		return err
	}
	code, err := s.code()
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}
	p.OTP = code
	p.OTPExpiry = s.now().Add(CodeTTL)
	if err := s.store.SavePendingUser(ctx, p); err != nil {
		return errs.Storage("save pending user", err)
	}
	s.notifier.OTPIssued(email, p.Name, code)
	return nil
}

// VerifyOTP turns a pending signup into a verified user when the code matches
// and has not expired. On failure the pending signup is left untouched.
func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string) (*Session, error) {
	email = normalizeEmail(email)
	p, err := s.pending(ctx, email)
	if err != nil {
		return nil, err
	}
	if s.now().After(p.OTPExpiry) {
		return nil, ErrOTPExpired
	}
	if p.OTP != strings.TrimSpace(otp) {
		return nil, ErrOTPMismatch
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		IsVerified:   true,
		CreatedAt:    s.now(),
	}
	if err := s.store.PromotePendingUser(ctx, email, user); err != nil {
		switch {
		case errors.Is(err, errs.ErrDuplicate):
			return nil, ErrUserExists
		case errors.Is(err, errs.ErrNotFound):
			return nil, ErrNoPendingSignup
		}
		return nil, errs.Storage("promote pending user", err)
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("user verified")
	s.notifier.UserVerified(user.Email, user.Name)
	return &Session{Token: token, User: user}, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errs.Invalid("email", "Email and password are required")
	}

	if _, err := s.store.GetPendingUser(ctx, email); err == nil {
		return nil, ErrVerificationRequired
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, errs.Storage("get pending user", err)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errs.Storage("get user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.signToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user}, nil
}

// ForgotPassword issues a reset code for an existing user
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ErrAccountNotFound
		}
		return errs.Storage("get user", err)
	}
	code, err := s.code()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	if err := s.store.SetResetToken(ctx, user.ID, code, s.now().Add(CodeTTL)); err != nil {
		return errs.Storage("set reset token", err)
	}
	s.notifier.ResetRequested(user.Email, user.Name, code)
	return nil
}

// ResetPassword replaces the password when the reset code matches and is unexpired
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return errs.Storage("get user", err)
	}
	if user.ResetToken == "" || user.ResetToken != strings.TrimSpace(code) ||
		user.ResetTokenExpiry == nil || !s.now().Before(*user.ResetTokenExpiry) {
		return ErrInvalidResetCode
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return errs.Storage("update password", err)
	}
	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}

// Me returns the user behind an authenticated request
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, errs.Storage("get user", err)
	}
	return user, nil
}

// PurgeExpiredPending deletes pending signups older than the retention window
func (s *AuthService) PurgeExpiredPending(ctx context.Context) (int64, error) {
	n, err := s.store.DeletePendingBefore(ctx, s.now().Add(-PendingRetention))
	if err != nil {
		return 0, errs.Storage("purge pending users", err)
	}
	return n, nil
}

func (s *AuthService) signToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// GetUserFromToken validates a bearer token and returns its user id
func (s *AuthService) GetUserFromToken(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
