// Package auth handles dashboard accounts: password hashing, session tokens
// and webhook API keys.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trading-journal/internal/apperr"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
	"trading-journal/internal/validation"
)

// ErrInvalidToken is returned for tokens that parse but carry no usable claims.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the session token claims. The subject is the user ID.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Store is the persistence the account service needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// Service registers and authenticates users.
type Service struct {
	store      Store
	logger     *zap.Logger
	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewService creates an account service.
func NewService(s Store, logger *zap.Logger, jwtSecret string, tokenTTL time.Duration, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:      s,
		logger:     logger.Named("auth"),
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// GenerateAPIKey returns a new random webhook key.
func GenerateAPIKey() string {
	return uuid.NewString()
}

// HashPassword hashes a password with bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a bcrypt hash with a password.
func (s *Service) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken issues a signed session token for user.
func (s *Service) GenerateToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies a session token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject != "" {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=TRADER ADMIN"`
	// StartingBalance overrides the configured account size.
	StartingBalance *float64 `json:"startingBalance" validate:"omitnil,gte=0"`
}

// Register creates an account with a fresh API key. Only the first account
// may register itself as ADMIN; the user count and the insert share one
// transaction so concurrent first registrations cannot both become admins.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	user, err := s.newUser(in)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if user.IsAdmin() {
			n, err := s.store.CountUsers(ctx)
			if err != nil {
				return apperr.Internal("failed to count users", err)
			}
			if n > 0 {
				return apperr.Forbidden("Only an administrator can create admin accounts")
			}
		}
		return s.insert(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	s.created(user)
	return user, nil
}

// CreateUser creates an account with any role. It backs the operator CLI.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	user, err := s.newUser(in)
	if err != nil {
		return nil, err
	}
	if err := s.insert(ctx, user); err != nil {
		return nil, err
	}
	s.created(user)
	return user, nil
}

// newUser validates the form and hashes the password. Nothing is stored.
func (s *Service) newUser(in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	role, err := models.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation("Invalid request data", apperr.FieldError{Field: "role", Message: err.Error()})
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}

	return &models.User{
		Name:            in.Name,
		Email:           in.Email,
		PasswordHash:    hash,
		Role:            role,
		APIKey:          GenerateAPIKey(),
		StartingBalance: in.StartingBalance,
	}, nil
}

func (s *Service) insert(ctx context.Context, user *models.User) error {
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Conflict("User already exists")
		}
		return apperr.Internal("failed to create user", err)
	}
	return nil
}

func (s *Service) created(user *models.User) {
	s.logger.Info("User created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
}

// LoginInput is the login form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login checks credentials and issues a session token. Unknown emails and
// wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.store.UserByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if err := s.VerifyPassword(user.PasswordHash, in.Password); err != nil {
		s.logger.Debug("Password mismatch", zap.String("user_id", user.ID))
		return nil, apperr.Unauthorized("Invalid email or password")
	}

	token, expiresAt, err := s.GenerateToken(user)
	if err != nil {
		return nil, apperr.Internal("failed to sign token", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
