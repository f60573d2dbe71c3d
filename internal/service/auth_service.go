package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"piazza/internal/cache"
	"piazza/internal/middleware"
	"piazza/internal/models"
	"piazza/internal/repository"
	"piazza/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer   = "piazza-api"
	tokenAudience = "piazza-client"
)

// ErrTokenRevoked is returned for a token whose jti was blacklisted at logout.
var ErrTokenRevoked = errors.New("token has been revoked")

// AuthService registers users and issues and verifies their bearer tokens.
type AuthService struct {
	users    *UserService
	userRepo repository.UserRepository
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(userRepo repository.UserRepository, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		users:    NewUserService(userRepo),
		userRepo: userRepo,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Register creates a password account after checking the password policy.
func (s *AuthService) Register(ctx context.Context, in CreateUserInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, models.NewValidationError("Name, email, and password are required!")
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.users.CreateUser(ctx, in)
}

// Login checks credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, models.NewNotFound("User not found")
	}
	if !user.HasPassword() {
		return "", nil, models.NewValidationError("Invalid credentials")
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return "", nil, models.NewValidationError("Invalid credentials")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Profile returns the account behind an authenticated request.
func (s *AuthService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// IssueToken signs an HS256 token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	if len(s.secret) == 0 {
		return "", models.NewInternalError(fmt.Errorf("JWT secret not configured"))
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(user.ID), 10),
		"email": user.Email,
		"iss":   tokenIssuer,
		"aud":   tokenAudience,
		"exp":   now.Add(s.ttl).Unix(),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"jti":   generateJTI(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return signed, nil
}

// generateJTI creates a unique token ID so a single token can be revoked.
func generateJTI() string {
	return fmt.Sprintf("%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}

// VerifyToken parses raw and checks its signature, issuer, audience, expiry
// and revocation. A blacklist lookup that fails is logged and ignored.
func (s *AuthService) VerifyToken(ctx context.Context, raw string) (*middleware.TokenClaims, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("invalid token structure - missing subject")
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return nil, err
	}

	claims := &middleware.TokenClaims{UserID: uint(userID), ExpiresAt: exp.Time}
	claims.Email, _ = mapClaims["email"].(string)
	claims.ID, _ = mapClaims["jti"].(string)

	revoked, err := cache.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "token blacklist lookup failed", slog.String("error", err.Error()))
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Logout blacklists the token's jti until it would have expired. Tokens that
// no longer verify need no revocation.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	claims, err := s.VerifyToken(ctx, raw)
	if err != nil {
		return nil
	}
	return cache.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Sub(s.now()))
}
