package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

// AuthService authenticates users from the users collection and issues
// access tokens. Each login opens a session whose id travels in the
// token claims and identifies the holder of pessimistic item locks.
type AuthService struct {
	users     *resource.Service
	sessions  *redis.Client
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users *resource.Service, sessions *redis.Client, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Expiration <= 0 {
		config.Expiration = 24 * time.Hour
	}
	return &AuthService{users: users, sessions: sessions, validator: validate, logger: logger, config: config}
}

// Login authenticates a user and returns an issued token with a fresh
// session id.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	doc, err := s.users.FindOne(ctx, store.Eq(models.FieldEmail, req.Email))
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}
	user := userFromDoc(doc)

	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	sessionID := uuid.NewString()
	if s.sessions != nil {
		if err := s.sessions.Set(ctx, sessionKey(sessionID), user.ID, s.config.Expiration).Err(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
		}
	}

	token, expiresAt, err := s.generateAccessToken(user, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if _, err := s.users.SystemUpdate(ctx, user.ID, models.Doc{
		models.FieldLastLogin: models.FormatTime(time.Now()),
	}); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user", user.ID), zap.Error(err))
	}

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		SessionID:   sessionID,
		User:        user,
	}, nil
}

// Logout closes the session backing the token, releasing any implicit
// claim on held item locks.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims) error {
	if s.sessions == nil || claims == nil {
		return nil
	}
	if err := s.sessions.Del(ctx, sessionKey(claims.SessionID)).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
	}
	return nil
}

// ValidateToken parses the access token and verifies the session is
// still open.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if s.sessions != nil {
		if err := s.sessions.Get(ctx, sessionKey(claims.SessionID)).Err(); err != nil {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session is closed")
		}
	}
	return claims, nil
}

// CreateUser registers a user with a hashed password.
func (s *AuthService) CreateUser(ctx context.Context, email, password, fullName, signOff string, role models.UserRole) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	doc := models.Doc{
		models.FieldEmail:    email,
		models.FieldPassword: string(hash),
		models.FieldFullName: fullName,
		models.FieldSignOff:  signOff,
		models.FieldRole:     string(role),
		models.FieldActive:   true,
	}
	if _, err := s.users.Create(ctx, []models.Doc{doc}); err != nil {
		return nil, err
	}
	return userFromDoc(doc), nil
}

func (s *AuthService) generateAccessToken(user *models.User, sessionID string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiration)
	claims := &models.JWTClaims{
		UserID:    user.ID,
		SessionID: sessionID,
		Role:      user.Role,
		SignOff:   user.SignOff,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userFromDoc(doc models.Doc) *models.User {
	user := &models.User{
		ID:           doc.ID(),
		Email:        doc.GetString(models.FieldEmail),
		PasswordHash: doc.GetString(models.FieldPassword),
		FullName:     doc.GetString(models.FieldFullName),
		SignOff:      doc.GetString(models.FieldSignOff),
		Role:         models.UserRole(doc.GetString(models.FieldRole)),
		Active:       doc.GetBool(models.FieldActive),
	}
	if t, ok := doc.GetTime(models.FieldLastLogin); ok {
		user.LastLogin = &t
	}
	if t, ok := doc.GetTime(models.FieldCreated); ok {
		user.CreatedAt = t
	}
	if t, ok := doc.GetTime(models.FieldUpdated); ok {
		user.UpdatedAt = t
	}
	return user
}
