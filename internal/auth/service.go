package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gitpix/gitpix/internal/common"
	"github.com/gitpix/gitpix/pkg/config"
	"github.com/gitpix/gitpix/pkg/types"
	"github.com/gitpix/gitpix/pkg/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is returned for a wrong admin password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials is what a successful login hands back: a cookie session id
// and an equivalent bearer token for API clients.
type Credentials struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service implements single-admin authentication: password login,
// database-backed cookie sessions, and JWT bearer tokens minted at
// login.
type Service struct {
	db  *common.Database
	cfg *config.AuthConfig
}

// NewService creates an auth service.
func NewService(db *common.Database, cfg *config.AuthConfig) *Service {
	return &Service{db: db, cfg: cfg}
}

// Login checks the admin password and opens a session.
func (s *Service) Login(ctx context.Context, password string) (*Credentials, error) {
	if s.cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("admin password is not configured")
	}
	if !utils.CheckPassword(password, s.cfg.AdminPasswordHash) {
		return nil, ErrInvalidCredentials
	}

	session := &types.AuthSession{ExpiresAt: time.Now().Add(s.cfg.SessionTTL)}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := s.mintToken(session.ID, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	log.Info().Str("session", session.ID.String()).Msg("admin logged in")
	return &Credentials{
		SessionID: session.ID.String(),
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout removes a session. Unknown ids are a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&types.AuthSession{}, "id = ?", id).Error
}

// ValidateSession reports whether the cookie session id refers to a
// live, unexpired session.
func (s *Service) ValidateSession(ctx context.Context, sessionID string) bool {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return false
	}

	var session types.AuthSession
	err = s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, time.Now()).
		First(&session).Error
	return err == nil
}

// ValidateToken checks a bearer JWT and confirms its backing session is
// still live, so logout revokes tokens too.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	sessionID, ok := claims["sid"].(string)
	if !ok {
		return false
	}
	return s.ValidateSession(ctx, sessionID)
}

func (s *Service) mintToken(sessionID uuid.UUID, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sid": sessionID.String(),
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
