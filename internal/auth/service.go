package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// MaxUsernameLength bounds usernames accepted by Login.
const MaxUsernameLength = 32

// ErrInvalidUsername is returned when username doesn't meet constraints.
var ErrInvalidUsername = errors.New("invalid username")

// Service issues and verifies identity tokens. It holds no per-user state.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// Login mints a token for username under a fresh user ID.
func (s *Service) Login(ctx context.Context, username string) (string, core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", core.Identity{}, err
	}

	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 1 || n > MaxUsernameLength {
		return "", core.Identity{}, ErrInvalidUsername
	}

	identity := core.Identity{UserID: utils.NewID(), DisplayName: username}
	token, err := s.Issue(identity)
	if err != nil {
		return "", core.Identity{}, err
	}
	return token, identity, nil
}

// Issue signs a token for an existing identity.
func (s *Service) Issue(identity core.Identity) (string, error) {
	token, err := GenerateToken(s.jwtConfig, identity.UserID, identity.DisplayName)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Verify implements core.Verifier.
func (s *Service) Verify(token string) (core.Identity, error) {
	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return core.Identity{}, err
	}
	name := claims.Username
	if name == "" {
		name = claims.UserID
	}
	return core.Identity{UserID: claims.UserID, DisplayName: name}, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

var _ core.Verifier = (*Service)(nil)
