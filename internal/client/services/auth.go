package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

const tokenKey = "access_token"

// AuthService keeps the agent access token in the metadata store.
type AuthService struct {
	store  metadata.Repository
	logger logging.Logger
}

func NewAuthService(store metadata.Repository, logger logging.Logger) *AuthService {
	return &AuthService{store: store, logger: logger.With("module", "auth")}
}

// Token returns the stored token, "" when the agent is logged out. It has
// the client.TokenSource signature.
func (s *AuthService) Token(ctx context.Context) (string, error) {
	b, err := s.store.Get(ctx, tokenKey)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *AuthService) SaveToken(ctx context.Context, token string) error {
	return s.store.Set(ctx, tokenKey, []byte(token))
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.store.Delete(ctx, tokenKey)
}

// Login checks token against the server when it can be reached and stores
// it. It returns the agent id, "" when the server was unreachable and the
// token was stored unverified. A token the server refuses is not stored.
func (s *AuthService) Login(ctx context.Context, c client.Client, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", common.ErrValidation)
	}

	agentID, err := c.WhoAmI(ctx)
	switch {
	case err == nil:
	case errors.Is(err, client.ErrUnavailable):
		s.logger.Warn(ctx, "server unreachable, token stored unverified")
	case errors.Is(err, client.ErrUnauthorized):
		return "", fmt.Errorf("%w: token rejected by server", common.ErrUnauthorized)
	default:
		return "", err
	}

	if err := s.SaveToken(ctx, token); err != nil {
		return "", err
	}
	return agentID, nil
}
