package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(metadata.NewSQLiteRepository(setupDraftDB(t)), logging.Nop())
}

func TestLogin_VerifiedTokenIsStored(t *testing.T) {
	s := newTestAuth(t)
	ctx := context.Background()

	id, err := s.Login(ctx, &fakeClient{whoAmI: "agent-7"}, "  tok  ")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", id)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestLogin_UnreachableServerStoresUnverified(t *testing.T) {
	s := newTestAuth(t)
	ctx := context.Background()

	id, err := s.Login(ctx, &fakeClient{whoAmIErr: client.ErrUnavailable}, "tok")
	require.NoError(t, err)
	assert.Empty(t, id)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestLogin_RejectedTokenIsNotStored(t *testing.T) {
	s := newTestAuth(t)
	ctx := context.Background()

	_, err := s.Login(ctx, &fakeClient{whoAmIErr: client.ErrUnauthorized}, "bad")
	require.ErrorIs(t, err, common.ErrUnauthorized)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	_, err = s.Login(ctx, &fakeClient{}, "   ")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestLogout(t *testing.T) {
	s := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, s.SaveToken(ctx, "tok"))
	require.NoError(t, s.Logout(ctx))

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}
