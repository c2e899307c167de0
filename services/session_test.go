package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cppla/forum/apperr"
	"github.com/cppla/forum/models"
	"github.com/cppla/forum/utils"
)

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockUsers) TouchLastActive(ctx context.Context, username string, at time.Time) error {
	return m.Called(ctx, username, at).Error(0)
}

type brokenBlacklist struct{}

func (brokenBlacklist) Revoke(context.Context, string, time.Time) error {
	return errors.New("connection refused")
}

func (brokenBlacklist) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestResolveTouchesStaleLastActive(t *testing.T) {
	users := new(mockUsers)
	m := NewSessionManager(utils.NewTokenIssuer("k"), time.Hour, utils.NewMemoryBlacklist(), users)
	ctx := context.Background()

	session, err := m.Start(&models.User{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	users.On("FindByUsername", mock.Anything, "bob").Return(&models.User{Username: "bob"}, nil).Once()
	users.On("TouchLastActive", mock.Anything, "bob", mock.AnythingOfType("time.Time")).Return(nil).Once()

	user, err := m.Resolve(ctx, session.Token)
	require.NoError(t, err)
	assert.NotNil(t, user.LastActiveAt)

	recent := time.Now().Add(-10 * time.Second)
	users.On("FindByUsername", mock.Anything, "bob").Return(&models.User{Username: "bob", LastActiveAt: &recent}, nil).Once()

	_, err = m.Resolve(ctx, session.Token)
	require.NoError(t, err)

	users.AssertExpectations(t)
	users.AssertNumberOfCalls(t, "TouchLastActive", 1)
}

func TestResolveRejectsOrphanedToken(t *testing.T) {
	users := new(mockUsers)
	m := NewSessionManager(utils.NewTokenIssuer("k"), time.Hour, utils.NewMemoryBlacklist(), users)

	session, err := m.Start(&models.User{Username: "ghost"})
	require.NoError(t, err)
	users.On("FindByUsername", mock.Anything, "ghost").Return(nil, apperr.NotFound("user"))

	_, err = m.Resolve(context.Background(), session.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestResolveRejectsForeignSignature(t *testing.T) {
	users := new(mockUsers)
	issued := NewSessionManager(utils.NewTokenIssuer("one"), time.Hour, utils.NewMemoryBlacklist(), users)
	verifier := NewSessionManager(utils.NewTokenIssuer("two"), time.Hour, utils.NewMemoryBlacklist(), users)

	session, err := issued.Start(&models.User{Username: "bob"})
	require.NoError(t, err)

	_, err = verifier.Resolve(context.Background(), session.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	users.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestRevocationStoreOutageIsRetryable(t *testing.T) {
	users := new(mockUsers)
	m := NewSessionManager(utils.NewTokenIssuer("k"), time.Hour, brokenBlacklist{}, users)
	session, err := m.Start(&models.User{Username: "bob"})
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), session.Token)
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	err = m.End(context.Background(), session.Token)
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}

func TestCanModerate(t *testing.T) {
	assert.True(t, CanModerate(&models.User{Role: models.RoleAdmin}))
	assert.False(t, CanModerate(&models.User{Role: models.RoleUser}))
	assert.False(t, CanModerate(nil))
}
