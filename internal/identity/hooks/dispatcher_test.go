package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockHooks struct {
	mock.Mock
}

func (m *mockHooks) OnLogin(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockHooks) OnLogout(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockHooks) OnDelete(ctx context.Context, snapshot domain.User, opts domain.DeleteOptions) error {
	return m.Called(ctx, snapshot, opts).Error(0)
}

func (m *mockHooks) OnUndelete(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

type panickingHooks struct {
	domain.NopHooks
}

func (panickingHooks) OnLogin(context.Context, *domain.User) error {
	panic("boom")
}

func TestDispatcherContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	user := &domain.User{ID: 42}

	failing := new(mockHooks)
	failing.On("OnLogin", ctx, user).Return(errors.New("audit down")).Once()
	second := new(mockHooks)
	second.On("OnLogin", ctx, user).Return(nil).Once()

	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(zap.New(core), nil, failing, panickingHooks{}, nil, second)
	d.Login(ctx, user)

	failing.AssertExpectations(t)
	second.AssertExpectations(t)
	assert.Equal(t, 2, logs.FilterMessage("identity hook failed").Len())
}

func TestDispatcherDeliversDeleteSnapshot(t *testing.T) {
	ctx := context.Background()
	snapshot := domain.User{ID: 77, Username: "gone"}
	opts := domain.DeleteOptions{RemoveAllTraces: true}

	h := new(mockHooks)
	h.On("OnDelete", ctx, snapshot, opts).Return(nil).Once()

	NewDispatcher(zap.NewNop(), nil, h).Delete(ctx, snapshot, opts)
	h.AssertExpectations(t)
}

func TestNilDispatcherIsInert(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Logout(context.Background(), &domain.User{ID: 1}) })
}
