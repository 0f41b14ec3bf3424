package hooks

import (
	"context"
	"testing"

	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Record(ctx context.Context, entry auditdomain.Entry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

func TestPurgeIsRecordedAsPurge(t *testing.T) {
	svc := new(mockService)
	svc.On("Record", mock.Anything, auditdomain.Entry{
		Action:     auditdomain.ActionUserPurge,
		TargetType: auditdomain.TargetTypeUser,
		TargetID:   "42",
		Metadata: map[string]any{
			"username":          "ann",
			"remove_all_traces": true,
		},
	}).Return(nil).Once()

	h := New(svc)
	require.NoError(t, h.OnDelete(context.Background(), identitydomain.User{ID: 42, Username: "ann"}, identitydomain.DeleteOptions{RemoveAllTraces: true}))
	svc.AssertExpectations(t)
}

func TestLoginAndUndeleteTargets(t *testing.T) {
	svc := new(mockService)
	svc.On("Record", mock.Anything, mock.MatchedBy(func(e auditdomain.Entry) bool {
		return e.TargetID == "7" && e.TargetType == auditdomain.TargetTypeUser
	})).Return(nil).Twice()

	h := New(svc)
	u := &identitydomain.User{ID: 7}
	require.NoError(t, h.OnLogin(context.Background(), u))
	require.NoError(t, h.OnUndelete(context.Background(), u))

	calls := svc.Calls
	require.Len(t, calls, 2)
	assert.Equal(t, auditdomain.ActionUserLogin, calls[0].Arguments.Get(1).(auditdomain.Entry).Action)
	assert.Equal(t, auditdomain.ActionUserUndelete, calls[1].Arguments.Get(1).(auditdomain.Entry).Action)
}

func TestProvideRegistersHook(t *testing.T) {
	res := Provide(new(mockService))
	assert.IsType(t, &Hooks{}, res.Hooks)
}
