package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	"github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/identity/hooks"
	"github.com/smallbiznis/identity/internal/identity/preference"
	sessiondomain "github.com/smallbiznis/identity/internal/session/domain"
	sessionstore "github.com/smallbiznis/identity/internal/session/store"
	"github.com/smallbiznis/identity/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockRevoker struct {
	mock.Mock
}

func (m *mockRevoker) DeleteByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type recordingHooks struct {
	domain.NopHooks
	deleted   []domain.User
	opts      []domain.DeleteOptions
	undeleted []snowflake.ID
	err       error
}

func (h *recordingHooks) OnDelete(_ context.Context, snapshot domain.User, opts domain.DeleteOptions) error {
	h.deleted = append(h.deleted, snapshot)
	h.opts = append(h.opts, opts)
	return h.err
}

func (h *recordingHooks) OnUndelete(_ context.Context, user *domain.User) error {
	h.undeleted = append(h.undeleted, user.ID)
	return h.err
}

type fixture struct {
	svc     domain.Service
	conn    *gorm.DB
	revoker *mockRevoker
	hooks   *recordingHooks
	prefs   *preference.Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}, &domain.Preference{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	revoker := new(mockRevoker)
	recorder := &recordingHooks{}
	svc := New(Params{
		Log:      zap.NewNop(),
		DB:       conn,
		Sessions: revoker,
		Hooks:    hooks.NewDispatcher(zap.NewNop(), nil, recorder),
		GenID:    node,
		Clock:    clk,
	})

	return &fixture{
		svc:     svc,
		conn:    conn,
		revoker: revoker,
		hooks:   recorder,
		prefs:   preference.NewFactory(conn, node, clk),
	}
}

func (f *fixture) create(t *testing.T, u *domain.User) *domain.User {
	t.Helper()
	require.NoError(t, f.svc.Create(context.Background(), u))
	return u
}

func TestCreateAssignsIDAndDerivesUsername(t *testing.T) {
	f := newFixture(t)

	u := f.create(t, &domain.User{NameShort: "Ann Lee"})
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ann-lee", u.Username)
	assert.Equal(t, domain.LifecycleActive, u.Lifecycle())

	err := f.svc.Create(context.Background(), &domain.User{})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)
}

func TestCreateDuplicateUsernameSurfacesStoreError(t *testing.T) {
	f := newFixture(t)
	f.create(t, &domain.User{Username: "dup"})

	err := f.svc.Create(context.Background(), &domain.User{Username: "dup"})
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err))
}

func TestSaveUpdatesExistingUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.create(t, &domain.User{Username: "ann"})

	u.NameFull = "Ann Lee"
	require.NoError(t, f.svc.Save(ctx, u))

	loaded, err := f.svc.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", loaded.NameFull)

	_, err = f.svc.Load(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDeleteRefusesReservedAndUnsaved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, &domain.User{ID: domain.RootID, Username: "root"})
	f.create(t, &domain.User{ID: domain.GuestID, Username: "guest"})

	for _, u := range []*domain.User{nil, {}, {ID: domain.RootID}, {ID: domain.GuestID}} {
		ok, err := f.svc.Delete(ctx, u, domain.DeleteOptions{RemoveAllTraces: true})
		require.NoError(t, err)
		assert.False(t, ok)
	}

	var count int64
	require.NoError(t, f.conn.Model(&domain.User{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Empty(t, f.hooks.deleted)
	f.revoker.AssertNotCalled(t, "DeleteByUser", mock.Anything, mock.Anything)
}

func TestSoftDeleteAndUndelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.create(t, &domain.User{Username: "bob"})

	ok, err := f.svc.Delete(ctx, u, domain.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.LifecycleSoftDeleted, u.Lifecycle())

	stored, err := f.svc.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
	require.Len(t, f.hooks.deleted, 1)
	assert.Equal(t, u.ID, f.hooks.deleted[0].ID)

	ok, err = f.svc.Undelete(ctx, u)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, u.Deleted)
	assert.Equal(t, []snowflake.ID{u.ID}, f.hooks.undeleted)

	stored, err = f.svc.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.Deleted)
}

func TestPurgeRemovesEverythingInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.create(t, &domain.User{Username: "carol"})
	id := u.ID
	require.NoError(t, f.prefs.For(id).Set(ctx, "ui", "theme", "dark"))

	f.revoker.On("DeleteByUser", mock.Anything, id).Run(func(mock.Arguments) {
		var users, prefs int64
		f.conn.Model(&domain.User{}).Where("id = ?", id).Count(&users)
		f.conn.Model(&domain.Preference{}).Where("user_id = ?", id).Count(&prefs)
		assert.Equal(t, int64(1), users, "user row must outlive its sessions")
		assert.Equal(t, int64(1), prefs, "preferences must outlive sessions")
	}).Return(int64(2), nil).Once()

	ok, err := f.svc.Delete(ctx, u, domain.DeleteOptions{RemoveAllTraces: true})
	require.NoError(t, err)
	assert.True(t, ok)
	f.revoker.AssertExpectations(t)

	assert.Zero(t, u.ID)
	assert.Equal(t, domain.LifecyclePurged, u.Lifecycle())

	var remaining int64
	require.NoError(t, f.conn.Model(&domain.Preference{}).Where("user_id = ?", id).Count(&remaining).Error)
	assert.Zero(t, remaining)
	_, err = f.svc.Load(ctx, id)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	require.Len(t, f.hooks.deleted, 1)
	assert.Equal(t, id, f.hooks.deleted[0].ID)
	assert.True(t, f.hooks.opts[0].RemoveAllTraces)

	ok, err = f.svc.Undelete(ctx, u)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPurgeWithSessionStoreLeavesNoTraces(t *testing.T) {
	ctx := context.Background()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}, &domain.Preference{}, &sessiondomain.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	sessions := sessionstore.New(sessionstore.Params{
		Log:    zap.NewNop(),
		DB:     conn,
		Clock:  clk,
		Config: config.NewStaticSessionConfigHolder(config.DefaultSessionConfig()),
	})
	svc := New(Params{
		Log:      zap.NewNop(),
		DB:       conn,
		Sessions: sessions,
		Hooks:    hooks.NewDispatcher(zap.NewNop(), nil),
		GenID:    node,
		Clock:    clk,
	})
	prefs := preference.NewFactory(conn, node, clk)

	u := &domain.User{Username: "gina"}
	require.NoError(t, svc.Create(ctx, u))
	other := &domain.User{Username: "hank"}
	require.NoError(t, svc.Create(ctx, other))
	id := u.ID

	require.NoError(t, sessions.Write(ctx, sessiondomain.WriteRequest{SessionID: "gina-session", Data: "{}", UserID: id}))
	require.NoError(t, sessions.CreatePersistent(ctx, "gina-token", id, 0))
	require.NoError(t, sessions.Write(ctx, sessiondomain.WriteRequest{SessionID: "hank-session", Data: "{}", UserID: other.ID}))
	require.NoError(t, prefs.For(id).Set(ctx, "ui", "theme", "dark"))
	require.NoError(t, prefs.For(other.ID).Set(ctx, "ui", "theme", "light"))

	ok, err := svc.Delete(ctx, u, domain.DeleteOptions{RemoveAllTraces: true})
	require.NoError(t, err)
	assert.True(t, ok)

	count := func(model any, column string, value snowflake.ID) int64 {
		var n int64
		require.NoError(t, conn.Model(model).Where(column+" = ?", value).Count(&n).Error)
		return n
	}
	assert.Zero(t, count(&sessiondomain.Record{}, "user_id", id))
	assert.Zero(t, count(&domain.Preference{}, "user_id", id))
	assert.Zero(t, count(&domain.User{}, "id", id))

	assert.Equal(t, int64(1), count(&sessiondomain.Record{}, "user_id", other.ID))
	assert.Equal(t, int64(1), count(&domain.Preference{}, "user_id", other.ID))
	assert.Equal(t, int64(1), count(&domain.User{}, "id", other.ID))
}

func TestPurgeStopsOnSessionStoreError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.create(t, &domain.User{Username: "dave"})
	boom := errors.New("sessions unavailable")
	f.revoker.On("DeleteByUser", mock.Anything, u.ID).Return(int64(0), boom).Once()

	ok, err := f.svc.Delete(ctx, u, domain.DeleteOptions{RemoveAllTraces: true})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
	assert.NotZero(t, u.ID)
	assert.Empty(t, f.hooks.deleted)
}

func TestHookFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.hooks.err = errors.New("hook down")
	u := f.create(t, &domain.User{Username: "erin"})

	ok, err := f.svc.Delete(ctx, u, domain.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.svc.Load(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted)
}

func TestUndeleteMissingUser(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.Undelete(context.Background(), &domain.User{})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.Undelete(context.Background(), &domain.User{ID: 12345})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, &domain.User{ID: domain.GuestID, Username: "guest", NameFull: "Guest"})
	alice := f.create(t, &domain.User{ID: 100, Username: "alice", NameFull: "Alice Smith"})
	malice := f.create(t, &domain.User{ID: 101, Username: "mal", NameShort: "Malice"})
	f.create(t, &domain.User{ID: 102, Username: "bob"})

	got, err := f.svc.Search(ctx, "ALI", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, alice.ID, got[0].ID)
	assert.Equal(t, malice.ID, got[1].ID)

	got, err = f.svc.Search(ctx, "guest", domain.SearchOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.svc.Delete(ctx, alice, domain.DeleteOptions{})
	require.NoError(t, err)

	got, err = f.svc.Search(ctx, "ali", domain.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, malice.ID, got[0].ID)

	got, err = f.svc.Search(ctx, "ali", domain.SearchOptions{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetByIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.create(t, &domain.User{ID: 10, Username: "a"})
	b := f.create(t, &domain.User{ID: 11, Username: "b"})
	c := f.create(t, &domain.User{ID: 12, Username: "c"})
	_, err := f.svc.Delete(ctx, c, domain.DeleteOptions{})
	require.NoError(t, err)

	got, err := f.svc.GetByIDs(ctx, []snowflake.ID{a.ID, b.ID, c.ID}, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)

	got, err = f.svc.GetByIDs(ctx, []snowflake.ID{a.ID, b.ID, c.ID}, true)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = f.svc.GetByIDs(ctx, nil, true)
	require.NoError(t, err)
	assert.Empty(t, got)
}
