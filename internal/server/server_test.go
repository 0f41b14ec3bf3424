package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	audithooks "github.com/smallbiznis/identity/internal/audit/hooks"
	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	auditrepo "github.com/smallbiznis/identity/internal/audit/repository"
	auditservice "github.com/smallbiznis/identity/internal/audit/service"
	"github.com/smallbiznis/identity/internal/authorization"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/identity/hooks"
	"github.com/smallbiznis/identity/internal/identity/preference"
	identityservice "github.com/smallbiznis/identity/internal/identity/service"
	"github.com/smallbiznis/identity/internal/migration"
	"github.com/smallbiznis/identity/internal/observability"
	"github.com/smallbiznis/identity/internal/seed"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/manager"
	"github.com/smallbiznis/identity/internal/session/resolver"
	sessionstore "github.com/smallbiznis/identity/internal/session/store"
	"github.com/smallbiznis/identity/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	conn   *gorm.DB
	clock  *clock.FakeClock
	engine http.Handler
	users  identitydomain.Service
}

func newTestServer(t *testing.T, devLogin bool) *testServer {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(conn))

	clk := clock.NewFakeClock(epoch)
	require.NoError(t, seed.EnsureReservedUsers(context.Background(), conn, clk))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	holder := config.NewStaticSessionConfigHolder(config.DefaultSessionConfig())

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: auditSvc})

	st := sessionstore.New(sessionstore.Params{Log: log, DB: conn, Clock: clk, Config: holder})
	dispatcher := hooks.NewDispatcher(log, nil, audithooks.New(auditSvc))
	users := identityservice.New(identityservice.Params{
		Log:      log,
		DB:       conn,
		Sessions: st,
		Hooks:    dispatcher,
		GenID:    node,
		Clock:    clk,
	})
	mgr := manager.New(manager.Params{
		Log:     log,
		Handler: st,
		Config:  holder,
		Policy:  cookie.Policy{Path: "/", SameSite: http.SameSiteLaxMode},
		Clock:   clk,
	})
	res := resolver.New(resolver.Params{
		Log:      log,
		Sessions: st,
		Manager:  mgr,
		Users:    users,
		Prefs:    preference.NewFactory(conn, node, clk),
		Hooks:    dispatcher,
		Config:   holder,
		Clock:    clk,
	})

	srv := NewServer(ServerParams{
		Gin:      NewEngine(observability.Config{LogLevel: "info", Environment: "production"}),
		Cfg:      config.Config{DevLogin: devLogin},
		Log:      log,
		Clock:    clk,
		Users:    users,
		Sessions: st,
		Manager:  mgr,
		Resolver: res,
		AuthzSvc: authzSvc,
		AuditSvc: auditSvc,
	})

	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &identitydomain.User{ID: 42, Username: "ann", NameFull: "Ann Lee"}))
	require.NoError(t, users.Create(ctx, &identitydomain.User{ID: 43, Username: "bob", NameShort: "Bob"}))

	return &testServer{conn: conn, clock: clk, engine: srv.Engine(), users: users}
}

// browser keeps cookies between requests the way a user agent would.
type browser struct {
	ts      *testServer
	cookies map[string]string
}

func (ts *testServer) browser() *browser {
	return &browser{ts: ts, cookies: map[string]string{}}
}

func (b *browser) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	b.ts.engine.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(b.cookies, ck.Name)
			continue
		}
		b.cookies[ck.Name] = ck.Value
	}
	return rec
}

func (b *browser) login(t *testing.T, userID string, persistent bool) {
	t.Helper()
	rec := b.do(t, http.MethodPost, "/auth/login", map[string]any{"user_id": userID, "persistent": persistent})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeMe(t *testing.T, rec *httptest.ResponseRecorder) meResponse {
	t.Helper()
	var out meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestMeWithoutCookiesIsGuest(t *testing.T) {
	ts := newTestServer(t, false)
	b := ts.browser()

	rec := b.do(t, http.MethodGet, "/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	me := decodeMe(t, rec)
	assert.False(t, me.LoggedIn)
	assert.Equal(t, identitydomain.GuestID.String(), me.User.ID)
	assert.Equal(t, resolver.StrategyGuest, me.Strategy)
	assert.Contains(t, b.cookies, config.DefaultSessionName)
}

func TestLoginRouteOnlyInDevelopment(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.browser().do(t, http.MethodPost, "/auth/login", map[string]any{"user_id": "42"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginBindsSessionAcrossRequests(t *testing.T) {
	ts := newTestServer(t, true)
	b := ts.browser()

	b.login(t, "42", false)
	assert.NotContains(t, b.cookies, config.DefaultSessionName+"_persist")

	me := decodeMe(t, b.do(t, http.MethodGet, "/me", nil))
	assert.True(t, me.LoggedIn)
	assert.Equal(t, "42", me.User.ID)
	assert.Equal(t, "Ann Lee", me.User.VisibleIdent)
	assert.Equal(t, resolver.StrategyActiveSession, me.Strategy)

	var logins int64
	require.NoError(t, ts.conn.Model(&auditdomain.AuditLog{}).
		Where("action = ? AND target_id = ?", auditdomain.ActionUserLogin, "42").
		Count(&logins).Error)
	assert.Equal(t, int64(1), logins)
}

func TestLoginRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, true)
	b := ts.browser()

	rec := b.do(t, http.MethodPost, "/auth/login", map[string]any{"user_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user_id", decodeError(t, rec).Errors[0].Code)

	rec = b.do(t, http.MethodPost, "/auth/login", map[string]any{"user_id": "999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = b.do(t, http.MethodPost, "/auth/login", map[string]any{"user_id": "2", "persistent": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersistentCookieRestoresLogin(t *testing.T) {
	ts := newTestServer(t, true)
	b := ts.browser()

	b.login(t, "42", true)
	persist := b.cookies[config.DefaultSessionName+"_persist"]
	require.NotEmpty(t, persist)

	// A new browser session carrying only the remember-me cookie.
	fresh := ts.browser()
	fresh.cookies[config.DefaultSessionName+"_persist"] = persist

	me := decodeMe(t, fresh.do(t, http.MethodGet, "/me", nil))
	assert.True(t, me.LoggedIn)
	assert.Equal(t, "42", me.User.ID)
	assert.Equal(t, resolver.StrategyPersistentCookie, me.Strategy)
	require.Contains(t, fresh.cookies, config.DefaultSessionName)

	me = decodeMe(t, fresh.do(t, http.MethodGet, "/me", nil))
	assert.Equal(t, resolver.StrategyActiveSession, me.Strategy)
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t, true)
	b := ts.browser()
	b.login(t, "42", true)
	stale := b.cookies[config.DefaultSessionName]

	rec := b.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, b.cookies, config.DefaultSessionName+"_persist")

	replay := ts.browser()
	replay.cookies[config.DefaultSessionName] = stale
	me := decodeMe(t, replay.do(t, http.MethodGet, "/me", nil))
	assert.False(t, me.LoggedIn)
	assert.NotEqual(t, stale, replay.cookies[config.DefaultSessionName])
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(t, true)
	b := ts.browser()

	rec := b.do(t, http.MethodGet, "/me/preferences", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	b.login(t, "42", false)

	rec = b.do(t, http.MethodPut, "/me/preferences/ui/theme", map[string]any{"value": "dark"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = b.do(t, http.MethodPut, "/me/preferences/ui/page_size", map[string]any{"value": 25})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = b.do(t, http.MethodPut, "/me/preferences/ui/columns", map[string]any{"value": []string{"a"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_value", decodeError(t, rec).Errors[0].Code)

	rec = b.do(t, http.MethodGet, "/me/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data map[string]map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, map[string]map[string]string{"ui": {"theme": "dark", "page_size": "25"}}, list.Data)

	rec = b.do(t, http.MethodDelete, "/me/preferences/ui/theme", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = b.do(t, http.MethodGet, "/me/preferences/ui/theme", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := newTestServer(t, true)

	anon := ts.browser()
	assert.Equal(t, http.StatusUnauthorized, anon.do(t, http.MethodGet, "/admin/users", nil).Code)

	ann := ts.browser()
	ann.login(t, "42", false)
	assert.Equal(t, http.StatusForbidden, ann.do(t, http.MethodGet, "/admin/users", nil).Code)

	root := ts.browser()
	root.login(t, "1", false)
	require.Equal(t, http.StatusNoContent, root.do(t, http.MethodPost, "/admin/users/42/roles", map[string]any{"role": "admin"}).Code)

	rec := ann.do(t, http.MethodGet, "/admin/users?q=bo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found struct {
		Data []userResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Len(t, found.Data, 1)
	assert.Equal(t, "bob", found.Data[0].Username)

	require.Equal(t, http.StatusNoContent, root.do(t, http.MethodDelete, "/admin/users/42/roles/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, ann.do(t, http.MethodGet, "/admin/users", nil).Code)
}

func TestAdminDeleteAndUndelete(t *testing.T) {
	ts := newTestServer(t, true)
	root := ts.browser()
	root.login(t, "1", false)
	ctx := context.Background()

	rec := root.do(t, http.MethodDelete, "/admin/users/43", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	bob, err := ts.users.Load(ctx, 43)
	require.NoError(t, err)
	assert.True(t, bob.Deleted)

	rec = root.do(t, http.MethodGet, "/admin/users/lookup?ids=42,43", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lookup struct {
		Data []userResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lookup))
	require.Len(t, lookup.Data, 1)
	assert.Equal(t, "42", lookup.Data[0].ID)

	rec = root.do(t, http.MethodPost, "/admin/users/43/undelete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bob, err = ts.users.Load(ctx, 43)
	require.NoError(t, err)
	assert.False(t, bob.Deleted)

	assert.Equal(t, http.StatusNotFound, root.do(t, http.MethodDelete, "/admin/users/2", nil).Code)
	assert.Equal(t, http.StatusNotFound, root.do(t, http.MethodDelete, "/admin/users/777", nil).Code)

	rec = root.do(t, http.MethodDelete, "/admin/users/43?purge=true", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = ts.users.Load(ctx, 43)
	assert.ErrorIs(t, err, identitydomain.ErrUserNotFound)

	var purges int64
	require.NoError(t, ts.conn.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionUserPurge).
		Count(&purges).Error)
	assert.Equal(t, int64(1), purges)
}

func TestAdminDestroysSession(t *testing.T) {
	ts := newTestServer(t, true)
	ann := ts.browser()
	ann.login(t, "42", false)
	root := ts.browser()
	root.login(t, "1", false)

	rec := root.do(t, http.MethodGet, "/admin/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []sessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))

	var target string
	for _, item := range list.Data {
		if item.UserID == "42" {
			target = item.ID
		}
	}
	require.Equal(t, ann.cookies[config.DefaultSessionName], target)

	rec = root.do(t, http.MethodDelete, "/admin/sessions/"+target, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	me := decodeMe(t, ann.do(t, http.MethodGet, "/me", nil))
	assert.False(t, me.LoggedIn)

	rec = root.do(t, http.MethodGet, "/admin/audit-logs?action="+auditdomain.ActionSessionDestroy, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs struct {
		Data []auditdomain.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs.Data, 1)
	require.NotNil(t, logs.Data[0].ActorID)
	assert.Equal(t, "1", *logs.Data[0].ActorID)
}

func TestAuditLogQueryValidation(t *testing.T) {
	ts := newTestServer(t, true)
	root := ts.browser()
	root.login(t, "1", false)

	rec := root.do(t, http.MethodGet, "/admin/audit-logs?start_at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = root.do(t, http.MethodGet, "/admin/audit-logs?start_at=2024-04-02T00:00:00Z&end_at=2024-04-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_time_range", decodeError(t, rec).Errors[0].Code)
}
