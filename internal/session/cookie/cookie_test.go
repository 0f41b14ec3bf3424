package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicySetAndClear(t *testing.T) {
	p := Policy{Secure: true, SameSite: http.SameSiteLaxMode}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	set := p.Set("USERSESS_persist", "tok", now, now.Add(365*24*time.Hour))
	assert.Equal(t, 31536000, set.MaxAge)
	assert.Equal(t, "/", set.Path)
	assert.True(t, set.HTTPOnly)
	assert.False(t, set.Clears())

	session := p.Set("USERSESS", "sid", now, time.Time{})
	assert.Zero(t, session.MaxAge)

	cleared := p.Clear("USERSESS")
	assert.True(t, cleared.Clears())
	assert.True(t, cleared.Expires.Before(now))
}

func TestRecorderEffectiveKeepsLastPerName(t *testing.T) {
	p := Policy{}
	now := time.Now()
	var r Recorder
	r.Set(p.Set("a", "1", now, time.Time{}))
	r.Set(p.Set("b", "2", now, time.Time{}))
	r.Set(p.Clear("a"))

	eff := r.Effective()
	require.Len(t, eff, 2)
	assert.Equal(t, "a", eff[0].Name)
	assert.True(t, eff[0].Clears())
	assert.Equal(t, "b", eff[1].Name)

	last, ok := r.Last("a")
	require.True(t, ok)
	assert.True(t, last.Clears())
	assert.Len(t, r.Instructions(), 3)
}

func TestApplyWritesSetCookieHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: "USERSESS", Value: "abc"})

	assert.Equal(t, map[string]string{"USERSESS": "abc"}, FromGin(c))

	var r Recorder
	r.Set(Policy{}.Clear("USERSESS"))
	Apply(c, &r)

	res := w.Result()
	cookies := res.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "USERSESS", cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
