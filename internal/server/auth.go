package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/session/resolver"
	"go.uber.org/zap"
)

type loginRequest struct {
	UserID     string `json:"user_id"`
	Persistent bool   `json:"persistent"`
}

type logoutRequest struct {
	Everywhere bool `json:"everywhere"`
}

type userResponse struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	NameShort    string `json:"name_short,omitempty"`
	NameFull     string `json:"name_full,omitempty"`
	Image        string `json:"image,omitempty"`
	VisibleIdent string `json:"visible_ident"`
	Deleted      bool   `json:"deleted,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type meResponse struct {
	User     userResponse `json:"user"`
	LoggedIn bool         `json:"logged_in"`
	Strategy string       `json:"strategy"`
}

// LoginRateLimit throttles login attempts per client address.
func (s *Server) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Enabled() {
			c.Next()
			return
		}
		res := s.loginLimiter.Allow(c.Request.Context(), c.ClientIP())
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

// Login binds the request's session to a user. Credentials are not checked here; the route only
// exists in development builds.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseUserID(req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	caller := callerFrom(c)
	if caller == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	if err := caller.Login(ctx, userID, req.Persistent); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Request = c.Request.WithContext(withCallerActor(ctx, caller))

	c.JSON(http.StatusOK, newMeResponse(caller))
}

func (s *Server) Logout(c *gin.Context) {
	var req logoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	caller := callerFrom(c)
	if caller == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	if err := caller.Logout(ctx, req.Everywhere); err != nil {
		// The caller is already the guest; leftover rows expire through gc.
		logger.WithContext(ctx, s.log).Warn("logout incomplete", zap.Error(err))
	}

	c.Status(http.StatusNoContent)
}

func newMeResponse(caller *resolver.Caller) meResponse {
	return meResponse{
		User:     newUserResponse(caller.User),
		LoggedIn: caller.LoggedIn,
		Strategy: caller.Strategy,
	}
}

func newUserResponse(user *identitydomain.User) userResponse {
	if user == nil {
		return userResponse{}
	}
	resp := userResponse{
		ID:           user.ID.String(),
		Username:     user.Username,
		NameShort:    user.NameShort,
		NameFull:     user.NameFull,
		Image:        user.Image,
		VisibleIdent: user.VisibleIdent(),
		Deleted:      user.Deleted,
	}
	if !user.CreatedAt.IsZero() {
		resp.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func parseUserID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, identitydomain.ErrInvalidUserID
	}
	return id, nil
}
