package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	"github.com/smallbiznis/identity/internal/audit/masking"
	"github.com/smallbiznis/identity/internal/authorization"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"go.uber.org/zap"
)

const maxLookupIDs = 100

type searchUsersQuery struct {
	Query          string `form:"q"`
	IncludeDeleted bool   `form:"include_deleted"`
	Limit          int    `form:"limit"`
}

type lookupUsersQuery struct {
	IDs            string `form:"ids"`
	IncludeDeleted bool   `form:"include_deleted"`
}

type grantRoleRequest struct {
	Role string `json:"role"`
}

type sessionResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	RequestURI string    `json:"request_uri,omitempty"`
	ScriptPath string    `json:"script_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Server) SearchUsers(c *gin.Context) {
	var query searchUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if query.Limit < 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	users, err := s.users.Search(c.Request.Context(), strings.TrimSpace(query.Query), identitydomain.SearchOptions{
		IncludeDeleted: query.IncludeDeleted,
		Limit:          query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newUserResponses(users)})
}

func (s *Server) LookupUsers(c *gin.Context) {
	var query lookupUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var ids []snowflake.ID
	for _, raw := range strings.Split(query.IDs, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := parseUserID(raw)
		if err != nil {
			AbortWithError(c, newValidationError("ids", "invalid_ids", "invalid user id in ids"))
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 || len(ids) > maxLookupIDs {
		AbortWithError(c, newValidationError("ids", "invalid_ids", "between 1 and 100 ids are required"))
		return
	}

	users, err := s.users.GetByIDs(c.Request.Context(), ids, query.IncludeDeleted)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newUserResponses(users)})
}

// authorizeUserDelete checks the purge permission when the request asks to remove all traces.
func (s *Server) authorizeUserDelete() gin.HandlerFunc {
	del := s.authorize(authorization.ObjectUser, authorization.ActionUserDelete)
	purge := s.authorize(authorization.ObjectUser, authorization.ActionUserPurge)
	return func(c *gin.Context) {
		if wantsPurge(c) {
			purge(c)
			return
		}
		del(c)
	}
}

func (s *Server) DeleteUser(c *gin.Context) {
	user, ok := s.loadUserParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	opts := identitydomain.DeleteOptions{RemoveAllTraces: wantsPurge(c)}
	deleted, err := s.users.Delete(ctx, user, opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !deleted {
		AbortWithError(c, ErrNotFound)
		return
	}

	logger.WithContext(ctx, s.log).Info("user deleted",
		zap.String("lifecycle", string(user.Lifecycle())),
		zap.Bool("remove_all_traces", opts.RemoveAllTraces),
	)
	c.Status(http.StatusNoContent)
}

func (s *Server) UndeleteUser(c *gin.Context) {
	user, ok := s.loadUserParam(c)
	if !ok {
		return
	}

	restored, err := s.users.Undelete(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !restored {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newUserResponse(user)})
}

func (s *Server) GrantRole(c *gin.Context) {
	user, ok := s.loadUserParam(c)
	if !ok {
		return
	}

	var req grantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.authzSvc.Grant(c.Request.Context(), user.ID, normalizeRole(req.Role)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RevokeRole(c *gin.Context) {
	userID, err := parseUserID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authzSvc.Revoke(c.Request.Context(), userID, normalizeRole(c.Param("role"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSessions lists interactive sessions that have not been destroyed, newest first.
func (s *Server) ListSessions(c *gin.Context) {
	records, err := s.sessions.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		if rec.Persistent {
			continue
		}
		item := sessionResponse{
			ID:         rec.SessionID,
			ClientIP:   rec.ClientIP,
			RequestURI: rec.RequestURI,
			ScriptPath: rec.ScriptPath,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
			ExpiresAt:  rec.ExpiresAt,
		}
		if rec.HasUser() {
			item.UserID = rec.UserID.String()
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) DestroySession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()

	if err := s.sessions.DestroyByID(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			Action:     auditdomain.ActionSessionDestroy,
			TargetType: auditdomain.TargetTypeSession,
			TargetID:   masking.MaskSecret(id),
		})
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) loadUserParam(c *gin.Context) (*identitydomain.User, bool) {
	userID, err := parseUserID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	user, err := s.users.Load(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return user, true
}

func wantsPurge(c *gin.Context) bool {
	purge, err := strconv.ParseBool(c.DefaultQuery("purge", "false"))
	return err == nil && purge
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" || strings.HasPrefix(role, "role:") {
		return role
	}
	return "role:" + role
}

func newUserResponses(users []*identitydomain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, newUserResponse(user))
	}
	return out
}
