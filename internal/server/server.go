package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/identity/internal/audit"
	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	"github.com/smallbiznis/identity/internal/authorization"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	"github.com/smallbiznis/identity/internal/identity"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/observability"
	obslogger "github.com/smallbiznis/identity/internal/observability/logger"
	obstracing "github.com/smallbiznis/identity/internal/observability/tracing"
	"github.com/smallbiznis/identity/internal/ratelimit"
	"github.com/smallbiznis/identity/internal/session"
	sessiondomain "github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/manager"
	"github.com/smallbiznis/identity/internal/session/resolver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	authorization.Module,
	identity.Module,
	session.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	users        identitydomain.Service
	sessions     sessiondomain.Repository
	manager      *manager.Manager
	resolver     *resolver.Resolver
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	loginLimiter *ratelimit.LoginLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Users        identitydomain.Service
	Sessions     sessiondomain.Repository
	Manager      *manager.Manager
	Resolver     *resolver.Resolver
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	LoginLimiter *ratelimit.LoginLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		clock:        p.Clock,
		users:        p.Users,
		sessions:     p.Sessions,
		manager:      p.Manager,
		resolver:     p.Resolver,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		loginLimiter: p.LoginLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerMeRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth", s.Identity())

	if s.cfg.DevLogin {
		auth.POST("/login", s.LoginRateLimit(), s.Login)
	}
	auth.POST("/logout", s.Logout)
}

func (s *Server) registerMeRoutes() {
	me := s.engine.Group("/me", s.Identity())

	me.GET("", s.authorize(authorization.ObjectProfile, authorization.ActionProfileView), s.Me)

	prefs := me.Group("/preferences", s.LoginRequired())
	{
		prefs.GET("", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceView), s.ListPreferences)
		prefs.GET("/:component/:key", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceView), s.GetPreference)
		prefs.PUT("/:component/:key", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceUpdate), s.SetPreference)
		prefs.DELETE("/:component/:key", s.authorize(authorization.ObjectPreference, authorization.ActionPreferenceUpdate), s.DeletePreference)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.Identity(), s.LoginRequired())

	admin.GET("/users", s.authorize(authorization.ObjectUser, authorization.ActionUserSearch), s.SearchUsers)
	admin.GET("/users/lookup", s.authorize(authorization.ObjectUser, authorization.ActionUserSearch), s.LookupUsers)
	admin.DELETE("/users/:id", s.authorizeUserDelete(), s.DeleteUser)
	admin.POST("/users/:id/undelete", s.authorize(authorization.ObjectUser, authorization.ActionUserUndelete), s.UndeleteUser)
	admin.POST("/users/:id/roles", s.authorize(authorization.ObjectUser, authorization.ActionUserRoles), s.GrantRole)
	admin.DELETE("/users/:id/roles/:role", s.authorize(authorization.ObjectUser, authorization.ActionUserRoles), s.RevokeRole)

	admin.GET("/sessions", s.authorize(authorization.ObjectSession, authorization.ActionSessionView), s.ListSessions)
	admin.DELETE("/sessions/:id", s.authorize(authorization.ObjectSession, authorization.ActionSessionDestroy), s.DestroySession)

	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
