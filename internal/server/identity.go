package server

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/identity/internal/audit/masking"
	obscontext "github.com/smallbiznis/identity/internal/observability/context"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/session/cookie"
	sessiondomain "github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/internal/session/resolver"
	"go.uber.org/zap"
)

const contextCallerKey = "identity.caller"

// sessionWriter saves the session and emits its cookies right before the first byte of the response.
type sessionWriter struct {
	gin.ResponseWriter
	once   sync.Once
	commit func()
}

func (w *sessionWriter) flushSession() {
	w.once.Do(w.commit)
}

func (w *sessionWriter) WriteHeaderNow() {
	w.flushSession()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(data)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.flushSession()
	return w.ResponseWriter.WriteString(s)
}

// Identity starts the request's session and resolves the caller.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := sessiondomain.Request{
			Cookies:    cookie.FromGin(c),
			ClientIP:   c.ClientIP(),
			RequestURI: c.Request.RequestURI,
			ScriptPath: c.FullPath(),
		}
		ctx := obscontext.WithClient(c.Request.Context(), req.ClientIP, c.Request.UserAgent())
		jar := &cookie.Recorder{}

		sess, err := s.manager.Start(ctx, req, jar)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		caller := s.resolver.Resolve(ctx, req, sess, jar)
		ctx = withCallerActor(ctx, caller)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextCallerKey, caller)

		original := c.Writer
		writer := &sessionWriter{ResponseWriter: original}
		writer.commit = func() {
			s.commitSession(c.Request.Context(), caller, req, jar)
			cookie.Apply(c, jar)
		}
		c.Writer = writer

		c.Next()

		writer.flushSession()
		c.Writer = original

		if err := s.manager.Close(c.Request.Context()); err != nil {
			logger.WithContext(c.Request.Context(), s.log).Warn("session gc failed", zap.Error(err))
		}
	}
}

func (s *Server) commitSession(ctx context.Context, caller *resolver.Caller, req sessiondomain.Request, jar cookie.Jar) {
	sess := caller.Session()
	if sess == nil || sess.Destroyed() {
		return
	}
	err := s.manager.Save(ctx, sess, req, jar)
	switch {
	case err == nil:
	case errors.Is(err, sessiondomain.ErrSessionInvalidated):
		logger.WithContext(ctx, s.log).Info("session was invalidated during the request", zap.String("session", masking.MaskSecret(sess.ID)))
	default:
		logger.WithContext(ctx, s.log).Error("failed to save session", zap.Error(err))
	}
}

// LoginRequired rejects guests.
func (s *Server) LoginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		if caller == nil || !caller.LoggedIn {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		if caller == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), caller.ID(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) *resolver.Caller {
	v, ok := c.Get(contextCallerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*resolver.Caller)
	return caller
}

func withCallerActor(ctx context.Context, caller *resolver.Caller) context.Context {
	if caller.LoggedIn {
		return obscontext.WithActor(ctx, obscontext.ActorTypeUser, caller.ID().String())
	}
	return obscontext.WithActor(ctx, obscontext.ActorTypeGuest, caller.ID().String())
}
