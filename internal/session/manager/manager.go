// Package manager runs the interactive session of a request on top of a session handler.
package manager

import (
	"context"
	"time"

	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/session/cookie"
	"github.com/smallbiznis/identity/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Handler domain.Handler
	Config  *config.SessionConfigHolder
	Policy  cookie.Policy
	Clock   clock.Clock
}

type Manager struct {
	log     *zap.Logger
	handler domain.Handler
	cfg     *config.SessionConfigHolder
	policy  cookie.Policy
	clock   clock.Clock
}

func New(p Params) *Manager {
	return &Manager{
		log:     p.Log.Named("session.manager"),
		handler: p.Handler,
		cfg:     p.Config,
		policy:  p.Policy,
		clock:   p.Clock,
	}
}

// CookieName is the interactive session cookie name.
func (m *Manager) CookieName() string {
	return m.cfg.Get().Name
}

// PersistentCookieName is the remember-me cookie name.
func (m *Manager) PersistentCookieName() string {
	return m.cfg.Get().PersistentCookieName()
}

// Policy exposes the shared cookie attributes.
func (m *Manager) Policy() cookie.Policy {
	return m.policy
}

// Start loads the session named by the request cookie or begins a fresh one.
// Unknown, malformed and destroyed ids never carry over; the client gets a new id.
func (m *Manager) Start(ctx context.Context, req domain.Request, jar cookie.Jar) (*Session, error) {
	name := m.CookieName()
	log := logger.WithContext(ctx, m.log)

	if id, ok := req.Cookie(name); ok && ValidToken(id) {
		res, err := m.handler.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case res.ClearCookie:
			jar.Set(m.policy.Clear(name))
		case res.Data != "":
			sess := &Session{ID: id}
			err := decodePayload(res.Data, sess)
			if err == nil {
				return sess, nil
			}
			log.Warn("discarding unreadable session payload", zap.Error(err))
		}
	}

	id, err := NewToken()
	if err != nil {
		return nil, err
	}
	return newSession(id), nil
}

// Save writes the session and hands a new session's cookie to the client.
// Destroyed sessions are not written.
func (m *Manager) Save(ctx context.Context, sess *Session, req domain.Request, jar cookie.Jar) error {
	if sess == nil || sess.destroyed {
		return nil
	}
	data, err := encodePayload(sess)
	if err != nil {
		return err
	}
	err = m.handler.Write(ctx, domain.WriteRequest{
		SessionID:  sess.ID,
		Data:       data,
		UserID:     sess.UserID,
		ClientIP:   req.ClientIP,
		RequestURI: req.RequestURI,
		ScriptPath: req.ScriptPath,
	})
	if err != nil {
		return err
	}
	if sess.isNew {
		jar.Set(m.policy.Set(m.CookieName(), sess.ID, m.clock.Now(), time.Time{}))
		sess.isNew = false
	}
	return nil
}

// Destroy invalidates the session, forgets its state and clears the client cookie.
func (m *Manager) Destroy(ctx context.Context, sess *Session, jar cookie.Jar) error {
	if sess == nil {
		return nil
	}
	if !sess.isNew {
		if err := m.handler.Destroy(ctx, sess.ID); err != nil {
			return err
		}
	}
	sess.Clear()
	sess.destroyed = true
	jar.Set(m.policy.Clear(m.CookieName()))
	return nil
}

// Close runs garbage collection when configured to do so on each request.
func (m *Manager) Close(ctx context.Context) error {
	if !m.cfg.Get().GCOnRequest {
		return nil
	}
	return m.handler.Close(ctx)
}
