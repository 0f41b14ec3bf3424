// Package store persists session records and implements the session handler contract.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/config"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/observability/metrics"
	"github.com/smallbiznis/identity/internal/session/domain"
	"github.com/smallbiznis/identity/pkg/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	DB      *gorm.DB
	Clock   clock.Clock
	Config  *config.SessionConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Store struct {
	log     *zap.Logger
	records store.Store[domain.Record]
	clock   clock.Clock
	cfg     *config.SessionConfigHolder
	metrics *metrics.Metrics
}

func New(p Params) *Store {
	return &Store{
		log:     p.Log.Named("session.store"),
		records: store.New[domain.Record](p.DB),
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,
	}
}

// Open has nothing to prepare; the connection pool is owned by the database module.
func (s *Store) Open(context.Context) error { return nil }

// Close collects expired rows using the configured lifetime.
func (s *Store) Close(ctx context.Context) error {
	_, err := s.GC(ctx, s.cfg.Get().TTL)
	return err
}

// Read returns the stored payload. A missing session reads as empty. An invalidated one
// reads as empty and asks the caller to clear the client's cookie.
func (s *Store) Read(ctx context.Context, sessionID string) (domain.ReadResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.ReadResult{}, nil
	}
	rec, err := s.records.GetOne(ctx, store.Filter{"session_id": sessionID})
	if err != nil {
		return domain.ReadResult{}, err
	}
	if rec == nil {
		return domain.ReadResult{}, nil
	}
	if rec.Invalidated {
		return domain.ReadResult{ClearCookie: true}, nil
	}
	return domain.ReadResult{Data: rec.Data}, nil
}

// Write inserts or refreshes a session. A destroyed session is never written again.
func (s *Store) Write(ctx context.Context, req domain.WriteRequest) error {
	if strings.TrimSpace(req.SessionID) == "" {
		s.metrics.RecordRejectedWrite(ctx, "empty_id")
		return domain.ErrInvalidSession
	}

	now := s.clock.Now()
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.cfg.Get().TTL
	}
	expiresAt := now.Add(ttl)

	rec, err := s.records.GetOne(ctx, store.Filter{"session_id": req.SessionID})
	if err != nil {
		return err
	}
	if rec == nil {
		return s.records.Insert(ctx, &domain.Record{
			SessionID:  req.SessionID,
			Data:       req.Data,
			UserID:     userRef(req.UserID),
			ClientIP:   req.ClientIP,
			RequestURI: req.RequestURI,
			ScriptPath: req.ScriptPath,
			CreatedAt:  now,
			UpdatedAt:  now,
			ExpiresAt:  expiresAt,
		})
	}
	if rec.Invalidated {
		s.metrics.RecordRejectedWrite(ctx, "invalidated")
		return domain.ErrSessionInvalidated
	}

	// The invalidated guard keeps a destroy that lands between the read and this update final.
	n, err := s.records.Update(ctx, map[string]any{
		"data":        req.Data,
		"expires_at":  expiresAt,
		"updated_at":  now,
		"user_id":     userRef(req.UserID),
		"client_ip":   req.ClientIP,
		"request_uri": req.RequestURI,
		"script_path": req.ScriptPath,
	}, store.Filter{"session_id": req.SessionID, "invalidated": false})
	if err != nil {
		return err
	}
	if n == 0 {
		s.metrics.RecordRejectedWrite(ctx, "invalidated")
		return domain.ErrSessionInvalidated
	}
	return nil
}

// Destroy invalidates a session. Unknown and already invalid sessions succeed.
// Only existing rows stay destroyed; an unknown id leaves nothing behind to guard a later Write.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	_, err := s.records.Update(ctx, map[string]any{
		"invalidated": true,
		"updated_at":  s.clock.Now(),
	}, store.Filter{"session_id": sessionID})
	return err
}

// GC deletes every row whose expiry has passed. Rows carry their own expiry, so
// maxLifetime does not widen or narrow the sweep.
func (s *Store) GC(ctx context.Context, maxLifetime time.Duration) (int64, error) {
	n, err := s.records.DeleteWhere(ctx, "expires_at < ?", s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.RecordSessionsExpired(ctx, n)
		logger.WithContext(ctx, s.log).Debug("expired sessions collected",
			zap.Int64("deleted", n),
			zap.Duration("max_lifetime", maxLifetime),
		)
	}
	return n, nil
}

// CreatePersistent stores a remember-me token for userID.
func (s *Store) CreatePersistent(ctx context.Context, token string, userID snowflake.ID, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return domain.ErrInvalidSession
	}
	if ttl <= 0 {
		ttl = s.cfg.Get().PersistentTTL
	}
	now := s.clock.Now()
	return s.records.Insert(ctx, &domain.Record{
		SessionID:  token,
		UserID:     userRef(userID),
		Persistent: true,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	})
}

func (s *Store) FindPersistent(ctx context.Context, token string) (*domain.Record, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return s.records.GetOne(ctx, store.Filter{
		"session_id":  token,
		"persistent":  true,
		"invalidated": false,
	})
}

func (s *Store) DeletePersistent(ctx context.Context, token string) (int64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	return s.records.Delete(ctx, store.Filter{"session_id": token, "persistent": true})
}

// DeleteByUser removes every session row, interactive or persistent, bound to userID.
func (s *Store) DeleteByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID <= 0 {
		return 0, nil
	}
	return s.records.Delete(ctx, store.Filter{"user_id": userID})
}

// ListActive returns sessions that were not destroyed, newest first.
func (s *Store) ListActive(ctx context.Context) ([]*domain.Record, error) {
	return s.records.GetMany(ctx, store.Filter{"invalidated": false}, store.OrderBy("created_at DESC"))
}

// DestroyByID is the administrative form of Destroy and refuses an empty id.
func (s *Store) DestroyByID(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domain.ErrInvalidSession
	}
	if err := s.Destroy(ctx, sessionID); err != nil {
		return err
	}
	logger.WithContext(ctx, s.log).Info("session destroyed manually")
	return nil
}

func userRef(id snowflake.ID) *snowflake.ID {
	if id <= 0 {
		return nil
	}
	return &id
}

var _ domain.Repository = (*Store)(nil)
