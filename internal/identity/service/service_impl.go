package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/identity/hooks"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"github.com/smallbiznis/identity/internal/observability/metrics"
	"github.com/smallbiznis/identity/pkg/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	DB       *gorm.DB
	Sessions domain.SessionRevoker
	Hooks    *hooks.Dispatcher
	Metrics  *metrics.Metrics `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
}

type Service struct {
	log      *zap.Logger
	users    store.Store[domain.User]
	prefs    store.Store[domain.Preference]
	sessions domain.SessionRevoker
	hooks    *hooks.Dispatcher
	metrics  *metrics.Metrics
	genID    *snowflake.Node
	clock    clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("identity.service"),
		users:    store.New[domain.User](p.DB),
		prefs:    store.New[domain.Preference](p.DB),
		sessions: p.Sessions,
		hooks:    p.Hooks,
		metrics:  p.Metrics,
		genID:    p.GenID,
		clock:    p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidUserID
	}
	if user.Lifecycle() == domain.LifecyclePurged {
		return domain.ErrInvalidTransition
	}
	username, err := normalizeUsername(user)
	if err != nil {
		return err
	}
	if user.ID == 0 {
		user.ID = s.genID.Generate()
	}

	now := s.clock.Now()
	user.Username = username
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.users.Insert(ctx, user); err != nil {
		return err
	}
	s.metrics.RecordUserTransition(ctx, string(domain.LifecycleUnsaved), string(domain.LifecycleActive))
	return nil
}

func (s *Service) Update(ctx context.Context, user *domain.User) error {
	if user == nil || user.ID == 0 {
		if user != nil && user.Lifecycle() == domain.LifecyclePurged {
			return domain.ErrInvalidTransition
		}
		return domain.ErrInvalidUserID
	}
	username, err := normalizeUsername(user)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	n, err := s.users.Update(ctx, map[string]any{
		"username":   username,
		"name_short": user.NameShort,
		"name_full":  user.NameFull,
		"image":      user.Image,
		"updated_at": now,
	}, store.Filter{"id": user.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	user.Username = username
	user.UpdatedAt = now
	return nil
}

func (s *Service) Save(ctx context.Context, user *domain.User) error {
	if user != nil && user.Lifecycle() == domain.LifecycleUnsaved {
		return s.Create(ctx, user)
	}
	return s.Update(ctx, user)
}

func (s *Service) Load(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidUserID
	}
	user, err := s.users.GetOne(ctx, store.Filter{"id": id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) GetByIDs(ctx context.Context, ids []snowflake.ID, includeDeleted bool) ([]*domain.User, error) {
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}
	predicate := "id IN ?"
	params := []any{ids}
	if !includeDeleted {
		predicate += " AND deleted = ?"
		params = append(params, false)
	}
	return s.users.FindWhere(ctx, predicate, params, store.OrderBy("id DESC"))
}

func (s *Service) Delete(ctx context.Context, user *domain.User, opts domain.DeleteOptions) (bool, error) {
	if user == nil || user.ID == 0 || user.IsReserved() {
		return false, nil
	}
	from := user.Lifecycle()
	to := domain.LifecycleSoftDeleted
	if opts.RemoveAllTraces {
		to = domain.LifecyclePurged
	}
	if !domain.CanTransition(from, to) {
		return false, nil
	}

	log := logger.WithContext(ctx, s.log).With(zap.Int64("user_id", user.ID.Int64()))
	snapshot := *user

	if opts.RemoveAllTraces {
		if err := s.purge(ctx, user.ID); err != nil {
			log.Error("purge user failed", zap.Error(err))
			return false, err
		}
		user.MarkPurged()
	} else {
		now := s.clock.Now()
		n, err := s.users.Update(ctx, map[string]any{
			"deleted":    true,
			"updated_at": now,
		}, store.Filter{"id": user.ID})
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		user.Deleted = true
		user.UpdatedAt = now
	}

	log.Info("user deleted", zap.Bool("remove_all_traces", opts.RemoveAllTraces))
	s.metrics.RecordUserTransition(ctx, string(from), string(to))
	s.hooks.Delete(ctx, snapshot, opts)
	return true, nil
}

// purge removes sessions first, then preferences, then the user row.
func (s *Service) purge(ctx context.Context, id snowflake.ID) error {
	if _, err := s.sessions.DeleteByUser(ctx, id); err != nil {
		return err
	}
	if _, err := s.prefs.Delete(ctx, store.Filter{"user_id": id}); err != nil {
		return err
	}
	_, err := s.users.Delete(ctx, store.Filter{"id": id})
	return err
}

func (s *Service) Undelete(ctx context.Context, user *domain.User) (bool, error) {
	if user == nil || user.ID == 0 {
		return false, nil
	}
	from := user.Lifecycle()

	now := s.clock.Now()
	n, err := s.users.Update(ctx, map[string]any{
		"deleted":    false,
		"updated_at": now,
	}, store.Filter{"id": user.ID})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	user.Deleted = false
	user.UpdatedAt = now

	if from != domain.LifecycleActive {
		s.metrics.RecordUserTransition(ctx, string(from), string(domain.LifecycleActive))
	}
	s.hooks.Undelete(ctx, user)
	return true, nil
}

// Search matches query case-insensitively as a substring of the full name, username or short name.
// The guest never matches. Wildcards in query are not escaped.
func (s *Service) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]*domain.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	predicate := "id <> ? AND (LOWER(name_full) LIKE ? OR LOWER(username) LIKE ? OR LOWER(name_short) LIKE ?)"
	params := []any{domain.GuestID, pattern, pattern, pattern}
	if !opts.IncludeDeleted {
		predicate += " AND deleted = ?"
		params = append(params, false)
	}
	return s.users.FindWhere(ctx, predicate, params, store.OrderBy("id ASC"), store.Limit(opts.Limit))
}

// normalizeUsername trims the username, deriving one from the display names when blank.
func normalizeUsername(user *domain.User) (string, error) {
	username := strings.TrimSpace(user.Username)
	if username == "" {
		for _, candidate := range []string{user.NameShort, user.NameFull} {
			if derived := slug.Make(candidate); derived != "" {
				username = derived
				break
			}
		}
	}
	if username == "" {
		return "", domain.ErrInvalidUsername
	}
	return username, nil
}
