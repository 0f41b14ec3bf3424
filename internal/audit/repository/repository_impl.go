package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/identity/internal/audit/domain"
	"github.com/smallbiznis/identity/pkg/store"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return store.New[domain.AuditLog](db).Insert(ctx, entry)
}

// List returns one row more than filter.Limit so callers can tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	predicate, params := listPredicate(filter)

	opts := []store.QueryOption{store.OrderBy("created_at DESC, id DESC")}
	if filter.Limit > 0 {
		opts = append(opts, store.Limit(filter.Limit+1))
	}
	return store.New[domain.AuditLog](db).FindWhere(ctx, predicate, params, opts...)
}

func listPredicate(filter domain.ListFilter) (string, []any) {
	var clauses []string
	var params []any
	where := func(clause string, args ...any) {
		clauses = append(clauses, clause)
		params = append(params, args...)
	}

	equals := []struct {
		column string
		value  string
	}{
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
		{"actor_type", filter.ActorType},
	}
	for _, eq := range equals {
		if v := strings.TrimSpace(eq.value); v != "" {
			where(eq.column+" = ?", v)
		}
	}
	if filter.StartAt != nil {
		where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		where("created_at <= ?", filter.EndAt.UTC())
	}
	if c := filter.Cursor; c != nil {
		where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
	return strings.Join(clauses, " AND "), params
}
