// Package store provides table-scoped record CRUD on top of gorm.
//
// A Store[T] addresses the table backing model T. Filters are column/value maps
// matched with equality; zero values are matched too.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrMissingFilter is returned when a mutation would touch every row of a table.
var ErrMissingFilter = errors.New("store: filter is required")

// Filter matches rows by column equality.
type Filter map[string]any

// Store is the record capability set consumed by the identity and session services.
type Store[T any] interface {
	Insert(ctx context.Context, record *T) error
	Update(ctx context.Context, fields map[string]any, filter Filter) (int64, error)
	Delete(ctx context.Context, filter Filter) (int64, error)
	GetOne(ctx context.Context, filter Filter) (*T, error)
	GetMany(ctx context.Context, filter Filter, opts ...QueryOption) ([]*T, error)
	DeleteWhere(ctx context.Context, predicate string, params ...any) (int64, error)
	FindWhere(ctx context.Context, predicate string, params []any, opts ...QueryOption) ([]*T, error)
	WithTx(tx *gorm.DB) Store[T]
}

type store[T any] struct {
	db *gorm.DB
}

// New returns a gorm backed Store for model T.
func New[T any](db *gorm.DB) Store[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTx(tx *gorm.DB) Store[T] {
	return &store[T]{db: tx}
}

func (s *store[T]) Insert(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *store[T]) Update(ctx context.Context, fields map[string]any, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, ErrMissingFilter
	}
	tx := s.db.WithContext(ctx).Model(new(T)).Where(map[string]any(filter)).Updates(fields)
	return tx.RowsAffected, tx.Error
}

func (s *store[T]) Delete(ctx context.Context, filter Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, ErrMissingFilter
	}
	tx := s.db.WithContext(ctx).Where(map[string]any(filter)).Delete(new(T))
	return tx.RowsAffected, tx.Error
}

func (s *store[T]) GetOne(ctx context.Context, filter Filter) (*T, error) {
	var result T
	err := s.db.WithContext(ctx).Where(map[string]any(filter)).Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *store[T]) GetMany(ctx context.Context, filter Filter, opts ...QueryOption) ([]*T, error) {
	var result []*T
	stmt := s.db.WithContext(ctx).Model(new(T))
	if len(filter) > 0 {
		stmt = stmt.Where(map[string]any(filter))
	}
	err := applyOptions(stmt, opts).Find(&result).Error
	return result, err
}

func (s *store[T]) DeleteWhere(ctx context.Context, predicate string, params ...any) (int64, error) {
	if predicate == "" {
		return 0, ErrMissingFilter
	}
	tx := s.db.WithContext(ctx).Where(predicate, params...).Delete(new(T))
	return tx.RowsAffected, tx.Error
}

func (s *store[T]) FindWhere(ctx context.Context, predicate string, params []any, opts ...QueryOption) ([]*T, error) {
	var result []*T
	stmt := s.db.WithContext(ctx).Model(new(T))
	if predicate != "" {
		stmt = stmt.Where(predicate, params...)
	}
	err := applyOptions(stmt, opts).Find(&result).Error
	return result, err
}
