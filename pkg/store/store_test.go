package store

import (
	"context"
	"testing"

	dbpkg "github.com/smallbiznis/identity/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID     int64  `gorm:"primaryKey"`
	Name   string `gorm:"uniqueIndex"`
	Owner  int64  `gorm:"index"`
	Hidden bool
}

func newWidgetStore(t *testing.T) Store[widget] {
	t.Helper()

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return New[widget](conn)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore(t)

	require.NoError(t, s.Insert(ctx, &widget{ID: 1, Name: "a", Owner: 7}))
	require.NoError(t, s.Insert(ctx, &widget{ID: 2, Name: "b", Owner: 7, Hidden: true}))
	require.NoError(t, s.Insert(ctx, &widget{ID: 3, Name: "c", Owner: 8}))

	got, err := s.GetOne(ctx, Filter{"name": "b"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	missing, err := s.GetOne(ctx, Filter{"name": "zzz"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	visible, err := s.GetMany(ctx, Filter{"owner": 7, "hidden": false})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "a", visible[0].Name)

	n, err := s.Update(ctx, map[string]any{"hidden": false}, Filter{"id": 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Update(ctx, map[string]any{"hidden": true}, Filter{"id": 99})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	ordered, err := s.GetMany(ctx, Filter{"owner": 7}, OrderBy("id DESC"), Limit(1))
	require.NoError(t, err)
	require.Len(t, ordered, 1)
	assert.Equal(t, int64(2), ordered[0].ID)

	n, err = s.DeleteWhere(ctx, "owner = ?", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Delete(ctx, Filter{"id": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rest, err := s.FindWhere(ctx, "", nil)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestStoreRefusesUnfilteredMutations(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore(t)

	_, err := s.Delete(ctx, nil)
	assert.ErrorIs(t, err, ErrMissingFilter)

	_, err = s.Update(ctx, map[string]any{"hidden": true}, Filter{})
	assert.ErrorIs(t, err, ErrMissingFilter)

	_, err = s.DeleteWhere(ctx, "")
	assert.ErrorIs(t, err, ErrMissingFilter)
}

func TestStoreSurfacesConstraintViolations(t *testing.T) {
	ctx := context.Background()
	s := newWidgetStore(t)

	require.NoError(t, s.Insert(ctx, &widget{ID: 1, Name: "dup"}))
	err := s.Insert(ctx, &widget{ID: 2, Name: "dup"})
	require.Error(t, err)
	assert.True(t, dbpkg.IsDuplicateKeyErr(err))
}
