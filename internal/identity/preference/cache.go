// Package preference stores per-user component/key settings behind a lazily loaded cache.
package preference

import (
	"context"
	"maps"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/identity/internal/clock"
	"github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/pkg/db"
	"github.com/smallbiznis/identity/pkg/store"
	"gorm.io/gorm"
)

// Factory builds caches for users; one cache belongs to one caller.
type Factory struct {
	store store.Store[domain.Preference]
	genID *snowflake.Node
	clock clock.Clock
}

func NewFactory(conn *gorm.DB, genID *snowflake.Node, clk clock.Clock) *Factory {
	return &Factory{
		store: store.New[domain.Preference](conn),
		genID: genID,
		clock: clk,
	}
}

func (f *Factory) For(userID snowflake.ID) *Cache {
	return &Cache{
		userID: userID,
		store:  f.store,
		genID:  f.genID,
		clock:  f.clock,
	}
}

// Cache holds one user's preferences. A nil values map means nothing was loaded yet.
// It is not safe for concurrent use.
type Cache struct {
	userID snowflake.ID
	store  store.Store[domain.Preference]
	genID  *snowflake.Node
	clock  clock.Clock

	values map[string]map[string]string
}

func (c *Cache) UserID() snowflake.ID { return c.userID }

func (c *Cache) Loaded() bool { return c.values != nil }

// Load replaces the cache with every stored preference of the user.
func (c *Cache) Load(ctx context.Context) error {
	rows, err := c.store.GetMany(ctx, store.Filter{"user_id": c.userID})
	if err != nil {
		return err
	}
	values := make(map[string]map[string]string)
	for _, row := range rows {
		put(values, row.Component, row.Key, row.Value)
	}
	c.values = values
	return nil
}

// Get returns the stored value, or def when the key has never been set.
func (c *Cache) Get(ctx context.Context, component, key, def string) (string, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return def, err
	}
	if v, ok := c.values[component][key]; ok {
		return v, nil
	}
	return def, nil
}

// Set stores a scalar value and updates the cache once the store accepted it.
func (c *Cache) Set(ctx context.Context, component, key string, value any) error {
	text, err := encodeScalar(value)
	if err != nil {
		return err
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}

	_, exists := c.values[component][key]
	if exists {
		err = c.update(ctx, component, key, text, true)
	} else {
		err = c.insert(ctx, component, key, text, true)
	}
	if err != nil {
		return err
	}
	put(c.values, component, key, text)
	return nil
}

// Delete removes a stored value. Deleting an unknown key is not an error.
func (c *Cache) Delete(ctx context.Context, component, key string) error {
	if err := c.ensureLoaded(ctx); err != nil {
		return err
	}
	if _, err := c.store.Delete(ctx, c.filter(component, key)); err != nil {
		return err
	}
	if inner, ok := c.values[component]; ok {
		delete(inner, key)
		if len(inner) == 0 {
			delete(c.values, component)
		}
	}
	return nil
}

// Values returns a copy of the loaded preferences, or nil before the first load.
func (c *Cache) Values() map[string]map[string]string {
	if c.values == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(c.values))
	for component, inner := range c.values {
		out[component] = maps.Clone(inner)
	}
	return out
}

func (c *Cache) ensureLoaded(ctx context.Context) error {
	if c.values != nil {
		return nil
	}
	if c.userID == 0 {
		return ErrNoUser
	}
	return c.Load(ctx)
}

func (c *Cache) insert(ctx context.Context, component, key, text string, fallback bool) error {
	now := c.clock.Now()
	err := c.store.Insert(ctx, &domain.Preference{
		ID:        c.genID.Generate(),
		UserID:    c.userID,
		Component: component,
		Key:       key,
		Value:     text,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil && fallback && db.IsDuplicateKeyErr(err) {
		// Another writer inserted the same key first; last write wins.
		return c.update(ctx, component, key, text, false)
	}
	return err
}

func (c *Cache) update(ctx context.Context, component, key, text string, fallback bool) error {
	n, err := c.store.Update(ctx, map[string]any{
		"value":      text,
		"updated_at": c.clock.Now(),
	}, c.filter(component, key))
	if err != nil {
		return err
	}
	if n == 0 && fallback {
		return c.insert(ctx, component, key, text, false)
	}
	return nil
}

func (c *Cache) filter(component, key string) store.Filter {
	return store.Filter{"user_id": c.userID, "component": component, "pref_key": key}
}

func put(values map[string]map[string]string, component, key, value string) {
	inner, ok := values[component]
	if !ok {
		inner = make(map[string]string)
		values[component] = inner
	}
	inner[key] = value
}
