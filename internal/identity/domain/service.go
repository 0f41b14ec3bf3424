package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// SearchOptions controls Search.
type SearchOptions struct {
	IncludeDeleted bool
	Limit          int
}

type Service interface {
	// Create persists a new user, assigning an id when unset.
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	// Save creates unsaved users and updates saved ones.
	Save(ctx context.Context, user *User) error
	Load(ctx context.Context, id snowflake.ID) (*User, error)
	GetByIDs(ctx context.Context, ids []snowflake.ID, includeDeleted bool) ([]*User, error)
	// Delete soft-deletes or purges user. It reports false for unsaved and reserved users.
	Delete(ctx context.Context, user *User, opts DeleteOptions) (bool, error)
	// Undelete reports false when no row matched.
	Undelete(ctx context.Context, user *User) (bool, error)
	Search(ctx context.Context, query string, opts SearchOptions) ([]*User, error)
}

// SessionRevoker removes every session row belonging to a user.
type SessionRevoker interface {
	DeleteByUser(ctx context.Context, userID snowflake.ID) (int64, error)
}
