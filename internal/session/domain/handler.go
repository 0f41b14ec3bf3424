package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReadResult is what Read hands back to the session runtime.
type ReadResult struct {
	Data string
	// ClearCookie asks the caller to drop the client's session cookie.
	ClearCookie bool
}

// WriteRequest carries one session save.
type WriteRequest struct {
	SessionID string
	Data      string
	// TTL overrides the configured lifetime when positive.
	TTL        time.Duration
	UserID     snowflake.ID
	ClientIP   string
	RequestURI string
	ScriptPath string
}

// Handler is the storage contract behind interactive sessions.
type Handler interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Read(ctx context.Context, sessionID string) (ReadResult, error)
	Write(ctx context.Context, req WriteRequest) error
	Destroy(ctx context.Context, sessionID string) error
	GC(ctx context.Context, maxLifetime time.Duration) (int64, error)
}

// Repository adds persistent login tokens and administration to Handler.
type Repository interface {
	Handler

	CreatePersistent(ctx context.Context, token string, userID snowflake.ID, ttl time.Duration) error
	// FindPersistent returns nil when no valid persistent record matches token.
	FindPersistent(ctx context.Context, token string) (*Record, error)
	DeletePersistent(ctx context.Context, token string) (int64, error)
	DeleteByUser(ctx context.Context, userID snowflake.ID) (int64, error)
	ListActive(ctx context.Context) ([]*Record, error)
	DestroyByID(ctx context.Context, sessionID string) error
}
