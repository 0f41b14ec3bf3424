package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
)

// Service decides what an identity may do on the administrative surface.
type Service interface {
	// Authorize returns ErrForbidden when userID may not perform action on object.
	Authorize(ctx context.Context, userID snowflake.ID, object, action string) error
	// Grant gives userID an additional role on top of the one implied by its identity.
	Grant(ctx context.Context, userID snowflake.ID, role string) error
	Revoke(ctx context.Context, userID snowflake.ID, role string) error
}
