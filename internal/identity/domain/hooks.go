package domain

import "context"

// DeleteOptions controls User deletion.
type DeleteOptions struct {
	// RemoveAllTraces purges the user row with its sessions and preferences instead of flagging it deleted.
	RemoveAllTraces bool
}

// Hooks observe identity transitions after they are committed.
// A returned error is logged and never undoes the transition.
type Hooks interface {
	OnLogin(ctx context.Context, user *User) error
	OnLogout(ctx context.Context, user *User) error
	// OnDelete receives a copy taken before the identifier was cleared by a purge.
	OnDelete(ctx context.Context, snapshot User, opts DeleteOptions) error
	OnUndelete(ctx context.Context, user *User) error
}

// NopHooks can be embedded by hooks that only care about some events.
type NopHooks struct{}

func (NopHooks) OnLogin(context.Context, *User) error { return nil }
func (NopHooks) OnLogout(context.Context, *User) error { return nil }
func (NopHooks) OnDelete(context.Context, User, DeleteOptions) error { return nil }
func (NopHooks) OnUndelete(context.Context, *User) error { return nil }

var _ Hooks = NopHooks{}
