// Package hooks writes identity lifecycle events to the audit trail.
package hooks

import (
	"context"

	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"go.uber.org/fx"
)

type Result struct {
	fx.Out

	Hooks identitydomain.Hooks `group:"identity_hooks"`
}

// Provide registers the audit trail as an identity hook.
func Provide(svc auditdomain.Service) Result {
	return Result{Hooks: New(svc)}
}

type Hooks struct {
	svc auditdomain.Service
}

func New(svc auditdomain.Service) *Hooks {
	return &Hooks{svc: svc}
}

func (h *Hooks) OnLogin(ctx context.Context, user *identitydomain.User) error {
	return h.record(ctx, auditdomain.ActionUserLogin, user, nil)
}

func (h *Hooks) OnLogout(ctx context.Context, user *identitydomain.User) error {
	return h.record(ctx, auditdomain.ActionUserLogout, user, nil)
}

// OnDelete receives the user as it was before the deletion.
func (h *Hooks) OnDelete(ctx context.Context, snapshot identitydomain.User, opts identitydomain.DeleteOptions) error {
	action := auditdomain.ActionUserDelete
	if opts.RemoveAllTraces {
		action = auditdomain.ActionUserPurge
	}
	return h.record(ctx, action, &snapshot, map[string]any{
		"username":          snapshot.Username,
		"remove_all_traces": opts.RemoveAllTraces,
	})
}

func (h *Hooks) OnUndelete(ctx context.Context, user *identitydomain.User) error {
	return h.record(ctx, auditdomain.ActionUserUndelete, user, nil)
}

func (h *Hooks) record(ctx context.Context, action string, user *identitydomain.User, metadata map[string]any) error {
	entry := auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetTypeUser,
		Metadata:   metadata,
	}
	if user != nil && user.ID != 0 {
		entry.TargetID = user.ID.String()
	}
	return h.svc.Record(ctx, entry)
}

var _ identitydomain.Hooks = (*Hooks)(nil)
