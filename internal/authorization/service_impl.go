// Package authorization guards administrative operations with casbin roles.
package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/identity/internal/audit/domain"
	identitydomain "github.com/smallbiznis/identity/internal/identity/domain"
	"github.com/smallbiznis/identity/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectUser       = "user"
	ObjectSession    = "session"
	ObjectAuditLog   = "audit_log"
	ObjectPreference = "preference"
	ObjectProfile    = "profile"
)

const (
	ActionUserSearch   = "user.search"
	ActionUserDelete   = "user.delete"
	ActionUserPurge    = "user.purge"
	ActionUserUndelete = "user.undelete"
	ActionUserRoles    = "user.roles"

	ActionSessionView    = "session.view"
	ActionSessionDestroy = "session.destroy"

	ActionAuditLogView = "audit_log.view"

	ActionPreferenceView   = "preference.view"
	ActionPreferenceUpdate = "preference.update"

	ActionProfileView = "profile.view"
)

const (
	RoleAdmin = "role:admin"
	RoleUser  = "role:user"
	RoleGuest = "role:guest"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies stored through the gorm adapter and seeds the built-in ones.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID snowflake.ID, object, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	if userID <= 0 {
		userID = identitydomain.GuestID
	}

	// The identity-implied role is evaluated directly; granted roles go through the stored grouping.
	allowed, err := s.enforcer.Enforce(baseRole(userID), object, action)
	if err != nil {
		return err
	}
	if !allowed && userID != identitydomain.GuestID {
		allowed, err = s.enforcer.Enforce(subject(userID), object, action)
		if err != nil {
			return err
		}
	}
	if !allowed {
		s.auditDenied(ctx, userID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Grant(ctx context.Context, userID snowflake.ID, role string) error {
	if err := validateGrant(userID, role); err != nil {
		return err
	}
	added, err := s.enforcer.AddGroupingPolicy(subject(userID), role)
	if err != nil {
		return err
	}
	if added {
		logger.WithContext(ctx, s.log).Info("role granted",
			zap.Int64("user_id", userID.Int64()),
			zap.String("role", role),
		)
	}
	return nil
}

func (s *ServiceImpl) Revoke(ctx context.Context, userID snowflake.ID, role string) error {
	if err := validateGrant(userID, role); err != nil {
		return err
	}
	removed, err := s.enforcer.RemoveGroupingPolicy(subject(userID), role)
	if err != nil {
		return err
	}
	if removed {
		logger.WithContext(ctx, s.log).Info("role revoked",
			zap.Int64("user_id", userID.Int64()),
			zap.String("role", role),
		)
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, userID snowflake.ID, object, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"subject": subject(userID),
		},
	})
}

func validateGrant(userID snowflake.ID, role string) error {
	if userID <= 0 || userID == identitydomain.GuestID {
		return ErrInvalidActor
	}
	switch role {
	case RoleAdmin, RoleUser:
		return nil
	default:
		return ErrInvalidRole
	}
}

func baseRole(userID snowflake.ID) string {
	switch userID {
	case identitydomain.RootID:
		return RoleAdmin
	case identitydomain.GuestID:
		return RoleGuest
	default:
		return RoleUser
	}
}

func subject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleGuest, ObjectProfile, ActionProfileView},

		{RoleUser, ObjectProfile, ActionProfileView},
		{RoleUser, ObjectPreference, ActionPreferenceView},
		{RoleUser, ObjectPreference, ActionPreferenceUpdate},

		{RoleAdmin, ObjectUser, ActionUserSearch},
		{RoleAdmin, ObjectUser, ActionUserDelete},
		{RoleAdmin, ObjectUser, ActionUserPurge},
		{RoleAdmin, ObjectUser, ActionUserUndelete},
		{RoleAdmin, ObjectUser, ActionUserRoles},
		{RoleAdmin, ObjectSession, ActionSessionView},
		{RoleAdmin, ObjectSession, ActionSessionDestroy},
		{RoleAdmin, ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Admins can do everything a user can.
	if _, err := enforcer.AddGroupingPolicy(RoleAdmin, RoleUser); err != nil {
		return err
	}
	return nil
}
