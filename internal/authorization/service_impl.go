package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/learnpay/internal/audit/domain"
	userdomain "github.com/smallbiznis/learnpay/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCoupon   = "coupon"
	ObjectPayment  = "payment"
	ObjectAuditLog = "audit_log"
)

const (
	ActionCouponView   = "coupon.view"
	ActionCouponCreate = "coupon.create"
	ActionCouponUpdate = "coupon.update"
	ActionCouponDelete = "coupon.delete"

	ActionPaymentViewAll = "payment.view_all"
	ActionPaymentRefund  = "payment.refund"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrInvalidActor = errors.New("invalid_actor")
	ErrForbidden    = errors.New("forbidden")
)

type Service interface {
	// Authorize returns ErrForbidden when the user's role lacks the action.
	Authorize(ctx context.Context, userID snowflake.ID, object string, action string) error
	// Allowed is Authorize without the error for expected denials.
	Allowed(ctx context.Context, userID snowflake.ID, object string, action string) (bool, error)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Users    userdomain.Directory
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	users    userdomain.Directory
	auditSvc auditdomain.Service
}

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
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		users:    p.Users,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID snowflake.ID, object string, action string) error {
	allowed, err := s.Allowed(ctx, userID, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, userID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Allowed(ctx context.Context, userID snowflake.ID, object string, action string) (bool, error) {
	if userID == 0 {
		return false, ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return false, ErrInvalidActor
		}
		return false, err
	}

	subject := fmt.Sprintf("user:%s", userID.String())
	roleName := fmt.Sprintf("role:%s", strings.ToLower(strings.TrimSpace(user.Role)))
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, object, action)
}

// ensureGrouping keeps exactly one role link per subject, following the
// role currently stored on the user.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, userID snowflake.ID, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("user_id", userID.String()),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  "user",
		ActorID:    userID.String(),
		Action:     "authorization.denied",
		TargetType: "authorization",
		TargetID:   object,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectCoupon, ActionCouponView},
		{"role:admin", ObjectCoupon, ActionCouponCreate},
		{"role:admin", ObjectCoupon, ActionCouponUpdate},
		{"role:admin", ObjectCoupon, ActionCouponDelete},
		{"role:admin", ObjectPayment, ActionPaymentViewAll},
		{"role:admin", ObjectPayment, ActionPaymentRefund},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy[0], policy[1], policy[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
