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
	auditdomain "github.com/datavista/metrica/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectMetric   = "metric"
	ObjectUsage    = "usage"
	ObjectAuditLog = "audit_log"
	ObjectRole     = "role"
)

const (
	ActionMetricView    = "metric.view"
	ActionMetricCreate  = "metric.create"
	ActionMetricUpdate  = "metric.update"
	ActionMetricDelete  = "metric.delete"
	ActionMetricPublish = "metric.publish"
	ActionMetricArchive = "metric.archive"

	ActionUsageView = "usage.view"
	ActionUsageBind = "usage.bind"

	ActionAuditLogView = "audit_log.view"

	ActionRoleManage = "role.manage"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleSystem = "system"
)

var knownRoles = map[string]bool{
	RoleOwner:  true,
	RoleAdmin:  true,
	RoleMember: true,
	RoleSystem: true,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
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
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, err := normalizeSubject(actor)
	if err != nil {
		s.auditDenied(ctx, subject, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if subject == "system" {
		// The system subject is implicit; it never carries per-org grants.
		if err := s.ensureGrouping(subject, "role:system", domain); err != nil {
			return err
		}
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, subject, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Grant(ctx context.Context, actor string, orgID string, role string) error {
	subject, domain, roleName, err := s.grantArgs(actor, orgID, role)
	if err != nil {
		return err
	}
	if _, err := s.enforcer.AddGroupingPolicy(subject, roleName, domain); err != nil {
		return err
	}
	s.auditRoleChange(ctx, "role.granted", subject, roleName)
	s.log.Info("role granted",
		zap.String("subject", subject),
		zap.String("role", roleName),
		zap.String("domain", domain),
	)
	return nil
}

func (s *ServiceImpl) Revoke(ctx context.Context, actor string, orgID string, role string) error {
	subject, domain, roleName, err := s.grantArgs(actor, orgID, role)
	if err != nil {
		return err
	}
	if _, err := s.enforcer.RemoveGroupingPolicy(subject, roleName, domain); err != nil {
		return err
	}
	s.auditRoleChange(ctx, "role.revoked", subject, roleName)
	s.log.Info("role revoked",
		zap.String("subject", subject),
		zap.String("role", roleName),
		zap.String("domain", domain),
	)
	return nil
}

func (s *ServiceImpl) grantArgs(actor string, orgID string, role string) (string, string, string, error) {
	subject, err := normalizeSubject(strings.TrimSpace(actor))
	if err != nil {
		return "", "", "", err
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", "", "", ErrInvalidOrganization
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !knownRoles[role] {
		return "", "", "", ErrInvalidRole
	}
	return subject, fmt.Sprintf("org:%s", orgID), fmt.Sprintf("role:%s", role), nil
}

func normalizeSubject(actor string) (string, error) {
	if actor == "system" {
		return actor, nil
	}
	if strings.HasPrefix(actor, "user:") {
		raw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID == 0 {
			return "", ErrInvalidActor
		}
		return fmt.Sprintf("user:%s", userID.String()), nil
	}
	return "", ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditRoleChange(ctx context.Context, action string, subject string, roleName string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, action, "role", &subject, map[string]any{
		"role": roleName,
	})
}

func (s *ServiceImpl) auditDenied(ctx context.Context, subject string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": subject,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members browse the catalog and bind published metrics.
		{"role:member", ObjectMetric, ActionMetricView},
		{"role:member", ObjectUsage, ActionUsageView},
		{"role:member", ObjectUsage, ActionUsageBind},

		// Admins manage definitions through their whole lifecycle.
		{"role:admin", ObjectMetric, ActionMetricView},
		{"role:admin", ObjectMetric, ActionMetricCreate},
		{"role:admin", ObjectMetric, ActionMetricUpdate},
		{"role:admin", ObjectMetric, ActionMetricDelete},
		{"role:admin", ObjectMetric, ActionMetricPublish},
		{"role:admin", ObjectMetric, ActionMetricArchive},
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectUsage, ActionUsageBind},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		{"role:owner", ObjectMetric, ActionMetricView},
		{"role:owner", ObjectMetric, ActionMetricCreate},
		{"role:owner", ObjectMetric, ActionMetricUpdate},
		{"role:owner", ObjectMetric, ActionMetricDelete},
		{"role:owner", ObjectMetric, ActionMetricPublish},
		{"role:owner", ObjectMetric, ActionMetricArchive},
		{"role:owner", ObjectUsage, ActionUsageView},
		{"role:owner", ObjectUsage, ActionUsageBind},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		// Membership stays with owners; admins only manage definitions.
		{"role:owner", ObjectRole, ActionRoleManage},

		// Automated callers get the full surface.
		{"role:system", ObjectMetric, ActionMetricView},
		{"role:system", ObjectMetric, ActionMetricCreate},
		{"role:system", ObjectMetric, ActionMetricUpdate},
		{"role:system", ObjectMetric, ActionMetricDelete},
		{"role:system", ObjectMetric, ActionMetricPublish},
		{"role:system", ObjectMetric, ActionMetricArchive},
		{"role:system", ObjectUsage, ActionUsageView},
		{"role:system", ObjectUsage, ActionUsageBind},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
		{"role:system", ObjectRole, ActionRoleManage},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
