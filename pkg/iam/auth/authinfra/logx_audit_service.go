package authinfra

import (
	"context"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct {
	now func() time.Time
}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{now: time.Now}
}

func (s *LogxAuditService) LogLoginAttempt(ctx context.Context, email string, method auth.LoginMethod, success bool, failure iam.Failure) {
	entry := logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "login_attempt",
		"email":       email,
		"method":      method,
		"success":     success,
		"timestamp":   s.now(),
	})
	if !success {
		entry.WithField("failure", failure).Warn("Audit: login attempt")
		return
	}
	entry.Info("Audit: login attempt")
}

func (s *LogxAuditService) LogLogout(ctx context.Context, email string) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "logout",
		"email":       email,
		"timestamp":   s.now(),
	}).Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(ctx context.Context, email string, org kernel.OrganizationID) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event":     "token_refresh",
		"email":           email,
		"organization_id": org,
		"timestamp":       s.now(),
	}).Info("Audit: token refresh")
}

func (s *LogxAuditService) LogOrganizationSwitch(ctx context.Context, email string, from, to kernel.OrganizationID) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": "organization_switch",
		"email":       email,
		"from":        from,
		"to":          to,
		"timestamp":   s.now(),
	}).Info("Audit: organization switch")
}

func (s *LogxAuditService) LogBan(ctx context.Context, actor, target string, banned bool) {
	event := "user_banned"
	if !banned {
		event = "user_unbanned"
	}
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event": event,
		"actor":       actor,
		"target":      target,
		"timestamp":   s.now(),
	}).Info("Audit: ban status changed")
}

func (s *LogxAuditService) LogRoleAssigned(ctx context.Context, actor, target string, org kernel.OrganizationID, role string) {
	logx.WithContext(ctx).WithFields(logx.Fields{
		"audit_event":     "role_assigned",
		"actor":           actor,
		"target":          target,
		"organization_id": org,
		"role":            role,
		"timestamp":       s.now(),
	}).Info("Audit: role assigned")
}

var _ auth.AuditService = (*LogxAuditService)(nil)
