package auth

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// AuditService records authentication events
type AuditService interface {
	LogLoginAttempt(ctx context.Context, email string, method LoginMethod, success bool, failure iam.Failure)
	LogLogout(ctx context.Context, email string)
	LogTokenRefresh(ctx context.Context, email string, org kernel.OrganizationID)
	LogOrganizationSwitch(ctx context.Context, email string, from, to kernel.OrganizationID)
	LogBan(ctx context.Context, actor, target string, banned bool)
	LogRoleAssigned(ctx context.Context, actor, target string, org kernel.OrganizationID, role string)
}

// ExternalVerifier checks an OAuth token with its provider
type ExternalVerifier interface {
	Verify(ctx context.Context, provider iam.OAuthProvider, token string) (ExternalIdentity, error)
}

type nopAudit struct{}

func (nopAudit) LogLoginAttempt(context.Context, string, LoginMethod, bool, iam.Failure) {}
func (nopAudit) LogLogout(context.Context, string)                                       {}
func (nopAudit) LogTokenRefresh(context.Context, string, kernel.OrganizationID)          {}
func (nopAudit) LogOrganizationSwitch(context.Context, string, kernel.OrganizationID, kernel.OrganizationID) {
}
func (nopAudit) LogBan(context.Context, string, string, bool)                                   {}
func (nopAudit) LogRoleAssigned(context.Context, string, string, kernel.OrganizationID, string) {}

// NopAudit discards every event
func NopAudit() AuditService { return nopAudit{} }
