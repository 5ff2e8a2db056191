// Package organizationsrv administers organizations, their accounts and their
// members. Every operation takes the calling user and checks it against the
// access predicates and the role registry before touching a repository.
package organizationsrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/access"
	"github.com/Abraxas-365/keystone/pkg/iam/auth"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
)

// Mailer sends account lifecycle mails
type Mailer interface {
	SendWelcome(ctx context.Context, to string, data notifx.WelcomeEmail) error
}

type nopMailer struct{}

func (nopMailer) SendWelcome(context.Context, string, notifx.WelcomeEmail) error { return nil }

type Service struct {
	orgs      organization.Repository
	users     user.Repository
	roles     *role.Registry
	verifier  *credential.Verifier
	audit     auth.AuditService
	mailer    Mailer
	tfaIssuer string
	now       func() time.Time
}

type Option func(*Service)

func WithAudit(audit auth.AuditService) Option {
	return func(s *Service) { s.audit = audit }
}

func WithMailer(mailer Mailer) Option {
	return func(s *Service) { s.mailer = mailer }
}

// WithTfaIssuer sets the issuer shown by authenticator apps
func WithTfaIssuer(issuer string) Option {
	return func(s *Service) { s.tfaIssuer = issuer }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(orgs organization.Repository, users user.Repository, roles *role.Registry, verifier *credential.Verifier, opts ...Option) *Service {
	s := &Service{
		orgs:      orgs,
		users:     users,
		roles:     roles,
		verifier:  verifier,
		audit:     auth.NopAudit(),
		mailer:    nopMailer{},
		tfaIssuer: "keystone",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roles lists every role with its permissions
func (s *Service) Roles(caller user.UserData, org kernel.OrganizationID) (map[string][]string, error) {
	if err := s.authorize(caller, org, role.AssignRole); err != nil {
		return nil, err
	}
	return s.roles.Table(), nil
}

// ============================================================================
// Guards
// ============================================================================

// authorize requires access to org and a role there granting permissions
func (s *Service) authorize(caller user.UserData, org kernel.OrganizationID, permissions ...string) error {
	if !access.CanAccessOrganization(caller, org) {
		return iam.ErrWrongOrganization()
	}
	if !access.Permitted(s.roles, caller, org, permissions...) {
		return iam.ErrAccessDenied()
	}
	return nil
}

// member loads email as seen from org. Users outside org are reported as
// missing unless the caller is a system admin.
func (s *Service) member(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (user.UserData, error) {
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return user.UserData{}, err
	}
	if !target.BelongsTo(org) && !access.IsSystemAdmin(caller) {
		return user.UserData{}, iam.ErrNotFound()
	}
	return target, nil
}

// validateRole rejects unknown roles and ADMIN grants by non system admins
func (s *Service) validateRole(caller user.UserData, roleName string) error {
	if !s.roles.Has(roleName) {
		return organization.ErrInvalidRole().WithDetail("role", roleName)
	}
	if roleName == role.Admin && !access.IsRootAdmin(caller) {
		return organization.ErrAdminOnly()
	}
	return nil
}

func (s *Service) organization(ctx context.Context, id kernel.OrganizationID) (organization.OrganizationData, error) {
	if id.IsSystem() {
		return organization.OrganizationData{}, organization.ErrSystemReserved()
	}
	return s.orgs.Get(ctx, id)
}

func (s *Service) log(ctx context.Context, caller user.UserData) *logx.Entry {
	return logx.WithContext(ctx).WithField("actor", caller.Email())
}
