package organizationsrv

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/logx"
)

const bootstrapActor = "bootstrap"

// Bootstrap describes the default organization and system admin that exist
// on every deployment. With ReadOnly set, Seed overwrites manual edits to
// them on each start.
type Bootstrap struct {
	OrganizationID          kernel.OrganizationID
	OrganizationName        string
	OrganizationDescription string

	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string
	AdminRoles     map[kernel.OrganizationID]string

	ReadOnly bool
}

func (b Bootstrap) adminRoles() map[kernel.OrganizationID]string {
	if len(b.AdminRoles) > 0 {
		return b.AdminRoles
	}
	return map[kernel.OrganizationID]string{
		kernel.SystemOrganization: role.Admin,
		b.OrganizationID:          role.OrganizationAdmin,
	}
}

// Seed creates the default organization and system admin when missing
func (s *Service) Seed(ctx context.Context, b Bootstrap) error {
	logx.WithFields(logx.Fields{
		"organization_id": b.OrganizationID,
		"admin":           b.AdminEmail,
		"read_only":       b.ReadOnly,
	}).Info("seeding defaults")

	if err := s.seedOrganization(ctx, b); err != nil {
		return err
	}
	return s.seedAdmin(ctx, b)
}

func (s *Service) seedOrganization(ctx context.Context, b Bootstrap) error {
	_, err := s.orgs.Get(ctx, b.OrganizationID)
	switch {
	case iam.Is(err, iam.NotFound):
		_, err = s.orgs.Create(ctx, organization.NewData(organization.Organization{
			ID:          b.OrganizationID,
			Name:        b.OrganizationName,
			Description: b.OrganizationDescription,
		}), bootstrapActor)
		return err
	case err != nil:
		return err
	case !b.ReadOnly:
		return nil
	}

	_, err = s.orgs.Update(ctx, b.OrganizationID, func(od organization.OrganizationData) (organization.OrganizationData, error) {
		od.Organization.Name = b.OrganizationName
		od.Organization.Description = b.OrganizationDescription
		return od, nil
	}, bootstrapActor)
	return err
}

func (s *Service) seedAdmin(ctx context.Context, b Bootstrap) error {
	if b.AdminEmail == "" {
		return nil
	}
	roles := b.adminRoles()

	existing, err := s.users.GetByEmail(ctx, b.AdminEmail)
	found := err == nil
	if err != nil && !iam.Is(err, iam.NotFound) {
		return err
	}
	if found && !b.ReadOnly {
		return nil
	}

	var hash string
	if !found || !credential.PasswordMatches(existing.User.PasswordHash, b.AdminPassword) {
		if hash, err = s.verifier.HashPassword(b.AdminPassword); err != nil {
			return err
		}
	}

	if !found {
		u := user.New(b.AdminEmail, b.AdminFirstName, b.AdminLastName)
		u.PasswordHash = hash
		u.Confirmed = true
		u.APIKey = credential.GenerateAPIKey()
		u.CreatedAt = s.now().UTC()
		ud := user.NewData(u, roles)
		ud.User.DefaultOrganization = b.defaultOrganization(roles)
		_, err := s.users.Create(ctx, ud, bootstrapActor)
		return err
	}

	_, err = s.users.Update(ctx, existing.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.User.FirstName = b.AdminFirstName
		ud.User.LastName = b.AdminLastName
		if hash != "" {
			ud.User.PasswordHash = hash
		}
		ud.User.Confirmed = true
		ud.User.Banned = false
		ud.Roles = map[kernel.OrganizationID]string{}
		for org, r := range roles {
			ud.Roles[org] = r
		}
		ud.User.DefaultOrganization = b.defaultOrganization(roles)
		return ud, nil
	}, bootstrapActor)
	return err
}

func (b Bootstrap) defaultOrganization(roles map[kernel.OrganizationID]string) kernel.OrganizationID {
	if _, ok := roles[b.OrganizationID]; ok {
		return b.OrganizationID
	}
	for org := range roles {
		if !org.IsSystem() {
			return org
		}
	}
	return b.OrganizationID
}
