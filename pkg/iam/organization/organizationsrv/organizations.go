package organizationsrv

import (
	"context"
	"slices"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/access"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// StoreOrganization creates org when it has no id and updates it otherwise.
// Creating requires a system-wide role granting organization:store.
func (s *Service) StoreOrganization(ctx context.Context, caller user.UserData, org organization.Organization) (organization.OrganizationData, error) {
	if org.Name == "" {
		return organization.OrganizationData{}, organization.ErrInvalidInput("organization name is required")
	}

	if org.ID.IsEmpty() {
		if !access.Permitted(s.roles, caller, kernel.SystemOrganization, role.OrganizationStore) {
			return organization.OrganizationData{}, iam.ErrAccessDenied()
		}
		created, err := s.orgs.Create(ctx, organization.NewData(org), caller.Email())
		if err != nil {
			return organization.OrganizationData{}, err
		}
		s.log(ctx, caller).WithField("organization_id", created.ID()).Info("organization created")
		return created, nil
	}

	if org.ID.IsSystem() {
		return organization.OrganizationData{}, organization.ErrSystemReserved()
	}
	if err := s.authorize(caller, org.ID, role.OrganizationUpdate); err != nil {
		return organization.OrganizationData{}, err
	}
	return s.orgs.Update(ctx, org.ID, func(od organization.OrganizationData) (organization.OrganizationData, error) {
		od.Organization.Name = org.Name
		od.Organization.Description = org.Description
		od.Organization.Properties = org.Properties.Clone()
		return od, nil
	}, caller.Email())
}

func (s *Service) GetOrganization(ctx context.Context, caller user.UserData, id kernel.OrganizationID) (organization.OrganizationData, error) {
	if err := s.authorize(caller, id, role.OrganizationRead); err != nil {
		return organization.OrganizationData{}, err
	}
	return s.organization(ctx, id)
}

// ListOrganizations returns the organizations caller can access
func (s *Service) ListOrganizations(ctx context.Context, caller user.UserData) ([]organization.OrganizationData, error) {
	all, err := s.orgs.List(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]organization.OrganizationData, 0, len(all))
	for _, od := range all {
		if access.CanAccessOrganization(caller, od.ID()) {
			visible = append(visible, od)
		}
	}
	return visible, nil
}

// DeleteOrganization removes org. Members whose only organization it was
// are deleted; everyone else loses their role, grants and defaults there.
func (s *Service) DeleteOrganization(ctx context.Context, caller user.UserData, id kernel.OrganizationID) error {
	if err := s.authorize(caller, id, role.OrganizationDelete); err != nil {
		return err
	}
	if _, err := s.organization(ctx, id); err != nil {
		return err
	}

	members, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, ud := range members {
		_, hasRole := ud.Roles[id]
		_, hasAccounts := ud.Accounts[id]
		if !hasRole && !hasAccounts {
			continue
		}
		if (hasRole && len(ud.Roles) == 1) || (hasAccounts && len(ud.Accounts) == 1) {
			if err := s.users.Delete(ctx, ud.ID()); err != nil && !iam.Is(err, iam.NotFound) {
				return err
			}
			continue
		}
		_, err := s.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
			ud.RemoveOrganization(id)
			ud.IncCounter()
			return ud, nil
		}, caller.Email())
		if err != nil && !iam.Is(err, iam.NotFound) {
			return err
		}
	}

	if err := s.orgs.Delete(ctx, id); err != nil {
		return err
	}
	s.log(ctx, caller).WithField("organization_id", id).Warn("organization deleted")
	return nil
}

// ============================================================================
// Accounts
// ============================================================================

// StoreAccount upserts account in org. Accounts without id get one from
// their name.
func (s *Service) StoreAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, account organization.Account) (organization.Account, error) {
	if account.Name == "" {
		return organization.Account{}, organization.ErrInvalidInput("account name is required")
	}
	if account.ID.IsWildcard() {
		return organization.Account{}, organization.ErrInvalidInput("account id is reserved")
	}
	if err := s.authorize(caller, org, role.AccountStore); err != nil {
		return organization.Account{}, err
	}
	if org.IsSystem() {
		return organization.Account{}, organization.ErrSystemReserved()
	}

	var stored organization.Account
	_, err := s.orgs.Update(ctx, org, func(od organization.OrganizationData) (organization.OrganizationData, error) {
		stored = od.PutAccount(account)
		return od, nil
	}, caller.Email())
	if err != nil {
		return organization.Account{}, err
	}
	return stored, nil
}

// ListAccounts returns the accounts of org caller can use
func (s *Service) ListAccounts(ctx context.Context, caller user.UserData, org kernel.OrganizationID) ([]organization.Account, error) {
	if err := s.authorize(caller, org, role.AccountList); err != nil {
		return nil, err
	}
	od, err := s.organization(ctx, org)
	if err != nil {
		return nil, err
	}
	out := make([]organization.Account, 0, len(od.Accounts))
	for _, a := range od.Accounts {
		if access.CanAccessAccount(caller, org, a.ID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) GetAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, id kernel.AccountID) (organization.Account, error) {
	if err := s.authorize(caller, org, role.AccountRead); err != nil {
		return organization.Account{}, err
	}
	if !access.CanAccessAccount(caller, org, id) {
		return organization.Account{}, iam.ErrAccessDenied()
	}
	od, err := s.organization(ctx, org)
	if err != nil {
		return organization.Account{}, err
	}
	a, ok := od.Account(id)
	if !ok {
		return organization.Account{}, organization.ErrAccountNotFound()
	}
	return a, nil
}

// DeleteAccount removes the account and every grant of it
func (s *Service) DeleteAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, id kernel.AccountID) error {
	if err := s.authorize(caller, org, role.AccountDelete); err != nil {
		return err
	}
	_, err := s.orgs.Update(ctx, org, func(od organization.OrganizationData) (organization.OrganizationData, error) {
		if !od.RemoveAccount(id) {
			return od, organization.ErrAccountNotFound()
		}
		return od, nil
	}, caller.Email())
	if err != nil {
		return err
	}

	members, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, ud := range members {
		def, _ := ud.DefaultAccount(org)
		if def != id && !slices.Contains(ud.Accounts[org], id) {
			continue
		}
		_, err := s.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
			ud.RemoveAccount(org, id)
			return ud, nil
		}, caller.Email())
		if err != nil && !iam.Is(err, iam.NotFound) {
			return err
		}
	}
	return nil
}
