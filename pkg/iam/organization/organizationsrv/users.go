package organizationsrv

import (
	"context"
	"strings"

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

// RegisterRequest opens a new organization with its first admin
type RegisterRequest struct {
	OrganizationName string `json:"organization_name"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Password         string `json:"password"`
}

// StoreUserRequest creates or updates a member. Password and Role are only
// read on creation.
type StoreUserRequest struct {
	Create     bool              `json:"create"`
	Email      string            `json:"email"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Password   string            `json:"password,omitempty"`
	Role       string            `json:"role,omitempty"`
	Properties kernel.Properties `json:"properties,omitempty"`
}

// Registration is the result of a self-service registration
type Registration struct {
	Organization organization.OrganizationData
	User         user.UserData
}

// Register creates an organization and its first user as organization admin.
// Self-registered users are confirmed; invited members wait for Confirm.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	if req.Password == "" {
		return Registration{}, credential.ErrWeakPassword()
	}
	hash, err := s.verifier.HashPassword(req.Password)
	if err != nil {
		return Registration{}, err
	}
	u := user.New(req.Email, req.FirstName, req.LastName)
	u.Confirmed = true
	return s.register(ctx, req.OrganizationName, u, hash)
}

// RegisterExternal is Register for an identity vouched for by an OAuth
// provider. The user is confirmed and has no password.
func (s *Service) RegisterExternal(ctx context.Context, organizationName string, identity auth.ExternalIdentity) (Registration, error) {
	u := user.New(identity.Email, identity.FirstName, identity.LastName)
	u.Confirmed = true
	return s.register(ctx, organizationName, u, "")
}

func (s *Service) register(ctx context.Context, organizationName string, u user.User, passwordHash string) (Registration, error) {
	if strings.TrimSpace(organizationName) == "" {
		return Registration{}, organization.ErrInvalidInput("organization name is required")
	}
	if err := validateEmail(u.Email); err != nil {
		return Registration{}, err
	}
	if _, err := s.users.GetByEmail(ctx, u.Email); err == nil {
		return Registration{}, iam.ErrDuplicateKey().WithDetail("email", u.Email)
	} else if !iam.Is(err, iam.NotFound) {
		return Registration{}, err
	}

	od, err := s.orgs.Create(ctx, organization.NewData(organization.Organization{Name: organizationName}), u.Email)
	if err != nil {
		return Registration{}, err
	}

	u.PasswordHash = passwordHash
	ud, err := s.createUser(ctx, u, od.ID(), role.OrganizationAdmin, u.Email)
	if err != nil {
		if delErr := s.orgs.Delete(ctx, od.ID()); delErr != nil {
			logx.WithContext(ctx).WithError(delErr).Errorf("failed to roll back organization %s", od.ID())
		}
		return Registration{}, err
	}

	s.sendWelcome(ctx, ud, od.Organization.Name)
	return Registration{Organization: od, User: ud}, nil
}

func (s *Service) createUser(ctx context.Context, u user.User, org kernel.OrganizationID, roleName, actor string) (user.UserData, error) {
	u.APIKey = credential.GenerateAPIKey()
	u.CreatedAt = s.now().UTC()
	ud := user.NewData(u, nil)
	ud.AddOrganization(org, roleName)
	return s.users.Create(ctx, ud, actor)
}

func (s *Service) sendWelcome(ctx context.Context, ud user.UserData, orgName string) {
	err := s.mailer.SendWelcome(ctx, ud.Email(), notifx.WelcomeEmail{
		Name:         ud.User.FullName(),
		Organization: orgName,
	})
	if err != nil {
		logx.WithContext(ctx).WithError(err).Warnf("welcome mail to %s failed", ud.Email())
	}
}

// ListUsers returns the members of org
func (s *Service) ListUsers(ctx context.Context, caller user.UserData, org kernel.OrganizationID) ([]user.UserData, error) {
	if err := s.authorize(caller, org, role.OrganizationListUsers); err != nil {
		return nil, err
	}
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	members := make([]user.UserData, 0, len(all))
	for _, ud := range all {
		if ud.BelongsTo(org) {
			members = append(members, ud)
		}
	}
	return members, nil
}

// StoreUser invites a new member of org or updates an existing one's profile
func (s *Service) StoreUser(ctx context.Context, caller user.UserData, org kernel.OrganizationID, req StoreUserRequest) (user.UserData, error) {
	if err := s.authorize(caller, org, role.OrganizationStoreUser); err != nil {
		return user.UserData{}, err
	}
	if len(caller.Roles) == 0 {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	if err := validateEmail(req.Email); err != nil {
		return user.UserData{}, err
	}

	if !req.Create {
		target, err := s.member(ctx, caller, org, req.Email)
		if err != nil {
			return user.UserData{}, err
		}
		return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
			ud.User.FirstName = req.FirstName
			ud.User.LastName = req.LastName
			ud.User.Properties = req.Properties.Clone()
			return ud, nil
		}, caller.Email())
	}

	roleName := req.Role
	if roleName == "" {
		roleName = role.User
	}
	if err := s.validateRole(caller, roleName); err != nil {
		return user.UserData{}, err
	}
	od, err := s.organization(ctx, org)
	if err != nil {
		return user.UserData{}, err
	}

	u := user.New(req.Email, req.FirstName, req.LastName)
	u.Properties = req.Properties.Clone()
	if req.Password != "" {
		if u.PasswordHash, err = s.verifier.HashPassword(req.Password); err != nil {
			return user.UserData{}, err
		}
	}
	ud, err := s.createUser(ctx, u, org, roleName, caller.Email())
	if err != nil {
		return user.UserData{}, err
	}

	s.sendWelcome(ctx, ud, od.Organization.Name)
	return ud, nil
}

// AddUserToOrganization gives an existing user roleName in org. Only admins
// of org may do so.
func (s *Service) AddUserToOrganization(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email, roleName string) (user.UserData, error) {
	if !access.CanManageOrganization(caller, org) {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	if err := s.validateRole(caller, roleName); err != nil {
		return user.UserData{}, err
	}
	if _, err := s.organization(ctx, org); err != nil {
		return user.UserData{}, err
	}
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return user.UserData{}, err
	}
	updated, err := s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.AddOrganization(org, roleName)
		return ud, nil
	}, caller.Email())
	if err != nil {
		return user.UserData{}, err
	}
	s.audit.LogRoleAssigned(ctx, caller.Email(), updated.Email(), org, roleName)
	return updated, nil
}

// RemoveUserFromOrganization drops email's membership of org. A user keeps
// at least one organization.
func (s *Service) RemoveUserFromOrganization(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (user.UserData, error) {
	if !access.CanManageOrganization(caller, org) {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		if !ud.BelongsTo(org) {
			return ud, iam.ErrNotFound()
		}
		if len(ud.Roles) == 1 {
			return ud, organization.ErrLastOrganization()
		}
		ud.RemoveOrganization(org)
		ud.IncCounter()
		return ud, nil
	}, caller.Email())
}

// AssignRole replaces email's role in org
func (s *Service) AssignRole(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email, roleName string) (user.UserData, error) {
	if err := s.authorize(caller, org, role.AssignRole); err != nil {
		return user.UserData{}, err
	}
	if err := s.validateRole(caller, roleName); err != nil {
		return user.UserData{}, err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	if target.Roles[org] == role.Admin && !access.IsRootAdmin(caller) {
		return user.UserData{}, organization.ErrAdminOnly()
	}
	updated, err := s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.AssignRole(org, roleName)
		return ud, nil
	}, caller.Email())
	if err != nil {
		return user.UserData{}, err
	}
	s.audit.LogRoleAssigned(ctx, caller.Email(), updated.Email(), org, roleName)
	return updated, nil
}

// GrantAccount lets email use account in org. kernel.AllAccounts grants
// every account of org.
func (s *Service) GrantAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string, account kernel.AccountID) (user.UserData, error) {
	if err := s.authorize(caller, org, role.AccountAdd); err != nil {
		return user.UserData{}, err
	}
	if !account.IsWildcard() {
		od, err := s.organization(ctx, org)
		if err != nil {
			return user.UserData{}, err
		}
		if !od.HasAccount(account) {
			return user.UserData{}, organization.ErrAccountNotFound()
		}
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.AddAccount(org, account)
		return ud, nil
	}, caller.Email())
}

func (s *Service) RevokeAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string, account kernel.AccountID) (user.UserData, error) {
	if err := s.authorize(caller, org, role.AccountAdd); err != nil {
		return user.UserData{}, err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.RemoveAccount(org, account)
		return ud, nil
	}, caller.Email())
}

// Ban locks email out and invalidates its tokens. Nobody bans themselves and
// only system admins ban organization or system admins.
func (s *Service) Ban(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (user.UserData, error) {
	if err := s.authorize(caller, org, role.UserBan); err != nil {
		return user.UserData{}, err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	if target.ID() == caller.ID() {
		return user.UserData{}, organization.ErrCannotBanSelf()
	}
	if !access.IsRootAdmin(caller) && (access.IsOrganizationAdmin(target, org) || access.IsSystemAdmin(target)) {
		return user.UserData{}, organization.ErrCannotBanAdmin()
	}

	updated, err := s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.Ban()
		ud.IncCounter()
		return ud, nil
	}, caller.Email())
	if err != nil {
		return user.UserData{}, err
	}
	s.audit.LogBan(ctx, caller.Email(), updated.Email(), true)
	return updated, nil
}

func (s *Service) Unban(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (user.UserData, error) {
	if err := s.authorize(caller, org, role.UserUnban); err != nil {
		return user.UserData{}, err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	updated, err := s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.Unban()
		return ud, nil
	}, caller.Email())
	if err != nil {
		return user.UserData{}, err
	}
	s.audit.LogBan(ctx, caller.Email(), updated.Email(), false)
	return updated, nil
}

// ChangePassword sets email's password and invalidates its tokens. Users
// change their own; admins of org change any member's.
func (s *Service) ChangePassword(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email, password string) (user.UserData, error) {
	if err := s.authorizeSelfOrAdmin(caller, org, email, role.UserPasswd, role.OrganizationUserPass); err != nil {
		return user.UserData{}, err
	}
	hash, err := s.verifier.HashPassword(password)
	if err != nil {
		return user.UserData{}, err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return user.UserData{}, err
	}
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.User.PasswordHash = hash
		ud.IncCounter()
		return ud, nil
	}, caller.Email())
}

// RefreshAPIKey issues a new API key for email and invalidates its tokens
func (s *Service) RefreshAPIKey(ctx context.Context, caller user.UserData, org kernel.OrganizationID, email string) (string, error) {
	if err := s.authorizeSelfOrAdmin(caller, org, email, role.UserAPIKey, role.OrganizationAPIKey); err != nil {
		return "", err
	}
	target, err := s.member(ctx, caller, org, email)
	if err != nil {
		return "", err
	}
	key := credential.GenerateAPIKey()
	_, err = s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.User.APIKey = key
		ud.IncCounter()
		return ud, nil
	}, caller.Email())
	if err != nil {
		return "", err
	}
	return key, nil
}

// Confirm marks email as confirmed. Admins of any of its organizations may
// confirm it.
func (s *Service) Confirm(ctx context.Context, caller user.UserData, email string) (user.UserData, error) {
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return user.UserData{}, err
	}
	allowed := access.IsRootAdmin(caller)
	for _, org := range target.Organizations() {
		if access.CanManageOrganization(caller, org) {
			allowed = true
			break
		}
	}
	if !allowed {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.Confirm(true)
		return ud, nil
	}, caller.Email())
}

// SetDefaultOrganization makes org the caller's default organization
func (s *Service) SetDefaultOrganization(ctx context.Context, caller user.UserData, org kernel.OrganizationID) (user.UserData, error) {
	if err := s.authorize(caller, org, role.ManageSelf); err != nil {
		return user.UserData{}, err
	}
	if _, err := s.organization(ctx, org); err != nil {
		return user.UserData{}, err
	}
	if caller.User.DefaultOrganization == org {
		return user.UserData{}, organization.ErrInvalidInput("organization is already the default")
	}
	return s.users.Update(ctx, caller.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.User.DefaultOrganization = org
		return ud, nil
	}, caller.Email())
}

// SetDefaultAccount makes account the caller's default account in org
func (s *Service) SetDefaultAccount(ctx context.Context, caller user.UserData, org kernel.OrganizationID, account kernel.AccountID) (user.UserData, error) {
	if err := s.authorize(caller, org, role.ManageSelf); err != nil {
		return user.UserData{}, err
	}
	od, err := s.organization(ctx, org)
	if err != nil {
		return user.UserData{}, err
	}
	if !od.HasAccount(account) {
		return user.UserData{}, organization.ErrAccountNotFound()
	}
	if !access.CanAccessAccount(caller, org, account) {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	if def, ok := caller.DefaultAccount(org); ok && def == account {
		return user.UserData{}, organization.ErrInvalidInput("account is already the default")
	}
	return s.users.Update(ctx, caller.ID(), func(ud user.UserData) (user.UserData, error) {
		if ud.User.DefaultAccounts == nil {
			ud.User.DefaultAccounts = map[kernel.OrganizationID]kernel.AccountID{}
		}
		ud.User.DefaultAccounts[org] = account
		return ud, nil
	}, caller.Email())
}

// DeleteUser removes email permanently
func (s *Service) DeleteUser(ctx context.Context, caller user.UserData, email string) error {
	if !access.Permitted(s.roles, caller, kernel.SystemOrganization, role.UserDelete) {
		return iam.ErrAccessDenied()
	}
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if target.ID() == caller.ID() {
		return organization.ErrInvalidInput("users cannot delete themselves")
	}
	if err := s.users.Delete(ctx, target.ID()); err != nil {
		return err
	}
	s.log(ctx, caller).WithField("user_id", target.ID()).Warn("user deleted")
	return nil
}

// authorizeSelfOrAdmin lets the caller act on their own record with
// selfPermission and on other members of org with adminPermission.
func (s *Service) authorizeSelfOrAdmin(caller user.UserData, org kernel.OrganizationID, email, selfPermission, adminPermission string) error {
	if user.NormalizeEmail(email) == caller.Email() {
		return s.authorize(caller, org, selfPermission)
	}
	if err := s.authorize(caller, org, adminPermission); err != nil {
		return err
	}
	if !access.CanManageOrganization(caller, org) {
		return iam.ErrAccessDenied()
	}
	return nil
}

func validateEmail(email string) error {
	email = user.NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return organization.ErrInvalidInput("a valid email is required").WithDetail("email", email)
	}
	return nil
}
