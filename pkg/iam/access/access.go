// Package access holds the predicates that gate every operation on an
// organization or account. They are pure: no I/O, no clock.
//
// Precedence is system admin, then organization admin, then explicit
// per-account grants (or the "*" wildcard).
package access

import (
	"github.com/Abraxas-365/keystone/pkg/iam/role"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// IsSystemAdmin reports whether ud holds any system-wide role. Every
// organization and account is open to such users.
func IsSystemAdmin(ud user.UserData) bool {
	_, ok := ud.Roles[kernel.SystemOrganization]
	return ok
}

// IsRootAdmin reports whether ud's system-wide role is ADMIN. Only root admins
// grant ADMIN or override the protections on admins.
func IsRootAdmin(ud user.UserData) bool {
	return ud.Roles[kernel.SystemOrganization] == role.Admin
}

// CanAccessOrganization reports whether ud may act in org
func CanAccessOrganization(ud user.UserData, org kernel.OrganizationID) bool {
	if IsSystemAdmin(ud) {
		return true
	}
	_, ok := ud.Roles[org]
	return ok
}

// IsOrganizationAdmin reports whether ud's role in org is ORGANIZATION_ADMIN
func IsOrganizationAdmin(ud user.UserData, org kernel.OrganizationID) bool {
	return ud.Roles[org] == role.OrganizationAdmin
}

// CanAccessAccount reports whether ud may use account in org
func CanAccessAccount(ud user.UserData, org kernel.OrganizationID, account kernel.AccountID) bool {
	if IsSystemAdmin(ud) {
		return true
	}
	if IsOrganizationAdmin(ud, org) {
		return true
	}
	return ud.HasAccountGrant(org, account)
}

// CanManageOrganization is CanAccessOrganization restricted to admins
func CanManageOrganization(ud user.UserData, org kernel.OrganizationID) bool {
	return IsSystemAdmin(ud) || IsOrganizationAdmin(ud, org)
}

// Granted reports whether roleName holds every permission in registry
func Granted(registry *role.Registry, roleName string, permissions ...string) bool {
	return registry.Granted(roleName, permissions...)
}

// Permitted resolves ud's role in org (system role first) and checks it
// against permissions. Users without a role in org are never permitted.
func Permitted(registry *role.Registry, ud user.UserData, org kernel.OrganizationID, permissions ...string) bool {
	roleName, ok := ud.RoleFor(org)
	if !ok {
		return false
	}
	return registry.Granted(roleName, permissions...)
}

// VisibleAccounts filters ids down to those ud may use in org, keeping order
func VisibleAccounts(ud user.UserData, org kernel.OrganizationID, ids []kernel.AccountID) []kernel.AccountID {
	out := make([]kernel.AccountID, 0, len(ids))
	for _, id := range ids {
		if CanAccessAccount(ud, org, id) {
			out = append(out, id)
		}
	}
	return out
}
