package role

import (
	"sort"
)

// Role names shipped with keystone
const (
	User              = "USER"
	OrganizationAdmin = "ORGANIZATION_ADMIN"
	// Admin is the system-wide role, held under kernel.SystemOrganization
	Admin = "ADMIN"
)

// Permissions checked by the organization service
const (
	OrganizationRead      = "organization:read"
	OrganizationUpdate    = "organization:update"
	OrganizationStore     = "organization:store"
	OrganizationListUsers = "organization:list_users"
	OrganizationStoreUser = "organization:store_user"
	OrganizationUserPass  = "organization:user_passwd"
	OrganizationAPIKey    = "organization:apikey"
	OrganizationDelete    = "organization:delete"
	AccountRead           = "account:read"
	AccountList           = "account:list"
	AccountStore          = "account:store"
	AccountAdd            = "account:add"
	AccountDelete         = "account:delete"
	UserRead              = "user:read"
	UserPasswd            = "user:passwd"
	UserAPIKey            = "user:apikey"
	UserBan               = "user:ban"
	UserUnban             = "user:unban"
	UserDelete            = "user:delete"
	AssignRole            = "role:assign"
	ManageSelf            = "self:manage"
)

// Registry maps role names to permission sets. A Registry is never mutated
// after construction; build a new one with Merge.
type Registry struct {
	roles map[string]map[string]struct{}
}

// NewRegistry copies definitions into a new registry
func NewRegistry(definitions map[string][]string) *Registry {
	r := &Registry{roles: make(map[string]map[string]struct{}, len(definitions))}
	for name, perms := range definitions {
		r.roles[name] = toSet(perms)
	}
	return r
}

// Default returns the three built-in roles
func Default() *Registry {
	user := []string{
		OrganizationRead, AccountRead, AccountList, UserRead, UserPasswd, UserAPIKey, ManageSelf,
	}
	orgAdmin := append(append([]string{}, user...),
		OrganizationUpdate, OrganizationListUsers, OrganizationStoreUser, OrganizationUserPass,
		OrganizationAPIKey, AccountStore, AccountAdd, AccountDelete, UserBan, UserUnban, AssignRole,
	)
	admin := append(append([]string{}, orgAdmin...),
		OrganizationStore, OrganizationDelete, UserDelete,
	)

	return NewRegistry(map[string][]string{
		User:              user,
		OrganizationAdmin: orgAdmin,
		Admin:             admin,
	})
}

// Has reports whether name is a defined role
func (r *Registry) Has(name string) bool {
	_, ok := r.roles[name]
	return ok
}

// PermissionsOf returns the sorted permissions of name. Unknown roles have none.
func (r *Registry) PermissionsOf(name string) []string {
	set := r.roles[name]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Granted reports whether name holds every permission. No permissions means
// any defined role is enough.
func (r *Registry) Granted(name string, permissions ...string) bool {
	set, ok := r.roles[name]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if _, held := set[p]; !held {
			return false
		}
	}
	return true
}

// Merge returns a registry holding r's roles overridden by extension's. Neither
// input changes.
func (r *Registry) Merge(extension *Registry) *Registry {
	merged := &Registry{roles: make(map[string]map[string]struct{}, len(r.roles))}
	for name, set := range r.roles {
		merged.roles[name] = set
	}
	if extension != nil {
		for name, set := range extension.roles {
			merged.roles[name] = set
		}
	}
	return merged
}

// Names lists roles in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns role -> permissions for listing endpoints
func (r *Registry) Table() map[string][]string {
	out := make(map[string][]string, len(r.roles))
	for name := range r.roles {
		out[name] = r.PermissionsOf(name)
	}
	return out
}

func toSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
