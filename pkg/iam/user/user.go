package user

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// User is the identity record. Email is always stored lower-cased.
type User struct {
	ID                  kernel.UserID                              `json:"id"`
	Email               string                                     `json:"email"`
	FirstName           string                                     `json:"first_name"`
	LastName            string                                     `json:"last_name"`
	PasswordHash        string                                     `json:"password_hash,omitempty"`
	Confirmed           bool                                       `json:"confirmed"`
	Banned              bool                                       `json:"banned"`
	TfaEnabled          bool                                       `json:"tfa_enabled"`
	TfaSecret           string                                     `json:"tfa_secret,omitempty"`
	APIKey              string                                     `json:"api_key,omitempty"`
	AccessKey           string                                     `json:"access_key"`
	DefaultOrganization kernel.OrganizationID                      `json:"default_organization,omitempty"`
	DefaultAccounts     map[kernel.OrganizationID]kernel.AccountID `json:"default_accounts,omitempty"`
	Counter             int64                                      `json:"counter"`
	CreatedAt           time.Time                                  `json:"created_at"`

	// Properties are caller defined attributes, serialized next to the fields above
	Properties kernel.Properties `json:"-"`
}

type userJSON User

// MarshalJSON writes known fields first and properties as extra members.
func (u User) MarshalJSON() ([]byte, error) {
	return kernel.MarshalFlat(userJSON(u), u.Properties)
}

// UnmarshalJSON collects unknown members into Properties.
func (u *User) UnmarshalJSON(data []byte) error {
	var known userJSON
	props, err := kernel.UnmarshalFlat(data, &known)
	if err != nil {
		return err
	}
	*u = User(known)
	u.Properties = props
	return nil
}

// NormalizeEmail is the canonical form used for lookups and uniqueness
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccessKey derives the public half of an API credential from an email.
func AccessKey(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return strings.ToUpper(hex.EncodeToString(sum[:10]))
}

// New builds an unconfirmed user without password or roles
func New(email, firstName, lastName string) User {
	email = NormalizeEmail(email)
	return User{
		Email:           email,
		FirstName:       firstName,
		LastName:        lastName,
		AccessKey:       AccessKey(email),
		DefaultAccounts: map[kernel.OrganizationID]kernel.AccountID{},
	}
}

// FullName joins first and last name
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ============================================================================
// UserData
// ============================================================================

// UserData is the stored aggregate: the user plus roles and account grants
type UserData struct {
	User       User                                         `json:"user"`
	Roles      map[kernel.OrganizationID]string             `json:"roles"`
	Accounts   map[kernel.OrganizationID][]kernel.AccountID `json:"accounts"`
	LastLogin  *time.Time                                   `json:"last_login,omitempty"`
	LastAccess *time.Time                                   `json:"last_access,omitempty"`
}

// NewData wraps u with the given roles. The first organization (in id order)
// becomes the default when u has none.
func NewData(u User, roles map[kernel.OrganizationID]string) UserData {
	ud := UserData{
		User:     u,
		Roles:    map[kernel.OrganizationID]string{},
		Accounts: map[kernel.OrganizationID][]kernel.AccountID{},
	}
	if ud.User.DefaultAccounts == nil {
		ud.User.DefaultAccounts = map[kernel.OrganizationID]kernel.AccountID{}
	}
	for _, org := range sortedOrgs(roles) {
		ud.AddOrganization(org, roles[org])
	}
	return ud
}

func (ud UserData) ID() kernel.UserID { return ud.User.ID }
func (ud UserData) Email() string     { return ud.User.Email }
func (ud UserData) Counter() int64    { return ud.User.Counter }

// Clone deep-copies the aggregate
func (ud UserData) Clone() UserData {
	out := ud
	out.User.Properties = ud.User.Properties.Clone()
	out.User.DefaultAccounts = make(map[kernel.OrganizationID]kernel.AccountID, len(ud.User.DefaultAccounts))
	for k, v := range ud.User.DefaultAccounts {
		out.User.DefaultAccounts[k] = v
	}
	out.Roles = make(map[kernel.OrganizationID]string, len(ud.Roles))
	for k, v := range ud.Roles {
		out.Roles[k] = v
	}
	out.Accounts = make(map[kernel.OrganizationID][]kernel.AccountID, len(ud.Accounts))
	for k, v := range ud.Accounts {
		out.Accounts[k] = slices.Clone(v)
	}
	if ud.LastLogin != nil {
		t := *ud.LastLogin
		out.LastLogin = &t
	}
	if ud.LastAccess != nil {
		t := *ud.LastAccess
		out.LastAccess = &t
	}
	return out
}

// RoleFor resolves the role used in realm. A system-wide role wins over the
// organization's own entry.
func (ud UserData) RoleFor(realm kernel.OrganizationID) (string, bool) {
	if r, ok := ud.Roles[kernel.SystemOrganization]; ok {
		return r, true
	}
	r, ok := ud.Roles[realm]
	return r, ok
}

// BelongsTo reports an explicit role entry for org
func (ud UserData) BelongsTo(org kernel.OrganizationID) bool {
	_, ok := ud.Roles[org]
	return ok
}

// Organizations lists organizations with an explicit role, in id order
func (ud UserData) Organizations() []kernel.OrganizationID {
	return sortedOrgs(ud.Roles)
}

// DefaultAccount returns the default account in org
func (ud UserData) DefaultAccount(org kernel.OrganizationID) (kernel.AccountID, bool) {
	a, ok := ud.User.DefaultAccounts[org]
	return a, ok
}

// AddOrganization grants role in org and makes org the default when none is set
func (ud *UserData) AddOrganization(org kernel.OrganizationID, roleName string) {
	ud.ensureMaps()
	ud.Roles[org] = roleName
	if ud.User.DefaultOrganization.IsEmpty() {
		ud.User.DefaultOrganization = org
	}
}

// AssignRole replaces the role held in org
func (ud *UserData) AssignRole(org kernel.OrganizationID, roleName string) {
	ud.ensureMaps()
	ud.Roles[org] = roleName
}

// RemoveOrganization drops the role, account grants and default account in
// org. If org was the default organization the next remaining one takes over.
func (ud *UserData) RemoveOrganization(org kernel.OrganizationID) {
	ud.ensureMaps()
	delete(ud.Roles, org)
	delete(ud.Accounts, org)
	delete(ud.User.DefaultAccounts, org)
	if ud.User.DefaultOrganization == org {
		ud.User.DefaultOrganization = ""
		for _, other := range sortedOrgs(ud.Roles) {
			if !other.IsSystem() {
				ud.User.DefaultOrganization = other
				break
			}
		}
	}
}

// AddAccount grants account in org. Granting AllAccounts replaces the list;
// a concrete grant replaces a previous AllAccounts. The first concrete grant
// in an organization becomes its default account.
func (ud *UserData) AddAccount(org kernel.OrganizationID, account kernel.AccountID) {
	ud.ensureMaps()
	if _, ok := ud.User.DefaultAccounts[org]; !ok && !account.IsWildcard() {
		ud.User.DefaultAccounts[org] = account
	}

	if account.IsWildcard() {
		ud.Accounts[org] = []kernel.AccountID{kernel.AllAccounts}
		return
	}

	current := ud.Accounts[org]
	if current == nil || slices.Contains(current, kernel.AllAccounts) {
		ud.Accounts[org] = []kernel.AccountID{account}
		return
	}
	if !slices.Contains(current, account) {
		ud.Accounts[org] = append(current, account)
	}
}

// RemoveAccount revokes account in org and clears it as default
func (ud *UserData) RemoveAccount(org kernel.OrganizationID, account kernel.AccountID) {
	ud.ensureMaps()
	if current, ok := ud.Accounts[org]; ok {
		ud.Accounts[org] = slices.DeleteFunc(current, func(a kernel.AccountID) bool { return a == account })
	}
	if def, ok := ud.User.DefaultAccounts[org]; ok && def == account {
		delete(ud.User.DefaultAccounts, org)
	}
}

// HasAccountGrant reports an explicit or wildcard grant of account in org
func (ud UserData) HasAccountGrant(org kernel.OrganizationID, account kernel.AccountID) bool {
	granted := ud.Accounts[org]
	return slices.Contains(granted, kernel.AllAccounts) || slices.Contains(granted, account)
}

// IncCounter invalidates every token issued so far
func (ud *UserData) IncCounter() {
	ud.User.Counter++
}

func (ud *UserData) Ban()   { ud.User.Banned = true }
func (ud *UserData) Unban() { ud.User.Banned = false }

func (ud *UserData) Confirm(confirmed bool) {
	ud.User.Confirmed = confirmed
}

func (ud *UserData) TouchLogin(at time.Time) {
	at = at.UTC()
	ud.LastLogin = &at
}

func (ud *UserData) TouchAccess(at time.Time) {
	at = at.UTC()
	ud.LastAccess = &at
}

func (ud *UserData) ensureMaps() {
	if ud.Roles == nil {
		ud.Roles = map[kernel.OrganizationID]string{}
	}
	if ud.Accounts == nil {
		ud.Accounts = map[kernel.OrganizationID][]kernel.AccountID{}
	}
	if ud.User.DefaultAccounts == nil {
		ud.User.DefaultAccounts = map[kernel.OrganizationID]kernel.AccountID{}
	}
}

func sortedOrgs[V any](m map[kernel.OrganizationID]V) []kernel.OrganizationID {
	orgs := make([]kernel.OrganizationID, 0, len(m))
	for org := range m {
		orgs = append(orgs, org)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i] < orgs[j] })
	return orgs
}

// ============================================================================
// Views
// ============================================================================

// View is the public representation of a user. Secrets never leave the service.
type View struct {
	ID                  kernel.UserID                    `json:"id"`
	Email               string                           `json:"email"`
	FirstName           string                           `json:"first_name"`
	LastName            string                           `json:"last_name"`
	Confirmed           bool                             `json:"confirmed"`
	Banned              bool                             `json:"banned"`
	TfaEnabled          bool                             `json:"tfa_enabled"`
	DefaultOrganization kernel.OrganizationID            `json:"default_organization,omitempty"`
	Roles               map[kernel.OrganizationID]string `json:"roles"`
	LastLogin           *time.Time                       `json:"last_login,omitempty"`
	Properties          kernel.Properties                `json:"properties,omitempty"`
}

// SecureView adds the caller's own credentials, shown only to the user itself
type SecureView struct {
	View
	AccessKey       string                                       `json:"access_key"`
	APIKey          string                                       `json:"api_key,omitempty"`
	Accounts        map[kernel.OrganizationID][]kernel.AccountID `json:"accounts"`
	DefaultAccounts map[kernel.OrganizationID]kernel.AccountID   `json:"default_accounts,omitempty"`
}

func (ud UserData) ToView() View {
	return View{
		ID:                  ud.User.ID,
		Email:               ud.User.Email,
		FirstName:           ud.User.FirstName,
		LastName:            ud.User.LastName,
		Confirmed:           ud.User.Confirmed,
		Banned:              ud.User.Banned,
		TfaEnabled:          ud.User.TfaEnabled,
		DefaultOrganization: ud.User.DefaultOrganization,
		Roles:               ud.Roles,
		LastLogin:           ud.LastLogin,
		Properties:          ud.User.Properties,
	}
}

func (ud UserData) ToSecureView() SecureView {
	return SecureView{
		View:            ud.ToView(),
		AccessKey:       ud.User.AccessKey,
		APIKey:          ud.User.APIKey,
		Accounts:        ud.Accounts,
		DefaultAccounts: ud.User.DefaultAccounts,
	}
}

var _ json.Marshaler = User{}
