package organization

import (
	"slices"
	"strings"

	"github.com/Abraxas-365/keystone/pkg/kernel"
)

const (
	// IDMaxLen bounds organization ids generated from names
	IDMaxLen = 12
	// AccountIDMaxLen bounds account ids generated from names
	AccountIDMaxLen = 24
)

// Organization is a tenant
type Organization struct {
	ID          kernel.OrganizationID `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Properties  kernel.Properties     `json:"-"`
}

type organizationJSON Organization

func (o Organization) MarshalJSON() ([]byte, error) {
	return kernel.MarshalFlat(organizationJSON(o), o.Properties)
}

func (o *Organization) UnmarshalJSON(data []byte) error {
	var known organizationJSON
	props, err := kernel.UnmarshalFlat(data, &known)
	if err != nil {
		return err
	}
	*o = Organization(known)
	o.Properties = props
	return nil
}

// NameKey is the normalized name used for uniqueness checks
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Account is a named sub-resource of an organization
type Account struct {
	ID          kernel.AccountID  `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Properties  kernel.Properties `json:"-"`
}

type accountJSON Account

func (a Account) MarshalJSON() ([]byte, error) {
	return kernel.MarshalFlat(accountJSON(a), a.Properties)
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var known accountJSON
	props, err := kernel.UnmarshalFlat(data, &known)
	if err != nil {
		return err
	}
	*a = Account(known)
	a.Properties = props
	return nil
}

// OrganizationData is the stored aggregate: the organization and its accounts
// in insertion order.
type OrganizationData struct {
	Organization Organization `json:"organization"`
	Accounts     []Account    `json:"accounts"`
}

func NewData(org Organization) OrganizationData {
	return OrganizationData{Organization: org, Accounts: []Account{}}
}

func (od OrganizationData) ID() kernel.OrganizationID { return od.Organization.ID }

func (od OrganizationData) Clone() OrganizationData {
	out := od
	out.Organization.Properties = od.Organization.Properties.Clone()
	out.Accounts = make([]Account, len(od.Accounts))
	for i, a := range od.Accounts {
		a.Properties = a.Properties.Clone()
		out.Accounts[i] = a
	}
	return out
}

// Account looks up an account by id
func (od OrganizationData) Account(id kernel.AccountID) (Account, bool) {
	i := od.indexOf(id)
	if i < 0 {
		return Account{}, false
	}
	return od.Accounts[i], true
}

func (od OrganizationData) HasAccount(id kernel.AccountID) bool {
	return od.indexOf(id) >= 0
}

// AccountIDs lists account ids in insertion order
func (od OrganizationData) AccountIDs() []kernel.AccountID {
	ids := make([]kernel.AccountID, len(od.Accounts))
	for i, a := range od.Accounts {
		ids[i] = a.ID
	}
	return ids
}

// PutAccount inserts or replaces an account. Without an id one is generated
// from the name, unique within the organization. An existing id is
// overwritten in place, keeping its position.
func (od *OrganizationData) PutAccount(a Account) Account {
	if a.ID.IsEmpty() {
		a.ID = kernel.AccountID(kernel.UniqueID(kernel.Slug(a.Name, AccountIDMaxLen), func(candidate string) bool {
			return od.HasAccount(kernel.AccountID(candidate))
		}))
	}
	if i := od.indexOf(a.ID); i >= 0 {
		od.Accounts[i] = a
		return a
	}
	od.Accounts = append(od.Accounts, a)
	return a
}

// RemoveAccount deletes an account and reports whether it existed
func (od *OrganizationData) RemoveAccount(id kernel.AccountID) bool {
	i := od.indexOf(id)
	if i < 0 {
		return false
	}
	od.Accounts = slices.Delete(od.Accounts, i, i+1)
	return true
}

func (od OrganizationData) indexOf(id kernel.AccountID) int {
	return slices.IndexFunc(od.Accounts, func(a Account) bool { return a.ID == id })
}
