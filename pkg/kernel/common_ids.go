package kernel

type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }

type OrganizationID string

func NewOrganizationID(id string) OrganizationID { return OrganizationID(id) }
func (o OrganizationID) String() string          { return string(o) }
func (o OrganizationID) IsEmpty() bool           { return string(o) == "" }

// IsSystem reports whether o is the pseudo-organization holding system-wide roles.
func (o OrganizationID) IsSystem() bool { return o == SystemOrganization }

type AccountID string

func NewAccountID(id string) AccountID { return AccountID(id) }
func (a AccountID) String() string     { return string(a) }
func (a AccountID) IsEmpty() bool      { return string(a) == "" }

// IsWildcard reports whether a grants every account of an organization.
func (a AccountID) IsWildcard() bool { return a == AllAccounts }

const (
	// SystemOrganization is the realm of system-wide roles. It never names a
	// real organization record.
	SystemOrganization OrganizationID = "SYSTEM"

	// AllAccounts grants all accounts of an organization, present and future.
	AllAccounts AccountID = "*"
)
