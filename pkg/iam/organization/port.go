package organization

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// UpdateFunc transforms a stored aggregate. It may run more than once.
type UpdateFunc func(od OrganizationData) (OrganizationData, error)

// Repository persists OrganizationData. Names are unique, compared
// case-insensitively. Missing records surface as iam NotFound and collisions
// as iam DuplicateKey.
type Repository interface {
	Get(ctx context.Context, id kernel.OrganizationID) (OrganizationData, error)
	GetByName(ctx context.Context, name string) (OrganizationData, error)
	Exists(ctx context.Context, id kernel.OrganizationID) (bool, error)
	List(ctx context.Context) ([]OrganizationData, error)
	Create(ctx context.Context, od OrganizationData, actor string) (OrganizationData, error)
	Update(ctx context.Context, id kernel.OrganizationID, fn UpdateFunc, actor string) (OrganizationData, error)
	Delete(ctx context.Context, id kernel.OrganizationID) error
}
