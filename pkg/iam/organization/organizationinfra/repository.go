package organizationinfra

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/storex"
	"github.com/jmoiron/sqlx"
)

// StoreRepository implements organization.Repository over a storex.Store
type StoreRepository struct {
	store storex.Store[organization.OrganizationData]
}

var options = storex.Options[organization.OrganizationData]{
	Key: func(od organization.OrganizationData) string {
		return organization.NameKey(od.Organization.Name)
	},
	Clone: func(od organization.OrganizationData) organization.OrganizationData { return od.Clone() },
}

func NewMemoryRepository() *StoreRepository {
	return &StoreRepository{store: storex.NewMemory(options)}
}

// NewPostgresRepository stores organizations in the organizations table
func NewPostgresRepository(ctx context.Context, db *sqlx.DB) (*StoreRepository, error) {
	store, err := storex.NewPostgres(db, "organizations", options)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return &StoreRepository{store: store}, nil
}

func (r *StoreRepository) Get(ctx context.Context, id kernel.OrganizationID) (organization.OrganizationData, error) {
	od, err := r.store.Get(ctx, id.String())
	return od, mapErr(err)
}

func (r *StoreRepository) GetByName(ctx context.Context, name string) (organization.OrganizationData, error) {
	od, err := r.store.FindByKey(ctx, organization.NameKey(name))
	return od, mapErr(err)
}

func (r *StoreRepository) Exists(ctx context.Context, id kernel.OrganizationID) (bool, error) {
	return r.store.Exists(ctx, id.String())
}

func (r *StoreRepository) List(ctx context.Context) ([]organization.OrganizationData, error) {
	return r.store.List(ctx)
}

// Create stores od. An empty id is derived from the name.
func (r *StoreRepository) Create(ctx context.Context, od organization.OrganizationData, actor string) (organization.OrganizationData, error) {
	if od.Organization.ID.IsEmpty() {
		var lookupErr error
		id := kernel.UniqueID(kernel.Slug(od.Organization.Name, organization.IDMaxLen), func(candidate string) bool {
			if candidate == kernel.SystemOrganization.String() {
				return true
			}
			ok, err := r.store.Exists(ctx, candidate)
			if err != nil {
				lookupErr = err
			}
			return ok
		})
		if lookupErr != nil {
			return organization.OrganizationData{}, errx.Wrap(lookupErr, "failed to allocate organization id", errx.TypeInternal)
		}
		od.Organization.ID = kernel.OrganizationID(id)
	}
	if od.Organization.ID.IsSystem() {
		return organization.OrganizationData{}, organization.ErrSystemReserved()
	}
	if od.Accounts == nil {
		od.Accounts = []organization.Account{}
	}
	created, err := r.store.Create(ctx, od.Organization.ID.String(), od, actor)
	return created, mapErr(err)
}

func (r *StoreRepository) Update(ctx context.Context, id kernel.OrganizationID, fn organization.UpdateFunc, actor string) (organization.OrganizationData, error) {
	updated, err := r.store.Update(ctx, id.String(), func(current organization.OrganizationData) (organization.OrganizationData, error) {
		next, err := fn(current)
		if err != nil {
			return current, err
		}
		next.Organization.ID = current.Organization.ID
		return next, nil
	}, actor)
	return updated, mapErr(err)
}

func (r *StoreRepository) Delete(ctx context.Context, id kernel.OrganizationID) error {
	return mapErr(r.store.Delete(ctx, id.String()))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case storex.IsNotFound(err):
		return iam.ErrNotFound().WithCause(err)
	case storex.IsDuplicateKey(err):
		return iam.ErrDuplicateKey().WithCause(err)
	default:
		return err
	}
}

var _ organization.Repository = (*StoreRepository)(nil)
