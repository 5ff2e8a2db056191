package userinfra

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/storex"
	"github.com/jmoiron/sqlx"
)

const (
	idMaxLen = 40
	// idAttempts bounds re-allocation when a concurrent create takes the id
	idAttempts = 4
)

// StoreRepository implements user.Repository over a storex.Store
type StoreRepository struct {
	store storex.Store[user.UserData]
}

var options = storex.Options[user.UserData]{
	Key:   func(ud user.UserData) string { return user.NormalizeEmail(ud.User.Email) },
	Clone: func(ud user.UserData) user.UserData { return ud.Clone() },
}

func NewRepository(store storex.Store[user.UserData]) *StoreRepository {
	return &StoreRepository{store: store}
}

// NewMemoryRepository keeps users in process memory
func NewMemoryRepository() *StoreRepository {
	return NewRepository(storex.NewMemory(options))
}

// NewPostgresRepository stores users as documents in the users table
func NewPostgresRepository(ctx context.Context, db *sqlx.DB) (*StoreRepository, error) {
	store, err := storex.NewPostgres(db, "users", options)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return NewRepository(store), nil
}

func (r *StoreRepository) Get(ctx context.Context, id kernel.UserID) (user.UserData, error) {
	ud, err := r.store.Get(ctx, id.String())
	return ud, mapErr(err)
}

func (r *StoreRepository) GetByEmail(ctx context.Context, email string) (user.UserData, error) {
	ud, err := r.store.FindByKey(ctx, user.NormalizeEmail(email))
	return ud, mapErr(err)
}

func (r *StoreRepository) Exists(ctx context.Context, id kernel.UserID) (bool, error) {
	return r.store.Exists(ctx, id.String())
}

func (r *StoreRepository) List(ctx context.Context) ([]user.UserData, error) {
	return r.store.List(ctx)
}

// Create stores ud. An empty id is derived from the email.
func (r *StoreRepository) Create(ctx context.Context, ud user.UserData, actor string) (user.UserData, error) {
	ud.User.Email = user.NormalizeEmail(ud.User.Email)
	if ud.User.AccessKey == "" {
		ud.User.AccessKey = user.AccessKey(ud.User.Email)
	}
	derived := ud.User.ID.IsEmpty()
	for attempt := 1; ; attempt++ {
		if derived {
			id, err := r.newID(ctx, ud.User.Email)
			if err != nil {
				return user.UserData{}, err
			}
			ud.User.ID = id
		}
		created, err := r.store.Create(ctx, ud.User.ID.String(), ud, actor)
		if derived && attempt < idAttempts && storex.IsDuplicateID(err) {
			continue
		}
		return created, mapErr(err)
	}
}

func (r *StoreRepository) Update(ctx context.Context, id kernel.UserID, fn user.UpdateFunc, actor string) (user.UserData, error) {
	updated, err := r.store.Update(ctx, id.String(), func(current user.UserData) (user.UserData, error) {
		next, err := fn(current)
		if err != nil {
			return current, err
		}
		next.User.ID = current.User.ID
		next.User.Email = user.NormalizeEmail(next.User.Email)
		return next, nil
	}, actor)
	return updated, mapErr(err)
}

func (r *StoreRepository) Delete(ctx context.Context, id kernel.UserID) error {
	return mapErr(r.store.Delete(ctx, id.String()))
}

func (r *StoreRepository) newID(ctx context.Context, email string) (kernel.UserID, error) {
	var lookupErr error
	id := kernel.UniqueID(kernel.Slug(email, idMaxLen), func(candidate string) bool {
		ok, err := r.store.Exists(ctx, candidate)
		if err != nil {
			lookupErr = err
		}
		return ok
	})
	if lookupErr != nil {
		return "", errx.Wrap(lookupErr, "failed to allocate user id", errx.TypeInternal)
	}
	return kernel.UserID(id), nil
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

var _ user.Repository = (*StoreRepository)(nil)
