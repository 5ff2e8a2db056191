package user

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/kernel"
)

// UpdateFunc transforms a stored aggregate. It may run more than once.
type UpdateFunc func(ud UserData) (UserData, error)

// Repository persists UserData. Emails are unique, compared lower-cased.
// Missing records surface as iam NotFound and collisions as iam DuplicateKey.
type Repository interface {
	Get(ctx context.Context, id kernel.UserID) (UserData, error)
	GetByEmail(ctx context.Context, email string) (UserData, error)
	Exists(ctx context.Context, id kernel.UserID) (bool, error)
	List(ctx context.Context) ([]UserData, error)
	Create(ctx context.Context, ud UserData, actor string) (UserData, error)
	Update(ctx context.Context, id kernel.UserID, fn UpdateFunc, actor string) (UserData, error)
	Delete(ctx context.Context, id kernel.UserID) error
}
