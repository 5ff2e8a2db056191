package userinfra_test

import (
	"context"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/keystone/pkg/kernel"
	"github.com/Abraxas-365/keystone/pkg/storex"
)

func TestCreate_DerivesIDFromEmail(t *testing.T) {
	ctx := context.Background()
	repo := userinfra.NewMemoryRepository()

	first, err := repo.Create(ctx, user.NewData(user.New("ann.lee@example.com", "Ann", "Lee"), nil), "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.User.ID != "ANN_LEE_EXAMPLE_COM" {
		t.Fatalf("unexpected id %q", first.User.ID)
	}

	second, err := repo.Create(ctx, user.NewData(user.New("ann-lee@example.com", "Ann", "Lee"), nil), "test")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.User.ID != "ANN_LEE_EXAMPLE_COM1" {
		t.Fatalf("expected suffixed id, got %q", second.User.ID)
	}
}

func TestCreate_DuplicateEmailIgnoresCase(t *testing.T) {
	ctx := context.Background()
	repo := userinfra.NewMemoryRepository()

	if _, err := repo.Create(ctx, user.NewData(user.New("ann@example.com", "Ann", "Lee"), nil), "test"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.Create(ctx, user.NewData(user.New("ANN@Example.com", "Ann", "Lee"), nil), "test")
	if !iam.Is(err, iam.DuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
}

func TestGetByEmail(t *testing.T) {
	ctx := context.Background()
	repo := userinfra.NewMemoryRepository()
	created, _ := repo.Create(ctx, user.NewData(user.New("ann@example.com", "Ann", "Lee"), nil), "test")

	got, err := repo.GetByEmail(ctx, "Ann@EXAMPLE.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.User.ID != created.User.ID {
		t.Fatalf("expected %q, got %q", created.User.ID, got.User.ID)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@example.com"); !iam.Is(err, iam.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpdate_TransformErrorPassesThrough(t *testing.T) {
	ctx := context.Background()
	repo := userinfra.NewMemoryRepository()
	created, _ := repo.Create(ctx, user.NewData(user.New("ann@example.com", "Ann", "Lee"), nil), "test")

	_, err := repo.Update(ctx, created.User.ID, func(ud user.UserData) (user.UserData, error) {
		ud.IncCounter()
		return ud, iam.ErrBanned()
	}, "test")
	if !iam.Is(err, iam.Banned) {
		t.Fatalf("expected Banned, got %v", err)
	}

	got, _ := repo.Get(ctx, created.User.ID)
	if got.User.Counter != 0 {
		t.Fatalf("failed transform must not persist, counter=%d", got.User.Counter)
	}
}

func TestUpdate_KeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := userinfra.NewMemoryRepository()
	created, _ := repo.Create(ctx, user.NewData(user.New("ann@example.com", "Ann", "Lee"), nil), "test")

	updated, err := repo.Update(ctx, created.User.ID, func(ud user.UserData) (user.UserData, error) {
		ud.User.ID = kernel.UserID("OTHER")
		ud.User.Email = "ANN.NEW@example.com"
		return ud, nil
	}, "test")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.User.ID != created.User.ID {
		t.Fatalf("id must not change, got %q", updated.User.ID)
	}
	if _, err := repo.GetByEmail(ctx, "ann.new@example.com"); err != nil {
		t.Fatalf("expected lookup by new email: %v", err)
	}
}

func TestDelete_Missing(t *testing.T) {
	err := userinfra.NewMemoryRepository().Delete(context.Background(), "NOPE")
	if !iam.Is(err, iam.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// staleExists hides existing ids from the first lookup, like a create racing
// another one between the id check and the insert.
type staleExists struct {
	storex.Store[user.UserData]
	hidden int
}

func (s *staleExists) Exists(ctx context.Context, id string) (bool, error) {
	if s.hidden > 0 {
		s.hidden--
		return false, nil
	}
	return s.Store.Exists(ctx, id)
}

func TestCreate_RetriesIDTakenConcurrently(t *testing.T) {
	ctx := context.Background()
	store := &staleExists{Store: storex.NewMemory(storex.Options[user.UserData]{
		Key:   func(ud user.UserData) string { return user.NormalizeEmail(ud.User.Email) },
		Clone: func(ud user.UserData) user.UserData { return ud.Clone() },
	})}
	repo := userinfra.NewRepository(store)

	if _, err := repo.Create(ctx, user.NewData(user.New("a.b@x.com", "A", "B"), nil), "test"); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.hidden = 1
	second, err := repo.Create(ctx, user.NewData(user.New("a_b@x.com", "A", "B"), nil), "test")
	if err != nil {
		t.Fatalf("second create with the same slug: %v", err)
	}
	if second.User.ID != "A_B_X_COM1" {
		t.Fatalf("expected re-allocated id, got %q", second.User.ID)
	}

	if _, err := repo.Create(ctx, user.NewData(user.New("A.B@x.com", "A", "B"), nil), "test"); !errx.HasCode(err, iam.CodeDuplicateKey) {
		t.Fatalf("same email must still be a duplicate, got %v", err)
	}
}
