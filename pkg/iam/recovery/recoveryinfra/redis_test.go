package recoveryinfra_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery"
	"github.com/Abraxas-365/keystone/pkg/iam/recovery/recoveryinfra"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Runs against a live server when KEYSTONE_TEST_REDIS holds its address.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("KEYSTONE_TEST_REDIS")
	if addr == "" {
		t.Skip("KEYSTONE_TEST_REDIS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	store := recoveryinfra.NewRedisStore(client)
	token := uuid.NewString()

	if err := store.Save(ctx, token, "ann@example.com", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	email, err := store.Consume(ctx, token)
	if err != nil || email != "ann@example.com" {
		t.Fatalf("consume = %q, %v", email, err)
	}
	if _, err := store.Consume(ctx, token); !errx.HasCode(err, recovery.CodeInvalidToken) {
		t.Fatalf("second consume: %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := recoveryinfra.NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_ = store.Save(ctx, "a", "ann@example.com", time.Minute)
	_ = store.Save(ctx, "b", "bob@example.com", time.Hour)

	now = now.Add(time.Minute)
	if _, err := store.Consume(ctx, "a"); !errx.HasCode(err, recovery.CodeInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
	if email, err := store.Consume(ctx, "b"); err != nil || email != "bob@example.com" {
		t.Fatalf("live token = %q, %v", email, err)
	}
}
