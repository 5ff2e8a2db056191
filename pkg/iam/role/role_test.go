package role_test

import (
	"slices"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/iam/role"
)

func TestPermissionsOf_UnknownRoleIsEmpty(t *testing.T) {
	r := role.Default()
	if perms := r.PermissionsOf("GHOST"); len(perms) != 0 {
		t.Fatalf("expected no permissions, got %v", perms)
	}
	if r.Granted("GHOST") {
		t.Fatal("unknown role must not be granted")
	}
}

func TestDefault_IsSupersetChain(t *testing.T) {
	r := role.Default()
	for _, p := range r.PermissionsOf(role.User) {
		if !r.Granted(role.OrganizationAdmin, p) {
			t.Errorf("organization admin lacks user permission %s", p)
		}
	}
	for _, p := range r.PermissionsOf(role.OrganizationAdmin) {
		if !r.Granted(role.Admin, p) {
			t.Errorf("admin lacks organization admin permission %s", p)
		}
	}
	if r.Granted(role.User, role.UserBan) {
		t.Fatal("plain users cannot ban")
	}
}

func TestMerge_ExtensionWinsAndInputsUntouched(t *testing.T) {
	base := role.Default()
	ext := role.NewRegistry(map[string][]string{
		role.User: {"report:read"},
		"AUDITOR": {"audit:read"},
	})

	merged := base.Merge(ext)

	if got := merged.PermissionsOf(role.User); !slices.Equal(got, []string{"report:read"}) {
		t.Fatalf("extension should replace USER, got %v", got)
	}
	if !merged.Granted("AUDITOR", "audit:read") {
		t.Fatal("extension role missing")
	}
	if !merged.Granted(role.Admin, role.UserDelete) {
		t.Fatal("base roles must pass through")
	}

	if !base.Granted(role.User, role.ManageSelf) || base.Has("AUDITOR") {
		t.Fatal("base registry was mutated")
	}
	if ext.Has(role.Admin) {
		t.Fatal("extension registry was mutated")
	}
}

func TestMerge_NilExtension(t *testing.T) {
	base := role.Default()
	if got := base.Merge(nil).Names(); !slices.Equal(got, base.Names()) {
		t.Fatalf("merge with nil changed roles: %v", got)
	}
}
