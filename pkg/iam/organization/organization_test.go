package organization_test

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/kernel"
)

func TestPutAccount_GeneratesUniqueIDs(t *testing.T) {
	od := organization.NewData(organization.Organization{ID: "ACME", Name: "Acme"})

	a := od.PutAccount(organization.Account{Name: "Main Store"})
	b := od.PutAccount(organization.Account{Name: "main-store"})

	if a.ID != "MAIN_STORE" || b.ID != "MAIN_STORE1" {
		t.Fatalf("unexpected ids %q %q", a.ID, b.ID)
	}
}

func TestPutAccount_ExistingIDIsUpsert(t *testing.T) {
	od := organization.NewData(organization.Organization{ID: "ACME", Name: "Acme"})
	od.PutAccount(organization.Account{ID: "A1", Name: "first"})
	od.PutAccount(organization.Account{ID: "A2", Name: "second"})

	od.PutAccount(organization.Account{ID: "A1", Name: "renamed"})

	if got := od.AccountIDs(); !slices.Equal(got, []kernel.AccountID{"A1", "A2"}) {
		t.Fatalf("expected no duplicate entry, got %v", got)
	}
	if a, _ := od.Account("A1"); a.Name != "renamed" {
		t.Fatalf("expected last write to win, got %q", a.Name)
	}
}

func TestRemoveAccount(t *testing.T) {
	od := organization.NewData(organization.Organization{ID: "ACME", Name: "Acme"})
	od.PutAccount(organization.Account{ID: "A1", Name: "first"})

	if !od.RemoveAccount("A1") {
		t.Fatalf("expected A1 to be removed")
	}
	if od.RemoveAccount("A1") {
		t.Fatalf("expected second removal to report false")
	}
}

func TestClone_IsDeep(t *testing.T) {
	od := organization.NewData(organization.Organization{ID: "ACME", Name: "Acme"})
	od.PutAccount(organization.Account{ID: "A1", Name: "first", Properties: kernel.Properties{"tier": "gold"}})

	cp := od.Clone()
	cp.PutAccount(organization.Account{ID: "A2", Name: "second"})
	cp.Accounts[0].Properties["tier"] = "silver"

	if len(od.Accounts) != 1 || od.Accounts[0].Properties["tier"] != "gold" {
		t.Fatalf("clone shares state with original")
	}
}

func TestAccount_JSONFlattensProperties(t *testing.T) {
	a := organization.Account{ID: "A1", Name: "first", Properties: kernel.Properties{"tier": "gold"}}

	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["tier"] != "gold" || m["id"] != "A1" {
		t.Fatalf("expected flat object, got %s", raw)
	}

	var back organization.Account
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal account: %v", err)
	}
	if back.Properties["tier"] != "gold" || back.Name != "first" {
		t.Fatalf("round trip lost data: %+v", back)
	}
}
