package aaa

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUsernameNamespacing(t *testing.T) {
	if got := Username("acme", "john"); got != "acme-john" {
		t.Fatalf("expected acme-john, got %q", got)
	}
	if got := Username(" acme ", " john "); got != "acme-john" {
		t.Fatalf("expected trimmed acme-john, got %q", got)
	}
}

func TestUsernameDistinctAcrossTenants(t *testing.T) {
	a := Username("acme", "john")
	b := Username("globex", "john")
	if a == b {
		t.Fatalf("same raw username collided across tenants: %q", a)
	}
}

func TestGroupNameCarriesPlanID(t *testing.T) {
	planID := uuid.New()
	got := GroupName("acme", planID)
	if got != "acme-plan-"+planID.String() {
		t.Fatalf("unexpected group name %q", got)
	}
}

func TestTenantPrefixMatchesUsernames(t *testing.T) {
	prefix := TenantPrefix("acme")
	if !strings.HasPrefix(Username("acme", "john"), prefix) {
		t.Fatalf("prefix %q does not cover tenant usernames", prefix)
	}
	if strings.HasPrefix(Username("acmeco", "john"), prefix+"x") {
		t.Fatal("prefix should not depend on other tenants")
	}
}

func TestTruncateShortName(t *testing.T) {
	if got := TruncateShortName("  edge-router  "); got != "edge-router" {
		t.Fatalf("expected trimmed name, got %q", got)
	}

	long := strings.Repeat("r", 48)
	got := TruncateShortName(long)
	if len(got) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(got))
	}
}
