package principal

import (
	"context"
	"errors"
	"testing"
)

func TestPrincipalRoles(t *testing.T) {
	tests := []struct {
		role       Role
		admin      bool
		superAdmin bool
	}{
		{RoleConsole, false, false},
		{RoleAdmin, true, false},
		{RoleSuperAdmin, true, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.role), func(t *testing.T) {
			p := Principal{TenantID: "t", Role: tc.role}
			if p.IsAdmin() != tc.admin || p.IsSuperAdmin() != tc.superAdmin {
				t.Errorf("role %s: admin=%v super=%v", tc.role, p.IsAdmin(), p.IsSuperAdmin())
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (Principal{}).Validate(); !errors.Is(err, ErrNoTenant) {
		t.Errorf("expected ErrNoTenant, got %v", err)
	}
	if err := (Principal{TenantID: "t1"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := Get(ctx); ok {
		t.Fatal("expected no principal on empty context")
	}
	want := Principal{TenantID: "t1", UserID: "u1", Role: RoleAdmin}
	got, ok := Get(Set(ctx, want))
	if !ok || got != want {
		t.Errorf("expected %+v, got %+v (ok=%v)", want, got, ok)
	}
}
