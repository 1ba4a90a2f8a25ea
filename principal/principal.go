// Package principal carries the tenant and user a pipeline run acts on
// behalf of. A Principal is passed by value through every kernel call and is
// never mutated by the kernel.
//
//	ctx = principal.Set(ctx, p)
//	p, ok := principal.Get(ctx)
package principal

import (
	"context"
	"errors"
)

// Role is the platform role of a principal.
type Role string

const (
	RoleConsole    Role = "console"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Principal identifies the tenant and user of a run.
type Principal struct {
	TenantID string `yaml:"tenantId" json:"tenantId"`
	UserID   string `yaml:"userId" json:"userId"`
	Name     string `yaml:"name" json:"name"`
	Role     Role   `yaml:"role" json:"role"`
}

// IsAdmin reports whether the principal administers its tenant.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin || p.Role == RoleSuperAdmin }

// IsSuperAdmin reports whether the principal spans tenants.
func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }

// ErrNoTenant is returned when a principal has no tenant.
var ErrNoTenant = errors.New("principal: tenant id is required")

// Validate checks that the principal is scoped to a tenant.
func (p Principal) Validate() error {
	if p.TenantID == "" {
		return ErrNoTenant
	}
	return nil
}

type contextKey struct{}

// Set stores the principal on the context.
func Set(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// Get returns the principal stored on the context.
func Get(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
