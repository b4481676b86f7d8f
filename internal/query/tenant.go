package query

import "fmt"

// TenantMode selects how a TenantFilter matches.
type TenantMode int

const (
	// TenantAny does not filter on tenant.
	TenantAny TenantMode = iota
	// TenantExact matches one tenant exactly.
	TenantExact
	// TenantPattern matches tenants with a case-sensitive LIKE pattern.
	TenantPattern
	// TenantNone matches rows without a tenant.
	TenantNone
)

// TenantColumn is the tenant column name shared by every tenant-aware table.
const TenantColumn = "tenant_id"

// TenantFilter is a tenant restriction applied uniformly to every entity query.
// The zero value matches every tenant.
type TenantFilter struct {
	Mode  TenantMode
	Value string
}

// AnyTenant matches every row.
func AnyTenant() TenantFilter {
	return TenantFilter{Mode: TenantAny}
}

// Tenant matches rows owned by tenantID. Tenant("") is WithoutTenant.
func Tenant(tenantID string) TenantFilter {
	if tenantID == "" {
		return WithoutTenant()
	}
	return TenantFilter{Mode: TenantExact, Value: tenantID}
}

// TenantLike matches rows whose tenant matches a LIKE pattern.
func TenantLike(pattern string) TenantFilter {
	return TenantFilter{Mode: TenantPattern, Value: pattern}
}

// WithoutTenant matches rows that belong to no tenant.
func WithoutTenant() TenantFilter {
	return TenantFilter{Mode: TenantNone}
}

// Predicate returns the predicate for the tenant column, or nil for AnyTenant.
func (f TenantFilter) Predicate() Predicate {
	switch f.Mode {
	case TenantExact:
		if f.Value == "" {
			return IsEmpty{Field: TenantColumn}
		}
		return Equals{Field: TenantColumn, Value: f.Value}
	case TenantPattern:
		return Like{Field: TenantColumn, Pattern: f.Value}
	case TenantNone:
		return IsEmpty{Field: TenantColumn}
	default:
		return nil
	}
}

// String renders the filter for logs.
func (f TenantFilter) String() string {
	switch f.Mode {
	case TenantExact:
		return fmt.Sprintf("tenant=%q", f.Value)
	case TenantPattern:
		return fmt.Sprintf("tenant LIKE %q", f.Value)
	case TenantNone:
		return "without tenant"
	default:
		return "any tenant"
	}
}
