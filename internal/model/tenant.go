package model

import "fmt"

// NoTenant is the canonical "no tenant" partition.
const NoTenant = ""

// TenantKey is the versioning partition: a definition key scoped to a tenant.
//
// TenantKey is comparable and can be used as a map key. Two keys are equal
// only when both fields match exactly.
type TenantKey struct {
	DefinitionKey string `json:"definition_key"`
	TenantID      string `json:"tenant_id"`
}

// NewTenantKey builds a TenantKey.
func NewTenantKey(definitionKey, tenantID string) TenantKey {
	return TenantKey{DefinitionKey: definitionKey, TenantID: tenantID}
}

// HasTenant reports whether the key belongs to a named tenant.
func (k TenantKey) HasTenant() bool {
	return k.TenantID != NoTenant
}

// String renders the key for logs and error messages.
func (k TenantKey) String() string {
	if !k.HasTenant() {
		return fmt.Sprintf("%s@<none>", k.DefinitionKey)
	}
	return fmt.Sprintf("%s@%s", k.DefinitionKey, k.TenantID)
}

// Less orders keys by definition key, then tenant. Used to acquire partition
// locks in a stable order.
func (k TenantKey) Less(other TenantKey) bool {
	if k.DefinitionKey != other.DefinitionKey {
		return k.DefinitionKey < other.DefinitionKey
	}
	return k.TenantID < other.TenantID
}
