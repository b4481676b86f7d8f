// Package query provides a small predicate IR for tenant-filtered reads and
// compiles it to parameterized SQLite SQL.
//
// The store builds a Select per entity query: exact matches, case-sensitive
// LIKE matches and "field is empty" checks combined with And. Tenant filters
// are expressed with TenantFilter so that every entity applies the same
// rules:
//
//   - AnyTenant matches every row
//   - Tenant(id) matches rows whose tenant_id equals id exactly
//   - TenantLike(p) matches rows whose tenant_id is LIKE p (case-sensitive)
//   - WithoutTenant matches rows whose tenant_id is the empty string
//
// Tenant("") and WithoutTenant compile to the same predicate, so callers never
// have to special-case a missing tenant twice.
//
// All values are parameterized, never interpolated. Identifiers are validated
// against a strict pattern before they are written into SQL. Every Select is
// ordered deterministically (seq, then id) unless an explicit order is given.
package query
