// Package engine implements tenant-aware deployment, versioning and runtime
// propagation on top of the store.
//
// # Partitions
//
// A TenantKey (definition key, tenant id) is the unit of versioning. The
// same key deployed for two tenants, or for a tenant and for no tenant, is
// versioned independently from 1. "No tenant" is the empty string and is a
// partition like any other.
//
// # Propagation
//
// Tenant identity is copied once, at creation, from the definition to
// instances, executions and definition-level jobs, and from the owning
// instance to tasks, child executions and instance jobs. Jobs created while
// executing a job take the executed job's tenant. Nothing reads a "current
// tenant" from ambient state: every operation names its tenant or derives it
// from a stored entity.
//
// # Retroactive reassignment
//
// ChangeDeploymentTenantID rewrites the tenant of a deployment and of every
// entity descended from it in one transaction, after checking that the
// destination partition does not already hold any of its keys.
//
// # Concurrency
//
// Deploy and ChangeDeploymentTenantID take in-process partition locks, in
// sorted order, before opening an IMMEDIATE store transaction. All other
// writes rely on the store transaction alone. UNIQUE(key, tenant_id, version)
// is the last line of defence and surfaces as TENANT_CLASH.
package engine
