// Package store provides SQLite-backed durable storage for tenantry.
//
// The store holds deployments, process definitions, the runtime entities
// spawned from them (instances, executions, tasks, jobs), their historic
// mirrors and repository models. Every one of those tables carries a
// tenant_id column with the same representation.
//
// # Critical Patterns
//
// Uniform tenant column:
//   - NOT NULL tenant_id defaulting to the empty string on every tenant-aware table
//   - "no tenant" is the empty string and nothing else, so WithoutTenant is a single predicate
//
// Partitioned versions:
//   - UNIQUE(key, tenant_id, version) on process_definitions
//   - latest_process_definitions view: max version per (key, tenant_id)
//
// Units of work:
//   - Update runs a function inside one transaction; any error rolls back
//     every write made through the Tx
//   - Transactions begin IMMEDIATE, so the first statement already holds the
//     write lock and read-modify-write sequences are serializable
//
// Deterministic reads:
//   - Every list query orders by seq, then id
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - case-sensitive LIKE: tenant LIKE filters never fold case
package store
