// Package model provides the tenant-stamped entity types shared by the store,
// the engine and the CLI.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - "No tenant" is the empty string everywhere (never a nil or a separate flag)
//   - TenantID fields are plain strings compared with exact, case-sensitive equality
//   - Logical clocks (Seq) order rows; wall-clock times are informational only
//   - All JSON tags use snake_case
package model
