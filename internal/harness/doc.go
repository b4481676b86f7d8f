// Package harness runs tenancy scenarios against the engine and compares
// their traces with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: versioning_across_tenants
//	description: "What this scenario validates"
//	resources:
//	  invoice.yaml: |
//	    process:
//	      key: invoice
//	      steps:
//	        - {id: review, type: userTask}
//	steps:
//	  - {op: deploy, as: d1, tenant: A, resources: [invoice.yaml]}
//	  - {op: start, key: invoice, expect: AMBIGUOUS_TENANT_SCOPE}
//	  - {op: start, as: i1, key: invoice, tenant: A}
//	  - {op: complete, instance: i1, task: review}
//	  - {op: change_tenant, deployment: d1, to: B}
//	  - {op: advance, by: 1h}
//	  - {op: run_jobs}
//	assertions:
//	  - {type: count, entity: instances, tenant: B, count: 0}
//	  - {type: latest_version, key: invoice, tenant: B, version: 1}
//	  - {type: tenant_consistent}
//
// An omitted tenant means "no tenant given": start and suspend then use
// their tenant-less forms. tenant: "" names the no-tenant partition.
//
// # Operations
//
//   - deploy: deploy resources as one deployment (name defaults to the alias)
//   - start: start by key, or by key and tenant
//   - complete: complete the open task with the given task key, found by
//     instance alias or by tenant
//   - cancel: delete a running instance by alias
//   - change_tenant: move a deployment to another tenant
//   - undeploy: delete a deployment, optionally cascading
//   - suspend, activate: change the suspension state of a partition
//   - advance: move the scenario clock forward
//   - run_jobs: execute every due job in creation order
//
// A step passes when its outcome (ok or a tenancy error code) equals its
// expect value. A rejected step must leave the store unchanged; the harness
// compares store dumps around every step expected to fail.
//
// # Deterministic Testing
//
// Every scenario runs on a fresh SQLite database with sequential IDs and a
// manual clock starting at testutil.Epoch, so traces are identical across
// runs. Traces name entities by key, version and tenant rather than by ID.
package harness
