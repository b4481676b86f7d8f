package engine

import (
	"database/sql"
	"errors"
	"fmt"
)

// TenancyError represents a tenancy rule violation detected by the engine.
//
// Tenancy errors include:
//   - Ambiguous scope: a tenant-less operation matches several partitions
//   - Tenant clash: a partition would hold the same key twice
//   - Partition not found: nothing is deployed for the requested scope
//   - Suspended partition: the resolved definition is suspended
//
// TenancyError includes structured fields for diagnostics. The engine never
// coerces a failing tenant to another partition; callers must retry with an
// explicit tenant.
type TenancyError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Key is the process definition key involved, if any.
	Key string

	// TenantID is the tenant involved, if any.
	TenantID string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes tenancy errors.
type ErrorCode string

const (
	// ErrCodeAmbiguousScope indicates a tenant-less operation matched zero
	// no-tenant definitions but one or more tenant partitions, or several
	// partitions where exactly one is required.
	ErrCodeAmbiguousScope ErrorCode = "AMBIGUOUS_TENANT_SCOPE"

	// ErrCodeTenantClash indicates a (key, tenant, version) collision.
	ErrCodeTenantClash ErrorCode = "TENANT_CLASH"

	// ErrCodePartitionNotFound indicates no definition exists in the scope.
	ErrCodePartitionNotFound ErrorCode = "PARTITION_NOT_FOUND"

	// ErrCodeSuspended indicates the resolved definition is suspended.
	ErrCodeSuspended ErrorCode = "SUSPENDED_PARTITION"

	// ErrCodeNotFound indicates an entity looked up by ID does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeMissingTenantSource indicates a job has nothing to inherit its
	// tenant from.
	ErrCodeMissingTenantSource ErrorCode = "MISSING_TENANT_SOURCE"

	// ErrCodeTenantMismatch indicates two tenant sources disagree.
	ErrCodeTenantMismatch ErrorCode = "TENANT_MISMATCH"

	// ErrCodeInvalidResource indicates a deployment resource failed to compile.
	ErrCodeInvalidResource ErrorCode = "INVALID_RESOURCE"

	// ErrCodeDeploymentInUse indicates a non-cascading delete of a deployment
	// that still has running instances.
	ErrCodeDeploymentInUse ErrorCode = "DEPLOYMENT_IN_USE"
)

// Error implements the error interface.
func (e *TenancyError) Error() string {
	switch {
	case e.Key != "" && e.TenantID != "":
		return fmt.Sprintf("%s: %s (key=%s, tenant=%s)", e.Code, e.Message, e.Key, e.TenantID)
	case e.Key != "":
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf returns the ErrorCode of err, or "" if err is not a TenancyError.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var te *TenancyError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsAmbiguousScope returns true if the error is an ambiguous tenant scope error.
func IsAmbiguousScope(err error) bool {
	return CodeOf(err) == ErrCodeAmbiguousScope
}

// IsTenantClash returns true if the error is a tenant clash error.
func IsTenantClash(err error) bool {
	return CodeOf(err) == ErrCodeTenantClash
}

// IsPartitionNotFound returns true if no definition exists in the scope.
func IsPartitionNotFound(err error) bool {
	return CodeOf(err) == ErrCodePartitionNotFound
}

// IsSuspended returns true if the error is a suspended partition error.
func IsSuspended(err error) bool {
	return CodeOf(err) == ErrCodeSuspended
}

// IsNotFound returns true if an entity looked up by ID does not exist.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func notFound(kind, id string) *TenancyError {
	return &TenancyError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", kind, id),
		Details: map[string]string{"id": id},
	}
}

// notFoundOr maps a store miss to NOT_FOUND and passes other errors through.
func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}
