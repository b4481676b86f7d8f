package engine

import (
	"context"
	"fmt"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/store"
)

// ResolveNextVersion returns the version the next deployment of key would
// receive: the highest version in exactly that partition plus one, or 1 if
// the partition is empty.
//
// The answer is advisory outside Deploy: Deploy resolves again under the
// partition lock.
func (e *Engine) ResolveNextVersion(ctx context.Context, key model.TenantKey) (int, error) {
	v, err := e.store.MaxVersion(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("resolve next version: %w", err)
	}
	return v + 1, nil
}

// ResolveLatest returns the highest version in exactly the partition of key.
// It never falls back to another tenant: ok is false when the partition is
// empty.
func (e *Engine) ResolveLatest(ctx context.Context, key model.TenantKey) (model.ProcessDefinition, bool, error) {
	def, ok, err := e.store.LatestDefinition(ctx, key)
	if err != nil {
		return def, false, fmt.Errorf("resolve latest: %w", err)
	}
	return def, ok, nil
}

// nextVersion is ResolveNextVersion inside a transaction.
func nextVersion(ctx context.Context, tx *store.Tx, key model.TenantKey) (int, error) {
	v, err := tx.MaxVersion(ctx, key)
	if err != nil {
		return 0, err
	}
	return v + 1, nil
}

// resolveForStart picks the definition a tenant-less or tenant-scoped start
// by key targets.
//
// With tenantScoped set, only the exact partition is considered. Without it,
// only the no-tenant partition is; if that is empty but tenant partitions
// hold the key, the caller must name a tenant.
func resolveForStart(ctx context.Context, tx *store.Tx, key string, tenantID string, tenantScoped bool) (model.ProcessDefinition, error) {
	tk := model.NewTenantKey(key, tenantID)
	if !tenantScoped {
		tk = model.NewTenantKey(key, model.NoTenant)
	}

	def, ok, err := tx.LatestDefinition(ctx, tk)
	if err != nil {
		return def, fmt.Errorf("resolve %s: %w", tk, err)
	}
	if ok {
		return def, nil
	}

	if !tenantScoped {
		tenants, err := tx.DefinitionTenants(ctx, key)
		if err != nil {
			return def, fmt.Errorf("resolve %s: %w", tk, err)
		}
		if len(tenants) > 0 {
			return def, &TenancyError{
				Code:    ErrCodeAmbiguousScope,
				Message: fmt.Sprintf("no definition without tenant; %d tenant partition(s) hold this key, a tenant id is required", len(tenants)),
				Key:     key,
				Details: map[string]string{"tenants": fmt.Sprint(tenants)},
			}
		}
	}

	return def, &TenancyError{
		Code:     ErrCodePartitionNotFound,
		Message:  fmt.Sprintf("no process definition deployed for %s", tk),
		Key:      key,
		TenantID: tk.TenantID,
	}
}
