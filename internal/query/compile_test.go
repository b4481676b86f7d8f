package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSelectNoFilter(t *testing.T) {
	sql, params, err := Compile(Select{From: "deployments", Columns: []string{"id", "tenant_id"}})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, tenant_id FROM deployments ORDER BY seq ASC, id COLLATE BINARY ASC", sql)
	assert.Empty(t, params)
}

func TestCompileSelectAllColumns(t *testing.T) {
	sql, _, err := Compile(Select{From: "jobs"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM jobs ORDER BY seq ASC, id COLLATE BINARY ASC", sql)
}

func TestCompileTenantFilters(t *testing.T) {
	tests := []struct {
		name       string
		filter     TenantFilter
		wantWhere  string
		wantParams []any
	}{
		{"any", AnyTenant(), "", nil},
		{"exact", Tenant("A"), " WHERE tenant_id = ?", []any{"A"}},
		{"exact empty is without", Tenant(""), " WHERE tenant_id = ''", nil},
		{"like", TenantLike("my%"), " WHERE tenant_id LIKE ?", []any{"my%"}},
		{"without", WithoutTenant(), " WHERE tenant_id = ''", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := Compile(Count{From: "tasks", Filter: tt.filter.Predicate()})
			require.NoError(t, err)
			assert.Equal(t, "SELECT COUNT(*) FROM tasks"+tt.wantWhere, sql)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestTenantEmptyAndWithoutAreIdentical(t *testing.T) {
	assert.Equal(t, WithoutTenant(), Tenant(""))
	assert.Equal(t, WithoutTenant().Predicate(), Tenant("").Predicate())
}

func TestCompileAnd(t *testing.T) {
	filter := AllOf(
		EqualsIfSet("key", "P"),
		EqualsIfSet("deployment_id", ""),
		Tenant("A").Predicate(),
	)

	sql, params, err := Compile(Select{From: "process_definitions", Columns: []string{"id"}, Filter: filter})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id FROM process_definitions WHERE key = ? AND tenant_id = ? ORDER BY seq ASC, id COLLATE BINARY ASC", sql)
	assert.Equal(t, []any{"P", "A"}, params)
}

func TestCompileNestedAnd(t *testing.T) {
	filter := And{Predicates: []Predicate{
		Equals{Field: "key", Value: "P"},
		And{Predicates: []Predicate{IsEmpty{Field: "tenant_id"}, Equals{Field: "version", Value: 2}}},
	}}

	sql, params, err := Compile(Count{From: "process_definitions", Filter: filter})
	require.NoError(t, err)

	assert.Equal(t, "SELECT COUNT(*) FROM process_definitions WHERE key = ? AND (tenant_id = '' AND version = ?)", sql)
	assert.Equal(t, []any{"P", 2}, params)
}

func TestCompileEmptyAnd(t *testing.T) {
	sql, _, err := Compile(Count{From: "jobs", Filter: And{}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM jobs WHERE 1 = 1", sql)
}

func TestCompileOrderAndLimit(t *testing.T) {
	sql, params, err := Compile(Select{
		From:    "process_definitions",
		Columns: []string{"id"},
		OrderBy: []string{"version DESC"},
		Limit:   1,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id FROM process_definitions ORDER BY version DESC LIMIT ?", sql)
	assert.Equal(t, []any{1}, params)
}

func TestCompileCollatedOrder(t *testing.T) {
	sql, _, err := Compile(Select{
		From:    "deployments",
		Columns: []string{"id"},
		OrderBy: []string{"name COLLATE BINARY", "id COLLATE BINARY DESC"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM deployments ORDER BY name COLLATE BINARY, id COLLATE BINARY DESC", sql)
}

func TestCompileLessOrEqual(t *testing.T) {
	sql, params, err := Compile(Count{From: "jobs", Filter: LessOrEqual{Field: "due_date", Value: int64(10)}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM jobs WHERE due_date <= ?", sql)
	assert.Equal(t, []any{int64(10)}, params)
}

func TestCompilePointerQueries(t *testing.T) {
	_, _, err := Compile(&Select{From: "jobs"})
	assert.NoError(t, err)
	_, _, err = Compile(&Count{From: "jobs"})
	assert.NoError(t, err)
}

func TestCompileRejectsBadIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"table injection", Select{From: "jobs; DROP TABLE jobs"}},
		{"column", Select{From: "jobs", Columns: []string{"id, secret"}}},
		{"filter field", Count{From: "jobs", Filter: Equals{Field: "1=1 OR tenant_id", Value: "x"}}},
		{"nested field", Count{From: "jobs", Filter: And{Predicates: []Predicate{Like{Field: "Tenant", Pattern: "x"}}}}},
		{"order term", Select{From: "jobs", OrderBy: []string{"id; --"}}},
		{"collation after direction", Select{From: "jobs", OrderBy: []string{"id ASC COLLATE BINARY"}}},
		{"negative limit", Select{From: "jobs", Limit: -1}},
		{"nil query", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compile(tt.q)
			require.Error(t, err)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestAllOf(t *testing.T) {
	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))

	single := Equals{Field: "id", Value: "x"}
	assert.Equal(t, single, AllOf(nil, single))
}

func TestTenantFilterString(t *testing.T) {
	assert.Equal(t, "any tenant", AnyTenant().String())
	assert.Equal(t, `tenant="A"`, Tenant("A").String())
	assert.Equal(t, `tenant LIKE "A%"`, TenantLike("A%").String())
	assert.Equal(t, "without tenant", WithoutTenant().String())
}
