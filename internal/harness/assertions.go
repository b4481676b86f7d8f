package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tenantry/internal/model"
	"github.com/roach88/tenantry/internal/query"
	"github.com/roach88/tenantry/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", i+1, event.Op, event.Detail, event.Outcome)
		}
	}

	return buf.String()
}

// counter counts one entity kind for a tenant filter.
type counter func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error)

// counters are the entities a count assertion can name.
var counters = map[string]counter{
	"deployments": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountDeployments(ctx, store.DeploymentQuery{Tenant: f})
	},
	"definitions": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountDefinitions(ctx, store.DefinitionQuery{Tenant: f})
	},
	"instances": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountInstances(ctx, store.InstanceQuery{Tenant: f})
	},
	"executions": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountExecutions(ctx, store.ExecutionQuery{Tenant: f})
	},
	"tasks": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountTasks(ctx, store.TaskQuery{Tenant: f})
	},
	"jobs": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountJobs(ctx, store.JobQuery{Tenant: f})
	},
	"models": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountModels(ctx, store.ModelQuery{Tenant: f})
	},
	"historic_instances": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountHistoricProcessInstances(ctx, store.HistoryQuery{Tenant: f})
	},
	"historic_tasks": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountHistoricTaskInstances(ctx, store.HistoryQuery{Tenant: f})
	},
	"historic_activities": func(ctx context.Context, st *store.Store, f query.TenantFilter) (int, error) {
		return st.CountHistoricActivityInstances(ctx, store.HistoryQuery{Tenant: f})
	},
}

// evaluateAssertions checks every scenario assertion and returns the
// failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, result *Result) []string {
	var failures []string
	for _, a := range h.scenario.Assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = assertCount(ctx, h.store, a)
		case AssertLatestVersion:
			err = assertLatestVersion(ctx, h.store, a)
		case AssertTenantConsistent:
			err = assertTenantConsistent(result.Trace)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func tenantFilter(t *string) query.TenantFilter {
	if t == nil {
		return query.AnyTenant()
	}
	return query.Tenant(*t)
}

// assertCount checks the number of entities in a tenant scope.
func assertCount(ctx context.Context, st *store.Store, a Assertion) error {
	count, ok := counters[a.Entity]
	if !ok {
		return fmt.Errorf("count assertion: unknown entity %q", a.Entity)
	}
	f := tenantFilter(a.Tenant)
	n, err := count(ctx, st, f)
	if err != nil {
		return err
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d %s (%s)", a.Count, a.Entity, f),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertLatestVersion checks the latest version of one partition.
func assertLatestVersion(ctx context.Context, st *store.Store, a Assertion) error {
	key := model.NewTenantKey(a.Key, *a.Tenant)
	v, err := st.MaxVersion(ctx, key)
	if err != nil {
		return err
	}
	if v != a.Version {
		return &AssertionError{
			Type:     AssertLatestVersion,
			Expected: fmt.Sprintf("version %d in %s", a.Version, key),
			Actual:   fmt.Sprintf("version %d", v),
		}
	}
	return nil
}

// assertTenantConsistent checks that every event's entities share one
// tenant: whatever an operation creates inherits the tenant of what it
// acts on.
func assertTenantConsistent(trace []TraceEvent) error {
	for i, ev := range trace {
		if len(ev.Entities) == 0 {
			continue
		}
		want := ev.Entities[0].TenantID
		for _, ent := range ev.Entities[1:] {
			if ent.TenantID != want {
				return &AssertionError{
					Type:     AssertTenantConsistent,
					Expected: fmt.Sprintf("event %d (%s): every entity in tenant %q", i+1, ev.Op, want),
					Actual:   fmt.Sprintf("%s has tenant %q", ent.Kind, ent.TenantID),
					Trace:    trace,
				}
			}
		}
	}
	return nil
}
