package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/tenantry/internal/model"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	DeploymentsTotal      *prometheus.CounterVec
	DefinitionsTotal      *prometheus.CounterVec
	InstancesStartedTotal *prometheus.CounterVec
	RejectedStartsTotal   *prometheus.CounterVec
	JobsCreatedTotal      *prometheus.CounterVec
	JobsExecutedTotal     *prometheus.CounterVec
	TenantChangesTotal    prometheus.Counter
	TenantClashesTotal    prometheus.Counter
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DeploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_deployments_total",
				Help: "Total number of deployments written",
			},
			[]string{"tenant_id"},
		),

		DefinitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_definitions_total",
				Help: "Total number of process definition versions created",
			},
			[]string{"tenant_id"},
		),

		InstancesStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_instances_started_total",
				Help: "Total number of process instances started",
			},
			[]string{"tenant_id"},
		),

		RejectedStartsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_rejected_starts_total",
				Help: "Total number of instance starts rejected by tenancy rules",
			},
			[]string{"reason"},
		),

		JobsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_jobs_created_total",
				Help: "Total number of jobs created",
			},
			[]string{"type"},
		),

		JobsExecutedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantry_jobs_executed_total",
				Help: "Total number of jobs executed",
			},
			[]string{"type", "outcome"},
		),

		TenantChangesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantry_tenant_changes_total",
				Help: "Total number of deployment tenant reassignments",
			},
		),

		TenantClashesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tenantry_tenant_clashes_total",
				Help: "Total number of deploys or reassignments rejected by a tenant clash",
			},
		),
	}
}

// tenantLabel renders the no-tenant partition as a readable label value.
func tenantLabel(tenantID string) string {
	if tenantID == model.NoTenant {
		return "<none>"
	}
	return tenantID
}

func (m *Metrics) jobCreated(t model.JobType) {
	m.JobsCreatedTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) startRejected(err error) {
	if code := CodeOf(err); code != "" {
		m.RejectedStartsTotal.WithLabelValues(string(code)).Inc()
	}
}
