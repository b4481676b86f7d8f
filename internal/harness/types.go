package harness

// TraceEvent records one executed operation.
type TraceEvent struct {
	Op       string        `json:"op"`
	Detail   string        `json:"detail,omitempty"`
	Outcome  string        `json:"outcome"` // "ok" or a tenancy error code
	Entities []TraceEntity `json:"entities,omitempty"`
}

// TraceEntity is an entity an operation created or touched, named by its
// domain identity instead of its generated ID.
type TraceEntity struct {
	Kind     string `json:"kind"` // deployment, definition, partition, instance, task, job
	Name     string `json:"name,omitempty"`
	Key      string `json:"key,omitempty"`
	Version  int    `json:"version,omitempty"`
	Type     string `json:"type,omitempty"`
	TenantID string `json:"tenant_id"`
	Rows     int64  `json:"rows,omitempty"`
	Ended    bool   `json:"ended,omitempty"`
}

// OutcomeOK is the outcome of a successful operation.
const OutcomeOK = "ok"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed operation, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
