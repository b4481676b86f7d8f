package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a tenancy scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Resources maps resource names to their content.
	Resources map[string]string `yaml:"resources"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one engine operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// As names the deployment or instance the step creates.
	As string `yaml:"as,omitempty"`

	// Tenant is the tenant of the step; nil means no tenant given.
	Tenant *string `yaml:"tenant,omitempty"`

	// deploy
	Name               string   `yaml:"name,omitempty"`
	Resources          []string `yaml:"resources,omitempty"`
	DuplicateFiltering bool     `yaml:"duplicate_filtering,omitempty"`

	// start, suspend, activate
	Key         string `yaml:"key,omitempty"`
	BusinessKey string `yaml:"business_key,omitempty"`

	// complete, cancel
	Instance string `yaml:"instance,omitempty"`
	Task     string `yaml:"task,omitempty"`

	// change_tenant, undeploy
	Deployment string  `yaml:"deployment,omitempty"`
	To         *string `yaml:"to,omitempty"`
	Cascade    bool    `yaml:"cascade,omitempty"`

	// advance
	By string `yaml:"by,omitempty"`

	// Expect is the expected tenancy error code; empty expects success.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpDeploy       = "deploy"
	OpStart        = "start"
	OpComplete     = "complete"
	OpCancel       = "cancel"
	OpChangeTenant = "change_tenant"
	OpUndeploy     = "undeploy"
	OpSuspend      = "suspend"
	OpActivate     = "activate"
	OpAdvance      = "advance"
	OpRunJobs      = "run_jobs"
)

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of count, latest_version, tenant_consistent.
	Type string `yaml:"type"`

	// Entity is the counted entity (count).
	Entity string `yaml:"entity,omitempty"`

	// Tenant scopes count and latest_version; nil counts every tenant.
	Tenant *string `yaml:"tenant,omitempty"`

	// Key is the definition key (latest_version).
	Key string `yaml:"key,omitempty"`

	// Count is the expected number of entities (count).
	Count int `yaml:"count"`

	// Version is the expected latest version, 0 for an empty partition.
	Version int `yaml:"version"`
}

// Assertion type constants.
const (
	AssertCount            = "count"
	AssertLatestVersion    = "latest_version"
	AssertTenantConsistent = "tenant_consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("at least one step is required")
	}

	aliases := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(s, step, aliases); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		if step.As != "" {
			if aliases[step.As] {
				return fmt.Errorf("step %d: alias %q is already defined", i+1, step.As)
			}
			aliases[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertCount:
			if _, ok := counters[a.Entity]; !ok {
				return fmt.Errorf("assertion %d: unknown entity %q", i+1, a.Entity)
			}
		case AssertLatestVersion:
			if a.Key == "" || a.Tenant == nil {
				return fmt.Errorf("assertion %d: latest_version requires key and tenant", i+1)
			}
		case AssertTenantConsistent:
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i+1, a.Type)
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step, aliases map[string]bool) error {
	ref := func(alias string) error {
		if alias == "" {
			return errors.New("missing reference")
		}
		if !aliases[alias] {
			return fmt.Errorf("unknown alias %q", alias)
		}
		return nil
	}

	switch step.Op {
	case OpDeploy:
		if len(step.Resources) == 0 {
			return errors.New("resources are required")
		}
		for _, r := range step.Resources {
			if _, ok := s.Resources[r]; !ok {
				return fmt.Errorf("unknown resource %q", r)
			}
		}
	case OpStart, OpSuspend, OpActivate:
		if step.Key == "" {
			return errors.New("key is required")
		}
	case OpComplete:
		if step.Task == "" {
			return errors.New("task is required")
		}
		if step.Instance != "" {
			return ref(step.Instance)
		}
		if step.Tenant == nil {
			return errors.New("instance or tenant is required")
		}
	case OpCancel:
		return ref(step.Instance)
	case OpChangeTenant:
		if step.To == nil {
			return errors.New("to is required")
		}
		return ref(step.Deployment)
	case OpUndeploy:
		return ref(step.Deployment)
	case OpAdvance:
		if _, err := time.ParseDuration(step.By); err != nil {
			return fmt.Errorf("by: %w", err)
		}
	case OpRunJobs:
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}
