package compiler

import (
	"fmt"
	"regexp"
	"time"

	"github.com/roach88/tenantry/internal/model"
)

// Validation error codes (E100-E199)
const (
	ErrMissingKey        = "E101" // process key is required
	ErrInvalidKey        = "E102" // key has characters outside the key alphabet
	ErrNoSteps           = "E103" // at least one step required
	ErrInvalidStepType   = "E104" // unknown step type
	ErrDuplicateStepID   = "E105" // step ids must be unique within a process
	ErrInvalidDuration   = "E106" // duration not parseable or not positive
	ErrInvalidBranches   = "E107" // parallel step without branches, or non-task branch
	ErrMissingStepID     = "E108" // step id is required
	ErrUnexpectedOptions = "E109" // option set on a step type that ignores it
)

// keyPattern is the alphabet for process keys.
var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// ValidationError is one problem found in a process model.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateModel returns every problem found in m (does not fail-fast).
func ValidateModel(m model.ProcessModel) []ValidationError {
	var errs []ValidationError

	switch {
	case m.Key == "":
		errs = append(errs, ValidationError{Field: "key", Message: "process key is required", Code: ErrMissingKey})
	case !keyPattern.MatchString(m.Key):
		errs = append(errs, ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("invalid process key %q", m.Key),
			Code:    ErrInvalidKey,
		})
	}

	if m.TimerStart != "" {
		if err := validateDuration(m.TimerStart); err != nil {
			errs = append(errs, ValidationError{Field: "timer_start", Message: err.Error(), Code: ErrInvalidDuration})
		}
	}

	if len(m.Steps) == 0 {
		errs = append(errs, ValidationError{Field: "steps", Message: "at least one step is required", Code: ErrNoSteps})
	}

	seen := make(map[string]bool)
	for i, step := range m.Steps {
		errs = append(errs, validateStep(fmt.Sprintf("steps[%d]", i), step, seen)...)
	}

	return errs
}

func validateStep(field string, step model.Step, seen map[string]bool) []ValidationError {
	var errs []ValidationError

	if step.ID == "" {
		errs = append(errs, ValidationError{Field: field + ".id", Message: "step id is required", Code: ErrMissingStepID})
	} else if seen[step.ID] {
		errs = append(errs, ValidationError{
			Field:   field + ".id",
			Message: fmt.Sprintf("duplicate step id %q", step.ID),
			Code:    ErrDuplicateStepID,
		})
	}
	seen[step.ID] = true

	if !model.ValidStepTypes[step.Type] {
		errs = append(errs, ValidationError{
			Field:   field + ".type",
			Message: fmt.Sprintf("unknown step type %q", step.Type),
			Code:    ErrInvalidStepType,
		})
		return errs
	}

	switch step.Type {
	case model.StepTimer:
		if err := validateDuration(step.Duration); err != nil {
			errs = append(errs, ValidationError{Field: field + ".duration", Message: err.Error(), Code: ErrInvalidDuration})
		}
	case model.StepParallel:
		if len(step.Branches) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".branches",
				Message: "parallel step needs at least one branch",
				Code:    ErrInvalidBranches,
			})
		}
		for j, branch := range step.Branches {
			bField := fmt.Sprintf("%s.branches[%d]", field, j)
			if branch.Type != model.StepUserTask {
				errs = append(errs, ValidationError{
					Field:   bField + ".type",
					Message: fmt.Sprintf("parallel branches must be %s, got %q", model.StepUserTask, branch.Type),
					Code:    ErrInvalidBranches,
				})
				continue
			}
			errs = append(errs, validateStep(bField, branch, seen)...)
		}
	}

	if step.Type != model.StepTimer && step.Duration != "" {
		errs = append(errs, ValidationError{
			Field:   field + ".duration",
			Message: fmt.Sprintf("duration is only valid on %s steps", model.StepTimer),
			Code:    ErrUnexpectedOptions,
		})
	}
	if step.Type != model.StepParallel && len(step.Branches) > 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".branches",
			Message: fmt.Sprintf("branches are only valid on %s steps", model.StepParallel),
			Code:    ErrUnexpectedOptions,
		})
	}

	return errs
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration %q must be positive", s)
	}
	return nil
}

// TimerStartDelay returns the parsed timer-start duration of m, or zero if m has
// no timer start. m must have passed ValidateModel.
func TimerStartDelay(m model.ProcessModel) time.Duration {
	if m.TimerStart == "" {
		return 0
	}
	d, _ := time.ParseDuration(m.TimerStart)
	return d
}

// StepDelay returns the timer duration of a timer step, or zero.
func StepDelay(s model.Step) time.Duration {
	if s.Type != model.StepTimer {
		return 0
	}
	d, _ := time.ParseDuration(s.Duration)
	return d
}
