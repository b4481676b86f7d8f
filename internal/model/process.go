package model

// StepType identifies what the stepper does when an instance reaches a step.
type StepType string

const (
	// StepUserTask creates a task and waits for its completion.
	StepUserTask StepType = "userTask"

	// StepTimer schedules a timer job and waits for it to fire.
	StepTimer StepType = "timer"

	// StepAsync schedules an async continuation job and waits for it.
	StepAsync StepType = "async"

	// StepParallel forks one child execution per branch, each with a user
	// task, and joins when all branch tasks are complete.
	StepParallel StepType = "parallel"
)

// ValidStepTypes defines allowed step types.
var ValidStepTypes = map[StepType]bool{
	StepUserTask: true,
	StepTimer:    true,
	StepAsync:    true,
	StepParallel: true,
}

// ProcessModel is a compiled process resource: the minimal linear shape the
// stepper can drive.
type ProcessModel struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name" yaml:"name"`

	// TimerStart, when set, is a duration (time.ParseDuration syntax) after
	// which a timer-start job starts a new instance.
	TimerStart string `json:"timer_start,omitempty" yaml:"timer_start,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`

	// ResourceName is the resource the model was compiled from.
	ResourceName string `json:"resource_name,omitempty" yaml:"-"`
}

// Step is one activity of a process model.
type Step struct {
	ID       string   `json:"id" yaml:"id"`
	Type     StepType `json:"type" yaml:"type"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Duration string   `json:"duration,omitempty" yaml:"duration,omitempty"` // timers only
	Branches []Step   `json:"branches,omitempty" yaml:"branches,omitempty"` // parallel only
}
