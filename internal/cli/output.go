package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tenantry/internal/engine"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the engine rejected the operation, or jobs failed
	ExitCommandError = 2 // bad flags, unreadable input, unusable database
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError attaches an exit code and context message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to a process exit code. Errors without
// an ExitError in their chain exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return ExitFailure
	}
	return exitErr.Code
}

// ErrCodeGeneric is reported for failures that carry no tenancy code.
const ErrCodeGeneric = "E001"

// CLIResponse is the envelope of every --format json document.
type CLIResponse struct {
	Status string    `json:"status"` // ok | error
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command in JSON output.
type CLIError struct {
	Code    string `json:"code"` // tenancy error code, or ErrCodeGeneric
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

// Success writes data. Text output uses the value's String method when it
// has one.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure with its code.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns what the command should return. Tenancy
// errors keep their code and exit with ExitFailure; anything else is a
// command error.
func (f *OutputFormatter) Fail(message string, err error) error {
	var te *engine.TenancyError
	if !errors.As(err, &te) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, message, err)
	}

	var details any
	if len(te.Details) > 0 {
		details = te.Details
	}
	_ = f.Error(string(te.Code), te.Error(), details)
	return WrapExitError(ExitFailure, message, err)
}

// VerboseLog writes a diagnostic line when --verbose is set. Diagnostics go
// to ErrWriter so they never interleave with JSON on Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
