package compiler

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tenantry/internal/model"
)

// IsProcessResource reports whether a resource name is compiled into
// process models.
func IsProcessResource(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".cue", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// document is the top-level shape of a process resource.
type document struct {
	Process   *model.ProcessModel  `json:"process,omitempty" yaml:"process,omitempty"`
	Processes []model.ProcessModel `json:"processes,omitempty" yaml:"processes,omitempty"`
}

func (d document) models() []model.ProcessModel {
	var out []model.ProcessModel
	if d.Process != nil {
		out = append(out, *d.Process)
	}
	return append(out, d.Processes...)
}

// Compile parses and validates a process resource.
// Returns nil, nil for resources that are not process resources.
func Compile(res model.Resource) ([]model.ProcessModel, error) {
	if !IsProcessResource(res.Name) {
		return nil, nil
	}

	var (
		doc document
		err error
	)
	if strings.EqualFold(path.Ext(res.Name), ".cue") {
		doc, err = parseCUE(res.Name, res.Content)
	} else {
		doc, err = parseYAML(res.Name, res.Content)
	}
	if err != nil {
		return nil, err
	}

	models := doc.models()
	if len(models) == 0 {
		return nil, &CompileError{
			Resource: res.Name,
			Field:    "process",
			Message:  "resource declares no process",
		}
	}

	for i := range models {
		models[i].ResourceName = res.Name
		if errs := ValidateModel(models[i]); len(errs) > 0 {
			return nil, &CompileError{
				Resource: res.Name,
				Field:    errs[0].Field,
				Message:  errs[0].Error(),
			}
		}
	}

	return models, nil
}

// parseCUE evaluates a CUE resource with the CUE SDK's Go API.
func parseCUE(name string, content []byte) (document, error) {
	var doc document

	ctx := cuecontext.New()
	v := ctx.CompileBytes(content, cue.Filename(name))
	if err := v.Err(); err != nil {
		return doc, formatCUEError(name, err)
	}

	if p := v.LookupPath(cue.ParsePath("process")); p.Exists() {
		var m model.ProcessModel
		if err := p.Decode(&m); err != nil {
			return doc, formatCUEError(name, err)
		}
		doc.Process = &m
	}

	if ps := v.LookupPath(cue.ParsePath("processes")); ps.Exists() {
		if err := ps.Decode(&doc.Processes); err != nil {
			return doc, formatCUEError(name, err)
		}
	}

	return doc, nil
}

// parseYAML decodes a YAML resource. Unknown fields are rejected so typos
// in step definitions surface at deploy time.
func parseYAML(name string, content []byte) (document, error) {
	var doc document

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return doc, &CompileError{Resource: name, Field: "yaml", Message: err.Error()}
	}

	return doc, nil
}

// CompileError describes why a resource could not be compiled.
type CompileError struct {
	Resource string
	Field    string
	Message  string
	Pos      token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Resource, e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Resource, e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(name string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Resource: name, Field: "cue", Message: err.Error()}
	}

	// Report the first error with position info
	first := errs[0]
	ce := &CompileError{Resource: name, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
