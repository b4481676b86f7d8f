package compiler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tenantry/internal/model"
)

func resource(name, content string) model.Resource {
	return model.Resource{Name: name, Content: []byte(content)}
}

func TestCompileCUE(t *testing.T) {
	models, err := Compile(resource("invoice.cue", `
		process: {
			key:         "invoice"
			name:        "Invoice approval"
			timer_start: "1h"
			steps: [
				{id: "review", type: "userTask", name: "Review invoice"},
				{id: "wait", type: "timer", duration: "30m"},
				{id: "post", type: "async"},
			]
		}
	`))
	require.NoError(t, err)
	require.Len(t, models, 1)

	m := models[0]
	assert.Equal(t, "invoice", m.Key)
	assert.Equal(t, "Invoice approval", m.Name)
	assert.Equal(t, "invoice.cue", m.ResourceName)
	require.Len(t, m.Steps, 3)
	assert.Equal(t, model.StepTimer, m.Steps[1].Type)
	assert.Equal(t, time.Hour, TimerStartDelay(m))
	assert.Equal(t, 30*time.Minute, StepDelay(m.Steps[1]))
}

func TestCompileYAML_MultipleProcesses(t *testing.T) {
	models, err := Compile(resource("bundle.yaml", `
processes:
  - key: invoice
    steps:
      - id: review
        type: userTask
  - key: payment
    steps:
      - id: approvals
        type: parallel
        branches:
          - {id: finance, type: userTask}
          - {id: legal, type: userTask}
`))
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "invoice", models[0].Key)
	assert.Equal(t, "payment", models[1].Key)
	assert.Len(t, models[1].Steps[0].Branches, 2)
	assert.Equal(t, "bundle.yaml", models[1].ResourceName)
}

func TestCompile_NonProcessResourceIgnored(t *testing.T) {
	models, err := Compile(resource("logo.png", "\x89PNG"))
	require.NoError(t, err)
	assert.Nil(t, models)
}

func TestCompile_NoProcess(t *testing.T) {
	_, err := Compile(resource("empty.yml", "other: 1\n"))
	require.Error(t, err)
}

func TestCompileYAML_UnknownFieldRejected(t *testing.T) {
	_, err := Compile(resource("typo.yaml", `
process:
  key: invoice
  steps:
    - id: review
      typ: userTask
`))
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "typo.yaml", ce.Resource)
	assert.Equal(t, "yaml", ce.Field)
}

func TestCompileCUE_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Compile(resource("broken.cue", "process: {\n  key: \n"))
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cue", ce.Field)
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestCompile_InvalidModelReported(t *testing.T) {
	_, err := Compile(resource("bad.yaml", `
process:
  key: invoice
  steps:
    - id: wait
      type: timer
      duration: soon
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInvalidDuration)
}

func TestIsProcessResource(t *testing.T) {
	assert.True(t, IsProcessResource("a.cue"))
	assert.True(t, IsProcessResource("a.YAML"))
	assert.True(t, IsProcessResource("dir/a.yml"))
	assert.False(t, IsProcessResource("a.json"))
	assert.False(t, IsProcessResource("cue"))
}
