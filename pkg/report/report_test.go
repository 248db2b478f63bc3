package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

func sampleRecord() *workflow.RunRecord {
	return &workflow.RunRecord{
		RunID: "run-1",
		Task: workflow.Task{
			Name:        "Quarterly Numbers",
			Objective:   "compute the margin",
			Deliverable: "a short memo",
		},
		Status:        workflow.StatusCompleted,
		Plan:          &workflow.Plan{Overview: "one computation step"},
		PlanRevisions: 1,
		Steps: []workflow.StepRecord{
			{
				Step:    workflow.Step{ID: "s1", Description: "compute"},
				Result:  workflow.StepResult{Summary: "margin is 0.2"},
				Verdict: workflow.ReviewVerdict{Approved: true},
				Attempt: 2,
			},
		},
		FinalVerdict: &workflow.ReviewVerdict{Approved: true, Feedback: "numbers check out"},
		Summary:      "# Summary\nThe margin is 0.2.",
	}
}

func TestRender(t *testing.T) {
	markdown := Render(sampleRecord())

	assert.Contains(t, markdown, "# Task Report: Quarterly Numbers")
	assert.Contains(t, markdown, "**Objective:** compute the margin")
	assert.Contains(t, markdown, "**Expected Deliverable:** a short memo")
	assert.Contains(t, markdown, "one computation step")
	assert.Contains(t, markdown, "Plan revisions used: 1")
	assert.Contains(t, markdown, "**s1** (attempt 2, Approved): margin is 0.2")
	assert.Contains(t, markdown, "numbers check out")
	assert.Contains(t, markdown, "## Coordinator Summary")
}

func TestRender_FailedRunWithoutSteps(t *testing.T) {
	record := &workflow.RunRecord{
		Task:          workflow.Task{Name: "doomed", Objective: "x"},
		Status:        workflow.StatusFailed,
		FailureReason: "plan_revisions bound exceeded",
	}
	markdown := Render(record)

	assert.Contains(t, markdown, "**Status:** failed")
	assert.Contains(t, markdown, "plan_revisions bound exceeded")
	assert.Contains(t, markdown, "No steps were executed.")
	assert.Contains(t, markdown, "No overview provided.")
}

func TestWriter_WritesMarkdownAndHTML(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, true)

	path, err := writer.Write(sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quarterly-numbers.md"), path)

	markdown, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(markdown), "# Task Report")

	html, err := os.ReadFile(filepath.Join(dir, "quarterly-numbers.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Quarterly Numbers</title>")
	assert.Contains(t, string(html), "<h1")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Quarterly Numbers", "quarterly-numbers"},
		{"already_safe-name", "already_safe-name"},
		{"  !!  ", "task"},
		{"Ünïcode & symbols!", "n-code---symbols"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestTranscriptLog(t *testing.T) {
	dir := t.TempDir()

	log, err := NewTranscriptLog(dir, "demo run")
	require.NoError(t, err)

	// The file exists immediately, with an empty output list.
	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "demo run", doc["run_name"])
	assert.Empty(t, doc["output"])

	observe := log.Observer()
	observe("Planner", llms.RoleAssistant, `{"overview": "p"}`)
	observe("Reviewer", llms.RoleAssistant, `{"approved": true}`)
	require.NoError(t, log.Close())

	data, err = os.ReadFile(log.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	output, ok := doc["output"].([]any)
	require.True(t, ok)
	require.Len(t, output, 2)
	first, ok := output[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Planner", first["agent_name"])
}

func TestConsolePrinter(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	var buf bytes.Buffer
	printer := NewConsolePrinter(&buf)
	observe := printer.Observer()

	// Prompts are not rendered, replies are.
	observe("Planner", llms.RoleUser, "please plan")
	observe("Planner", llms.RoleAssistant, `{"approved": true, "artifacts": ["memo", "sheet"], "summary": "done"}`)
	observe("Coordinator", llms.RoleAssistant, "plain prose reply")

	out := buf.String()
	assert.NotContains(t, out, "please plan")
	assert.Contains(t, out, "Planner:")
	assert.Contains(t, out, "approved: Yes")
	assert.Contains(t, out, "artifacts: memo, sheet")
	assert.Contains(t, out, "summary: done")
	assert.Contains(t, out, "Coordinator:")
	assert.Contains(t, out, "plain prose reply")
}
