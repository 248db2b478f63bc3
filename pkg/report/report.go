// Package report persists run artefacts: per-task Markdown reports (with
// optional HTML rendering), per-run JSON transcript logs, and colored console
// rendering of agent turns. Everything here is a collaborator of the workflow
// core, wired through observers and run records; the core never imports it.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// Writer persists one Markdown report per task under a reports directory.
type Writer struct {
	dir  string
	html bool
}

// NewWriter creates a report writer. When html is set, each report is also
// rendered to a standalone HTML page next to the Markdown file.
func NewWriter(dir string, html bool) *Writer {
	return &Writer{dir: dir, html: html}
}

// Write renders the record and writes it to <dir>/<slug>.md, returning the
// Markdown path.
func (w *Writer) Write(record *workflow.RunRecord) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}

	markdown := Render(record)
	path := filepath.Join(w.dir, Slugify(record.Task.Name)+".md")
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if w.html {
		htmlPath := strings.TrimSuffix(path, ".md") + ".html"
		rendered, err := RenderHTML(record.Task.Name, markdown)
		if err != nil {
			return "", fmt.Errorf("failed to render HTML report: %w", err)
		}
		if err := os.WriteFile(htmlPath, rendered, 0o644); err != nil {
			return "", fmt.Errorf("failed to write HTML report: %w", err)
		}
	}
	return path, nil
}

// Render produces the Markdown report for one run: header, plan overview,
// execution timeline, reviewer verdict, coordinator summary.
func Render(record *workflow.RunRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task Report: %s\n\n", record.Task.Name)
	fmt.Fprintf(&b, "**Objective:** %s\n", record.Task.Objective)
	if record.Task.Context != "" {
		fmt.Fprintf(&b, "**Context:** %s\n", record.Task.Context)
	}
	if record.Task.Deliverable != "" {
		fmt.Fprintf(&b, "**Expected Deliverable:** %s\n", record.Task.Deliverable)
	}
	fmt.Fprintf(&b, "**Status:** %s\n", record.Status)
	if record.FailureReason != "" {
		fmt.Fprintf(&b, "**Failure Reason:** %s\n", record.FailureReason)
	}

	b.WriteString("\n## Plan Overview\n")
	if record.Plan != nil && record.Plan.Overview != "" {
		b.WriteString(record.Plan.Overview + "\n")
	} else {
		b.WriteString("No overview provided.\n")
	}
	if record.PlanRevisions > 0 {
		fmt.Fprintf(&b, "\nPlan revisions used: %d\n", record.PlanRevisions)
	}

	b.WriteString("\n## Execution Timeline\n")
	if len(record.Steps) == 0 {
		b.WriteString("No steps were executed.\n")
	} else {
		for _, step := range record.Steps {
			status := "Pending"
			if step.Verdict.Approved {
				status = "Approved"
			}
			summary := step.Result.Summary
			if summary == "" {
				summary = "No summary available"
			}
			fmt.Fprintf(&b, "- **%s** (attempt %d, %s): %s\n", step.Step.ID, step.Attempt, status, summary)
		}
	}

	b.WriteString("\n## Reviewer Verdict\n")
	if record.FinalVerdict != nil && record.FinalVerdict.Feedback != "" {
		b.WriteString(record.FinalVerdict.Feedback + "\n")
	} else {
		b.WriteString("No reviewer feedback recorded.\n")
	}

	if record.Summary != "" {
		b.WriteString("\n## Coordinator Summary\n")
		b.WriteString(record.Summary + "\n")
	}

	return b.String()
}

// RenderHTML converts a Markdown report into a standalone HTML page.
func RenderHTML(title, markdown string) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return nil, err
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", title)
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// Slugify turns a task name into a filesystem-safe report name. Alphanumerics,
// hyphens and underscores are kept lowercase; everything else collapses to a
// hyphen.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "task"
	}
	return slug
}
