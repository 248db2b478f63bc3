package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// TranscriptLog accumulates every agent turn of a run and persists them as one
// JSON document. Safe for concurrent appends.
type TranscriptLog struct {
	mu      sync.Mutex
	path    string
	runName string
	created time.Time
	entries []transcriptEntry
}

type transcriptEntry struct {
	AgentName string    `json:"agent_name"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type transcriptDocument struct {
	RunName   string            `json:"run_name"`
	CreatedAt time.Time         `json:"created_at"`
	Output    []transcriptEntry `json:"output"`
}

// NewTranscriptLog creates the log file logs/<run>-<timestamp>.json and
// returns the log. The file exists (with an empty output list) from this
// moment, so a crashed run still leaves a trace.
func NewTranscriptLog(dir, runName string) (*TranscriptLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}

	t := &TranscriptLog{
		runName: runName,
		created: time.Now().UTC(),
	}
	t.path = filepath.Join(dir, fmt.Sprintf("%s-%s.json", Slugify(runName), t.created.Format("20060102-150405")))

	if err := t.flushLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the log file location.
func (t *TranscriptLog) Path() string { return t.path }

// Append records one turn. The file is rewritten on Flush or Close, not per
// turn.
func (t *TranscriptLog) Append(agentName, role, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, transcriptEntry{
		AgentName: agentName,
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

// Observer adapts the log to the workflow's turn observer.
func (t *TranscriptLog) Observer() workflow.TurnObserver {
	return func(agent, role, content string) {
		t.Append(agent, role, content)
	}
}

// Flush writes the accumulated transcript to disk.
func (t *TranscriptLog) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

// Close flushes the transcript.
func (t *TranscriptLog) Close() error {
	return t.Flush()
}

func (t *TranscriptLog) flushLocked() error {
	doc := transcriptDocument{
		RunName:   t.runName,
		CreatedAt: t.created,
		Output:    t.entries,
	}
	if doc.Output == nil {
		doc.Output = []transcriptEntry{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
