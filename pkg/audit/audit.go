// Package audit persists a per-task trail of agent activity.
//
// Each task gets its own directory containing the analyzed frames, an
// append-only JSONL log with one record per cycle, and a final summary.
// The trail is the ground truth for debugging why an agent run did what
// it did.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActionRecord describes the action chosen in a cycle.
type ActionRecord struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ResultRecord describes the outcome of executing an action.
type ResultRecord struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TokensRecord captures model token usage for a cycle.
type TokensRecord struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// BudgetRemaining captures how much budget was left after a cycle.
type BudgetRemaining struct {
	Cycles int `json:"cycles"`
	Tokens int `json:"tokens"`
}

// CycleRecord is one line of the JSONL cycle log.
type CycleRecord struct {
	Cycle           int              `json:"cycle"`
	Timestamp       time.Time        `json:"timestamp"`
	PageURL         string           `json:"page_url,omitempty"`
	FramePath       string           `json:"frame_path,omitempty"`
	Action          ActionRecord     `json:"action"`
	Reasoning       string           `json:"reasoning,omitempty"`
	Result          ResultRecord     `json:"result"`
	Tokens          *TokensRecord    `json:"tokens,omitempty"`
	DurationMs      int64            `json:"duration_ms"`
	BudgetRemaining *BudgetRemaining `json:"budget_remaining,omitempty"`
}

// SummaryResult is the outcome block of a finished task.
type SummaryResult struct {
	Success       bool           `json:"success"`
	Summary       string         `json:"summary"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

// SummaryBudget is the consumed-budget block of a finished task.
type SummaryBudget struct {
	TotalCycles  int     `json:"total_cycles"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	DurationMs   int64   `json:"duration_ms"`
}

// Summary is the final record of a finished task, written once.
type Summary struct {
	TaskID     string        `json:"task_id"`
	Task       string        `json:"task"`
	Result     SummaryResult `json:"result"`
	Budget     SummaryBudget `json:"budget"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Trail writes the audit artifacts of one task.
type Trail struct {
	dir       string
	framesDir string
	logPath   string

	mu sync.Mutex
}

// New creates the task directory under outDir and returns a Trail for it.
func New(outDir, taskID string) (*Trail, error) {
	dir := filepath.Join(outDir, taskID)
	framesDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Trail{
		dir:       dir,
		framesDir: framesDir,
		logPath:   filepath.Join(dir, "cycles.jsonl"),
	}, nil
}

// Dir returns the task directory.
func (t *Trail) Dir() string {
	return t.dir
}

// SaveFrame writes an analyzed frame and returns its path.
func (t *Trail) SaveFrame(cycle int, data []byte) (string, error) {
	path := filepath.Join(t.framesDir, fmt.Sprintf("cycle-%d.jpg", cycle))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save frame: %w", err)
	}
	return path, nil
}

// LogCycle appends one record to the JSONL cycle log.
func (t *Trail) LogCycle(rec CycleRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open cycle log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write cycle record: %w", err)
	}
	return nil
}

// SaveSummary writes the final task summary as indented JSON.
func (t *Trail) SaveSummary(s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := filepath.Join(t.dir, "summary.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
