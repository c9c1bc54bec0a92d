// Package budget enforces resource limits on agent runs.
//
// A Tracker accumulates cycles, token usage, estimated cost and elapsed time,
// and answers whether the next cycle may proceed. Once any limit is crossed
// the tracker denies every further cycle.
package budget

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/user/browserstudio/pkg/ports"
)

// Pricing per million tokens, matching Claude Sonnet rates.
const (
	inputCostPerMTok  = 3.0
	outputCostPerMTok = 15.0
)

// pixelsPerToken approximates the vision token cost of an image.
const pixelsPerToken = 750.0

// Limits define the ceilings for one agent run.
type Limits struct {
	MaxCycles   int           `json:"maxCycles" yaml:"maxCycles"`
	MaxTokens   int           `json:"maxTokens" yaml:"maxTokens"`
	MaxCostUSD  float64       `json:"maxCostUsd" yaml:"maxCostUsd"`
	MaxDuration time.Duration `json:"maxDuration" yaml:"maxDuration"`
}

// DefaultLimits returns the standard per-run ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxCycles:   100,
		MaxTokens:   500000,
		MaxCostUSD:  5.0,
		MaxDuration: 10 * time.Minute,
	}
}

// State is a point-in-time snapshot of consumption against the limits.
type State struct {
	Cycles       int     `json:"cycles"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
	ElapsedMs    int64   `json:"elapsedMs"`
	Limits       Limits  `json:"limits"`
}

// Tracker accumulates consumption for one run. Safe for concurrent use.
type Tracker struct {
	limits  Limits
	started time.Time

	mu           sync.Mutex
	cycles       int
	inputTokens  int
	outputTokens int
}

// NewTracker creates a Tracker that starts counting elapsed time immediately.
// Zero-valued limits are replaced with defaults.
func NewTracker(limits Limits) *Tracker {
	def := DefaultLimits()
	if limits.MaxCycles <= 0 {
		limits.MaxCycles = def.MaxCycles
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = def.MaxTokens
	}
	if limits.MaxCostUSD <= 0 {
		limits.MaxCostUSD = def.MaxCostUSD
	}
	if limits.MaxDuration <= 0 {
		limits.MaxDuration = def.MaxDuration
	}
	return &Tracker{limits: limits, started: time.Now()}
}

// CanProceed reports whether another cycle may run. When denied, the reason
// names the limit that was hit.
func (t *Tracker) CanProceed() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cycles >= t.limits.MaxCycles {
		return false, fmt.Sprintf("Max cycles reached (%d)", t.limits.MaxCycles)
	}
	if total := t.inputTokens + t.outputTokens; total >= t.limits.MaxTokens {
		return false, fmt.Sprintf("Max tokens reached (%d/%d)", total, t.limits.MaxTokens)
	}
	if cost := t.cost(); cost >= t.limits.MaxCostUSD {
		return false, fmt.Sprintf("Max cost reached ($%.2f/$%.2f)", cost, t.limits.MaxCostUSD)
	}
	if elapsed := time.Since(t.started); elapsed >= t.limits.MaxDuration {
		return false, fmt.Sprintf("Max duration reached (%s)", t.limits.MaxDuration)
	}
	return true, ""
}

// OnCycleComplete records one finished cycle and its token usage.
func (t *Tracker) OnCycleComplete(usage ports.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cycles++
	t.inputTokens += usage.Input
	t.outputTokens += usage.Output
}

// Snapshot returns the current consumption state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Cycles:       t.cycles,
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		CostUSD:      t.cost(),
		ElapsedMs:    time.Since(t.started).Milliseconds(),
		Limits:       t.limits,
	}
}

// cost computes the estimated spend so far. Caller holds the mutex.
func (t *Tracker) cost() float64 {
	return EstimateCost(t.inputTokens, t.outputTokens)
}

// EstimateCost converts token counts into dollars at the configured rates.
func EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*inputCostPerMTok + float64(outputTokens)/1e6*outputCostPerMTok
}

// EstimateFrameTokens approximates the vision token cost of a frame with the
// given pixel dimensions.
func EstimateFrameTokens(width, height int) int {
	return int(math.Ceil(float64(width*height) / pixelsPerToken))
}
