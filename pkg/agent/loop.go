package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/browserstudio/pkg/audit"
	"github.com/user/browserstudio/pkg/budget"
	"github.com/user/browserstudio/pkg/ports"
	"github.com/user/browserstudio/pkg/sampler"
)

const (
	recoveryWaitTimeout = 10 * time.Second
	settleNavTimeout    = 10 * time.Second

	ariaTruncationNotice = "\n... (snapshot truncated)"
	ariaUnavailable      = "(ARIA snapshot unavailable)"

	stuckWarning = "\n\nWARNING: The last 3 actions were identical and the page may not be responding to them. Try a different approach."
)

// Config holds perception loop parameters.
type Config struct {
	Model                string        `yaml:"model"`
	ScreenshotQuality    int           `yaml:"screenshotQuality"`
	MaxCycles            int           `yaml:"maxCycles"`
	MaxConsecutiveErrors int           `yaml:"maxConsecutiveErrors"`
	SettleTime           time.Duration `yaml:"settleTime"`
	APITimeout           time.Duration `yaml:"apiTimeout"`
	AriaMaxChars         int           `yaml:"ariaMaxChars"`
	AuditDir             string        `yaml:"auditDir"`

	Sampler sampler.Config `yaml:"sampler"`
	Budget  budget.Limits  `yaml:"budget"`
	Safety  SafetyPolicy   `yaml:"safety"`
}

// DefaultConfig returns the standard loop parameters.
func DefaultConfig() Config {
	return Config{
		ScreenshotQuality:    70,
		MaxCycles:            50,
		MaxConsecutiveErrors: 5,
		SettleTime:           300 * time.Millisecond,
		APITimeout:           30 * time.Second,
		AriaMaxChars:         40000,
		AuditDir:             "./recordings",
		Sampler:              sampler.DefaultConfig(),
		Budget:               budget.DefaultLimits(),
	}
}

// Result is the outcome of one completed agent run.
type Result struct {
	Success       bool           `json:"success"`
	Summary       string         `json:"summary"`
	TotalCycles   int            `json:"totalCycles"`
	ExtractedData map[string]any `json:"extractedData,omitempty"`
	Budget        budget.State   `json:"budget"`
}

// Loop drives the perception cycle: capture, reason, act, repeat.
type Loop struct {
	config   Config
	model    ports.VisionModel
	provider ports.PageProvider
	logger   ports.Logger
}

// NewLoop creates a Loop. Zero-valued config fields are replaced with
// defaults.
func NewLoop(model ports.VisionModel, provider ports.PageProvider, logger ports.Logger, config Config) *Loop {
	def := DefaultConfig()
	if config.ScreenshotQuality <= 0 {
		config.ScreenshotQuality = def.ScreenshotQuality
	}
	if config.MaxCycles <= 0 {
		config.MaxCycles = def.MaxCycles
	}
	if config.MaxConsecutiveErrors <= 0 {
		config.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if config.SettleTime <= 0 {
		config.SettleTime = def.SettleTime
	}
	if config.APITimeout <= 0 {
		config.APITimeout = def.APITimeout
	}
	if config.AriaMaxChars <= 0 {
		config.AriaMaxChars = def.AriaMaxChars
	}
	if config.AuditDir == "" {
		config.AuditDir = def.AuditDir
	}
	return &Loop{
		config:   config,
		model:    model,
		provider: provider,
		logger:   logger.WithComponent("agent"),
	}
}

// run carries the mutable state of one agent run.
type run struct {
	page      ports.Page
	pageName  string
	task      string
	trail     *audit.Trail
	tracker   *budget.Tracker
	sampler   *sampler.Sampler
	executor  *Executor
	history   []HistoryEntry
	consecErr int
	cycles    int
}

// Run executes the task against the named page until a terminal action or a
// limit is reached. The returned Result is non-nil whenever err is nil.
func (l *Loop) Run(ctx context.Context, pageName, task string) (*Result, error) {
	if err := l.config.Safety.Compile(); err != nil {
		return nil, err
	}

	page, err := l.provider.AcquirePage(ctx, pageName)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire page %s: %w", pageName, err)
	}
	page.AutoAcceptDialogs()

	taskID := fmt.Sprintf("perception-%d", time.Now().UnixMilli())
	trail, err := audit.New(l.config.AuditDir, taskID)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Agent run %s started on page %s", taskID, pageName)

	r := &run{
		page:     page,
		pageName: pageName,
		task:     task,
		trail:    trail,
		tracker:  budget.NewTracker(l.config.Budget),
		sampler:  sampler.New(l.config.Sampler),
		executor: NewExecutor(page, l.logger),
	}

	for cycle := 0; cycle < l.config.MaxCycles; cycle++ {
		if ok, reason := r.tracker.CanProceed(); !ok {
			l.logger.Info("Budget exhausted: %s", reason)
			return l.finalize(r, taskID, false, reason, nil), nil
		}

		result, terminal := l.runCycle(ctx, r, cycle)
		if terminal {
			return l.finalize(r, taskID, result.Success, result.Summary, result.ExtractedData), nil
		}
	}

	reason := fmt.Sprintf("Max cycles reached (%d)", l.config.MaxCycles)
	return l.finalize(r, taskID, false, reason, nil), nil
}

// runCycle executes one perception cycle. When terminal is true the returned
// result carries the final success flag, summary and extracted data.
func (l *Loop) runCycle(ctx context.Context, r *run, cycle int) (res Result, terminal bool) {
	started := time.Now()

	frame, err := l.captureFrame(ctx, r)
	if err != nil {
		return l.cycleError(r, cycle, started, fmt.Sprintf("screenshot failed: %v", err))
	}

	changed, err := r.sampler.HasChanged(frame)
	if err != nil {
		l.logger.Warn("Frame sampling failed: %v", err)
	} else if !changed {
		// Advisory only. The agent may still want to change approach on a
		// visually static page.
		l.logger.Debug("Frame visually unchanged from previous cycle")
	}

	framePath, err := r.trail.SaveFrame(cycle, frame)
	if err != nil {
		l.logger.Warn("Failed to persist frame: %v", err)
	}

	aria := l.ariaSnapshot(ctx, r)
	task := r.task
	if l.isStuck(r.history) {
		l.logger.Warn("Last 3 actions identical, nudging the model")
		task += stuckWarning
	}

	decision, err := l.analyze(ctx, frame, aria, r.history, task)
	if err != nil {
		return l.cycleError(r, cycle, started, fmt.Sprintf("vision call failed: %v", err))
	}

	action := Action{Kind: Kind(decision.Name), Input: decision.Input}
	pageURL, _ := r.page.URL(ctx)

	rec := audit.CycleRecord{
		Cycle:     cycle,
		Timestamp: started,
		PageURL:   pageURL,
		FramePath: framePath,
		Action:    audit.ActionRecord{Name: decision.Name, Input: decision.Input},
		Reasoning: decision.Reasoning,
		Tokens:    &audit.TokensRecord{Input: decision.Usage.Input, Output: decision.Usage.Output},
	}

	if ok, reason := l.config.Safety.Check(action); !ok {
		rec.Result = audit.ResultRecord{Success: false, Error: "Blocked: " + reason}
		l.closeCycle(r, rec, started, decision.Usage)
		r.history = append(r.history, HistoryEntry{Action: action, Result: ExecResult{Error: rec.Result.Error}})
		if l.bumpErrors(r) {
			return Result{Summary: "Too many consecutive errors"}, true
		}
		return Result{}, false
	}

	switch action.Kind {
	case KindDone:
		rec.Result = audit.ResultRecord{Success: true}
		l.closeCycle(r, rec, started, decision.Usage)
		extracted, _ := action.Input["extracted_data"].(map[string]any)
		return Result{
			Success:       action.BoolArg("success", true),
			Summary:       action.StringArg("summary"),
			ExtractedData: extracted,
		}, true
	case KindFail:
		// The action succeeded even though the task failed. Audits stay
		// consistent this way.
		rec.Result = audit.ResultRecord{Success: true}
		l.closeCycle(r, rec, started, decision.Usage)
		return Result{Success: false, Summary: action.StringArg("reason")}, true
	}

	execResult := r.executor.Execute(ctx, action)
	rec.Result = audit.ResultRecord{Success: execResult.Success, Error: execResult.Error}
	l.closeCycle(r, rec, started, decision.Usage)
	r.history = append(r.history, HistoryEntry{Action: action, Result: execResult})

	if !execResult.Success {
		if l.bumpErrors(r) {
			return Result{Summary: "Too many consecutive errors"}, true
		}
	} else {
		r.consecErr = 0
	}

	l.settle(ctx, r, action)
	return Result{}, false
}

// captureFrame takes a screenshot, recovering the page handle once when the
// failure indicates the CDP target died across a navigation.
func (l *Loop) captureFrame(ctx context.Context, r *run) ([]byte, error) {
	frame, err := r.page.Screenshot(ctx, l.config.ScreenshotQuality)
	if err == nil {
		return frame, nil
	}
	if !isTargetLost(err) {
		return nil, err
	}

	l.logger.Warn("Page target lost, re-acquiring handle: %v", err)
	page, acqErr := l.provider.AcquirePage(ctx, r.pageName)
	if acqErr != nil {
		return nil, fmt.Errorf("failed to re-acquire page: %w", acqErr)
	}
	_ = page.WaitReady(ctx, ports.LoadDOMContentLoaded, recoveryWaitTimeout)
	r.page = page
	r.executor.SetPage(page)
	r.sampler.ForceCapture()

	return page.Screenshot(ctx, l.config.ScreenshotQuality)
}

// isTargetLost matches CDP failures caused by the page target going away,
// typically across a cross-origin navigation.
func isTargetLost(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Target closed") || strings.Contains(msg, "Target page")
}

// ariaSnapshot fetches and truncates the accessibility snapshot.
func (l *Loop) ariaSnapshot(ctx context.Context, r *run) string {
	aria, err := r.page.AriaSnapshot(ctx)
	if err != nil {
		l.logger.Warn("Accessibility snapshot failed: %v", err)
		return ariaUnavailable
	}
	if len(aria) <= l.config.AriaMaxChars {
		return aria
	}
	cut := l.config.AriaMaxChars
	if nl := strings.LastIndex(aria[:cut], "\n"); nl > 0 {
		cut = nl
	}
	return aria[:cut] + ariaTruncationNotice
}

// analyze calls the vision model under the API timeout.
func (l *Loop) analyze(ctx context.Context, frame []byte, aria string, history []HistoryEntry, task string) (*ports.FrameDecision, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.config.APITimeout)
	defer cancel()
	return l.model.AnalyzeFrame(callCtx, ports.FrameRequest{
		FrameBase64:  base64.StdEncoding.EncodeToString(frame),
		AriaSnapshot: aria,
		History:      CompressHistory(history),
		Task:         task,
	})
}

// isStuck reports whether the last three actions are identical.
func (l *Loop) isStuck(history []HistoryEntry) bool {
	if len(history) < 3 {
		return false
	}
	last := history[len(history)-3:]
	key := actionKey(last[0].Action)
	for _, e := range last[1:] {
		if actionKey(e.Action) != key {
			return false
		}
	}
	return true
}

func actionKey(a Action) string {
	input, _ := json.Marshal(a.Input)
	return string(a.Kind) + ":" + string(input)
}

// cycleError records a synthetic cycle entry for an unexpected failure.
func (l *Loop) cycleError(r *run, cycle int, started time.Time, msg string) (Result, bool) {
	l.logger.Error("Cycle %d error: %s", cycle, msg)
	rec := audit.CycleRecord{
		Cycle:     cycle,
		Timestamp: started,
		Action:    audit.ActionRecord{Name: "error"},
		Result:    audit.ResultRecord{Success: false, Error: msg},
	}
	l.closeCycle(r, rec, started, ports.TokenUsage{})
	r.history = append(r.history, HistoryEntry{
		Action: Action{Kind: "error"},
		Result: ExecResult{Error: msg},
	})
	if l.bumpErrors(r) {
		return Result{Summary: "Too many consecutive errors"}, true
	}
	return Result{}, false
}

// closeCycle finishes the bookkeeping shared by every cycle outcome.
func (l *Loop) closeCycle(r *run, rec audit.CycleRecord, started time.Time, usage ports.TokenUsage) {
	rec.DurationMs = time.Since(started).Milliseconds()

	state := r.tracker.Snapshot()
	rec.BudgetRemaining = &audit.BudgetRemaining{
		Cycles: state.Limits.MaxCycles - state.Cycles - 1,
		Tokens: state.Limits.MaxTokens - state.InputTokens - state.OutputTokens - usage.Input - usage.Output,
	}

	if err := r.trail.LogCycle(rec); err != nil {
		l.logger.Warn("Failed to write cycle record: %v", err)
	}
	r.tracker.OnCycleComplete(usage)
	r.cycles++
}

// bumpErrors increments the consecutive-error counter and reports whether the
// run should abort.
func (l *Loop) bumpErrors(r *run) bool {
	r.consecErr++
	return r.consecErr >= l.config.MaxConsecutiveErrors
}

// settle waits for the page to stabilize after an action.
func (l *Loop) settle(ctx context.Context, r *run, action Action) {
	switch action.Kind {
	case KindNavigate:
		_ = r.page.WaitReady(ctx, ports.LoadNetworkIdle, settleNavTimeout)
		r.sampler.ForceCapture()
	case KindWait:
		// The action already waited.
	default:
		select {
		case <-time.After(l.config.SettleTime):
		case <-ctx.Done():
		}
	}
}

// finalize persists the run summary and builds the result.
func (l *Loop) finalize(r *run, taskID string, success bool, summary string, extracted map[string]any) *Result {
	state := r.tracker.Snapshot()
	result := &Result{
		Success:       success,
		Summary:       summary,
		TotalCycles:   r.cycles,
		ExtractedData: extracted,
		Budget:        state,
	}

	err := r.trail.SaveSummary(audit.Summary{
		TaskID: taskID,
		Task:   r.task,
		Result: audit.SummaryResult{
			Success:       success,
			Summary:       summary,
			ExtractedData: extracted,
		},
		Budget: audit.SummaryBudget{
			TotalCycles:  r.cycles,
			InputTokens:  state.InputTokens,
			OutputTokens: state.OutputTokens,
			CostUSD:      state.CostUSD,
			DurationMs:   state.ElapsedMs,
		},
		FinishedAt: time.Now(),
	})
	if err != nil {
		l.logger.Warn("Failed to write run summary: %v", err)
	}

	l.logger.Info("Agent run %s finished: success=%v cycles=%d", taskID, success, r.cycles)
	return result
}
