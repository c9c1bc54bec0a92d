package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/user/browserstudio/pkg/ports"
)

const (
	defaultScrollAmount = 300
	defaultWaitMs       = 1000
	navigateTimeout     = 15 * time.Second
)

// ExecResult is the outcome of executing one action against the page.
type ExecResult struct {
	Success bool
	Error   string
}

// Executor translates vocabulary actions into page operations.
type Executor struct {
	page   ports.Page
	logger ports.Logger
}

// NewExecutor creates an Executor bound to a page.
func NewExecutor(page ports.Page, logger ports.Logger) *Executor {
	return &Executor{page: page, logger: logger.WithComponent("executor")}
}

// SetPage swaps the page handle, used after page recovery.
func (e *Executor) SetPage(page ports.Page) {
	e.page = page
}

// Execute performs the action. Failures are reported in the result rather
// than as errors so the loop can feed them back to the model.
func (e *Executor) Execute(ctx context.Context, action Action) ExecResult {
	e.logger.Debug("Executing action: %s", action.String())

	var err error
	switch action.Kind {
	case KindClick:
		err = e.click(ctx, action)
	case KindType:
		err = e.typeText(ctx, action)
	case KindScroll:
		err = e.scroll(ctx, action)
	case KindNavigate:
		err = e.page.Navigate(ctx, action.StringArg("url"), navigateTimeout)
	case KindKeyboard:
		err = e.page.PressKey(ctx, action.StringArg("key"))
	case KindWait:
		e.wait(ctx, action)
	case KindHover:
		err = e.hover(ctx, action)
	case KindSelect:
		err = e.selectOption(ctx, action)
	case KindDone, KindFail:
		// Terminal actions touch no page state.
	default:
		err = fmt.Errorf("Unknown action: %s", action.Kind)
	}

	if err != nil {
		return ExecResult{Success: false, Error: err.Error()}
	}
	return ExecResult{Success: true}
}

func (e *Executor) click(ctx context.Context, action Action) error {
	button := action.StringArg("button")
	if button == "" {
		button = "left"
	}
	if ref := action.StringArg("ref"); ref != "" {
		el, err := e.page.ResolveRef(ctx, ref)
		if err != nil {
			return err
		}
		return el.Click(ctx, button)
	}
	if action.HasArg("x") && action.HasArg("y") {
		return e.page.ClickAt(ctx, action.FloatArg("x", 0), action.FloatArg("y", 0), button)
	}
	return fmt.Errorf("click requires a ref or x/y coordinates")
}

func (e *Executor) typeText(ctx context.Context, action Action) error {
	text := action.StringArg("text")
	clearFirst := action.BoolArg("clear_first", false)

	if ref := action.StringArg("ref"); ref != "" {
		el, err := e.page.ResolveRef(ctx, ref)
		if err != nil {
			return err
		}
		if clearFirst {
			return el.Fill(ctx, text)
		}
		return el.Type(ctx, text)
	}

	// No ref: type into whatever currently has focus.
	if clearFirst {
		if err := e.page.PressKey(ctx, "Control+a"); err != nil {
			return err
		}
	}
	return e.page.InsertText(ctx, text)
}

func (e *Executor) scroll(ctx context.Context, action Action) error {
	amount := action.FloatArg("amount", defaultScrollAmount)
	var dx, dy float64
	switch action.StringArg("direction") {
	case "up":
		dy = -amount
	case "left":
		dx = -amount
	case "right":
		dx = amount
	default:
		dy = amount
	}
	return e.page.Wheel(ctx, dx, dy)
}

func (e *Executor) wait(ctx context.Context, action Action) {
	ms := action.IntArg("ms", defaultWaitMs)
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

func (e *Executor) hover(ctx context.Context, action Action) error {
	if ref := action.StringArg("ref"); ref != "" {
		el, err := e.page.ResolveRef(ctx, ref)
		if err != nil {
			return err
		}
		return el.Hover(ctx)
	}
	if action.HasArg("x") && action.HasArg("y") {
		return e.page.MoveTo(ctx, action.FloatArg("x", 0), action.FloatArg("y", 0))
	}
	return fmt.Errorf("hover requires a ref or x/y coordinates")
}

func (e *Executor) selectOption(ctx context.Context, action Action) error {
	ref := action.StringArg("ref")
	if ref == "" {
		return fmt.Errorf("select requires a ref")
	}
	if !action.HasArg("value") {
		return fmt.Errorf("select requires a value")
	}
	el, err := e.page.ResolveRef(ctx, ref)
	if err != nil {
		return err
	}
	return el.SelectOption(ctx, action.StringArg("value"))
}
