// Package agent implements the perception loop that drives a browser page
// with a vision model under resource budgets.
package agent

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one action from the agent vocabulary.
type Kind string

const (
	KindClick    Kind = "click"
	KindType     Kind = "type"
	KindScroll   Kind = "scroll"
	KindNavigate Kind = "navigate"
	KindKeyboard Kind = "keyboard"
	KindWait     Kind = "wait"
	KindHover    Kind = "hover"
	KindSelect   Kind = "select"
	KindDone     Kind = "done"
	KindFail     Kind = "fail"
)

// Action is one decision produced by the vision model.
type Action struct {
	Kind  Kind
	Input map[string]any
}

// IsTerminal reports whether the action ends the task.
func (a Action) IsTerminal() bool {
	return a.Kind == KindDone || a.Kind == KindFail
}

// String renders a compact human-readable form used in history and logs.
func (a Action) String() string {
	switch a.Kind {
	case KindClick:
		if ref := a.StringArg("ref"); ref != "" {
			return fmt.Sprintf("click [ref=%s]", ref)
		}
		return fmt.Sprintf("click at (%.0f, %.0f)", a.FloatArg("x", 0), a.FloatArg("y", 0))
	case KindType:
		return fmt.Sprintf("type %q", truncate(a.StringArg("text"), 20))
	case KindScroll:
		dir := a.StringArg("direction")
		if dir == "" {
			dir = "down"
		}
		return fmt.Sprintf("scroll %s", dir)
	case KindNavigate:
		return fmt.Sprintf("navigate to %s", a.StringArg("url"))
	case KindKeyboard:
		return fmt.Sprintf("press %s", a.StringArg("key"))
	case KindWait:
		return fmt.Sprintf("wait %dms", a.IntArg("ms", 1000))
	case KindHover:
		if ref := a.StringArg("ref"); ref != "" {
			return fmt.Sprintf("hover [ref=%s]", ref)
		}
		return fmt.Sprintf("hover at (%.0f, %.0f)", a.FloatArg("x", 0), a.FloatArg("y", 0))
	case KindSelect:
		return fmt.Sprintf("select %q in [ref=%s]", a.StringArg("value"), a.StringArg("ref"))
	case KindDone:
		return "done"
	case KindFail:
		return fmt.Sprintf("fail: %s", a.StringArg("reason"))
	default:
		// Fall back to raw input for unknown kinds.
		raw, err := json.Marshal(a.Input)
		if err != nil || len(a.Input) == 0 {
			return string(a.Kind)
		}
		return fmt.Sprintf("%s %s", a.Kind, raw)
	}
}

// StringArg returns a string input field, or "" when absent or mistyped.
func (a Action) StringArg(key string) string {
	if v, ok := a.Input[key].(string); ok {
		return v
	}
	return ""
}

// FloatArg returns a numeric input field, or def when absent. JSON numbers
// decode as float64, but integers from hand-built inputs are handled too.
func (a Action) FloatArg(key string, def float64) float64 {
	switch v := a.Input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// IntArg returns a numeric input field as int, or def when absent.
func (a Action) IntArg(key string, def int) int {
	return int(a.FloatArg(key, float64(def)))
}

// BoolArg returns a boolean input field, or def when absent.
func (a Action) BoolArg(key string, def bool) bool {
	if v, ok := a.Input[key].(bool); ok {
		return v
	}
	return def
}

// HasArg reports whether the input field is present.
func (a Action) HasArg(key string) bool {
	_, ok := a.Input[key]
	return ok
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
