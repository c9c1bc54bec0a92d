package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/user/browserstudio/pkg/adapters/logger"
	"github.com/user/browserstudio/pkg/mocks"
	"github.com/user/browserstudio/pkg/ports"
)

func newTestExecutor(page ports.Page) *Executor {
	return NewExecutor(page, logger.NewNoop())
}

func TestExecuteClickByRef(t *testing.T) {
	var clickedButton string
	el := mocks.NewElement()
	el.ClickFunc = func(ctx context.Context, button string) error {
		clickedButton = button
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		if ref != "e5" {
			t.Errorf("expected ref e5, got %s", ref)
		}
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindClick,
		Input: map[string]any{"ref": "e5"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if clickedButton != "left" {
		t.Errorf("expected left button default, got %s", clickedButton)
	}
}

func TestExecuteClickByCoordinates(t *testing.T) {
	var gotX, gotY float64
	var gotButton string
	page := mocks.NewPage()
	page.ClickAtFunc = func(ctx context.Context, x, y float64, button string) error {
		gotX, gotY, gotButton = x, y, button
		return nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindClick,
		Input: map[string]any{"x": 100.0, "y": 250.0, "button": "right"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if gotX != 100 || gotY != 250 || gotButton != "right" {
		t.Errorf("unexpected click: (%f, %f, %s)", gotX, gotY, gotButton)
	}
}

func TestExecuteClickMissingTarget(t *testing.T) {
	result := newTestExecutor(mocks.NewPage()).Execute(context.Background(), Action{
		Kind:  KindClick,
		Input: map[string]any{},
	})
	if result.Success {
		t.Fatal("expected failure without ref or coordinates")
	}
}

func TestExecuteClickUnresolvedRef(t *testing.T) {
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return nil, ports.ErrRefUnresolved
	}
	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindClick,
		Input: map[string]any{"ref": "e99"},
	})
	if result.Success {
		t.Fatal("expected failure for unresolved ref")
	}
	if !strings.Contains(result.Error, "ref not found") {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestExecuteTypeWithRefClearFirst(t *testing.T) {
	var filled string
	el := mocks.NewElement()
	el.FillFunc = func(ctx context.Context, text string) error {
		filled = text
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindType,
		Input: map[string]any{"ref": "e2", "text": "hello", "clear_first": true},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if filled != "hello" {
		t.Errorf("expected Fill with hello, got %q", filled)
	}
}

func TestExecuteTypeWithRefAppends(t *testing.T) {
	var typed string
	el := mocks.NewElement()
	el.TypeFunc = func(ctx context.Context, text string) error {
		typed = text
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindType,
		Input: map[string]any{"ref": "e2", "text": "world"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if typed != "world" {
		t.Errorf("expected Type with world, got %q", typed)
	}
}

func TestExecuteTypeWithoutRef(t *testing.T) {
	var pressed []string
	var inserted string
	page := mocks.NewPage()
	page.PressKeyFunc = func(ctx context.Context, key string) error {
		pressed = append(pressed, key)
		return nil
	}
	page.InsertTextFunc = func(ctx context.Context, text string) error {
		inserted = text
		return nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindType,
		Input: map[string]any{"text": "query", "clear_first": true},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if len(pressed) != 1 || pressed[0] != "Control+a" {
		t.Errorf("expected select-all before typing, got %v", pressed)
	}
	if inserted != "query" {
		t.Errorf("expected InsertText with query, got %q", inserted)
	}
}

func TestExecuteScrollDirections(t *testing.T) {
	tests := []struct {
		direction string
		amount    any
		wantDX    float64
		wantDY    float64
	}{
		{"down", nil, 0, 300},
		{"up", nil, 0, -300},
		{"left", nil, -300, 0},
		{"right", nil, 300, 0},
		{"down", 150.0, 0, 150},
		{"", nil, 0, 300},
	}
	for _, tt := range tests {
		var gotDX, gotDY float64
		page := mocks.NewPage()
		page.WheelFunc = func(ctx context.Context, deltaX, deltaY float64) error {
			gotDX, gotDY = deltaX, deltaY
			return nil
		}
		input := map[string]any{"direction": tt.direction}
		if tt.amount != nil {
			input["amount"] = tt.amount
		}
		result := newTestExecutor(page).Execute(context.Background(), Action{Kind: KindScroll, Input: input})
		if !result.Success {
			t.Fatalf("scroll %s failed: %s", tt.direction, result.Error)
		}
		if gotDX != tt.wantDX || gotDY != tt.wantDY {
			t.Errorf("scroll %s: got (%f, %f), want (%f, %f)", tt.direction, gotDX, gotDY, tt.wantDX, tt.wantDY)
		}
	}
}

func TestExecuteNavigate(t *testing.T) {
	var gotURL string
	var gotTimeout time.Duration
	page := mocks.NewPage()
	page.NavigateFunc = func(ctx context.Context, url string, timeout time.Duration) error {
		gotURL, gotTimeout = url, timeout
		return nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindNavigate,
		Input: map[string]any{"url": "https://example.com/pricing"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if gotURL != "https://example.com/pricing" {
		t.Errorf("unexpected URL: %s", gotURL)
	}
	if gotTimeout != 15*time.Second {
		t.Errorf("expected 15s navigate timeout, got %s", gotTimeout)
	}
}

func TestExecuteKeyboard(t *testing.T) {
	var gotKey string
	page := mocks.NewPage()
	page.PressKeyFunc = func(ctx context.Context, key string) error {
		gotKey = key
		return nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindKeyboard,
		Input: map[string]any{"key": "Enter"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if gotKey != "Enter" {
		t.Errorf("expected Enter, got %s", gotKey)
	}
}

func TestExecuteWait(t *testing.T) {
	start := time.Now()
	result := newTestExecutor(mocks.NewPage()).Execute(context.Background(), Action{
		Kind:  KindWait,
		Input: map[string]any{"ms": 20.0},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected wait of at least 20ms, took %s", elapsed)
	}
}

func TestExecuteHoverByRef(t *testing.T) {
	hovered := false
	el := mocks.NewElement()
	el.HoverFunc = func(ctx context.Context) error {
		hovered = true
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindHover,
		Input: map[string]any{"ref": "e3"},
	})
	if !result.Success || !hovered {
		t.Errorf("expected hover via element, success=%v hovered=%v", result.Success, hovered)
	}
}

func TestExecuteSelect(t *testing.T) {
	var selected string
	el := mocks.NewElement()
	el.SelectOptionFunc = func(ctx context.Context, value string) error {
		selected = value
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindSelect,
		Input: map[string]any{"ref": "e7", "value": "en-US"},
	})
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if selected != "en-US" {
		t.Errorf("expected en-US selected, got %s", selected)
	}
}

func TestExecuteSelectRequiresRef(t *testing.T) {
	result := newTestExecutor(mocks.NewPage()).Execute(context.Background(), Action{
		Kind:  KindSelect,
		Input: map[string]any{"value": "x"},
	})
	if result.Success {
		t.Fatal("expected failure without ref")
	}
}

func TestExecuteSelectRequiresValue(t *testing.T) {
	selectCalled := false
	el := mocks.NewElement()
	el.SelectOptionFunc = func(ctx context.Context, value string) error {
		selectCalled = true
		return nil
	}
	page := mocks.NewPage()
	page.ResolveRefFunc = func(ctx context.Context, ref string) (ports.Element, error) {
		return el, nil
	}

	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindSelect,
		Input: map[string]any{"ref": "e7"},
	})
	if result.Success {
		t.Fatal("expected failure without value")
	}
	if !strings.Contains(result.Error, "value") {
		t.Errorf("unexpected error: %s", result.Error)
	}
	if selectCalled {
		t.Error("expected no option selected when value is missing")
	}
}

func TestExecuteTerminalActionsAreNoOps(t *testing.T) {
	for _, kind := range []Kind{KindDone, KindFail} {
		result := newTestExecutor(mocks.NewPage()).Execute(context.Background(), Action{Kind: kind})
		if !result.Success {
			t.Errorf("expected %s to report success, got error: %s", kind, result.Error)
		}
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	result := newTestExecutor(mocks.NewPage()).Execute(context.Background(), Action{Kind: "teleport"})
	if result.Success {
		t.Fatal("expected failure for unknown action")
	}
	if result.Error != "Unknown action: teleport" {
		t.Errorf("unexpected error: %s", result.Error)
	}
}

func TestExecuteWrapsPageErrors(t *testing.T) {
	page := mocks.NewPage()
	page.NavigateFunc = func(ctx context.Context, url string, timeout time.Duration) error {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED")
	}
	result := newTestExecutor(page).Execute(context.Background(), Action{
		Kind:  KindNavigate,
		Input: map[string]any{"url": "https://nope.invalid"},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "ERR_NAME_NOT_RESOLVED") {
		t.Errorf("expected page error in result, got %s", result.Error)
	}
}
