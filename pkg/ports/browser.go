// Package ports defines interfaces for external dependencies.
package ports

import (
	"context"
	"errors"
	"time"
)

// LoadState is a page readiness level used by WaitReady.
type LoadState string

const (
	// LoadDOMContentLoaded waits until the DOM is parsed.
	LoadDOMContentLoaded LoadState = "domcontentloaded"
	// LoadNetworkIdle waits until the page has settled after loading.
	LoadNetworkIdle LoadState = "networkidle"
)

// ErrRefUnresolved is returned when an accessibility ref does not map to an
// interactable element on the current page.
var ErrRefUnresolved = errors.New("ref not found in accessibility snapshot")

// ConsoleLogEntry is one normalized console API call or runtime exception.
// Entries are immutable once appended to a page's log.
type ConsoleLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Line      int64     `json:"line,omitempty"`
	Column    int64     `json:"column,omitempty"`
}

// ScreencastOptions configure a CDP screencast session.
type ScreencastOptions struct {
	Quality       int // JPEG quality 0-100
	MaxWidth      int
	MaxHeight     int
	EveryNthFrame int
}

// Page abstracts a single remote-controlled browser page. All blocking
// operations take a context; implementations bind it to the page's lifetime.
type Page interface {
	// TargetID returns the CDP target identifier, stable for the page's lifetime.
	TargetID() string

	// Screenshot captures the current viewport as JPEG at the given quality.
	Screenshot(ctx context.Context, quality int) ([]byte, error)

	// Navigate loads url, waiting for the DOM to be ready, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitReady waits best-effort for the given load state, bounded by timeout.
	WaitReady(ctx context.Context, state LoadState, timeout time.Duration) error

	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)

	// Title returns the page's current title.
	Title(ctx context.Context) (string, error)

	// ClickAt dispatches a mouse click at viewport coordinates.
	// button is "left", "right" or "middle".
	ClickAt(ctx context.Context, x, y float64, button string) error

	// MoveTo moves the mouse to viewport coordinates without clicking.
	MoveTo(ctx context.Context, x, y float64) error

	// Wheel scrolls by the given deltas at the viewport center.
	Wheel(ctx context.Context, deltaX, deltaY float64) error

	// PressKey dispatches a key press. Combos like "Control+a" are supported.
	PressKey(ctx context.Context, key string) error

	// InsertText types text into the focused element.
	InsertText(ctx context.Context, text string) error

	// AriaSnapshot renders the page's accessibility tree as indented text with
	// [ref=eN] markers on interactable nodes.
	AriaSnapshot(ctx context.Context) (string, error)

	// ResolveRef maps an accessibility ref (e.g. "e5") from the most recent
	// snapshot to an interactable element. Returns ErrRefUnresolved when the
	// ref is unknown.
	ResolveRef(ctx context.Context, ref string) (Element, error)

	// SubscribeConsole enables console capture and delivers every console API
	// call and runtime exception to sink, in CDP event order.
	SubscribeConsole(ctx context.Context, sink func(ConsoleLogEntry)) error

	// StartScreencast begins frame delivery to onFrame. Frames are acked
	// internally; onFrame receives decoded JPEG bytes in delivery order.
	StartScreencast(ctx context.Context, opts ScreencastOptions, onFrame func(data []byte)) error

	// StopScreencast stops frame delivery. Safe to call when not casting.
	StopScreencast(ctx context.Context) error

	// AutoAcceptDialogs installs a handler that accepts JavaScript dialogs so
	// they never block automation.
	AutoAcceptDialogs()

	// OnClose registers fn to run once when the page's target goes away,
	// whether through Close or a browser-side teardown such as window.close()
	// or a crash. Registering on an already-closed page runs fn immediately.
	OnClose(fn func())

	// Close detaches from the page and releases its sessions.
	Close() error
}

// Element is an interactable element resolved from an accessibility ref.
type Element interface {
	// Click scrolls the element into view and clicks its center.
	Click(ctx context.Context, button string) error

	// Hover moves the mouse over the element's center.
	Hover(ctx context.Context) error

	// Fill clears the element and types text into it.
	Fill(ctx context.Context, text string) error

	// Type clicks the element and appends text without clearing.
	Type(ctx context.Context, text string) error

	// SelectOption selects a <select> option by value, falling back to label.
	SelectOption(ctx context.Context, value string) error
}

// PageProvider hands out live page handles by name. Implementations re-resolve
// dead handles by CDP target ID, so acquiring again after a navigation-related
// failure yields a working handle.
type PageProvider interface {
	AcquirePage(ctx context.Context, name string) (Page, error)
}
