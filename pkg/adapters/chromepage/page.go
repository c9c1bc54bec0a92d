package chromepage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/user/browserstudio/pkg/ports"
)

// Page implements ports.Page over one CDP target.
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	targetID string
	logger   ports.Logger

	mu             sync.Mutex
	casting        bool
	onFrame        func([]byte)
	consoleSinks   []func(ports.ConsoleLogEntry)
	consoleEnabled bool
	acceptDialogs  bool
	refs           map[string]cdp.BackendNodeID

	closeOnce sync.Once
	closed    bool
	closeFns  []func()
}

func newPage(ctx context.Context, cancel context.CancelFunc, targetID string, logger ports.Logger) *Page {
	p := &Page{
		ctx:      ctx,
		cancel:   cancel,
		targetID: targetID,
		logger:   logger.WithComponent("page"),
		refs:     make(map[string]cdp.BackendNodeID),
	}
	p.listen()
	go p.watchTarget()
	return p
}

// watchTarget fires the close callbacks when the target's context ends.
// chromedp cancels it when the target is destroyed, so this covers
// window.close(), crashes and external CDP clients closing the tab, as
// well as our own Close.
func (p *Page) watchTarget() {
	<-p.ctx.Done()
	p.fireClose()
}

func (p *Page) fireClose() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		fns := p.closeFns
		p.closeFns = nil
		p.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
}

// OnClose registers fn to run once when the page's target goes away.
func (p *Page) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.closeFns = append(p.closeFns, fn)
	p.mu.Unlock()
}

// listen installs the single event dispatcher for this target. Screencast
// frames, console events and dialogs all arrive here.
func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventScreencastFrame:
			p.handleScreencastFrame(e)

		case *runtime.EventConsoleAPICalled:
			p.dispatchConsole(consoleEntryFromAPICall(e))

		case *runtime.EventExceptionThrown:
			p.dispatchConsole(consoleEntryFromException(e))

		case *page.EventJavascriptDialogOpening:
			p.mu.Lock()
			accept := p.acceptDialogs
			p.mu.Unlock()
			if accept {
				go chromedp.Run(p.ctx, page.HandleJavaScriptDialog(true))
			}
		}
	})
}

func (p *Page) handleScreencastFrame(e *page.EventScreencastFrame) {
	data, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return
	}

	p.mu.Lock()
	onFrame := p.onFrame
	casting := p.casting
	p.mu.Unlock()

	if casting && onFrame != nil {
		onFrame(data)
	}

	// Acknowledge even when not casting anymore, otherwise the browser
	// stops sending and a later start stalls.
	go chromedp.Run(p.ctx, page.ScreencastFrameAck(e.SessionID))
}

func (p *Page) dispatchConsole(entry ports.ConsoleLogEntry) {
	p.mu.Lock()
	sinks := make([]func(ports.ConsoleLogEntry), len(p.consoleSinks))
	copy(sinks, p.consoleSinks)
	p.mu.Unlock()
	for _, sink := range sinks {
		sink(entry)
	}
}

// run executes chromedp actions against this target, honoring the caller's
// deadline when one is set.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx := p.ctx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// TargetID returns the CDP target identifier.
func (p *Page) TargetID() string {
	return p.targetID
}

func (p *Page) setViewport(width, height int) error {
	return chromedp.Run(p.ctx,
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false),
	)
}

// Screenshot captures the viewport as JPEG.
func (p *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Navigate loads the URL and waits for the load event, bounded by timeout.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady polls document.readyState until the requested load state is
// reached or the timeout elapses. Network idle is approximated by the load
// event plus a short quiet period.
func (p *Page) WaitReady(ctx context.Context, state ports.LoadState, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var readyState string
		err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &readyState))
		if err == nil {
			switch state {
			case ports.LoadDOMContentLoaded:
				if readyState == "interactive" || readyState == "complete" {
					return nil
				}
			case ports.LoadNetworkIdle:
				if readyState == "complete" {
					select {
					case <-time.After(500 * time.Millisecond):
					case <-ctx.Done():
						return ctx.Err()
					}
					return nil
				}
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for %s", state)
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// URL returns the current location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Title returns the current page title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func mouseButton(button string) input.MouseButton {
	switch button {
	case "right":
		return input.Right
	case "middle":
		return input.Middle
	default:
		return input.Left
	}
}

// ClickAt dispatches a mouse click at viewport coordinates.
func (p *Page) ClickAt(ctx context.Context, x, y float64, button string) error {
	btn := mouseButton(button)
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(btn).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(btn).
			WithClickCount(1).
			Do(ctx)
	}))
}

// MoveTo moves the mouse without clicking.
func (p *Page) MoveTo(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// Wheel scrolls by the given deltas at the viewport center.
func (p *Page) Wheel(ctx context.Context, deltaX, deltaY float64) error {
	var size [2]float64
	if err := p.run(ctx, chromedp.Evaluate(`[window.innerWidth, window.innerHeight]`, &size)); err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, size[0]/2, size[1]/2).
			WithDeltaX(deltaX).
			WithDeltaY(deltaY).
			Do(ctx)
	}))
}

// PressKey dispatches a key press. Combos use "+" separators, e.g.
// "Control+a" or "Shift+Tab".
func (p *Page) PressKey(ctx context.Context, key string) error {
	def, modifiers, err := parseKeyCombo(key)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		down := input.DispatchKeyEvent(input.KeyDown).
			WithKey(def.key).
			WithCode(def.code).
			WithWindowsVirtualKeyCode(def.virtualKey).
			WithModifiers(modifiers)
		// Text only inserts without non-shift modifiers held.
		if def.text != "" && modifiers&^input.ModifierShift == 0 {
			down = down.WithText(def.text)
		}
		if err := down.Do(ctx); err != nil {
			return err
		}
		return input.DispatchKeyEvent(input.KeyUp).
			WithKey(def.key).
			WithCode(def.code).
			WithWindowsVirtualKeyCode(def.virtualKey).
			WithModifiers(modifiers).
			Do(ctx)
	}))
}

// InsertText types text into the focused element.
func (p *Page) InsertText(ctx context.Context, text string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

// SubscribeConsole enables console capture and registers the sink.
func (p *Page) SubscribeConsole(ctx context.Context, sink func(ports.ConsoleLogEntry)) error {
	p.mu.Lock()
	needEnable := !p.consoleEnabled
	p.consoleEnabled = true
	p.consoleSinks = append(p.consoleSinks, sink)
	p.mu.Unlock()

	if needEnable {
		if err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.Enable().Do(ctx)
		})); err != nil {
			return fmt.Errorf("failed to enable console capture: %w", err)
		}
	}
	return nil
}

// StartScreencast begins frame delivery to onFrame.
func (p *Page) StartScreencast(ctx context.Context, opts ports.ScreencastOptions, onFrame func([]byte)) error {
	p.mu.Lock()
	if p.casting {
		p.mu.Unlock()
		return fmt.Errorf("screencast already active")
	}
	p.casting = true
	p.onFrame = onFrame
	p.mu.Unlock()

	cast := page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(int64(opts.Quality)).
		WithEveryNthFrame(int64(opts.EveryNthFrame))
	if opts.MaxWidth > 0 {
		cast = cast.WithMaxWidth(int64(opts.MaxWidth))
	}
	if opts.MaxHeight > 0 {
		cast = cast.WithMaxHeight(int64(opts.MaxHeight))
	}

	if err := p.run(ctx, cast); err != nil {
		p.mu.Lock()
		p.casting = false
		p.onFrame = nil
		p.mu.Unlock()
		return fmt.Errorf("failed to start screencast: %w", err)
	}
	return nil
}

// StopScreencast stops frame delivery. Safe to call when not casting.
func (p *Page) StopScreencast(ctx context.Context) error {
	p.mu.Lock()
	if !p.casting {
		p.mu.Unlock()
		return nil
	}
	p.casting = false
	p.onFrame = nil
	p.mu.Unlock()

	// Bounded stop so a dead target cannot hang the caller.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.run(stopCtx, page.StopScreencast())
}

// AutoAcceptDialogs makes the dispatcher accept JavaScript dialogs.
func (p *Page) AutoAcceptDialogs() {
	p.mu.Lock()
	p.acceptDialogs = true
	p.mu.Unlock()
}

// Close detaches from the target and releases its sessions.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

// keyDef describes one dispatchable key.
type keyDef struct {
	key        string
	code       string
	virtualKey int64
	text       string
}

var namedKeys = map[string]keyDef{
	"Enter":      {"Enter", "Enter", 13, "\r"},
	"Tab":        {"Tab", "Tab", 9, "\t"},
	"Escape":     {"Escape", "Escape", 27, ""},
	"Backspace":  {"Backspace", "Backspace", 8, ""},
	"Delete":     {"Delete", "Delete", 46, ""},
	"Space":      {" ", "Space", 32, " "},
	"ArrowUp":    {"ArrowUp", "ArrowUp", 38, ""},
	"ArrowDown":  {"ArrowDown", "ArrowDown", 40, ""},
	"ArrowLeft":  {"ArrowLeft", "ArrowLeft", 37, ""},
	"ArrowRight": {"ArrowRight", "ArrowRight", 39, ""},
	"Home":       {"Home", "Home", 36, ""},
	"End":        {"End", "End", 35, ""},
	"PageUp":     {"PageUp", "PageUp", 33, ""},
	"PageDown":   {"PageDown", "PageDown", 34, ""},
}

// parseKeyCombo splits a combo like "Control+Shift+a" into the final key and
// its modifier mask.
func parseKeyCombo(combo string) (keyDef, input.Modifier, error) {
	parts := strings.Split(combo, "+")
	var modifiers input.Modifier
	keyName := parts[len(parts)-1]
	if keyName == "" && strings.HasSuffix(combo, "+") {
		// The combo ends in a literal plus key, e.g. "Shift++".
		keyName = "+"
	}

	for _, part := range parts[:len(parts)-1] {
		switch part {
		case "Alt":
			modifiers |= input.ModifierAlt
		case "Control", "Ctrl":
			modifiers |= input.ModifierCtrl
		case "Meta", "Command":
			modifiers |= input.ModifierCommand
		case "Shift":
			modifiers |= input.ModifierShift
		case "":
			// Tolerate empty segments from the literal-plus case.
		default:
			return keyDef{}, 0, fmt.Errorf("unknown modifier: %s", part)
		}
	}

	if def, ok := namedKeys[keyName]; ok {
		return def, modifiers, nil
	}
	if len([]rune(keyName)) == 1 {
		return keyDef{key: keyName, code: "", virtualKey: 0, text: keyName}, modifiers, nil
	}
	return keyDef{}, 0, fmt.Errorf("unknown key: %s", keyName)
}

var _ ports.Page = (*Page)(nil)
