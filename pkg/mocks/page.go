package mocks

import (
	"context"
	"time"

	"github.com/user/browserstudio/pkg/ports"
)

// Page is a mock implementation of ports.Page.
type Page struct {
	TargetIDFunc         func() string
	ScreenshotFunc       func(ctx context.Context, quality int) ([]byte, error)
	NavigateFunc         func(ctx context.Context, url string, timeout time.Duration) error
	WaitReadyFunc        func(ctx context.Context, state ports.LoadState, timeout time.Duration) error
	URLFunc              func(ctx context.Context) (string, error)
	TitleFunc            func(ctx context.Context) (string, error)
	ClickAtFunc          func(ctx context.Context, x, y float64, button string) error
	MoveToFunc           func(ctx context.Context, x, y float64) error
	WheelFunc            func(ctx context.Context, deltaX, deltaY float64) error
	PressKeyFunc         func(ctx context.Context, key string) error
	InsertTextFunc       func(ctx context.Context, text string) error
	AriaSnapshotFunc     func(ctx context.Context) (string, error)
	ResolveRefFunc       func(ctx context.Context, ref string) (ports.Element, error)
	SubscribeConsoleFunc func(ctx context.Context, sink func(ports.ConsoleLogEntry)) error
	StartScreencastFunc  func(ctx context.Context, opts ports.ScreencastOptions, onFrame func([]byte)) error
	StopScreencastFunc   func(ctx context.Context) error
	AutoAcceptFunc       func()
	OnCloseFunc          func(fn func())
	CloseFunc            func() error

	// CloseCallback holds the last callback registered through OnClose when
	// no OnCloseFunc is set. Tests invoke it to simulate a browser-side close.
	CloseCallback func()
}

// NewPage creates a new mock Page.
func NewPage() *Page {
	return &Page{}
}

func (m *Page) TargetID() string {
	if m.TargetIDFunc != nil {
		return m.TargetIDFunc()
	}
	return "mock-target-id"
}

func (m *Page) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	if m.ScreenshotFunc != nil {
		return m.ScreenshotFunc(ctx, quality)
	}
	return []byte("mock-jpeg"), nil
}

func (m *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if m.NavigateFunc != nil {
		return m.NavigateFunc(ctx, url, timeout)
	}
	return nil
}

func (m *Page) WaitReady(ctx context.Context, state ports.LoadState, timeout time.Duration) error {
	if m.WaitReadyFunc != nil {
		return m.WaitReadyFunc(ctx, state, timeout)
	}
	return nil
}

func (m *Page) URL(ctx context.Context) (string, error) {
	if m.URLFunc != nil {
		return m.URLFunc(ctx)
	}
	return "https://example.com", nil
}

func (m *Page) Title(ctx context.Context) (string, error) {
	if m.TitleFunc != nil {
		return m.TitleFunc(ctx)
	}
	return "Example", nil
}

func (m *Page) ClickAt(ctx context.Context, x, y float64, button string) error {
	if m.ClickAtFunc != nil {
		return m.ClickAtFunc(ctx, x, y, button)
	}
	return nil
}

func (m *Page) MoveTo(ctx context.Context, x, y float64) error {
	if m.MoveToFunc != nil {
		return m.MoveToFunc(ctx, x, y)
	}
	return nil
}

func (m *Page) Wheel(ctx context.Context, deltaX, deltaY float64) error {
	if m.WheelFunc != nil {
		return m.WheelFunc(ctx, deltaX, deltaY)
	}
	return nil
}

func (m *Page) PressKey(ctx context.Context, key string) error {
	if m.PressKeyFunc != nil {
		return m.PressKeyFunc(ctx, key)
	}
	return nil
}

func (m *Page) InsertText(ctx context.Context, text string) error {
	if m.InsertTextFunc != nil {
		return m.InsertTextFunc(ctx, text)
	}
	return nil
}

func (m *Page) AriaSnapshot(ctx context.Context) (string, error) {
	if m.AriaSnapshotFunc != nil {
		return m.AriaSnapshotFunc(ctx)
	}
	return "- document\n", nil
}

func (m *Page) ResolveRef(ctx context.Context, ref string) (ports.Element, error) {
	if m.ResolveRefFunc != nil {
		return m.ResolveRefFunc(ctx, ref)
	}
	return NewElement(), nil
}

func (m *Page) SubscribeConsole(ctx context.Context, sink func(ports.ConsoleLogEntry)) error {
	if m.SubscribeConsoleFunc != nil {
		return m.SubscribeConsoleFunc(ctx, sink)
	}
	return nil
}

func (m *Page) StartScreencast(ctx context.Context, opts ports.ScreencastOptions, onFrame func([]byte)) error {
	if m.StartScreencastFunc != nil {
		return m.StartScreencastFunc(ctx, opts, onFrame)
	}
	return nil
}

func (m *Page) StopScreencast(ctx context.Context) error {
	if m.StopScreencastFunc != nil {
		return m.StopScreencastFunc(ctx)
	}
	return nil
}

func (m *Page) AutoAcceptDialogs() {
	if m.AutoAcceptFunc != nil {
		m.AutoAcceptFunc()
	}
}

func (m *Page) OnClose(fn func()) {
	if m.OnCloseFunc != nil {
		m.OnCloseFunc(fn)
		return
	}
	m.CloseCallback = fn
}

func (m *Page) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ ports.Page = (*Page)(nil)

// Element is a mock implementation of ports.Element.
type Element struct {
	ClickFunc        func(ctx context.Context, button string) error
	HoverFunc        func(ctx context.Context) error
	FillFunc         func(ctx context.Context, text string) error
	TypeFunc         func(ctx context.Context, text string) error
	SelectOptionFunc func(ctx context.Context, value string) error
}

// NewElement creates a new mock Element.
func NewElement() *Element {
	return &Element{}
}

func (m *Element) Click(ctx context.Context, button string) error {
	if m.ClickFunc != nil {
		return m.ClickFunc(ctx, button)
	}
	return nil
}

func (m *Element) Hover(ctx context.Context) error {
	if m.HoverFunc != nil {
		return m.HoverFunc(ctx)
	}
	return nil
}

func (m *Element) Fill(ctx context.Context, text string) error {
	if m.FillFunc != nil {
		return m.FillFunc(ctx, text)
	}
	return nil
}

func (m *Element) Type(ctx context.Context, text string) error {
	if m.TypeFunc != nil {
		return m.TypeFunc(ctx, text)
	}
	return nil
}

func (m *Element) SelectOption(ctx context.Context, value string) error {
	if m.SelectOptionFunc != nil {
		return m.SelectOptionFunc(ctx, value)
	}
	return nil
}

var _ ports.Element = (*Element)(nil)

// PageProvider is a mock implementation of ports.PageProvider.
type PageProvider struct {
	AcquirePageFunc func(ctx context.Context, name string) (ports.Page, error)
}

// NewPageProvider creates a new mock PageProvider.
func NewPageProvider() *PageProvider {
	return &PageProvider{}
}

func (m *PageProvider) AcquirePage(ctx context.Context, name string) (ports.Page, error) {
	if m.AcquirePageFunc != nil {
		return m.AcquirePageFunc(ctx, name)
	}
	return NewPage(), nil
}

var _ ports.PageProvider = (*PageProvider)(nil)
