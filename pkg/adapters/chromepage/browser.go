// Package chromepage provides the browser and page implementation using chromedp.
package chromepage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/user/browserstudio/pkg/ports"
)

// LaunchOptions configure the shared browser process.
type LaunchOptions struct {
	Headless       bool
	ChromePath     string
	CDPPort        int
	ViewportWidth  int
	ViewportHeight int
}

// Browser owns the Chromium process and hands out pages as CDP targets.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	opts       LaunchOptions
	wsEndpoint string
	logger     ports.Logger
}

// NewBrowser creates a Browser. Call Launch before using it.
func NewBrowser(logger ports.Logger) *Browser {
	return &Browser{logger: logger.WithComponent("browser")}
}

// Launch starts Chromium with a CDP endpoint exposed on opts.CDPPort.
func (b *Browser) Launch(ctx context.Context, opts LaunchOptions) error {
	b.opts = opts

	chromedpOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("remote-debugging-port", fmt.Sprintf("%d", opts.CDPPort)),
	}

	if opts.Headless {
		// Use new headless mode for better compatibility
		chromedpOpts = append(chromedpOpts, chromedp.Flag("headless", "new"))
	}

	// Resolve Chrome path: option → CHROME_PATH env → system defaults
	chromePath := ResolveChromePath(opts.ChromePath)
	if chromePath == "" {
		return fmt.Errorf("chrome not found: please install Chrome/Chromium or set CHROME_PATH")
	}
	chromedpOpts = append(chromedpOpts, chromedp.ExecPath(chromePath))

	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		chromedpOpts = append(chromedpOpts,
			chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
			chromedp.Flag("window-size", fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight)))
	}

	// Additional flags for server/background/container execution
	chromedpOpts = append(chromedpOpts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("no-zygote", true),
	)

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(ctx, chromedpOpts...)
	b.ctx, b.cancel = chromedp.NewContext(b.allocCtx)

	// An empty run forces the process to start.
	if err := chromedp.Run(b.ctx); err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	ws, err := b.fetchWSEndpoint(ctx)
	if err != nil {
		b.logger.Warn("Could not resolve CDP websocket endpoint: %v", err)
	} else {
		b.wsEndpoint = ws
	}

	b.logger.Info("Browser launched (CDP port %d)", opts.CDPPort)
	return nil
}

// WSEndpoint returns the browser-level CDP websocket URL for external clients.
func (b *Browser) WSEndpoint() string {
	return b.wsEndpoint
}

// fetchWSEndpoint asks the DevTools HTTP endpoint for the browser websocket
// URL. Retries briefly because the endpoint comes up slightly after launch.
func (b *Browser) fetchWSEndpoint(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", b.opts.CDPPort)

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := http.Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		var version struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		err = json.NewDecoder(resp.Body).Decode(&version)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if version.WebSocketDebuggerURL != "" {
			return version.WebSocketDebuggerURL, nil
		}
		lastErr = fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return "", lastErr
}

// NewPage opens a fresh tab on about:blank and returns its handle. A zero
// width/height keeps the browser's default viewport.
func (b *Browser) NewPage(ctx context.Context, width, height int) (*Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(pageCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	tgt := chromedp.FromContext(pageCtx).Target
	if tgt == nil {
		cancel()
		return nil, fmt.Errorf("page has no CDP target")
	}

	if width <= 0 || height <= 0 {
		width, height = b.opts.ViewportWidth, b.opts.ViewportHeight
	}

	p := newPage(pageCtx, cancel, string(tgt.TargetID), b.logger)
	if width > 0 && height > 0 {
		if err := p.setViewport(width, height); err != nil {
			b.logger.Warn("Failed to set viewport: %v", err)
		}
	}
	return p, nil
}

// Attach connects to an existing CDP target, typically to recover a page
// handle whose previous session died across a navigation.
func (b *Browser) Attach(ctx context.Context, targetID string) (*Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithTargetID(target.ID(targetID)))
	if err := chromedp.Run(pageCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to target %s: %w", targetID, err)
	}
	return newPage(pageCtx, cancel, targetID, b.logger), nil
}

// Close shuts down the browser process.
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
	}

	// Give Chrome a moment to shut down gracefully, then force kill
	time.Sleep(100 * time.Millisecond)

	if b.allocCancel != nil {
		b.allocCancel()
	}

	b.logger.Info("Browser closed")
	return nil
}
