// Package registry tracks named pages and their captured console logs.
//
// Every page the server opens lives here under a caller-chosen name. The
// registry subscribes to a page's console exactly once, when the page is
// created, so log order matches CDP event order for the lifetime of the
// entry. It also acts as the page provider for agent runs, recovering a
// fresh session by target ID when the old one has died.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/user/browserstudio/pkg/ports"
)

const maxNameLength = 256

var (
	// ErrInvalidName is returned when a page name is empty or too long.
	ErrInvalidName = errors.New("invalid page name")
	// ErrPageExists is returned when a page name is already taken.
	ErrPageExists = errors.New("page already exists")
	// ErrPageNotFound is returned when no page has the given name.
	ErrPageNotFound = errors.New("page not found")
)

// NewPageFunc opens a new browser tab. A zero width/height keeps the
// default viewport.
type NewPageFunc func(ctx context.Context, width, height int) (ports.Page, error)

// AttachFunc reconnects to an existing CDP target by ID.
type AttachFunc func(ctx context.Context, targetID string) (ports.Page, error)

// Entry is one named page with its accumulated console log.
type Entry struct {
	Name     string
	TargetID string

	mu          sync.Mutex
	page        ports.Page
	consoleLogs []ports.ConsoleLogEntry
}

// Page returns the current page handle for the entry.
func (e *Entry) Page() ports.Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

func (e *Entry) setPage(p ports.Page) {
	e.mu.Lock()
	e.page = p
	e.mu.Unlock()
}

func (e *Entry) appendConsole(entry ports.ConsoleLogEntry) {
	e.mu.Lock()
	e.consoleLogs = append(e.consoleLogs, entry)
	e.mu.Unlock()
}

// ConsoleLogs returns a copy of all captured console entries in CDP order.
func (e *Entry) ConsoleLogs() []ports.ConsoleLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	logs := make([]ports.ConsoleLogEntry, len(e.consoleLogs))
	copy(logs, e.consoleLogs)
	return logs
}

// ConsoleCount returns the number of captured console entries.
func (e *Entry) ConsoleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.consoleLogs)
}

// ConsoleSince returns a copy of the entries captured at or after index.
// An index beyond the current length yields an empty slice.
func (e *Entry) ConsoleSince(index int) []ports.ConsoleLogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if index >= len(e.consoleLogs) {
		return []ports.ConsoleLogEntry{}
	}
	logs := make([]ports.ConsoleLogEntry, len(e.consoleLogs)-index)
	copy(logs, e.consoleLogs[index:])
	return logs
}

// ClearConsole drops all captured entries and returns how many were cleared.
func (e *Entry) ClearConsole() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.consoleLogs)
	e.consoleLogs = nil
	return n
}

// Registry maps page names to entries.
type Registry struct {
	newPage NewPageFunc
	attach  AttachFunc
	logger  ports.Logger

	mu           sync.RWMutex
	pages        map[string]*Entry
	onPageClosed func(name string, page ports.Page)
}

// New creates an empty registry backed by the given page factories.
func New(newPage NewPageFunc, attach AttachFunc, logger ports.Logger) *Registry {
	return &Registry{
		newPage: newPage,
		attach:  attach,
		logger:  logger.WithComponent("registry"),
		pages:   make(map[string]*Entry),
	}
}

// SetOnPageClosed registers a hook invoked after an entry is removed because
// its target died browser-side, e.g. window.close(), a crash, or an external
// CDP client closing the tab. It is not invoked for Delete or Shutdown.
func (r *Registry) SetOnPageClosed(fn func(name string, page ports.Page)) {
	r.mu.Lock()
	r.onPageClosed = fn
	r.mu.Unlock()
}

// ValidateName checks a page name against the registry's naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// Create opens a new page under the given name. Console capture is
// established once here and stays attached for the entry's lifetime.
func (r *Registry) Create(ctx context.Context, name string, width, height int) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.pages[name]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPageExists, name)
	}
	// Reserve the name before the slow page launch so concurrent creates
	// with the same name fail fast.
	r.pages[name] = nil
	r.mu.Unlock()

	page, err := r.newPage(ctx, width, height)
	if err != nil {
		r.mu.Lock()
		delete(r.pages, name)
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create page %s: %w", name, err)
	}

	entry := &Entry{
		Name:     name,
		TargetID: page.TargetID(),
		page:     page,
	}
	if err := page.SubscribeConsole(ctx, entry.appendConsole); err != nil {
		r.logger.Warn("Console capture unavailable for page %s: %v", name, err)
	}

	r.mu.Lock()
	r.pages[name] = entry
	r.mu.Unlock()

	// A browser-side close must drop the entry too, not just Delete.
	page.OnClose(func() { r.handleClosed(entry, page) })

	r.logger.Info("Page %s created (target %s)", name, entry.TargetID)
	return entry, nil
}

// handleClosed removes an entry whose target died outside of Delete or
// Shutdown. The page identity check keeps a stale session's teardown from
// evicting an entry that was already re-attached to its target.
func (r *Registry) handleClosed(entry *Entry, page ports.Page) {
	if entry.Page() != page {
		return
	}

	r.mu.Lock()
	current, ok := r.pages[entry.Name]
	if !ok || current != entry {
		r.mu.Unlock()
		return
	}
	delete(r.pages, entry.Name)
	hook := r.onPageClosed
	r.mu.Unlock()

	r.logger.Warn("Page %s closed by the browser, removing entry", entry.Name)
	if hook != nil {
		hook(entry.Name, page)
	}
}

// Get returns the entry for a name.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.pages[name]
	if !ok || entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, name)
	}
	return entry, nil
}

// Names returns all registered page names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pages))
	for name, entry := range r.pages {
		if entry != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Delete tears down a page and removes its entry. Any active screencast is
// stopped before the target is closed.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.pages[name]
	if !ok || entry == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPageNotFound, name)
	}
	delete(r.pages, name)
	r.mu.Unlock()

	r.teardown(ctx, entry)
	r.logger.Info("Page %s deleted", name)
	return nil
}

// Shutdown tears down every registered page.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*Entry, 0, len(r.pages))
	for _, entry := range r.pages {
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	r.pages = make(map[string]*Entry)
	r.mu.Unlock()

	for _, entry := range entries {
		r.teardown(ctx, entry)
	}
}

func (r *Registry) teardown(ctx context.Context, entry *Entry) {
	page := entry.Page()
	if page == nil {
		return
	}
	if err := page.StopScreencast(ctx); err != nil {
		r.logger.Warn("Failed to stop screencast on page %s: %v", entry.Name, err)
	}
	if err := page.Close(); err != nil {
		r.logger.Warn("Failed to close page %s: %v", entry.Name, err)
	}
}

// AcquirePage returns a live page handle for the named entry, re-attaching
// to its CDP target when the stored session no longer responds.
func (r *Registry) AcquirePage(ctx context.Context, name string) (ports.Page, error) {
	entry, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	page := entry.Page()
	if _, err := page.URL(ctx); err == nil {
		return page, nil
	}

	if r.attach == nil {
		return nil, fmt.Errorf("page %s is unresponsive and cannot be re-attached", name)
	}
	r.logger.Warn("Page %s session lost, re-attaching to target %s", name, entry.TargetID)

	fresh, err := r.attach(ctx, entry.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-attach page %s: %w", name, err)
	}
	entry.setPage(fresh)
	// The console subscription died with the old session. Re-establish it on
	// the fresh one so the entry keeps accumulating in order.
	if err := fresh.SubscribeConsole(ctx, entry.appendConsole); err != nil {
		r.logger.Warn("Console capture unavailable for page %s: %v", name, err)
	}
	fresh.OnClose(func() { r.handleClosed(entry, fresh) })
	return fresh, nil
}

var _ ports.PageProvider = (*Registry)(nil)
