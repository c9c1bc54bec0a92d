package chromepage

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/user/browserstudio/pkg/ports"
)

// Element is an interactable node resolved from an accessibility ref. It
// addresses the node by backend ID, which stays stable while the node is in
// the DOM.
type Element struct {
	page          *Page
	backendNodeID cdp.BackendNodeID
}

// center scrolls the element into view and returns its content box center.
func (e *Element) center(ctx context.Context) (float64, float64, error) {
	if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.backendNodeID).Do(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to scroll element into view: %w", err)
	}
	box, err := dom.GetBoxModel().WithBackendNodeID(e.backendNodeID).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get element box: %w", err)
	}
	if len(box.Content) < 8 {
		return 0, 0, fmt.Errorf("element has no content box")
	}
	// Content is a quad: x1,y1,x2,y2,x3,y3,x4,y4.
	x := (box.Content[0] + box.Content[2] + box.Content[4] + box.Content[6]) / 4
	y := (box.Content[1] + box.Content[3] + box.Content[5] + box.Content[7]) / 4
	return x, y, nil
}

// Click scrolls the element into view and clicks its center.
func (e *Element) Click(ctx context.Context, button string) error {
	btn := mouseButton(button)
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := e.center(ctx)
		if err != nil {
			return err
		}
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

// Hover moves the mouse over the element's center.
func (e *Element) Hover(ctx context.Context) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, err := e.center(ctx)
		if err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// Fill focuses the element, selects its current value and types over it.
// Typing through the input domain keeps framework event handlers working.
func (e *Element) Fill(ctx context.Context, text string) error {
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.Focus().WithBackendNodeID(e.backendNodeID).Do(ctx); err != nil {
			return fmt.Errorf("failed to focus element: %w", err)
		}
		if err := e.call(ctx, `function() {
			if (this.select) { this.select(); } else { document.execCommand('selectAll'); }
		}`); err != nil {
			return err
		}
		return input.InsertText(text).Do(ctx)
	}))
}

// Type clicks the element and appends text without clearing.
func (e *Element) Type(ctx context.Context, text string) error {
	if err := e.Click(ctx, "left"); err != nil {
		return err
	}
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

// SelectOption selects a <select> option by value, falling back to the
// visible label, and fires input/change events.
func (e *Element) SelectOption(ctx context.Context, value string) error {
	fn := fmt.Sprintf(`function() {
		if (this.tagName !== 'SELECT') { throw new Error('not a select element'); }
		const wanted = %q;
		let opt = Array.from(this.options).find(o => o.value === wanted);
		if (!opt) {
			opt = Array.from(this.options).find(o => o.label === wanted || o.textContent.trim() === wanted);
		}
		if (!opt) { throw new Error('no option matching: ' + wanted); }
		this.value = opt.value;
		this.dispatchEvent(new Event('input', {bubbles: true}));
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, value)
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return e.call(ctx, fn)
	}))
}

// call invokes a function with the element as `this`.
func (e *Element) call(ctx context.Context, fnDecl string) error {
	obj, err := dom.ResolveNode().WithBackendNodeID(e.backendNodeID).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve element: %w", err)
	}
	_, exception, err := runtime.CallFunctionOn(fnDecl).WithObjectID(obj.ObjectID).Do(ctx)
	if err != nil {
		return err
	}
	if exception != nil {
		return fmt.Errorf("element script failed: %s", exceptionMessage(exception))
	}
	return nil
}

var _ ports.Element = (*Element)(nil)
