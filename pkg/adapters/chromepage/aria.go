package chromepage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/user/browserstudio/pkg/ports"
)

// interactableRoles are the accessibility roles that receive [ref=eN]
// markers. Only these can be targeted by ref-based actions.
var interactableRoles = map[string]bool{
	"button":     true,
	"link":       true,
	"textbox":    true,
	"searchbox":  true,
	"combobox":   true,
	"checkbox":   true,
	"radio":      true,
	"tab":        true,
	"menuitem":   true,
	"slider":     true,
	"switch":     true,
	"option":     true,
	"listbox":    true,
}

// structuralRoles render no line of their own; their children are promoted
// to the parent's indent level to keep the snapshot compact.
var structuralRoles = map[string]bool{
	"none":          true,
	"generic":       true,
	"InlineTextBox": true,
	"LineBreak":     true,
}

// AriaSnapshot renders the accessibility tree as indented text and rebuilds
// the ref table used by ResolveRef. Refs are only valid against the snapshot
// they were issued with.
func (p *Page) AriaSnapshot(ctx context.Context) (string, error) {
	var nodes []*accessibility.Node
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := accessibility.Enable().Do(ctx); err != nil {
			return err
		}
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to fetch accessibility tree: %w", err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("empty accessibility tree")
	}

	byID := make(map[accessibility.NodeID]*accessibility.Node, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}

	var b strings.Builder
	refs := make(map[string]cdp.BackendNodeID)
	refCounter := 0

	var render func(node *accessibility.Node, depth int)
	render = func(node *accessibility.Node, depth int) {
		if node == nil {
			return
		}

		role := axValueString(node.Role)
		childDepth := depth

		if !node.Ignored && !structuralRoles[role] && role != "" {
			line := "- " + role
			if name := axValueString(node.Name); name != "" {
				line += fmt.Sprintf(" %q", name)
			}
			if interactableRoles[role] && node.BackendDOMNodeID != 0 {
				refCounter++
				ref := fmt.Sprintf("e%d", refCounter)
				refs[ref] = node.BackendDOMNodeID
				line += fmt.Sprintf(" [ref=%s]", ref)
			}
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString(line)
			b.WriteByte('\n')
			childDepth = depth + 1
		}

		for _, childID := range node.ChildIDs {
			render(byID[childID], childDepth)
		}
	}
	// GetFullAXTree returns the root first.
	render(nodes[0], 0)

	p.mu.Lock()
	p.refs = refs
	p.mu.Unlock()

	return strings.TrimRight(b.String(), "\n"), nil
}

// ResolveRef maps a ref from the most recent snapshot to an element.
func (p *Page) ResolveRef(ctx context.Context, ref string) (ports.Element, error) {
	p.mu.Lock()
	backendID, ok := p.refs[ref]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", ref, ports.ErrRefUnresolved)
	}
	return &Element{page: p, backendNodeID: backendID}, nil
}

// axValueString extracts the string payload of an AXValue.
func axValueString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return ""
	}
	return s
}
