package agent

import (
	"fmt"
	"regexp"
)

// readOnlyAllowed lists the actions permitted in read-only mode. Everything
// that mutates page state (clicking, typing, selecting) is excluded.
var readOnlyAllowed = map[Kind]bool{
	KindScroll:   true,
	KindNavigate: true,
	KindWait:     true,
	KindHover:    true,
	KindDone:     true,
	KindFail:     true,
}

// SafetyPolicy constrains which actions the agent may execute.
type SafetyPolicy struct {
	// ReadOnlyMode restricts the agent to observation-only actions.
	ReadOnlyMode bool
	// BlockedURLPatterns are regular expressions matched against navigation
	// targets. Invalid patterns are ignored at compile time.
	BlockedURLPatterns []string

	compiled []*regexp.Regexp
}

// Compile parses the URL patterns. Call once before the run starts.
func (p *SafetyPolicy) Compile() error {
	p.compiled = p.compiled[:0]
	for _, pattern := range p.BlockedURLPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid blocked URL pattern %q: %w", pattern, err)
		}
		p.compiled = append(p.compiled, re)
	}
	return nil
}

// Check reports whether the action is allowed, with a reason when not.
func (p *SafetyPolicy) Check(action Action) (bool, string) {
	if p.ReadOnlyMode && !readOnlyAllowed[action.Kind] {
		return false, fmt.Sprintf("Action %s not allowed in read-only mode", action.Kind)
	}
	if action.Kind == KindNavigate {
		url := action.StringArg("url")
		for i, re := range p.compiled {
			if re.MatchString(url) {
				return false, fmt.Sprintf("URL %s blocked by pattern: %s", url, p.BlockedURLPatterns[i])
			}
		}
	}
	return true, ""
}
