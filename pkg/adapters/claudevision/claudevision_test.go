package claudevision

import (
	"strings"
	"testing"

	"github.com/user/browserstudio/pkg/ports"
)

func TestBuildPromptSections(t *testing.T) {
	prompt := buildPrompt(ports.FrameRequest{
		Task:         "find the pricing page",
		History:      "1. navigate to https://example.com → OK",
		AriaSnapshot: "- link \"Pricing\" [ref=e3]",
	})

	for _, section := range []string{"## Task", "## Previous Actions", "## Current Page ARIA Snapshot"} {
		if !strings.Contains(prompt, section) {
			t.Errorf("expected section %q in prompt", section)
		}
	}
	if !strings.Contains(prompt, "find the pricing page") {
		t.Error("expected task text in prompt")
	}
	if !strings.Contains(prompt, "[ref=e3]") {
		t.Error("expected ARIA snapshot in prompt")
	}

	// History appears before the snapshot so the model reads chronology first.
	if strings.Index(prompt, "Previous Actions") > strings.Index(prompt, "ARIA Snapshot") {
		t.Error("expected history section before the snapshot section")
	}
}

func TestBuildPromptOmitsEmptyHistory(t *testing.T) {
	prompt := buildPrompt(ports.FrameRequest{
		Task:         "anything",
		AriaSnapshot: "- document",
	})
	if strings.Contains(prompt, "Previous Actions") {
		t.Error("expected no history section on the first cycle")
	}
}

func TestActionToolsCoverVocabulary(t *testing.T) {
	tools := actionTools()
	want := map[string]bool{
		"click": false, "type": false, "scroll": false, "navigate": false,
		"keyboard": false, "wait": false, "hover": false, "select": false,
		"done": false, "fail": false,
	}
	for _, tu := range tools {
		if tu.OfTool == nil {
			t.Fatal("expected plain tool definitions")
		}
		name := tu.OfTool.Name
		if _, ok := want[name]; !ok {
			t.Errorf("unexpected tool %s", name)
			continue
		}
		want[name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing tool %s", name)
		}
	}
}
