package agent

import (
	"fmt"
	"strings"
	"testing"
)

func okEntry(kind Kind, input map[string]any) HistoryEntry {
	return HistoryEntry{
		Action: Action{Kind: kind, Input: input},
		Result: ExecResult{Success: true},
	}
}

func TestCompressHistoryEmpty(t *testing.T) {
	if got := CompressHistory(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestCompressHistoryFewEntries(t *testing.T) {
	entries := []HistoryEntry{
		okEntry(KindNavigate, map[string]any{"url": "https://example.com"}),
		okEntry(KindClick, map[string]any{"ref": "e5"}),
		{
			Action: Action{Kind: KindType, Input: map[string]any{"text": "hello"}},
			Result: ExecResult{Success: false, Error: "element not focusable"},
		},
	}
	got := CompressHistory(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "1. navigate to https://example.com") {
		t.Errorf("unexpected first line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "→ OK") {
		t.Errorf("expected OK marker: %q", lines[1])
	}
	if !strings.Contains(lines[2], "FAILED: element not focusable") {
		t.Errorf("expected failure detail: %q", lines[2])
	}
}

func TestCompressHistorySummarizesOldEntries(t *testing.T) {
	var entries []HistoryEntry
	for i := 0; i < 15; i++ {
		e := okEntry(KindScroll, map[string]any{"direction": "down"})
		if i%2 == 1 {
			e.Result = ExecResult{Success: false, Error: "boom"}
		}
		entries = append(entries, e)
	}
	got := CompressHistory(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != 1+maxDetailedHistory {
		t.Fatalf("expected %d lines, got %d", 1+maxDetailedHistory, len(lines))
	}
	if lines[0] != "[5 earlier actions: 3 succeeded, 2 failed]" {
		t.Errorf("unexpected summary line: %q", lines[0])
	}
	// Detailed lines keep their original numbering.
	if !strings.HasPrefix(lines[1], "6. ") {
		t.Errorf("expected detail to start at entry 6: %q", lines[1])
	}
	if !strings.HasPrefix(lines[len(lines)-1], "15. ") {
		t.Errorf("expected last detail to be entry 15: %q", lines[len(lines)-1])
	}
}

func TestCompressHistoryExactlyMaxDetailed(t *testing.T) {
	var entries []HistoryEntry
	for i := 0; i < maxDetailedHistory; i++ {
		entries = append(entries, okEntry(KindWait, nil))
	}
	got := CompressHistory(entries)
	lines := strings.Split(got, "\n")
	if len(lines) != maxDetailedHistory {
		t.Fatalf("expected %d lines without summary, got %d", maxDetailedHistory, len(lines))
	}
	if strings.Contains(got, "earlier actions") {
		t.Error("expected no summary line at the boundary")
	}
}

func TestCompressHistoryTruncatesTypedText(t *testing.T) {
	long := strings.Repeat("a", 40)
	entries := []HistoryEntry{okEntry(KindType, map[string]any{"text": long})}
	got := CompressHistory(entries)
	if strings.Contains(got, long) {
		t.Errorf("expected typed text to be truncated: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("a", 20)+"...") {
		t.Errorf("expected 20-char prefix with ellipsis: %q", got)
	}
}

func TestActionStringUnknownKindFallsBackToJSON(t *testing.T) {
	a := Action{Kind: "mystery", Input: map[string]any{"foo": "bar"}}
	got := a.String()
	if !strings.Contains(got, "mystery") || !strings.Contains(got, "foo") {
		t.Errorf("expected JSON fallback, got %q", got)
	}
}

func TestCompressHistoryNumberingIsStable(t *testing.T) {
	var entries []HistoryEntry
	for i := 0; i < 12; i++ {
		entries = append(entries, okEntry(KindNavigate, map[string]any{"url": fmt.Sprintf("https://example.com/%d", i)}))
	}
	got := CompressHistory(entries)
	if !strings.Contains(got, "12. navigate to https://example.com/11") {
		t.Errorf("expected final entry numbered 12: %q", got)
	}
}
