package agent

import (
	"fmt"
	"strings"
)

// maxDetailedHistory is how many recent actions keep full detail in the
// prompt. Older entries collapse into a one-line count.
const maxDetailedHistory = 10

// HistoryEntry pairs an executed action with its outcome.
type HistoryEntry struct {
	Action Action
	Result ExecResult
}

// CompressHistory renders the action history for the model prompt. Recent
// entries are listed in full, older entries are summarized so the prompt
// stays bounded regardless of run length.
func CompressHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return ""
	}

	var b strings.Builder
	start := 0
	if len(entries) > maxDetailedHistory {
		start = len(entries) - maxDetailedHistory
		succeeded, failed := 0, 0
		for _, e := range entries[:start] {
			if e.Result.Success {
				succeeded++
			} else {
				failed++
			}
		}
		fmt.Fprintf(&b, "[%d earlier actions: %d succeeded, %d failed]\n", start, succeeded, failed)
	}

	for i, e := range entries[start:] {
		fmt.Fprintf(&b, "%d. %s", start+i+1, e.Action.String())
		if e.Result.Success {
			b.WriteString(" → OK")
		} else {
			fmt.Fprintf(&b, " → FAILED: %s", e.Result.Error)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
