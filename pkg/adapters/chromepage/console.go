package chromepage

import (
	"encoding/json"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/user/browserstudio/pkg/ports"
)

// consoleLevel normalizes CDP console API types onto the log levels the
// console endpoint exposes.
func consoleLevel(t runtime.APIType) string {
	switch t {
	case runtime.APITypeWarning:
		return "warn"
	case runtime.APITypeError, runtime.APITypeAssert:
		return "error"
	case runtime.APITypeInfo:
		return "info"
	case runtime.APITypeDebug:
		return "debug"
	case runtime.APITypeTrace:
		return "trace"
	default:
		return "log"
	}
}

// remoteObjectText renders a console argument, preferring the raw value over
// increasingly vague fallbacks.
func remoteObjectText(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			return s
		}
		return string(obj.Value)
	}
	if obj.Description != "" {
		return obj.Description
	}
	if obj.Preview != nil && obj.Preview.Description != "" {
		return obj.Preview.Description
	}
	return string(obj.Type)
}

func consoleEntryFromAPICall(ev *runtime.EventConsoleAPICalled) ports.ConsoleLogEntry {
	parts := make([]string, 0, len(ev.Args))
	for _, arg := range ev.Args {
		parts = append(parts, remoteObjectText(arg))
	}

	entry := ports.ConsoleLogEntry{
		Timestamp: ev.Timestamp.Time(),
		Level:     consoleLevel(ev.Type),
		Text:      strings.Join(parts, " "),
	}
	if ev.StackTrace != nil && len(ev.StackTrace.CallFrames) > 0 {
		frame := ev.StackTrace.CallFrames[0]
		entry.URL = frame.URL
		entry.Line = frame.LineNumber
		entry.Column = frame.ColumnNumber
	}
	return entry
}

func exceptionMessage(details *runtime.ExceptionDetails) string {
	if details == nil {
		return ""
	}
	if details.Exception != nil {
		if desc := details.Exception.Description; desc != "" {
			return desc
		}
	}
	return details.Text
}

func consoleEntryFromException(ev *runtime.EventExceptionThrown) ports.ConsoleLogEntry {
	details := ev.ExceptionDetails
	return ports.ConsoleLogEntry{
		Timestamp: ev.Timestamp.Time(),
		Level:     "error",
		Text:      exceptionMessage(details),
		URL:       details.URL,
		Line:      details.LineNumber,
		Column:    details.ColumnNumber,
	}
}
