package gutenberg

import (
	"fmt"
	"strings"

	"github.com/tsawler/gutenberg/reader"
)

// WarningKind classifies a Warning.
type WarningKind int

const (
	// WarningLinearizedFallback means the linearized fast path was abandoned
	// and the full cross-reference index was built.
	WarningLinearizedFallback WarningKind = iota
	// WarningStreamLengthRecovered means a stream's declared length was wrong
	// and its data was bounded by the endstream marker.
	WarningStreamLengthRecovered
	// WarningPageSkipped means a page could not be read and was left out.
	WarningPageSkipped
)

func (k WarningKind) String() string {
	switch k {
	case WarningLinearizedFallback:
		return "linearized fallback"
	case WarningStreamLengthRecovered:
		return "stream length recovered"
	case WarningPageSkipped:
		return "page skipped"
	default:
		return fmt.Sprintf("warning(%d)", int(k))
	}
}

// Warning reports a recoverable problem found while inspecting a file.
type Warning struct {
	Kind    WarningKind
	Page    int // 1-indexed page, 0 when not page specific
	Message string
}

func (w Warning) String() string {
	if w.Page > 0 {
		return fmt.Sprintf("%s (page %d): %s", w.Kind, w.Page, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// warningFromEvent converts the events that indicate a damaged or unusual
// file into warnings.
func warningFromEvent(e reader.Event) (Warning, bool) {
	switch e.Kind {
	case reader.EventFallback:
		return Warning{Kind: WarningLinearizedFallback, Message: e.Detail}, true
	case reader.EventLengthRecovered:
		msg := e.Ref.String()
		if e.Offset >= 0 {
			msg += fmt.Sprintf(" at offset %d", e.Offset)
		}
		if e.Detail != "" {
			msg += ": " + e.Detail
		}
		return Warning{Kind: WarningStreamLengthRecovered, Message: msg}, true
	}
	return Warning{}, false
}

// FormatWarnings joins warnings into a single line.
func FormatWarnings(warnings []Warning) string {
	parts := make([]string, len(warnings))
	for i, w := range warnings {
		parts[i] = w.String()
	}
	return strings.Join(parts, "; ")
}
