package reader

import (
	"fmt"

	"github.com/tsawler/gutenberg/core"
)

// EventKind identifies a structural event.
type EventKind int

const (
	// EventOpen is sent once the document is usable. Detail is "classic" or
	// "linearized".
	EventOpen EventKind = iota
	// EventCatalogFound is sent when the catalog is located. Ref is its
	// reference.
	EventCatalogFound
	// EventPageTreeFound is sent when the page tree root is located.
	EventPageTreeFound
	// EventXRefSection is sent for every cross-reference subsection indexed.
	EventXRefSection
	// EventFallback is sent when the linearized path gives way to the
	// classic index. Detail holds the reason.
	EventFallback
	// EventLengthRecovered is sent when a stream's declared length was wrong
	// and its data was bounded by the endstream marker instead.
	EventLengthRecovered
)

var eventNames = map[EventKind]string{
	EventOpen:            "open",
	EventCatalogFound:    "catalog-found",
	EventPageTreeFound:   "page-tree-found",
	EventXRefSection:     "xref-section",
	EventFallback:        "fallback",
	EventLengthRecovered: "length-recovered",
}

func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event describes something the document found or did. Fields that do not
// apply to a kind are zero; Offset is -1 when unknown.
type Event struct {
	Kind   EventKind
	Ref    core.IndirectRef
	Offset int64
	Detail string
}

func (e Event) String() string {
	s := e.Kind.String()
	if e.Ref != (core.IndirectRef{}) {
		s += " " + e.Ref.String()
	}
	if e.Offset >= 0 {
		s += fmt.Sprintf(" @%d", e.Offset)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}
