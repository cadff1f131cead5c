package client

import "github.com/nao1215/burrow/internal/manifest"

// EventKind identifies a traversal event.
type EventKind int

// Traversal event kinds.
const (
	// EventEntry: an entry was accepted. Emitted in queue order.
	EventEntry EventKind = iota + 1

	// EventContent: a file entry's content was fetched and verified.
	EventContent

	// EventCycle: the entry's identity was already visited.
	EventCycle

	// EventDepthLimit: the entry is deeper than the maximum depth.
	EventDepthLimit

	// EventError: processing the entry failed. The failure is also in
	// the report.
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventEntry:
		return "entry"
	case EventContent:
		return "content"
	case EventCycle:
		return "cycle-detected"
	case EventDepthLimit:
		return "depth-limit-exceeded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one step of a traversal.
//
// Warren references appear as entries of kind manifest.KindBurrow whose
// RawKind is "burrow" or "warren".
type Event struct {
	Kind  EventKind
	Depth int
	Entry manifest.Entry

	// Location is the resolved entry location, empty when it could not be
	// resolved.
	Location string

	// Parent is the manifest that listed the entry.
	Parent string

	// Content is set on EventContent.
	Content *Content

	// Err is set on EventError.
	Err *Error
}
