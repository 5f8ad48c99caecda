package mirror

import (
	"errors"
	"fmt"
	"time"
)

// ErrSourceMissing is returned when the source root does not exist at the start of a pass
var ErrSourceMissing = errors.New("source directory does not exist")

// Kind identifies the mutation an Event reports
type Kind int

const (
	FileCopied Kind = iota + 1
	FileRemoved
	DirCopied
	DirRemoved
)

func (k Kind) String() string {
	switch k {
	case FileCopied:
		return "file copied"
	case FileRemoved:
		return "file removed"
	case DirCopied:
		return "folder copied"
	case DirRemoved:
		return "folder removed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event records one mutation applied to the target tree
type Event struct {
	Time time.Time
	Kind Kind
	Name string // entry name inside its directory
	Path string // slash-separated path relative to the target root
}

// Message renders the event the way it is written to the journal
func (e Event) Message() string {
	switch e.Kind {
	case FileCopied:
		return fmt.Sprintf("File '%s' was copied.", e.Name)
	case FileRemoved:
		return fmt.Sprintf("File '%s' was removed.", e.Name)
	case DirCopied:
		return fmt.Sprintf("Folder '%s' was copied.", e.Name)
	case DirRemoved:
		return fmt.Sprintf("Folder '%s' was removed.", e.Name)
	default:
		return fmt.Sprintf("Entry '%s' changed (%s).", e.Name, e.Kind)
	}
}

// Sink receives events as soon as the corresponding mutation succeeded.
// A failing sink never aborts a pass.
type Sink interface {
	Record(ev Event) error
}

// Policy decides what happens when a single filesystem operation fails
type Policy string

const (
	// PolicySkip records the failure and continues with the next entry
	PolicySkip Policy = "skip"
	// PolicyAbort unwinds the whole pass on the first failure
	PolicyAbort Policy = "abort"
)

// OpError describes a failed filesystem operation on the target tree
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one reconciliation pass
type Report struct {
	Events  []Event
	Skipped []error
}

// Count returns how many events of the given kind the pass produced
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Err joins the skipped failures, nil when there were none
func (r *Report) Err() error {
	return errors.Join(r.Skipped...)
}
