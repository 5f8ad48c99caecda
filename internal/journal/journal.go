// Package journal appends human-readable sync events to a text log file.
package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/schaermu/treesyncd/internal/mirror"
)

// TimeLayout is the local timestamp layout that ends every line
const TimeLayout = "2006-01-02 15:04:05"

// SynchronizedMessage is appended once per completed pass
const SynchronizedMessage = "Folders synchronized."

// Journal is a mirror.Sink writing "<message> at <timestamp>" lines.
// The file is opened, appended to and closed for every line.
type Journal struct {
	fs    afero.Fs
	path  string
	clock clockwork.Clock
}

// New creates a journal appending to path
func New(fsys afero.Fs, path string, clock clockwork.Clock) *Journal {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Journal{fs: fsys, path: path, clock: clock}
}

// Dir returns the directory holding the log file
func (j *Journal) Dir() string {
	return filepath.Dir(j.path)
}

// Record appends the event's message stamped with the event time
func (j *Journal) Record(ev mirror.Event) error {
	ts := ev.Time
	if ts.IsZero() {
		ts = j.clock.Now()
	}
	return j.append(Line(ev.Message(), ts.Local().Format(TimeLayout)))
}

// RecordSynchronized appends the end-of-pass line
func (j *Journal) RecordSynchronized() error {
	return j.append(Line(SynchronizedMessage, j.clock.Now().Local().Format(TimeLayout)))
}

// EnsureDir creates the directory holding the log file. It reports whether
// the directory had to be created.
func (j *Journal) EnsureDir() (bool, error) {
	dir := j.Dir()
	exists, err := afero.DirExists(j.fs, dir)
	if err != nil {
		return false, fmt.Errorf("failed to stat log directory: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := j.fs.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create log directory: %w", err)
	}
	return true, nil
}

// Line formats a single journal line without the trailing newline
func Line(message, timestamp string) string {
	return fmt.Sprintf("%s at %s", message, timestamp)
}

func (j *Journal) append(line string) error {
	f, err := j.fs.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write journal: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
