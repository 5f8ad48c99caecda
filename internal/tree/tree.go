package tree

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"
)

// Kind classifies a directory entry
type Kind int

const (
	// KindOther covers symlinks, devices, sockets and pipes
	KindOther Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// Entry is a single name inside one directory level
type Entry struct {
	Name    string
	Kind    Kind
	Mode    fs.FileMode
	ModTime time.Time
}

// Level is a fresh view of the immediate children of one directory.
// Files, Dirs and Other keep the order in which the filesystem listed them.
type Level struct {
	Files []Entry
	Dirs  []Entry
	Other []Entry

	byName map[string]Entry
}

// KindOf maps a file mode to an entry kind. Symlinks are never followed.
func KindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	default:
		return KindOther
	}
}

// Read lists dir on fsys and splits its children by kind
func Read(fsys afero.Fs, dir string) (*Level, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	level := &Level{byName: make(map[string]Entry, len(infos))}
	for _, info := range infos {
		e := Entry{
			Name:    info.Name(),
			Kind:    KindOf(info.Mode()),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		}
		level.byName[e.Name] = e
		switch e.Kind {
		case KindFile:
			level.Files = append(level.Files, e)
		case KindDir:
			level.Dirs = append(level.Dirs, e)
		default:
			level.Other = append(level.Other, e)
		}
	}
	return level, nil
}

// Empty returns a level without entries, used for directories that do not exist yet
func Empty() *Level {
	return &Level{byName: map[string]Entry{}}
}

// Lookup returns the entry called name regardless of its kind
func (l *Level) Lookup(name string) (Entry, bool) {
	e, ok := l.byName[name]
	return e, ok
}

// File returns the regular file called name
func (l *Level) File(name string) (Entry, bool) {
	e, ok := l.byName[name]
	if !ok || e.Kind != KindFile {
		return Entry{}, false
	}
	return e, true
}

// Dir returns the directory called name
func (l *Level) Dir(name string) (Entry, bool) {
	e, ok := l.byName[name]
	if !ok || e.Kind != KindDir {
		return Entry{}, false
	}
	return e, true
}

// IsDir reports whether p exists and is a directory
func IsDir(fsys afero.Fs, p string) (bool, error) {
	info, err := fsys.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// Join builds the slash-separated relative path used in events and logs
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
