package mirror

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/schaermu/treesyncd/internal/tree"
)

// dirPerm is used for every directory the mirror creates
const dirPerm = 0755

// Reconciler mirrors a source tree onto a target tree.
// It keeps no state between calls to Reconcile.
type Reconciler struct {
	fs     afero.Fs
	sink   Sink
	logger *slog.Logger
	clock  clockwork.Clock
	policy Policy
	dryRun bool
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithPolicy sets the failure policy (default PolicySkip)
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) {
		r.policy = p
	}
}

// WithClock sets the clock used to stamp events
func WithClock(c clockwork.Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithDryRun makes the reconciler report planned mutations without applying them
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) {
		r.dryRun = dryRun
	}
}

// NewReconciler creates a reconciler operating on fsys. sink may be nil.
func NewReconciler(fsys afero.Fs, sink Sink, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		fs:     fsys,
		sink:   sink,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		policy: PolicySkip,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile makes target mirror source. The returned report lists every
// mutation in the order it was applied. A non-nil error means the pass was
// fatal: the source is missing, the target root could not be created, or a
// failure occurred under PolicyAbort.
func (r *Reconciler) Reconcile(source, target string) (*Report, error) {
	ok, err := tree.IsDir(r.fs, source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, source)
	}

	if !r.dryRun {
		if err := r.fs.MkdirAll(target, dirPerm); err != nil {
			return nil, &OpError{Op: "create", Path: target, Err: err}
		}
	}

	p := &pass{r: r, report: &Report{}}
	if _, err := p.reconcileDir(source, target, ""); err != nil {
		return p.report, err
	}
	return p.report, nil
}

// pass carries the report of one Reconcile call through the recursion
type pass struct {
	r      *Reconciler
	report *Report
}

// reconcileDir applies the four phases to one directory pair. It reports
// clean=false when a failure was skipped somewhere below src, so the caller
// leaves the directory marker unset and the next pass retries it.
func (p *pass) reconcileDir(src, dst, rel string) (clean bool, err error) {
	srcLevel, err := tree.Read(p.r.fs, src)
	if err != nil {
		return false, p.fail("list", src, err)
	}
	dstLevel, err := p.readTarget(dst)
	if err != nil {
		return false, p.fail("list", dst, err)
	}

	clean = true
	for _, phase := range []func(src, dst, rel string, srcLevel, dstLevel *tree.Level) (bool, error){
		p.copyFiles,
		p.removeFiles,
		p.copyDirs,
		p.removeDirs,
	} {
		ok, err := phase(src, dst, rel, srcLevel, dstLevel)
		if err != nil {
			return false, err
		}
		clean = clean && ok
	}
	return clean, nil
}

// copyFiles copies every source file whose modification time differs from
// the same-named target file. A target directory with the name of a source
// file is removed first.
func (p *pass) copyFiles(src, dst, rel string, srcLevel, dstLevel *tree.Level) (bool, error) {
	clean := true
	for _, f := range srcLevel.Files {
		srcPath := filepath.Join(src, f.Name)
		dstPath := filepath.Join(dst, f.Name)
		relPath := tree.Join(rel, f.Name)

		existing, found := dstLevel.Lookup(f.Name)
		if found && existing.Kind == tree.KindFile && existing.ModTime.Equal(f.ModTime) {
			continue
		}

		if found && existing.Kind == tree.KindDir {
			if err := p.removeAll(dstPath); err != nil {
				clean = false
				if err := p.fail("remove", dstPath, err); err != nil {
					return false, err
				}
				continue
			}
			p.emit(DirRemoved, f.Name, relPath)
		}

		if !p.r.dryRun {
			if err := copyFile(p.r.fs, srcPath, dstPath, f, p.r.clock.Now()); err != nil {
				clean = false
				if err := p.fail("copy", dstPath, err); err != nil {
					return false, err
				}
				continue
			}
		}
		p.emit(FileCopied, f.Name, relPath)
	}

	for _, o := range srcLevel.Other {
		p.r.logger.Debug("skipping non-regular source entry", "path", tree.Join(rel, o.Name), "mode", o.Mode.String())
	}
	return clean, nil
}

// removeFiles deletes target files (and other non-directory entries) that
// have no same-named file in the source
func (p *pass) removeFiles(_, dst, rel string, srcLevel, dstLevel *tree.Level) (bool, error) {
	clean := true
	for _, f := range append(append([]tree.Entry{}, dstLevel.Files...), dstLevel.Other...) {
		if _, ok := srcLevel.File(f.Name); ok {
			continue
		}

		dstPath := filepath.Join(dst, f.Name)
		if !p.r.dryRun {
			if err := p.r.fs.Remove(dstPath); err != nil {
				clean = false
				if err := p.fail("remove", dstPath, err); err != nil {
					return false, err
				}
				continue
			}
		}
		p.emit(FileRemoved, f.Name, tree.Join(rel, f.Name))
	}
	return clean, nil
}

// copyDirs recurses into every source subdirectory whose modification time
// differs from the target's and then stamps the target with the source time
func (p *pass) copyDirs(src, dst, rel string, srcLevel, dstLevel *tree.Level) (bool, error) {
	clean := true
	for _, d := range srcLevel.Dirs {
		existing, found := dstLevel.Dir(d.Name)
		if found && existing.ModTime.Equal(d.ModTime) {
			continue
		}

		srcPath := filepath.Join(src, d.Name)
		dstPath := filepath.Join(dst, d.Name)
		relPath := tree.Join(rel, d.Name)

		if !p.r.dryRun {
			if err := p.r.fs.MkdirAll(dstPath, dirPerm); err != nil {
				clean = false
				if err := p.fail("create", dstPath, err); err != nil {
					return false, err
				}
				continue
			}
		}

		subClean, err := p.reconcileDir(srcPath, dstPath, relPath)
		if err != nil {
			return false, err
		}
		if !subClean {
			clean = false
			p.r.logger.Warn("folder left unmarked after failures, will retry next pass", "path", relPath)
			continue
		}

		if !p.r.dryRun {
			if err := p.r.fs.Chtimes(dstPath, p.r.clock.Now(), d.ModTime); err != nil {
				clean = false
				if err := p.fail("set times on", dstPath, err); err != nil {
					return false, err
				}
				continue
			}
		}
		p.emit(DirCopied, d.Name, relPath)
	}
	return clean, nil
}

// removeDirs deletes target subdirectories that have no source counterpart.
// Directories already replaced by a source file in copyFiles are left alone.
func (p *pass) removeDirs(_, dst, rel string, srcLevel, dstLevel *tree.Level) (bool, error) {
	clean := true
	for _, d := range dstLevel.Dirs {
		if _, ok := srcLevel.Dir(d.Name); ok {
			continue
		}
		if _, ok := srcLevel.File(d.Name); ok {
			continue
		}

		dstPath := filepath.Join(dst, d.Name)
		if err := p.removeAll(dstPath); err != nil {
			clean = false
			if err := p.fail("remove", dstPath, err); err != nil {
				return false, err
			}
			continue
		}
		p.emit(DirRemoved, d.Name, tree.Join(rel, d.Name))
	}
	return clean, nil
}

// readTarget lists dst. In dry-run mode a target that does not exist yet (or
// is still a file) reads as empty.
func (p *pass) readTarget(dst string) (*tree.Level, error) {
	if p.r.dryRun {
		ok, err := tree.IsDir(p.r.fs, dst)
		if err != nil {
			return nil, err
		}
		if !ok {
			return tree.Empty(), nil
		}
	}
	return tree.Read(p.r.fs, dst)
}

func (p *pass) removeAll(path string) error {
	if p.r.dryRun {
		return nil
	}
	return p.r.fs.RemoveAll(path)
}

// fail applies the failure policy. Under PolicyAbort it returns the error to
// unwind the pass; under PolicySkip it records the failure and returns nil.
func (p *pass) fail(op, path string, err error) error {
	opErr := &OpError{Op: op, Path: path, Err: err}
	if p.r.policy == PolicyAbort {
		return opErr
	}
	p.report.Skipped = append(p.report.Skipped, opErr)
	p.r.logger.Warn("skipping entry after failure", "op", op, "path", path, "error", err)
	return nil
}

func (p *pass) emit(kind Kind, name, rel string) {
	ev := Event{
		Time: p.r.clock.Now(),
		Kind: kind,
		Name: name,
		Path: rel,
	}
	p.report.Events = append(p.report.Events, ev)

	if p.r.dryRun {
		p.r.logger.Info("[dry-run] would apply", "change", kind.String(), "path", rel)
		return
	}
	p.r.logger.Info(kind.String(), "path", rel)

	if p.r.sink == nil {
		return
	}
	if err := p.r.sink.Record(ev); err != nil {
		p.r.logger.Warn("failed to record event", "path", rel, "error", err)
	}
}
