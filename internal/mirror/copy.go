package mirror

import (
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/treesyncd/internal/tree"
)

// tempPattern names in-flight copies; leftovers are pruned by the next pass
const tempPattern = ".treesyncd-tmp-*"

// copyFile copies src to dst through a temp file in dst's directory, then
// stamps the copy with the source modification time and renames it into place
func copyFile(fsys afero.Fs, src, dst string, entry tree.Entry, now time.Time) error {
	srcFile, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := afero.TempFile(fsys, filepath.Dir(dst), tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = fsys.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := fsys.Chmod(tmpPath, entry.Mode.Perm()); err != nil {
		return err
	}

	if err := fsys.Chtimes(tmpPath, now, entry.ModTime); err != nil {
		return err
	}

	return fsys.Rename(tmpPath, dst)
}
