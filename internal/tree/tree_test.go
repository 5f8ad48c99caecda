package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"a.txt":         "x",
		"b.txt":         "y",
		".hidden":       "hidden files are mirrored too",
		"sub/inner.txt": "z",
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	level, err := Read(afero.NewOsFs(), dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(level.Files) != 3 {
		t.Errorf("expected 3 files, got %d", len(level.Files))
	}
	if len(level.Dirs) != 1 || level.Dirs[0].Name != "sub" {
		t.Errorf("expected single dir sub, got %v", level.Dirs)
	}
	if len(level.Other) != 1 || level.Other[0].Name != "link" {
		t.Errorf("expected symlink to be classified as other, got %v", level.Other)
	}

	if _, ok := level.File("a.txt"); !ok {
		t.Error("File(a.txt) not found")
	}
	if _, ok := level.File("sub"); ok {
		t.Error("File(sub) should not match a directory")
	}
	if _, ok := level.Dir("sub"); !ok {
		t.Error("Dir(sub) not found")
	}
	if _, ok := level.Dir("a.txt"); ok {
		t.Error("Dir(a.txt) should not match a file")
	}
	if e, ok := level.Lookup("link"); !ok || e.Kind != KindOther {
		t.Errorf("Lookup(link) = %v, %v", e, ok)
	}
}

func TestRead_MissingDir(t *testing.T) {
	if _, err := Read(afero.NewMemMapFs(), "/does/not/exist"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestEmpty(t *testing.T) {
	level := Empty()
	if _, ok := level.Lookup("anything"); ok {
		t.Error("empty level should not contain entries")
	}
}

func TestIsDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/src/sub", 0755); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/src/file", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		path string
		want bool
	}{
		{"/src", true},
		{"/src/sub", true},
		{"/src/file", false},
		{"/missing", false},
	} {
		got, err := IsDir(fsys, tc.path)
		if err != nil {
			t.Fatalf("IsDir(%s): %v", tc.path, err)
		}
		if got != tc.want {
			t.Errorf("IsDir(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join("", "a"); got != "a" {
		t.Errorf("Join(\"\", a) = %q", got)
	}
	if got := Join("a/b", "c"); got != "a/b/c" {
		t.Errorf("Join(a/b, c) = %q", got)
	}
}
