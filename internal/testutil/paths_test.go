package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindProjectRoot(t *testing.T) {
	root, err := FindProjectRoot()
	if err != nil {
		t.Fatalf("FindProjectRoot returned error: %v", err)
	}
	if root == "" {
		t.Fatal("FindProjectRoot returned empty string")
	}

	goMod := filepath.Join(root, "go.mod")
	if _, err := os.Stat(goMod); err != nil {
		t.Fatalf("go.mod not found at %s: %v", goMod, err)
	}
}

func TestExampleConfig(t *testing.T) {
	for _, name := range []string{"config.example.yaml", "config.example.toml"} {
		path, err := ExampleConfig(name)
		if err != nil {
			t.Fatalf("ExampleConfig(%q) returned error: %v", name, err)
		}
		if filepath.Base(filepath.Dir(path)) != "configs" {
			t.Errorf("expected %s under configs/, got %s", name, path)
		}
	}

	if _, err := ExampleConfig("missing.yaml"); err == nil {
		t.Error("expected error for a missing example config")
	}
}
