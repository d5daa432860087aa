package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveInputPath(t *testing.T) {
	base := t.TempDir()
	inside := filepath.Join(base, "people.txt")
	if err := os.WriteFile(inside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resolved, err := resolveInputPath(inside, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Fatalf("expected absolute path, got %q", resolved)
	}

	if _, err := resolveInputPath(inside, base); err != nil {
		t.Fatalf("expected file inside base dir to be accepted: %v", err)
	}

	if _, err := resolveInputPath(filepath.Join(base, "missing.txt"), ""); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	if _, err := resolveInputPath(base, ""); err == nil {
		t.Fatalf("expected directory to be rejected")
	}

	other := t.TempDir()
	if _, err := resolveInputPath(inside, other); !errors.Is(err, ErrOutsideBaseDir) {
		t.Fatalf("expected ErrOutsideBaseDir, got %v", err)
	}
}

func TestResolveInputPathRejectsSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(base, "link.txt")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := resolveInputPath(link, base); !errors.Is(err, ErrOutsideBaseDir) {
		t.Fatalf("expected symlink escape to be rejected, got %v", err)
	}
}
