package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMediaPath_Deterministic(t *testing.T) {
	t.Parallel()
	l := NewLayout(t.TempDir(), "")
	first := l.MediaPath("item-1", "file/with:odd chars")
	second := l.MediaPath("item-1", "file/with:odd chars")
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if strings.ContainsAny(filepath.Base(first), "/: ") {
		t.Errorf("hostile characters leaked into filename: %q", first)
	}
}

func TestMediaPath_DistinctFilesGetDistinctPaths(t *testing.T) {
	t.Parallel()
	l := NewLayout(t.TempDir(), "")
	if l.MediaPath("item-1", "f1") == l.MediaPath("item-1", "f2") {
		t.Error("different file ids mapped to the same path")
	}
}

func TestLayout_FallsBackWhenPrimaryUnwritable(t *testing.T) {
	t.Parallel()
	// A regular file where the cache dir should go makes MkdirAll fail
	// regardless of permissions.
	primary := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(primary, []byte("occupied"), 0o644); err != nil {
		t.Fatal(err)
	}
	fallback := t.TempDir()

	l := NewLayout(primary, fallback)
	root := l.ItemRoot("item-1")
	if !strings.HasPrefix(root, fallback) {
		t.Errorf("expected fallback path, got %q", root)
	}
}

func TestItemSize(t *testing.T) {
	t.Parallel()
	l := NewLayout(t.TempDir(), "")
	path := l.MediaPath("item-1", "f1")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := l.ItemSize("item-1", []string{"f1", "missing"}); got != 5 {
		t.Errorf("ItemSize = %d, want 5", got)
	}
}

func TestCoverPath_Variants(t *testing.T) {
	t.Parallel()
	l := NewLayout(t.TempDir(), "")
	raw := l.CoverPath("item-1", CoverRaw)
	thumb := l.CoverPath("item-1", CoverThumb)
	if raw == thumb {
		t.Error("raw and thumb variants share a path")
	}
}
