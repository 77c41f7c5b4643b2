package preprocess

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMarkAndClearInitializing(t *testing.T) {
	dir := t.TempDir()

	if IsInitializing(dir) {
		t.Fatal("expected not initializing before MarkInitializing")
	}
	if err := MarkInitializing(dir); err != nil {
		t.Fatalf("MarkInitializing: %v", err)
	}
	if !IsInitializing(dir) {
		t.Fatal("expected initializing after MarkInitializing")
	}
	if err := ClearInitializing(dir); err != nil {
		t.Fatalf("ClearInitializing: %v", err)
	}
	if IsInitializing(dir) {
		t.Fatal("expected not initializing after ClearInitializing")
	}
}

func TestClearInitializingToleratesMissingMarker(t *testing.T) {
	dir := t.TempDir()
	if err := ClearInitializing(dir); err != nil {
		t.Fatalf("ClearInitializing on absent marker: %v", err)
	}
}

func TestMarkComplete(t *testing.T) {
	dir := t.TempDir()
	if IsComplete(dir) {
		t.Fatal("expected not complete before MarkComplete")
	}
	if err := MarkComplete(dir); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if !IsComplete(dir) {
		t.Fatal("expected complete after MarkComplete")
	}
}

func TestPurgeMarkedCachesRemovesOnlyMarkedDirs(t *testing.T) {
	root := t.TempDir()

	marked := filepath.Join(root, "animal-a")
	unmarked := filepath.Join(root, "animal-b")
	for _, dir := range []string{marked, unmarked} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("setup mkdir %s: %v", dir, err)
		}
	}
	if err := touch(filepath.Join(marked, purgeMarker)); err != nil {
		t.Fatalf("touch marker: %v", err)
	}

	if err := PurgeMarkedCaches(root); err != nil {
		t.Fatalf("PurgeMarkedCaches: %v", err)
	}

	if _, err := os.Stat(marked); !os.IsNotExist(err) {
		t.Fatalf("expected marked dir removed, stat err = %v", err)
	}
	if _, err := os.Stat(unmarked); err != nil {
		t.Fatalf("expected unmarked dir to survive: %v", err)
	}
}
