package preprocess

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func TestTreeChecksumIsStableAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":        "hello",
		"nested/b.txt": "world",
	})

	first, err := TreeChecksum(root)
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}
	second, err := TreeChecksum(root)
	if err != nil {
		t.Fatalf("TreeChecksum second call: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable checksum, got %s then %s", first, second)
	}
}

func TestTreeChecksumChangesWhenFileContentChanges(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello"})

	before, err := TreeChecksum(root)
	if err != nil {
		t.Fatalf("TreeChecksum: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("goodbye"), 0o644); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	after, err := TreeChecksum(root)
	if err != nil {
		t.Fatalf("TreeChecksum after edit: %v", err)
	}
	if before == after {
		t.Fatal("expected checksum to change after file content changed")
	}
}

func TestWriteChecksumWritesFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello"})

	sum, err := WriteChecksum(root)
	if err != nil {
		t.Fatalf("WriteChecksum: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, checksumFileName))
	if err != nil {
		t.Fatalf("read checksum file: %v", err)
	}
	if string(data) != sum+"\n" {
		t.Fatalf("checksum file contents = %q, want %q", data, sum+"\n")
	}
}
