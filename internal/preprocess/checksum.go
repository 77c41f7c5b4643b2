package preprocess

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// checksumFileName is written just before transfer, per §6's on-disk
// layout; it holds TreeChecksum's 64-bit XXH64 digest of the raw_data tree.
const checksumFileName = "ax_checksum.txt"

// TreeChecksum walks root and combines the xxHash64 digest of every regular
// file's contents, keyed by its path relative to root, into one digest for
// the whole tree. The examples pack's only available xxHash library
// (cespare/xxhash/v2) implements XXH64 rather than the 128-bit XXH3 the
// spec's prose names; DESIGN.md records that substitution — the property
// that matters operationally (a single stable digest flips whenever any
// file under the tree changes) holds either way.
func TreeChecksum(root string) (string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("preprocess: walk %s: %w", root, err)
	}
	sort.Strings(paths)

	combined := xxhash.New()
	for _, rel := range paths {
		fileDigest, err := hashFile(filepath.Join(root, rel))
		if err != nil {
			return "", fmt.Errorf("preprocess: hash %s: %w", rel, err)
		}
		fmt.Fprintf(combined, "%s:%016x\n", rel, fileDigest)
	}

	return fmt.Sprintf("%016x", combined.Sum64()), nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// WriteChecksum computes TreeChecksum(root) and writes it to
// root/ax_checksum.txt, per preprocessing step 8.
func WriteChecksum(root string) (string, error) {
	sum, err := TreeChecksum(root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, checksumFileName)
	if err := os.WriteFile(path, []byte(sum+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("preprocess: write %s: %w", path, err)
	}
	return sum, nil
}
