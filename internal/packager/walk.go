package packager

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// walk returns every regular file under root, as slash-separated paths
// relative to root, skipping directories, MetadataFilename, and the
// .DS_Store files macOS leaves behind in directories a user browses.
func walk(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel == MetadataFilename || filepath.Base(rel) == ".DS_Store" {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("packager: walk %s: %w", root, err)
	}
	return paths, nil
}
