// Package packager implements the "package" command's directory-to-container
// pipeline: read a directory's metadata.yaml, walk and digest its files,
// build the resulting manifest, and write a container file.
package packager

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// Package builds a package container from the directory at root and writes
// it to the file at output, creating or truncating it as needed. It
// enforces the preconditions spec.md §6 places on the CLI's package
// operation: output must not be inside root, must not already exist as a
// directory, and root must contain a metadata.yaml.
func Package(root, output string) error {
	if err := checkOutputPath(root, output); err != nil {
		return err
	}

	meta, err := readMetadata(root)
	if err != nil {
		return err
	}

	relPaths, err := walk(root)
	if err != nil {
		return err
	}

	if err := validatePaths(meta, relPaths); err != nil {
		return err
	}

	digests := make(map[string]digest.Digest, len(relPaths))
	sources := make([]container.FileSource, 0, len(relPaths))
	for _, rel := range relPaths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		d, err := digestFile(abs)
		if err != nil {
			return err
		}
		digests[rel] = d
		sources = append(sources, container.FileSource{
			Digest: d,
			Open:   openFile(abs),
		})
	}

	m, err := buildManifest(meta, relPaths, digests)
	if err != nil {
		return err
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("packager: create %s: %w", output, err)
	}
	defer out.Close()

	if err := container.Save(out, m, sources); err != nil {
		return fmt.Errorf("packager: save %s: %w", output, err)
	}
	return out.Close()
}

func buildManifest(meta Metadata, relPaths []string, digests map[string]digest.Digest) (manifest.Manifest, error) {
	switch meta.Kind {
	case manifest.KindApp:
		paths := make(map[string]digest.Digest, len(relPaths))
		for _, rel := range relPaths {
			paths[rel] = digests[rel]
		}
		return manifest.Manifest{
			Name: meta.Name,
			Media: manifest.Media{
				Type: manifest.KindApp,
				App:  &manifest.AppMedia{Target: meta.Target, Paths: paths},
			},
		}, nil
	case manifest.KindComic:
		pages := make([]digest.Digest, len(relPaths))
		for _, rel := range relPaths {
			pages[pageNumber(rel)] = digests[rel]
		}
		return manifest.Manifest{
			Name:  meta.Name,
			Media: manifest.Media{Type: manifest.KindComic, Comic: &manifest.ComicMedia{Pages: pages}},
		}, nil
	default:
		return manifest.Manifest{}, fmt.Errorf("packager: unknown kind %q", meta.Kind)
	}
}

// checkOutputPath enforces spec.md §6's output preconditions: output must
// not resolve to a path inside root, and must not already exist as a
// directory.
func checkOutputPath(root, output string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("packager: resolve %s: %w", root, err)
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("packager: resolve %s: %w", output, err)
	}
	rel, err := filepath.Rel(absRoot, absOutput)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return OutputInRootError{Root: root, Output: output}
	}

	if info, err := os.Stat(output); err == nil && info.IsDir() {
		return OutputIsDirError{Output: output}
	}
	return nil
}

// pageFilenamePattern matches the canonical comic page filename shape
// spec.md §6 requires: one or more decimal digits followed by ".jpg".
var pageFilenamePattern = regexp.MustCompile(`^\d+\.jpg$`)

// validatePaths enforces the per-kind structural requirements on the set of
// files a package's input directory contains: an app must have an
// index.html, a comic's files must each be a canonical page image and the
// set of page numbers must be dense starting at 0.
func validatePaths(meta Metadata, relPaths []string) error {
	if len(relPaths) == 0 {
		if meta.Kind == manifest.KindComic {
			return NoPagesError{}
		}
		return fmt.Errorf("packager: no files to package")
	}

	switch meta.Kind {
	case manifest.KindApp:
		for _, rel := range relPaths {
			if rel == "index.html" {
				return nil
			}
		}
		return IndexError{}
	case manifest.KindComic:
		return validateComicPages(relPaths)
	default:
		return nil
	}
}

func validateComicPages(relPaths []string) error {
	seen := make(map[int]bool, len(relPaths))
	var maxPage int
	for _, rel := range relPaths {
		if !pageFilenamePattern.MatchString(rel) {
			return UnexpectedFileError{Path: rel, Kind: string(manifest.KindComic)}
		}
		if !isCanonicalPageDigits(strings.TrimSuffix(rel, ".jpg")) {
			return InvalidPageError{Path: rel}
		}
		n := pageNumber(rel)
		if seen[n] {
			return PageDuplicatedError{Page: n}
		}
		seen[n] = true
		if n > maxPage {
			maxPage = n
		}
	}
	for n := 0; n <= maxPage; n++ {
		if !seen[n] {
			return PageMissingError{Page: n}
		}
	}
	return nil
}

// isCanonicalPageDigits reports whether s (the filename with its ".jpg"
// suffix stripped) is "0" or has no leading zero, the only forms a page
// number may take.
func isCanonicalPageDigits(s string) bool {
	return s == "0" || s[0] != '0'
}

// pageNumber parses the page number out of a filename already verified to
// match pageFilenamePattern and isCanonicalPageDigits.
func pageNumber(rel string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(rel, ".jpg"))
	if err != nil {
		// validateComicPages rejects anything that wouldn't parse.
		panic(fmt.Sprintf("packager: unparseable page filename %q", rel))
	}
	return n
}

func digestFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("packager: open %s: %w", path, err)
	}
	defer f.Close()

	digester := digest.NewDigester()
	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return digest.Digest{}, fmt.Errorf("packager: hash %s: %w", path, err)
	}
	return digest.FromGoDigest(digester.Digest()), nil
}

func openFile(path string) func() (io.ReadCloser, int64, error) {
	return func() (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, stat.Size(), nil
	}
}
