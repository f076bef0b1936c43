package container

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.mediahub.dev/mediahub/internal/blobset"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// FileSource opens the content of one path-addressed file a package will
// include, alongside its already-known digest. The packager in
// internal/packager supplies one of these per file it walks on disk.
type FileSource struct {
	Digest digest.Digest
	Open   blobset.Source
}

// Save writes a package container to w holding the CBOR encoding of m and
// every blob in files, in ascending digest order, following the save
// contract: nothing is buffered beyond one blob at a time.
func Save(w io.Writer, m manifest.Manifest, files []FileSource) error {
	encoded, err := manifest.Marshal(m)
	if err != nil {
		return fmt.Errorf("container: marshal manifest: %w", err)
	}

	b := blobset.NewBuilder()
	manifestDigest := b.AddContent(encoded)
	for _, f := range files {
		b.Add(f.Digest, f.Open)
	}

	sorted := b.Entries()

	manifestIdx := -1
	for i, d := range sorted {
		if d == manifestDigest {
			manifestIdx = i
			break
		}
	}
	if manifestIdx < 0 {
		// AddContent always registers the manifest's own digest, so this
		// cannot happen.
		return fmt.Errorf("container: manifest digest missing from entry set")
	}

	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("container: write magic: %w", err)
	}
	if err := writeUint64(w, uint64(manifestIdx)); err != nil {
		return fmt.Errorf("container: write manifest index: %w", err)
	}
	if err := writeUint64(w, uint64(len(sorted))); err != nil {
		return fmt.Errorf("container: write hash count: %w", err)
	}

	lengths := make(map[digest.Digest]int64, len(sorted))
	for _, d := range sorted {
		rc, size, err := b.Open(d)
		if err != nil {
			return fmt.Errorf("container: open %s: %w", d, err)
		}
		rc.Close()
		lengths[d] = size
	}
	for _, d := range sorted {
		if _, err := w.Write(d[:]); err != nil {
			return fmt.Errorf("container: write hash entry: %w", err)
		}
		if err := writeUint64(w, uint64(lengths[d])); err != nil {
			return fmt.Errorf("container: write length entry: %w", err)
		}
	}

	for _, d := range sorted {
		rc, _, err := b.Open(d)
		if err != nil {
			return fmt.Errorf("container: open %s: %w", d, err)
		}
		_, copyErr := io.Copy(w, rc)
		closeErr := rc.Close()
		if copyErr != nil {
			return fmt.Errorf("container: write blob %s: %w", d, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("container: close blob %s: %w", d, closeErr)
		}
	}

	return nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
