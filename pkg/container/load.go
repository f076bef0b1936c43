package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// hashEntry mirrors one row of the on-disk hash array: a blob's digest and
// its length in bytes.
type hashEntry struct {
	Digest digest.Digest
	Length uint64
}

// Load reads and fully verifies a package container from r, following the
// load contract in order: magic check, header decode, strict-ascending hash
// array with per-entry ordering checks, manifest index bounds check,
// per-blob digest verification (each blob is read whole, then hashed),
// trailing-bytes check, manifest
// decode, then the manifest-to-files cross-check.
func Load(r io.Reader) (*Package, error) {
	gotMagic := make([]byte, 0, magicLen)
	buf := make([]byte, magicLen)
	n, err := io.ReadFull(r, buf)
	gotMagic = append(gotMagic, buf[:n]...)
	if err != nil || !bytes.Equal(gotMagic, magic[:]) {
		return nil, BadMagicError{Got: gotMagic}
	}

	rawManifestIdx, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("container: read manifest index: %w", err)
	}
	if rawManifestIdx > math.MaxInt {
		return nil, ManifestIndexRangeError{Index: rawManifestIdx}
	}

	count, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("container: read hash count: %w", err)
	}

	entries := make([]hashEntry, count)
	for i := range entries {
		var d digest.Digest
		if _, err := io.ReadFull(r, d[:]); err != nil {
			return nil, fmt.Errorf("container: read hash entry %d: %w", i, err)
		}
		length, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("container: read length entry %d: %w", i, err)
		}
		if length > math.MaxInt {
			return nil, FileLengthRangeError{Length: length}
		}
		entries[i] = hashEntry{Digest: d, Length: length}
		if i > 0 {
			switch entries[i-1].Digest.Compare(d) {
			case 0:
				return nil, DuplicateDigestError{Digest: d}
			case 1:
				return nil, DigestOrderError{Digest: d}
			}
		}
	}

	if rawManifestIdx >= count {
		return nil, ManifestIndexOutOfBoundsError{Index: rawManifestIdx, Count: count}
	}
	manifestIdx := int(rawManifestIdx)

	files := make(map[digest.Digest][]byte, count)
	for i, entry := range entries {
		content := make([]byte, entry.Length)
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("container: read blob %d: %w", i, err)
		}
		got := digest.Sum(content)
		if got != entry.Digest {
			return nil, DigestMismatchError{Expected: entry.Digest, Actual: got}
		}
		files[entry.Digest] = content
	}

	trailing, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("container: read trailing bytes: %w", err)
	}
	if len(trailing) > 0 {
		return nil, TrailingBytesError{Trailing: uint64(len(trailing))}
	}

	manifestDigest := entries[manifestIdx].Digest
	manifestBytes := files[manifestDigest]
	decoded, err := manifest.Unmarshal(manifestBytes)
	if err != nil {
		return nil, DeserializeManifestError{Err: err}
	}

	referenced := make(map[digest.Digest]bool, len(files))
	var missing uint64
	for _, d := range decoded.Media.Digests() {
		if _, ok := files[d]; !ok {
			missing++
			continue
		}
		referenced[d] = true
	}
	if missing > 0 {
		return nil, ManifestMissingFilesError{Count: missing}
	}
	referenced[manifestDigest] = true

	var extra uint64
	for d := range files {
		if !referenced[d] {
			extra++
		}
	}
	if extra > 0 {
		return nil, ManifestExtraFilesError{Count: extra}
	}

	return &Package{
		Hash:     manifestDigest,
		Manifest: decoded,
		Files:    files,
	}, nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
