// Package container implements the on-disk package container format: a
// single file holding a manifest and every content-addressed blob it
// references, self-verifying on load.
package container

import (
	"fmt"
	"mime"
	stdpath "path"
	"strconv"

	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// magicLen is the width, in bytes, of the container format's file
// signature: "MEDIA" + the package emoji (4 UTF-8 bytes) + CRLF + SUB (0x1A)
// + LF + NUL, chosen so the file survives line-ending conversion only by
// corruption.
const magicLen = 14

// magic is the container format's fixed file signature.
var magic = [magicLen]byte{'M', 'E', 'D', 'I', 'A', 0xF0, 0x9F, 0x93, 0xA6, '\r', '\n', 0x1a, '\n', 0x00}

// Package is a loaded, fully-verified package container.
//
// Invariants, true of any Package returned by Load:
//  1. Hash == digest.Sum(cbor(Manifest)).
//  2. Files[Hash] holds exactly the CBOR encoding of Manifest.
//  3. Every digest referenced by Manifest.Media is a key of Files, and that
//     key's content hashes to itself.
//  4. Files has no key other than Hash that is not referenced by Manifest.
type Package struct {
	Hash     digest.Digest
	Manifest manifest.Manifest
	Files    map[digest.Digest][]byte
}

// File returns the content and guessed media type of the file at the given
// manifest-relative path (App media) or page number (Comic media, a
// non-negative decimal integer with no leading zeros other than the literal
// "0"). It reports false if the package's media kind does not recognize the
// path.
func (p *Package) File(path string) (mediaType string, content []byte, ok bool) {
	switch p.Manifest.Media.Type {
	case manifest.KindApp:
		if p.Manifest.Media.App == nil {
			return "", nil, false
		}
		d, ok := p.Manifest.Media.App.Paths[path]
		if !ok {
			return "", nil, false
		}
		content, ok := p.Files[d]
		if !ok {
			return "", nil, false
		}
		ct := mime.TypeByExtension(stdpath.Ext(path))
		if ct == "" {
			ct = "application/octet-stream"
		}
		return ct, content, true
	case manifest.KindComic:
		if p.Manifest.Media.Comic == nil || !isCanonicalPageNumber(path) {
			return "", nil, false
		}
		n, err := strconv.Atoi(path)
		if err != nil || n < 0 || n >= len(p.Manifest.Media.Comic.Pages) {
			return "", nil, false
		}
		content, ok := p.Files[p.Manifest.Media.Comic.Pages[n]]
		if !ok {
			return "", nil, false
		}
		return "image/jpeg", content, true
	default:
		return "", nil, false
	}
}

// isCanonicalPageNumber reports whether s is "0" or a decimal string with no
// leading zero, the only forms Comic page lookups accept.
func isCanonicalPageNumber(s string) bool {
	if s == "" {
		return false
	}
	if s == "0" {
		return true
	}
	if s[0] == '0' {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// BadMagicError is returned when a file does not begin with the container
// format's signature. Got holds as many bytes as were actually read, which
// may be fewer than magicLen for a truncated file.
type BadMagicError struct {
	Got []byte
}

func (e BadMagicError) Error() string {
	return fmt.Sprintf("container: bad magic: got %x, want %x", e.Got, magic)
}

// ManifestIndexRangeError is returned when the header's manifest index does
// not fit into a native machine word.
type ManifestIndexRangeError struct {
	Index uint64
}

func (e ManifestIndexRangeError) Error() string {
	return fmt.Sprintf("container: manifest index %d out of native range", e.Index)
}

// ManifestIndexOutOfBoundsError is returned when the manifest index in a
// container's header does not select one of its hash array entries.
type ManifestIndexOutOfBoundsError struct {
	Index, Count uint64
}

func (e ManifestIndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("container: manifest index %d out of bounds [0, %d)", e.Index, e.Count)
}

// FileLengthRangeError is returned when a hash array entry's declared
// length does not fit into a native machine word.
type FileLengthRangeError struct {
	Length uint64
}

func (e FileLengthRangeError) Error() string {
	return fmt.Sprintf("container: file length %d out of native range", e.Length)
}

// DigestOrderError is returned when a container's hash array is not sorted
// in strictly ascending digest order.
type DigestOrderError struct {
	Digest digest.Digest
}

func (e DigestOrderError) Error() string {
	return fmt.Sprintf("container: hash array entry %s out of order", e.Digest)
}

// DuplicateDigestError is returned when a container's hash array contains
// the same digest twice.
type DuplicateDigestError struct {
	Digest digest.Digest
}

func (e DuplicateDigestError) Error() string {
	return fmt.Sprintf("container: hash array entry %s duplicated", e.Digest)
}

// DigestMismatchError is returned when a blob's content does not hash to the
// digest its hash array entry claims.
type DigestMismatchError struct {
	Expected, Actual digest.Digest
}

func (e DigestMismatchError) Error() string {
	return fmt.Sprintf("container: digest mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// TrailingBytesError is returned when a container has extra bytes after its
// last declared blob.
type TrailingBytesError struct {
	Trailing uint64
}

func (e TrailingBytesError) Error() string {
	return fmt.Sprintf("container: %d trailing bytes", e.Trailing)
}

// ManifestMissingFilesError is returned when the manifest references
// digests that have no corresponding blob in the container.
type ManifestMissingFilesError struct {
	Count uint64
}

func (e ManifestMissingFilesError) Error() string {
	return fmt.Sprintf("container: manifest references %d files missing from the container", e.Count)
}

// ManifestExtraFilesError is returned when a container holds blobs the
// manifest does not reference and that are not the manifest blob itself.
type ManifestExtraFilesError struct {
	Count uint64
}

func (e ManifestExtraFilesError) Error() string {
	return fmt.Sprintf("container: %d extra files not accounted for in the manifest", e.Count)
}

// DeserializeManifestError wraps a failure to decode the manifest blob as
// CBOR.
type DeserializeManifestError struct {
	Err error
}

func (e DeserializeManifestError) Error() string {
	return fmt.Sprintf("container: deserialize manifest: %s", e.Err)
}

func (e DeserializeManifestError) Unwrap() error {
	return e.Err
}
