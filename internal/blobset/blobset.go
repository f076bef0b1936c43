// Package blobset provides a small, opinionated builder for the sorted,
// content-addressed blob sets that back a package container. It plays a
// similar role for container writing that a tar builder plays for an
// archive, but keyed by content digest rather than path: two entries
// claiming the same digest name the same content by construction, so
// adding a digest already present is a deduplication, not an error
// (spec.md §4.1 Save step 2).
package blobset

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"go.mediahub.dev/mediahub/pkg/digest"
)

// Source lazily opens the content of a blob. A Builder never holds more
// than one blob's content in memory at once regardless of how many entries
// were added; callers may be invoked more than once (for example, once to
// measure size and again to stream content).
type Source func() (io.ReadCloser, int64, error)

// Builder accumulates a set of content-addressed blobs keyed by digest,
// keeping one source per digest. It does not hash a source's content to
// check it against the digest it was added under.
type Builder struct {
	order   []digest.Digest
	sources map[digest.Digest]Source
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{sources: make(map[digest.Digest]Source)}
}

// AddContent adds in-memory content to the set, keyed by its own digest.
// Returns the digest for convenience.
func (b *Builder) AddContent(content []byte) digest.Digest {
	d := digest.Sum(content)
	b.Add(d, func() (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(content)), int64(len(content)), nil
	})
	return d
}

// Add registers a blob under the given digest, to be opened lazily via
// source when the set is written. A digest already present is silently
// deduplicated: since the digest is a content hash, two entries sharing it
// name the same bytes, so the first-registered source is kept and source is
// never called.
func (b *Builder) Add(d digest.Digest, source Source) {
	if _, ok := b.sources[d]; ok {
		return
	}
	b.sources[d] = source
	b.order = append(b.order, d)
}

// Entries returns every digest added so far, sorted in ascending digest
// order.
func (b *Builder) Entries() []digest.Digest {
	sorted := append([]digest.Digest(nil), b.order...)
	sortDigests(sorted)
	return sorted
}

// Open returns the lazy source for a previously added digest.
func (b *Builder) Open(d digest.Digest) (io.ReadCloser, int64, error) {
	source, ok := b.sources[d]
	if !ok {
		return nil, 0, fmt.Errorf("blobset: no such entry %s", d)
	}
	return source()
}

func sortDigests(ds []digest.Digest) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].Compare(ds[j]) < 0 })
}
