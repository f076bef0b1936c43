// Package manifest defines the manifest document embedded in every package
// container: the name a package advertises and the tagged union describing
// what kind of media it holds.
package manifest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"go.mediahub.dev/mediahub/pkg/digest"
)

// Kind names a variant of Media. The three kinds spec.md names explicitly
// are app, comic, and root; additional kinds may be added without changing
// the wire shape.
type Kind string

const (
	KindApp   Kind = "app"
	KindComic Kind = "comic"
	KindRoot  Kind = "root"
)

// Manifest is the document a Package's hash is computed over.
type Manifest struct {
	Name  string `cbor:"name"`
	Media Media  `cbor:"media"`
}

// Media is a tagged union over the kinds of content a package can hold. At
// most one of App or Comic is set; which one is determined by Type.
type Media struct {
	Type  Kind
	App   *AppMedia
	Comic *ComicMedia
}

// AppMedia describes a package that serves a directory of files behind an
// HTTP origin, with Target naming the media kind this app is a handler for.
type AppMedia struct {
	Target Kind                     `cbor:"target"`
	Paths  map[string]digest.Digest `cbor:"paths"`
}

// ComicMedia describes a package that holds an ordered sequence of page
// images.
type ComicMedia struct {
	Pages []digest.Digest `cbor:"pages"`
}

// canonicalEncMode is the shared canonical encoder every CBOR encode in
// this package goes through: its deterministic map-key sort order is what
// makes Marshal (and, since Media implements cbor.Marshaler and so is
// otherwise opaque to the outer encoder, MarshalCBOR's own use of it below)
// produce byte-identical output across repeated calls on equal values, per
// spec.md P2 (digest determinism). The package-level cbor.Marshal used
// alone defaults to SortNone, which would let AppMedia.Paths encode in
// randomized Go map iteration order.
var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("manifest: build canonical cbor encoder: %v", err))
	}
	return mode
}()

// cborMedia mirrors the internally-tagged, snake_case-keyed CBOR shape
// spec.md §6 requires: a single map carrying a "type" field alongside the
// variant's own fields, rather than a map keyed by the variant name.
type cborMedia struct {
	Type   Kind                     `cbor:"type"`
	Target Kind                     `cbor:"target,omitempty"`
	Paths  map[string]digest.Digest `cbor:"paths,omitempty"`
	Pages  []digest.Digest          `cbor:"pages,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (m Media) MarshalCBOR() ([]byte, error) {
	switch m.Type {
	case KindApp:
		if m.App == nil {
			return nil, fmt.Errorf("manifest: media type %q requires App", m.Type)
		}
		return canonicalEncMode.Marshal(cborMedia{Type: KindApp, Target: m.App.Target, Paths: m.App.Paths})
	case KindComic:
		if m.Comic == nil {
			return nil, fmt.Errorf("manifest: media type %q requires Comic", m.Type)
		}
		return canonicalEncMode.Marshal(cborMedia{Type: KindComic, Pages: m.Comic.Pages})
	default:
		return nil, fmt.Errorf("manifest: unknown media type %q", m.Type)
	}
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *Media) UnmarshalCBOR(data []byte) error {
	var raw cborMedia
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case KindApp:
		m.Type = KindApp
		m.App = &AppMedia{Target: raw.Target, Paths: raw.Paths}
	case KindComic:
		m.Type = KindComic
		m.Comic = &ComicMedia{Pages: raw.Pages}
	default:
		return fmt.Errorf("manifest: media document names unknown type %q", raw.Type)
	}
	return nil
}

// Digests returns every content digest the media references: in page order
// for Comic, and in no particular order for App (Paths is a map). Used by
// the container loader to verify that every referenced blob is present.
func (m Media) Digests() []digest.Digest {
	switch m.Type {
	case KindApp:
		if m.App == nil {
			return nil
		}
		out := make([]digest.Digest, 0, len(m.App.Paths))
		for _, d := range m.App.Paths {
			out = append(out, d)
		}
		return out
	case KindComic:
		if m.Comic == nil {
			return nil
		}
		return append([]digest.Digest(nil), m.Comic.Pages...)
	default:
		return nil
	}
}

// Marshal returns the canonical CBOR encoding of the manifest, the same
// bytes whose digest is the package's content address.
func Marshal(m Manifest) ([]byte, error) {
	return canonicalEncMode.Marshal(m)
}

// Unmarshal decodes a manifest from its canonical CBOR encoding.
func Unmarshal(data []byte) (Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return m, nil
}
