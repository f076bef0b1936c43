// Package library holds the in-memory catalogue of packages a node has
// loaded: a map from manifest digest to Package, plus a mapping from media
// kind to the digest of whichever loaded package currently handles it.
package library

import (
	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// Library is built once at startup from a fixed set of packages and is
// never mutated afterward, so it requires no locking to read concurrently
// from HTTP handlers.
type Library struct {
	packages map[digest.Digest]*container.Package
	handlers map[manifest.Kind]digest.Digest
}

// New builds a Library from a set of already-loaded packages. If more than
// one App-kind package names the same Target, the last one in pkgs wins,
// matching the order packages were given on the command line.
func New(pkgs []*container.Package) *Library {
	lib := &Library{
		packages: make(map[digest.Digest]*container.Package, len(pkgs)),
		handlers: make(map[manifest.Kind]digest.Digest),
	}
	for _, pkg := range pkgs {
		lib.packages[pkg.Hash] = pkg
		if pkg.Manifest.Media.Type == manifest.KindApp && pkg.Manifest.Media.App != nil {
			lib.handlers[pkg.Manifest.Media.App.Target] = pkg.Hash
		}
	}
	return lib
}

// Get returns the package with the given digest, if loaded.
func (l *Library) Get(d digest.Digest) (*container.Package, bool) {
	pkg, ok := l.packages[d]
	return pkg, ok
}

// Handler returns the digest of the package currently registered to handle
// the given media kind, if any.
func (l *Library) Handler(kind manifest.Kind) (digest.Digest, bool) {
	d, ok := l.handlers[kind]
	return d, ok
}

// All returns every loaded package, in no particular order.
func (l *Library) All() []*container.Package {
	out := make([]*container.Package, 0, len(l.packages))
	for _, pkg := range l.packages {
		out = append(out, pkg)
	}
	return out
}

// Handlers returns a copy of the media-kind-to-digest handler map.
func (l *Library) Handlers() map[manifest.Kind]digest.Digest {
	out := make(map[manifest.Kind]digest.Digest, len(l.handlers))
	for k, v := range l.handlers {
		out[k] = v
	}
	return out
}

// Len reports how many packages are loaded.
func (l *Library) Len() int {
	return len(l.packages)
}
