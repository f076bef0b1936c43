package httpserver

import (
	"fmt"
	"html"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"

	"go.mediahub.dev/mediahub/internal/overlay"
	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// handleRootIndex serves the root handler's own index.html: the library
// UI a browser lands on when it first visits the server.
func (s *Server) handleRootIndex(w http.ResponseWriter, r *http.Request) {
	pkg := s.rootPackage()
	if pkg == nil {
		serveEmbedded(w, r, "static/index.html")
		return
	}
	serveFile(w, r, pkg, "index.html")
}

// handleRootFavicon serves the root handler's favicon.png if one is
// loaded, falling back to the server's own embedded favicon.
func (s *Server) handleRootFavicon(w http.ResponseWriter, r *http.Request) {
	pkg := s.rootPackage()
	if pkg == nil {
		serveEmbedded(w, r, "static/favicon.ico")
		return
	}
	if mediaType, content, ok := pkg.File("favicon.png"); ok {
		w.Header().Set("Content-Type", mediaType)
		w.Write(content)
		return
	}
	serveEmbedded(w, r, "static/favicon.ico")
}

// handleRootApp serves a file from the root handler's own package under
// the literal "/app/<path>" prefix.
func (s *Server) handleRootApp(w http.ResponseWriter, r *http.Request) {
	pkg := s.rootPackage()
	if pkg == nil {
		http.NotFound(w, r)
		return
	}
	relative := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	serveFile(w, r, pkg, relative)
}

func (s *Server) rootPackage() *container.Package {
	d, ok := s.Library.Handler(manifest.KindRoot)
	if !ok {
		return nil
	}
	pkg, ok := s.Library.Get(d)
	if !ok {
		return nil
	}
	return pkg
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	serveEmbedded(w, r, "static/"+strings.TrimPrefix(chi.URLParam(r, "*"), "/"))
}

func serveEmbedded(w http.ResponseWriter, r *http.Request, name string) {
	content, err := fs.ReadFile(staticFS, name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Write(content)
}

func serveFile(w http.ResponseWriter, r *http.Request, pkg *container.Package, relative string) {
	if relative == "" {
		relative = "index.html"
	}
	mediaType, content, ok := pkg.File(relative)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mediaType)
	w.Write(content)
}

// handleAPIPackages implements GET /api/packages: every loaded package's
// manifest, keyed by its digest.
func (s *Server) handleAPIPackages(w http.ResponseWriter, r *http.Request) {
	pkgs := s.Library.All()
	out := make(map[digest.Digest]manifest.Manifest, len(pkgs))
	for _, pkg := range pkgs {
		out[pkg.Hash] = pkg.Manifest
	}
	writeCBOR(w, out)
}

// handleAPIHandlers implements GET /api/handlers: the media-kind-to-
// digest registration table.
func (s *Server) handleAPIHandlers(w http.ResponseWriter, r *http.Request) {
	writeCBOR(w, s.Library.Handlers())
}

// nodeInfo is the CBOR shape returned by GET /api/node.
type nodeInfo struct {
	Peer     digest.Identifier `cbor:"peer"`
	Sent     uint64            `cbor:"sent"`
	Received uint64            `cbor:"received"`
	Peers    []peerInfo        `cbor:"peers"`
	// RoutingTable holds one entry per routing table bucket, index i
	// corresponding to bucket i (spec.md §3's 0..=256 bucket index space),
	// not a flattened or reordered peer list.
	RoutingTable [][]peerInfo `cbor:"routing_table"`
}

type peerInfo struct {
	ID   digest.Identifier `cbor:"id"`
	Addr string            `cbor:"addr"`
}

func toPeerInfo(peers []overlay.Peer) []peerInfo {
	out := make([]peerInfo, len(peers))
	for i, p := range peers {
		out[i] = peerInfo{ID: p.ID, Addr: p.Addr.String()}
	}
	return out
}

func (s *Server) handleAPINode(w http.ResponseWriter, r *http.Request) {
	if s.Node == nil {
		http.Error(w, "overlay disabled", http.StatusNotFound)
		return
	}
	sent, received := s.Node.Counters()
	table := s.Node.RoutingTable()
	routingTable := make([][]peerInfo, len(table))
	for i, bucket := range table {
		routingTable[i] = toPeerInfo(bucket)
	}
	writeCBOR(w, nodeInfo{
		Peer:         s.Node.Self,
		Sent:         sent,
		Received:     received,
		Peers:        toPeerInfo(s.Node.Peers()),
		RoutingTable: routingTable,
	})
}

// handleAPISearch implements GET /api/search/<id>: the digests and
// manifests of every package the peer identified by id holds, or a CBOR
// null if the overlay is disabled or id is not in the local routing table.
// A failure to contact a known peer is a 500.
func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	id, err := digest.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.Node == nil {
		writeCBOR(w, nil)
		return
	}

	digests, found, err := s.Node.Search(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		writeCBOR(w, nil)
		return
	}

	manifests := make(map[digest.Digest]manifest.Manifest, len(digests))
	for _, d := range digests {
		m, _, ok, err := s.Node.Get(r.Context(), id, d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if ok {
			manifests[d] = m
		}
	}
	writeCBOR(w, manifests)
}

// handleAPIProviders implements GET /api/providers/<digest>: the peers
// (id and address, not just id) known to have announced the given content
// digest via the overlay's advisory provider directory.
func (s *Server) handleAPIProviders(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "digest")
	d, err := digest.Parse(param)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.Node == nil {
		writeCBOR(w, []peerInfo{})
		return
	}

	writeCBOR(w, toPeerInfo(s.Node.Providers(d)))
}

// handlePackageIndex implements GET /<pkg>/: the package's own
// index.html if it is an App, or a synthesized page listing otherwise.
func (s *Server) handlePackageIndex(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "pkg"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pkg, ok := s.Library.Get(d)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if pkg.Manifest.Media.Type == manifest.KindApp {
		serveFile(w, r, pkg, "")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><title>%s</title><h1>%s</h1><p>kind: %s</p>",
		html.EscapeString(pkg.Manifest.Name), html.EscapeString(pkg.Manifest.Name), pkg.Manifest.Media.Type)
}

// handlePackageFile implements GET /<pkg>/<file>.
func (s *Server) handlePackageFile(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "pkg"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pkg, ok := s.Library.Get(d)
	if !ok {
		http.NotFound(w, r)
		return
	}
	serveFile(w, r, pkg, chi.URLParam(r, "file"))
}

// handlePairIndex implements GET /<app>/<content>/: the app package's
// own index.html.
func (s *Server) handlePairIndex(w http.ResponseWriter, r *http.Request) {
	serveFile(w, r, appPackageFrom(r.Context()), "")
}

// handlePairManifest implements GET /<app>/<content>/api/manifest: the
// content package's manifest.
func (s *Server) handlePairManifest(w http.ResponseWriter, r *http.Request) {
	writeCBOR(w, contentPackageFrom(r.Context()).Manifest)
}

// handlePairAppFile implements GET /<app>/<content>/app/<path>.
func (s *Server) handlePairAppFile(w http.ResponseWriter, r *http.Request) {
	relative := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	serveFile(w, r, appPackageFrom(r.Context()), relative)
}

// handlePairContentFile implements GET /<app>/<content>/content/<path>.
func (s *Server) handlePairContentFile(w http.ResponseWriter, r *http.Request) {
	relative := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	serveFile(w, r, contentPackageFrom(r.Context()), relative)
}

func writeCBOR(w http.ResponseWriter, v interface{}) {
	encoded, err := cbor.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.Write(encoded)
}
