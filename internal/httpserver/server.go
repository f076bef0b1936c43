// Package httpserver implements the local HTTP surface: serving package
// content to a browser under a per-package origin, a small CBOR API over
// the library and overlay, and the Content-Security-Policy and
// package-pair sandboxing discipline that keep an untrusted app from
// reaching anything but the content it was paired with.
package httpserver

import (
	"embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"go.mediahub.dev/mediahub/internal/library"
	"go.mediahub.dev/mediahub/internal/overlay"
)

//go:embed static/index.html static/favicon.ico
var staticFS embed.FS

// Server is the local HTTP surface's dependencies: a read-only library of
// loaded packages and, optionally, an overlay node for remote lookups.
type Server struct {
	Library *library.Library
	Node    *overlay.Node
}

// Handler returns the complete HTTP handler for the local surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(setCSPFromPath)
	r.Use(propagateCSP)

	r.Get("/", s.handleRootIndex)
	r.Get("/favicon.ico", s.handleRootFavicon)
	r.Get("/static/*", s.handleStatic)
	r.Get("/app/*", s.handleRootApp)

	r.Route("/api", func(r chi.Router) {
		r.Get("/packages", s.handleAPIPackages)
		r.Get("/handlers", s.handleAPIHandlers)
		r.Get("/node", s.handleAPINode)
		r.Get("/search/{id}", s.handleAPISearch)
		r.Get("/providers/{digest}", s.handleAPIProviders)
	})

	r.Route("/{app}/{content}", func(r chi.Router) {
		r.Use(sandboxPackagePair(s.Library))
		r.Get("/", s.handlePairIndex)
		r.Get("/api/manifest", s.handlePairManifest)
		r.Get("/app/*", s.handlePairAppFile)
		r.Get("/content/*", s.handlePairContentFile)
	})

	r.Get("/{pkg}/", s.handlePackageIndex)
	r.Get("/{pkg}/{file}", s.handlePackageFile)

	return r
}
