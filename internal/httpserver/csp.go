package httpserver

import (
	"fmt"
	"net/http"
	"regexp"
)

// pairPathPattern matches the /<64-hex>/<64-hex>/... shape a
// Content-Security-Policy is pinned to: two SHA-256 digests, hex-encoded,
// as the first two path segments. The first captured group is the pair
// prefix itself; the second is everything past it.
var pairPathPattern = regexp.MustCompile(`^(/[0-9a-f]{64}/[0-9a-f]{64})(/.*)?$`)

// rootAppPathPattern matches "/" and any "/app/<path>" request, both of
// which are served from the root handler's own package rather than from a
// paired app/content origin.
var rootAppPathPattern = regexp.MustCompile(`^/(app(/.*)?)?$`)

// cspForPath computes the Content-Security-Policy this server applies to a
// request, purely as a function of its URL path and host: the root
// library UI may load its own scripts inline and reach nothing else; an
// app/content pair may do the same but is additionally pinned to fetch or
// frame only the specific content package it was paired with; anything
// else gets no sources at all.
func cspForPath(host, urlPath string) string {
	if rootAppPathPattern.MatchString(urlPath) {
		return "default-src 'unsafe-eval' 'unsafe-inline' 'self'"
	}
	if m := pairPathPattern.FindStringSubmatch(urlPath); m != nil {
		return fmt.Sprintf("default-src 'unsafe-eval' 'unsafe-inline' http://%s%s/", host, m[1])
	}
	return "default-src"
}

// setCSPFromPath computes the CSP for the request path and writes it to
// the response before the handler runs, so the header is present even if
// a later stage in the chain returns an error.
func setCSPFromPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", cspForPath(r.Host, r.URL.Path))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// propagateCSP wraps the response writer so that nothing further down the
// chain — a panic recovery handler, a misbehaving app package's own
// content served back verbatim — can remove or replace the CSP this
// request computed.
func propagateCSP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csp := w.Header().Get("Content-Security-Policy")
		next.ServeHTTP(&cspLockedWriter{ResponseWriter: w, csp: csp}, r)
	})
}

// cspLockedWriter re-asserts its fixed CSP value on every header write,
// undoing any attempt by later code to delete or override it.
type cspLockedWriter struct {
	http.ResponseWriter
	csp         string
	wroteHeader bool
}

func (w *cspLockedWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.Header().Set("Content-Security-Policy", w.csp)
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cspLockedWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
