package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

type ctxKey int

const (
	ctxKeyAppPackage ctxKey = iota
	ctxKeyContentPackage
)

// sandboxPackagePair validates that the {app}/{content} pair named by the
// request path is a legitimate app/content pairing — app must be a loaded
// App-kind package, content must be a loaded package, and app's declared
// Target must match content's media kind — before any content is served
// under that pair's origin. This is what stops an app from being loaded
// against content it was never designed to view, which in turn is what
// lets the CSP above safely name "the content this app was paired with" as
// a single, specific origin.
func sandboxPackagePair(lib packageLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkgParam := chi.URLParam(r, "app")
			contentParam := chi.URLParam(r, "content")

			pkgDigest, err := digest.Parse(pkgParam)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			contentDigest, err := digest.Parse(contentParam)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			appPkg, ok := lib.Get(pkgDigest)
			if !ok {
				http.Error(w, "unknown app package", http.StatusNotFound)
				return
			}
			contentPkg, ok := lib.Get(contentDigest)
			if !ok {
				http.Error(w, "unknown content package", http.StatusNotFound)
				return
			}

			if appPkg.Manifest.Media.Type != manifest.KindApp || appPkg.Manifest.Media.App == nil {
				http.Error(w, "package is not an app", http.StatusBadRequest)
				return
			}
			target := appPkg.Manifest.Media.App.Target
			if target == manifest.KindRoot || target != contentPkg.Manifest.Media.Type {
				http.Error(w, "app is not a handler for this content's media kind", http.StatusBadRequest)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyAppPackage, appPkg)
			ctx = context.WithValue(ctx, ctxKeyContentPackage, contentPkg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// packageLookup is the subset of *library.Library the sandbox validator
// needs, kept as an interface so it can be unit tested without a whole
// Library.
type packageLookup interface {
	Get(d digest.Digest) (*container.Package, bool)
}

func appPackageFrom(ctx context.Context) *container.Package {
	pkg, _ := ctx.Value(ctxKeyAppPackage).(*container.Package)
	return pkg
}

func contentPackageFrom(ctx context.Context) *container.Package {
	pkg, _ := ctx.Value(ctxKeyContentPackage).(*container.Package)
	return pkg
}
