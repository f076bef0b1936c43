package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"go.mediahub.dev/mediahub/internal/library"
	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

func testPackages(t *testing.T) (app, mismatchedApp, content *container.Package) {
	t.Helper()

	indexHTML := []byte("<html>hi</html>")
	pageOne := []byte("page one bytes")

	content = &container.Package{
		Hash: digest.Sum([]byte("content manifest")),
		Manifest: manifest.Manifest{
			Name:  "a comic",
			Media: manifest.Media{Type: manifest.KindComic, Comic: &manifest.ComicMedia{Pages: []digest.Digest{digest.Sum(pageOne)}}},
		},
		Files: map[digest.Digest][]byte{digest.Sum(pageOne): pageOne},
	}

	app = &container.Package{
		Hash: digest.Sum([]byte("app manifest")),
		Manifest: manifest.Manifest{
			Name: "a comic viewer",
			Media: manifest.Media{Type: manifest.KindApp, App: &manifest.AppMedia{
				Target: manifest.KindComic,
				Paths:  map[string]digest.Digest{"index.html": digest.Sum(indexHTML)},
			}},
		},
		Files: map[digest.Digest][]byte{digest.Sum(indexHTML): indexHTML},
	}

	mismatchedApp = &container.Package{
		Hash: digest.Sum([]byte("root app manifest")),
		Manifest: manifest.Manifest{
			Name: "a root app",
			Media: manifest.Media{Type: manifest.KindApp, App: &manifest.AppMedia{
				Target: manifest.KindRoot,
				Paths:  map[string]digest.Digest{"index.html": digest.Sum(indexHTML)},
			}},
		},
		Files: map[digest.Digest][]byte{digest.Sum(indexHTML): indexHTML},
	}

	return app, mismatchedApp, content
}

func TestHandlePairServesFileAndSetsCSP(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/"+app.Hash.String()+"/"+content.Hash.String()+"/app/index.html", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	wantCSP := "default-src 'unsafe-eval' 'unsafe-inline' http://example.com/" + app.Hash.String() + "/" + content.Hash.String() + "/"
	if got := rec.Header().Get("Content-Security-Policy"); got != wantCSP {
		t.Errorf("Content-Security-Policy = %q, want %q", got, wantCSP)
	}
	wantBody := "<html>hi</html>"
	if got := rec.Body.String(); got != wantBody {
		t.Errorf("body = %q, want %q", got, wantBody)
	}
}

func TestHandlePairIndexServesAppIndex(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/"+app.Hash.String()+"/"+content.Hash.String()+"/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Body.String(); got != "<html>hi</html>" {
		t.Errorf("body = %q, want app index.html", got)
	}
}

func TestHandlePairManifestServesContentManifest(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/"+app.Hash.String()+"/"+content.Hash.String()+"/api/manifest", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/cbor" {
		t.Errorf("Content-Type = %q, want application/cbor", got)
	}
}

func TestSandboxRejectsMismatchedPair(t *testing.T) {
	_, mismatchedApp, content := testPackages(t)
	lib := library.New([]*container.Package{mismatchedApp, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/"+mismatchedApp.Hash.String()+"/"+content.Hash.String()+"/app/index.html", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandlePackageFileServesSingleDigestRoute(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/"+app.Hash.String()+"/index.html", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	wantCSP := "default-src"
	if got := rec.Header().Get("Content-Security-Policy"); got != wantCSP {
		t.Errorf("Content-Security-Policy = %q, want %q", got, wantCSP)
	}
}

func TestHandleAPIPackagesListsPackages(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/api/packages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Type") != "application/cbor" {
		t.Errorf("Content-Type = %q, want application/cbor", rec.Header().Get("Content-Type"))
	}
}

func TestHandleAPIHandlersListsTargets(t *testing.T) {
	app, _, content := testPackages(t)
	lib := library.New([]*container.Package{app, content})
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/api/handlers", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleAPIProvidersWithoutOverlayReturnsEmptyList(t *testing.T) {
	lib := library.New(nil)
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/api/providers/"+digest.Sum([]byte("x")).String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Type") != "application/cbor" {
		t.Errorf("Content-Type = %q, want application/cbor", rec.Header().Get("Content-Type"))
	}

	var got []peerInfo
	if err := cbor.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("cbor.Unmarshal: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("providers = %v, want empty", got)
	}
}

func TestHandleRootIndexSetsSelfCSP(t *testing.T) {
	lib := library.New(nil)
	srv := &Server{Library: lib}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	wantCSP := "default-src 'unsafe-eval' 'unsafe-inline' 'self'"
	if got := rec.Header().Get("Content-Security-Policy"); got != wantCSP {
		t.Errorf("Content-Security-Policy = %q, want %q", got, wantCSP)
	}
}
