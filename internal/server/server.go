// Package server wires together the library, overlay node, and HTTP
// surface into the running process the "serve" command starts.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"go.mediahub.dev/mediahub/internal/httpserver"
	"go.mediahub.dev/mediahub/internal/library"
	"go.mediahub.dev/mediahub/internal/overlay"
	"go.mediahub.dev/mediahub/pkg/container"
)

// bootstrapTimeout bounds the initial ping to Config.Bootstrap.
const bootstrapTimeout = 5 * time.Second

// defaultOpenBrowser shells out to the platform's standard "open a URL"
// command.
func defaultOpenBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// Config describes one run of the server.
type Config struct {
	// HTTPAddr is the local address the HTTP surface listens on.
	HTTPAddr string
	// OverlayAddr is the local address the overlay transport listens on. If
	// empty, the node does not join the overlay at all: it serves only the
	// packages given in PackagePaths over HTTP.
	OverlayAddr string
	// PackagePaths are container files to load into the library at startup.
	PackagePaths []string
	// Bootstrap, if set, names a peer ("<hex-id>@<ip>:<port>") to ping
	// before entering the main accept loop, seeding the routing table.
	Bootstrap string
	// Open, if true, launches a browser at the HTTP surface's root once the
	// server is ready to accept connections.
	Open bool
	// OpenBrowser launches a browser at the given URL. Defaults to the
	// platform's "open a URL" command if nil; tests supply a fake.
	OpenBrowser func(url string) error
	// Logger receives diagnostic messages with no other observer. Defaults
	// to a no-op logger if nil.
	Logger overlay.Logger
}

// Run loads Config.PackagePaths, starts the overlay node (if configured),
// and serves HTTP until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	pkgs, err := loadPackages(cfg.PackagePaths)
	if err != nil {
		return err
	}
	lib := library.New(pkgs)

	var node *overlay.Node
	if cfg.OverlayAddr != "" {
		node, err = overlay.New(cfg.OverlayAddr, lib, cfg.Logger)
		if err != nil {
			return fmt.Errorf("server: start overlay: %w", err)
		}
		defer node.Close()

		if cfg.Bootstrap != "" {
			peer, err := overlay.ParsePeer(cfg.Bootstrap)
			if err != nil {
				return fmt.Errorf("server: parse bootstrap peer: %w", err)
			}
			bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			err = node.Ping(bootstrapCtx, peer)
			cancel()
			if err != nil {
				return fmt.Errorf("server: bootstrap ping %s: %w", peer, err)
			}
		}
	}

	srv := &httpserver.Server{Library: lib, Node: node}
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}

	eg, egCtx := errgroup.WithContext(ctx)

	if node != nil {
		eg.Go(func() error { return node.Serve(egCtx) })
		eg.Go(func() error { return node.Discover(egCtx, func(overlay.Peer) {}) })
	}

	eg.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()
		select {
		case <-egCtx.Done():
			return httpSrv.Shutdown(context.Background())
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})

	if cfg.Open {
		openBrowser := cfg.OpenBrowser
		if openBrowser == nil {
			openBrowser = defaultOpenBrowser
		}
		url := fmt.Sprintf("http://%s/", cfg.HTTPAddr)
		if err := openBrowser(url); err != nil && cfg.Logger != nil {
			cfg.Logger.Printf("server: open browser at %s: %v", url, err)
		}
	}

	return eg.Wait()
}

func loadPackages(paths []string) ([]*container.Package, error) {
	pkgs := make([]*container.Package, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("server: open %s: %w", path, err)
		}
		pkg, err := container.Load(f)
		closeErr := f.Close()
		if err != nil {
			return nil, fmt.Errorf("server: load %s: %w", path, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("server: close %s: %w", path, closeErr)
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}
