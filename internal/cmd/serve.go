package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"go.mediahub.dev/mediahub/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [flags] PACKAGE...",
	Short: "Load packages and serve them locally and over the overlay",
	Args:  cobra.ArbitraryArgs,
	Run:   runServe,
}

var (
	flagHTTPAddr    string
	flagOverlayAddr string
	flagBootstrap   string
	flagOpen        bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagHTTPAddr, "http", "127.0.0.1:8080", "Local address to serve HTTP on")
	serveCmd.Flags().StringVar(&flagOverlayAddr, "overlay", "0.0.0.0:0", "Local address to listen for overlay connections on; empty to disable the overlay")
	serveCmd.Flags().StringVar(&flagBootstrap, "bootstrap", "", "Peer to ping on startup, as <hex-id>@<ip>:<port>, to seed the routing table")
	serveCmd.Flags().BoolVar(&flagOpen, "open", false, "Open a browser at the HTTP surface once the server is ready")
}

func runServe(_ *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := server.Config{
		HTTPAddr:     flagHTTPAddr,
		OverlayAddr:  flagOverlayAddr,
		PackagePaths: args,
		Bootstrap:    flagBootstrap,
		Open:         flagOpen,
		Logger:       log.Default(),
	}

	log.Print("serving on ", flagHTTPAddr)
	if err := server.Run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}
