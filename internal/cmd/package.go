package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"go.mediahub.dev/mediahub/internal/packager"
)

var packageCmd = &cobra.Command{
	Use:   "package DIR OUTPUT",
	Short: "Build a package container from a directory and its metadata.yaml",
	Args:  cobra.ExactArgs(2),
	Run:   runPackage,
}

func init() {
	rootCmd.AddCommand(packageCmd)
}

func runPackage(_ *cobra.Command, args []string) {
	if err := packager.Package(args[0], args[1]); err != nil {
		log.Fatal(err)
	}
	log.Print("wrote ", args[1])
}
