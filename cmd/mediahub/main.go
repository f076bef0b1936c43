// Command mediahub builds and serves content-addressed packages over a
// peer-to-peer overlay.
package main

import "go.mediahub.dev/mediahub/internal/cmd"

func main() {
	cmd.Execute()
}
