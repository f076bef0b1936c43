//go:build !unix

package overlay

import "syscall"

// reuseportControl is a no-op on platforms without SO_REUSEPORT; only one
// node per host can join the discovery group there.
func reuseportControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
