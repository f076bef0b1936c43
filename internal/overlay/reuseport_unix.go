//go:build unix

package overlay

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseportControl lets multiple nodes on the same host join the discovery
// multicast group concurrently by setting SO_REUSEADDR and SO_REUSEPORT;
// without them a second bind to the fixed port fails.
func reuseportControl(_, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			setErr = err
			return
		}
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
