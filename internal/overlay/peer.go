package overlay

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.mediahub.dev/mediahub/pkg/digest"
)

// Peer is a node's address as known to another node: its identifier plus
// the socket address it can be reached at.
type Peer struct {
	ID   digest.Identifier
	Addr net.UDPAddr
}

// String renders a Peer as "<hex-id>@<ip>:<port>", the form Parse accepts.
func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Addr.String())
}

// ParsePeer parses the "<hex-id>@<ip>:<port>" form produced by String.
func ParsePeer(s string) (Peer, error) {
	at := strings.IndexByte(s, '@')
	if at < 0 {
		return Peer{}, fmt.Errorf("overlay: parse peer %q: missing '@'", s)
	}
	id, err := digest.Parse(s[:at])
	if err != nil {
		return Peer{}, fmt.Errorf("overlay: parse peer %q: %w", s, err)
	}
	host, portStr, err := net.SplitHostPort(s[at+1:])
	if err != nil {
		return Peer{}, fmt.Errorf("overlay: parse peer %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Peer{}, fmt.Errorf("overlay: parse peer %q: %w", s, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Peer{}, fmt.Errorf("overlay: parse peer %q: invalid IP %q", s, host)
	}
	return Peer{ID: id, Addr: net.UDPAddr{IP: ip, Port: port}}, nil
}
