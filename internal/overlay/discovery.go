package overlay

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/net/ipv4"

	"go.mediahub.dev/mediahub/internal/overlay/transport"
	"go.mediahub.dev/mediahub/pkg/digest"
)

// multicastGroup is the local IPv4 group nodes advertise themselves on.
const multicastGroup = "239.4.9.151:49151"

// advertiseInterval is how often a node re-broadcasts its presence. Kept at
// the reference implementation's period; this is a policy choice, not
// something the wire format depends on (see design notes).
const advertiseInterval = 5 * time.Minute

// advertisement is the CBOR payload broadcast on the multicast group.
type advertisement struct {
	ID   digest.Identifier `cbor:"id"`
	Port int               `cbor:"port"`
}

// Discover joins the local multicast group, starts advertising this node's
// presence every advertiseInterval, and pings every other node whose
// advertisement it receives, calling onPeer for each one that answers,
// until ctx is canceled.
func (n *Node) Discover(ctx context.Context, onPeer func(Peer)) error {
	groupAddr, err := net.ResolveUDPAddr("udp4", multicastGroup)
	if err != nil {
		return fmt.Errorf("overlay: resolve multicast group: %w", err)
	}

	lc := net.ListenConfig{Control: reuseportControl}
	recvConn, err := lc.ListenPacket(ctx, "udp4", multicastGroup)
	if err != nil {
		return fmt.Errorf("overlay: listen multicast: %w", err)
	}
	defer recvConn.Close()

	pc := ipv4.NewPacketConn(recvConn)
	ifaces, err := multicastInterfaces()
	if err != nil {
		return err
	}
	for _, iface := range ifaces {
		// Errors joining any one interface are not fatal: a single-homed host
		// typically has exactly one usable interface, and failing the whole
		// loop over a Wi-Fi/loopback mismatch would be worse than limited
		// reach.
		_ = pc.JoinGroup(iface, groupAddr)
	}

	sendConn, err := net.DialUDP("udp4", nil, groupAddr)
	if err != nil {
		return fmt.Errorf("overlay: dial multicast group: %w", err)
	}
	defer sendConn.Close()

	_, portStr, err := net.SplitHostPort(n.Addr())
	if err != nil {
		return fmt.Errorf("overlay: parse local address: %w", err)
	}
	port := atoiOrZero(portStr)

	go n.advertiseLoop(ctx, sendConn, port)
	return n.receiveLoop(ctx, recvConn, onPeer)
}

func (n *Node) advertiseLoop(ctx context.Context, conn net.Conn, port int) {
	payload, err := cbor.Marshal(advertisement{ID: n.Self, Port: port})
	if err != nil {
		n.logger.Printf("overlay: encode advertisement: %v", err)
		return
	}

	// Before the first advertisement, confirm this node's own listener
	// actually accepts connections by dialing it over loopback.
	if err := n.selfConnect(ctx, port); err != nil {
		n.logger.Printf("overlay: self-connect before advertising: %v", err)
	}

	ticker := time.NewTicker(advertiseInterval)
	defer ticker.Stop()

	send := func() {
		if _, err := conn.Write(payload); err != nil {
			n.logger.Printf("overlay: send advertisement: %v", err)
		}
	}
	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

func (n *Node) receiveLoop(ctx context.Context, conn net.PacketConn, onPeer func(Peer)) error {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		nRead, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		var adv advertisement
		if err := cbor.Unmarshal(buf[:nRead], &adv); err != nil {
			continue
		}
		if adv.ID == n.Self {
			continue
		}

		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			continue
		}
		peer := Peer{ID: adv.ID, Addr: udpAddrFromParts(host, adv.Port)}
		go n.pingDiscovered(ctx, peer, onPeer)
	}
}

// pingDiscovered verifies a peer learned from a multicast advertisement by
// pinging it, which updates both sides' routing tables on success
// (spec.md §4.3.5). Run in its own goroutine so a slow or unreachable peer
// never stalls the receive loop.
func (n *Node) pingDiscovered(ctx context.Context, peer Peer, onPeer func(Peer)) {
	if err := n.Ping(ctx, peer); err != nil {
		return
	}
	if onPeer != nil {
		onPeer(peer)
	}
}

// selfConnect dials this node's own transport endpoint over loopback,
// confirming that inbound connections are actually being accepted before
// the node tells the world it is reachable.
func (n *Node) selfConnect(ctx context.Context, port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := transport.Dial(ctx, addr, n.Self, n.Self)
	if err != nil {
		return fmt.Errorf("overlay: dial self at %s: %w", addr, err)
	}
	return conn.Close()
}

func multicastInterfaces() ([]*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("overlay: list interfaces: %w", err)
	}
	var out []*net.Interface
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		out = append(out, &iface)
	}
	return out, nil
}
