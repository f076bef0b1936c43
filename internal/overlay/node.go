// Package overlay implements the peer-to-peer network layer: node identity,
// the routing table, the ping/search/get/announce protocol, and local
// multicast discovery.
package overlay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"go.mediahub.dev/mediahub/internal/library"
	"go.mediahub.dev/mediahub/internal/overlay/transport"
	"go.mediahub.dev/mediahub/internal/overlay/wire"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// Logger is the minimal interface Node uses to report events that have no
// other observer: a failed inbound connection, a discovery send retry.
// log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Node owns a listening transport endpoint and the state needed to
// participate in the overlay: a routing table, an advisory provider
// directory, and diagnostic counters.
type Node struct {
	Self    digest.Identifier
	library *library.Library
	table   *Table
	logger  Logger

	listener *transport.Listener

	sent     atomic.Uint64
	received atomic.Uint64

	dirMu     sync.Mutex
	directory map[digest.Digest]map[string]Peer
}

// New creates a Node with a fresh random identifier, bound to addr.
func New(addr string, lib *library.Library, logger Logger) (*Node, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	var self digest.Identifier
	if _, err := randRead(self[:]); err != nil {
		return nil, fmt.Errorf("overlay: generate identifier: %w", err)
	}

	n := &Node{
		Self:      self,
		library:   lib,
		logger:    logger,
		directory: make(map[digest.Digest]map[string]Peer),
	}
	n.table = NewTable(self, n)

	listener, err := transport.Listen(addr, self)
	if err != nil {
		return nil, err
	}
	n.listener = listener
	return n, nil
}

// Addr returns the node's local listening address.
func (n *Node) Addr() string {
	return n.listener.Addr().String()
}

// Counters returns the number of messages sent and received so far. This is
// diagnostic only: no ordering guarantee is made between the two values.
func (n *Node) Counters() (sent, received uint64) {
	return n.sent.Load(), n.received.Load()
}

// Serve accepts inbound connections until ctx is canceled. Each connection
// is handled in its own goroutine; a connection that errors is logged and
// dropped, never torn down process-wide.
func (n *Node) Serve(ctx context.Context) error {
	for {
		conn, err := n.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.logger.Printf("overlay: accept: %v", err)
			continue
		}
		go n.serveConn(ctx, conn)
	}
}

// Close shuts down the node's listener.
func (n *Node) Close() error {
	return n.listener.Close()
}

func (n *Node) serveConn(ctx context.Context, conn *transport.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go n.serveStream(stream, Peer{ID: conn.RemoteID, Addr: udpAddrOf(conn.RemoteAddr)})
	}
}

func (n *Node) serveStream(stream interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}, from Peer,
) {
	defer stream.Close()

	req, err := wire.ReadRequest(stream)
	if err != nil {
		n.logger.Printf("overlay: read request from %s: %v", from, err)
		return
	}
	n.received.Add(1)
	n.table.Update(context.Background(), from)

	resp, err := n.handle(from, req)
	if err != nil {
		n.logger.Printf("overlay: request from %s: %v", from, err)
		if s, ok := stream.(interface{ CancelWrite(quic.StreamErrorCode) }); ok {
			s.CancelWrite(wire.AppErrorUnexpectedMessage)
		}
		return
	}
	if err := wire.WriteFrame(stream, &resp); err != nil {
		n.logger.Printf("overlay: write response to %s: %v", from, err)
		return
	}
	n.sent.Add(1)
}

func (n *Node) handle(from Peer, req wire.Request) (wire.Response, error) {
	set := 0
	for _, present := range []bool{req.Ping != nil, req.Search != nil, req.Get != nil, req.Announce != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return wire.Response{}, wire.ErrUnexpectedMessage
	}
	switch {
	case req.Ping != nil:
		return wire.Response{Pong: &wire.PongResponse{}}, nil
	case req.Search != nil:
		digests := make([]digest.Digest, 0, n.library.Len())
		for _, pkg := range n.library.All() {
			digests = append(digests, pkg.Hash)
		}
		return wire.Response{Search: &wire.SearchResponse{Digests: digests}}, nil
	case req.Get != nil:
		pkg, ok := n.library.Get(req.Get.Digest)
		if !ok {
			return wire.Response{NotFound: &wire.NotFoundResponse{}}, nil
		}
		return wire.Response{Manifest: &wire.ManifestResponse{Manifest: pkg.Manifest}}, nil
	case req.Announce != nil:
		n.recordProvider(req.Announce.Digest, from)
		return wire.Response{Ok: &wire.OkResponse{}}, nil
	default:
		return wire.Response{}, wire.ErrUnexpectedMessage
	}
}

// recordProvider notes that p claims to hold the content addressed by d.
// The directory is keyed by p.String() rather than p itself: Peer embeds
// net.UDPAddr, whose IP field is a []byte slice, so Peer is not a valid map
// key type.
func (n *Node) recordProvider(d digest.Digest, p Peer) {
	n.dirMu.Lock()
	defer n.dirMu.Unlock()
	set, ok := n.directory[d]
	if !ok {
		set = make(map[string]Peer)
		n.directory[d] = set
	}
	set[p.String()] = p
}

// Providers returns the peers known to have announced the given digest.
func (n *Node) Providers(d digest.Digest) []Peer {
	n.dirMu.Lock()
	defer n.dirMu.Unlock()
	set := n.directory[d]
	out := make([]Peer, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out
}

// roundTrip dials p if necessary, sends req on a new stream, and returns the
// decoded response.
func (n *Node) roundTrip(ctx context.Context, p Peer, req wire.Request) (wire.Response, error) {
	conn, err := transport.Dial(ctx, p.Addr.String(), n.Self, p.ID)
	if err != nil {
		return wire.Response{}, fmt.Errorf("overlay: dial %s: %w", p, err)
	}
	defer conn.Close()

	stream, err := conn.OpenStream(ctx)
	if err != nil {
		return wire.Response{}, fmt.Errorf("overlay: open stream to %s: %w", p, err)
	}
	defer stream.Close()

	if err := wire.WriteFrame(stream, &req); err != nil {
		return wire.Response{}, err
	}
	n.sent.Add(1)

	resp, err := wire.ReadResponse(stream)
	if err != nil {
		return wire.Response{}, err
	}
	n.received.Add(1)
	n.table.Update(ctx, p)
	return resp, nil
}

// Ping sends a ping request to p and returns an error if it does not
// receive a pong. It satisfies the pinger interface Table uses to vet
// candidates for eviction.
func (n *Node) Ping(ctx context.Context, p Peer) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	resp, err := n.roundTrip(ctx, p, wire.Request{Ping: &wire.PingRequest{}})
	if err != nil {
		return err
	}
	if resp.Pong == nil {
		return wire.ErrUnexpectedMessage
	}
	return nil
}

// Search asks the node identified by id for the digests of every package it
// holds. It reports found=false without contacting anyone if id is not
// known in the local routing table.
func (n *Node) Search(ctx context.Context, id digest.Identifier) (digests []digest.Digest, found bool, err error) {
	p, ok := n.table.Find(id)
	if !ok {
		return nil, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	resp, err := n.roundTrip(ctx, p, wire.Request{Search: &wire.SearchRequest{}})
	if err != nil {
		return nil, false, err
	}
	if resp.Search == nil {
		return nil, false, wire.ErrUnexpectedMessage
	}
	return resp.Search.Digests, true, nil
}

// Get asks the node identified by id for the manifest addressed by d. It
// reports found=false without contacting anyone if id is not known in the
// local routing table, and ok=false if the peer does not hold d.
func (n *Node) Get(ctx context.Context, id digest.Identifier, d digest.Digest) (m manifest.Manifest, found, ok bool, err error) {
	p, known := n.table.Find(id)
	if !known {
		return manifest.Manifest{}, false, false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	resp, err := n.roundTrip(ctx, p, wire.Request{Get: &wire.GetRequest{Digest: d}})
	if err != nil {
		return manifest.Manifest{}, true, false, err
	}
	switch {
	case resp.Manifest != nil:
		return resp.Manifest.Manifest, true, true, nil
	case resp.NotFound != nil:
		return manifest.Manifest{}, true, false, nil
	default:
		return manifest.Manifest{}, true, false, wire.ErrUnexpectedMessage
	}
}

// Announce tells the node identified by id that this node holds content
// addressed by d. It reports found=false without contacting anyone if id is
// not known in the local routing table.
func (n *Node) Announce(ctx context.Context, id digest.Identifier, d digest.Digest) (found bool, err error) {
	p, ok := n.table.Find(id)
	if !ok {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	resp, err := n.roundTrip(ctx, p, wire.Request{Announce: &wire.AnnounceRequest{Digest: d}})
	if err != nil {
		return true, err
	}
	if resp.Ok == nil {
		return true, wire.ErrUnexpectedMessage
	}
	return true, nil
}

// Peers returns a snapshot of every peer known across the routing table,
// for the /api/node diagnostic endpoint.
func (n *Node) Peers() []Peer {
	return n.table.All()
}

// RoutingTable returns a snapshot of the full bucket structure, for the
// /api/node diagnostic endpoint.
func (n *Node) RoutingTable() [BucketCount][]Peer {
	return n.table.Buckets()
}
