package overlay

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.mediahub.dev/mediahub/pkg/digest"
)

// BucketSize is the maximum number of peers held in any one routing table
// bucket (Kademlia's K).
const BucketSize = 20

// BucketCount is the number of buckets in a routing Table, one per possible
// XOR distance bit-length plus one for the zero distance.
const BucketCount = digest.BucketCount

// pinger pings a peer to check whether it is still reachable. Node supplies
// the real implementation over the overlay transport; tests supply a fake.
type pinger interface {
	Ping(ctx context.Context, p Peer) error
}

// Table is a Kademlia-style routing table keyed by XOR distance to self. It
// is safe for concurrent use.
type Table struct {
	self    digest.Identifier
	pinger  pinger
	mu      sync.RWMutex
	buckets [BucketCount][]Peer
}

// NewTable returns an empty Table for the node identified by self. Liveness
// checks performed while evicting stale entries are issued through p.
func NewTable(self digest.Identifier, p pinger) *Table {
	return &Table{self: self, pinger: p}
}

// Routes returns up to BucketSize peers nearest to id, sorted ascending by
// XOR distance. It traverses the local bucket holding id's own distance
// from self, then the lower buckets in descending order, then the higher
// buckets in ascending order, retaining the BucketSize closest peers
// encountered (spec.md §4.3.4).
func (t *Table) Routes(id digest.Identifier) []Peer {
	local := digest.DistanceBetween(t.self, id).Bucket()

	t.mu.RLock()
	ordered := make([]Peer, 0, BucketCount*BucketSize)
	ordered = append(ordered, t.buckets[local]...)
	for b := local - 1; b >= 0; b-- {
		ordered = append(ordered, t.buckets[b]...)
	}
	for b := local + 1; b < BucketCount; b++ {
		ordered = append(ordered, t.buckets[b]...)
	}
	t.mu.RUnlock()

	return nearest(id, ordered, BucketSize)
}

// All returns a copy of every peer currently held across every bucket, in
// no particular order, for diagnostic reporting.
func (t *Table) All() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Peer, 0, BucketCount*BucketSize)
	for _, bucket := range t.buckets {
		out = append(out, bucket...)
	}
	return out
}

// nearest returns up to n of peers sorted ascending by XOR distance to id.
// It keeps a size-bounded max-heap of the closest candidates seen so far:
// each new peer is admitted only if it beats the current worst of the n
// kept, which is then evicted to make room.
func nearest(id digest.Identifier, peers []Peer, n int) []Peer {
	h := &peerHeap{id: id}
	for _, p := range peers {
		if h.Len() < n {
			heap.Push(h, p)
			continue
		}
		if digest.DistanceBetween(id, p.ID).Less(digest.DistanceBetween(id, h.worst().ID)) {
			heap.Pop(h)
			heap.Push(h, p)
		}
	}
	out := make([]Peer, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Peer)
	}
	return out
}

// peerHeap is a max-heap of peers ordered by XOR distance to id, so the
// farthest candidate currently kept is always at the root and is the first
// one evicted when a closer peer is found.
type peerHeap struct {
	id   digest.Identifier
	data []Peer
}

func (h *peerHeap) Len() int { return len(h.data) }
func (h *peerHeap) Less(i, j int) bool {
	return digest.DistanceBetween(h.id, h.data[j].ID).Less(digest.DistanceBetween(h.id, h.data[i].ID))
}
func (h *peerHeap) Swap(i, j int) { h.data[i], h.data[j] = h.data[j], h.data[i] }
func (h *peerHeap) Push(x interface{}) {
	h.data = append(h.data, x.(Peer))
}
func (h *peerHeap) Pop() interface{} {
	old := h.data
	n := len(old)
	v := old[n-1]
	h.data = old[:n-1]
	return v
}
func (h *peerHeap) worst() Peer { return h.data[0] }

// Find returns the peer with the given identifier, if the table holds one,
// by a linear scan of every bucket.
func (t *Table) Find(id digest.Identifier) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, bucket := range t.buckets {
		for _, p := range bucket {
			if p.ID == id {
				return p, true
			}
		}
	}
	return Peer{}, false
}

// Buckets returns a copy of every bucket in the table, indexed the same way
// as the table itself, for diagnostic reporting.
func (t *Table) Buckets() [BucketCount][]Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out [BucketCount][]Peer
	for i, bucket := range t.buckets {
		out[i] = append([]Peer(nil), bucket...)
	}
	return out
}

// Update records that p was just seen alive, inserting it into its bucket
// or moving it to the most-recently-seen end if already present. If the
// bucket is full, the least-recently-seen entry is pinged (with the write
// lock released, so a slow ping doesn't stall other lookups) before deciding
// whether to evict it in favor of p.
func (t *Table) Update(ctx context.Context, p Peer) {
	if p.ID == t.self {
		return
	}
	bucket := digest.DistanceBetween(t.self, p.ID).Bucket()

	t.mu.Lock()
	entries := t.buckets[bucket]
	for i, existing := range entries {
		if existing.ID == p.ID {
			entries = append(entries[:i], entries[i+1:]...)
			t.buckets[bucket] = append(entries, p)
			t.mu.Unlock()
			return
		}
	}

	if len(entries) < BucketSize {
		t.buckets[bucket] = append(entries, p)
		t.mu.Unlock()
		return
	}

	oldest := entries[0]
	t.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	err := t.pinger.Ping(pingCtx, oldest)
	cancel()

	t.mu.Lock()
	defer t.mu.Unlock()
	entries = t.buckets[bucket]
	if len(entries) == 0 {
		return
	}
	if err != nil {
		// oldest did not answer; drop it and welcome the new peer.
		rest := entries
		for i, existing := range rest {
			if existing.ID == oldest.ID {
				rest = append(rest[:i], rest[i+1:]...)
				break
			}
		}
		t.buckets[bucket] = append(rest, p)
		return
	}
	// oldest is still alive; it keeps its place and moves to
	// most-recently-seen, and the new peer is dropped.
	for i, existing := range entries {
		if existing.ID == oldest.ID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	t.buckets[bucket] = append(entries, oldest)
}

// rpcTimeout bounds every overlay RPC the node issues on its own behalf.
const rpcTimeout = 5 * time.Second
