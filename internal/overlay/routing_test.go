package overlay

import (
	"context"
	"net"
	"testing"

	"go.mediahub.dev/mediahub/pkg/digest"
)

type fakePinger struct {
	alive map[digest.Identifier]bool
}

func (f fakePinger) Ping(_ context.Context, p Peer) error {
	if f.alive[p.ID] {
		return nil
	}
	return errPingFailed
}

var errPingFailed = fakePingError{}

type fakePingError struct{}

func (fakePingError) Error() string { return "ping failed" }

// peerWithID returns a peer whose identifier differs from the zero
// identifier only in byte index 5, with the top bit of that byte always
// set: every such identifier lands in the same routing table bucket
// relative to the zero identifier, which is what the fill/evict tests need.
func peerWithID(n int) Peer {
	var id digest.Identifier
	id[5] = byte(128 + n)
	return Peer{ID: id, Addr: net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 20000 + n}}
}

func TestTableUpdateFillsBucketThenEvictsDeadPeer(t *testing.T) {
	var self digest.Identifier // all zero, so every nonzero peer lands by its own high bit pattern

	alive := map[digest.Identifier]bool{}
	table := NewTable(self, fakePinger{alive: alive})

	// Fill one bucket with BucketSize peers that are all reachable.
	var filled []Peer
	for i := 1; i <= BucketSize; i++ {
		p := peerWithID(i)
		alive[p.ID] = true
		table.Update(context.Background(), p)
		filled = append(filled, p)
	}

	bucket := digest.DistanceBetween(self, filled[0].ID).Bucket()
	if got := len(table.buckets[bucket]); got != BucketSize {
		t.Fatalf("bucket size after filling = %d, want %d", got, BucketSize)
	}

	// Mark the oldest (first-inserted) peer as unreachable and offer a new
	// candidate landing in the same bucket; it should be evicted in favor of
	// the newcomer.
	oldest := filled[0]
	alive[oldest.ID] = false
	candidate := peerWithID(BucketSize + 1)
	alive[candidate.ID] = true

	table.Update(context.Background(), candidate)

	for _, p := range table.Routes(candidate.ID) {
		if p.ID == oldest.ID {
			t.Errorf("evicted peer %s still present in bucket", oldest.ID)
		}
	}
	found := false
	for _, p := range table.Routes(candidate.ID) {
		if p.ID == candidate.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("candidate %s not inserted after evicting dead peer", candidate.ID)
	}
}

func TestTableFind(t *testing.T) {
	var self digest.Identifier
	table := NewTable(self, fakePinger{alive: map[digest.Identifier]bool{}})

	p := peerWithID(1)
	table.Update(context.Background(), p)

	got, ok := table.Find(p.ID)
	if !ok || got.ID != p.ID {
		t.Errorf("Find(%s) = %v, %v, want %v, true", p.ID, got, ok, p)
	}

	if _, ok := table.Find(peerWithID(2).ID); ok {
		t.Error("Find(unknown) ok = true, want false")
	}
}

func TestTableUpdateKeepsLivePeerOverNewcomer(t *testing.T) {
	var self digest.Identifier
	alive := map[digest.Identifier]bool{}
	table := NewTable(self, fakePinger{alive: alive})

	var filled []Peer
	for i := 1; i <= BucketSize; i++ {
		p := peerWithID(i)
		alive[p.ID] = true
		table.Update(context.Background(), p)
		filled = append(filled, p)
	}

	candidate := peerWithID(BucketSize + 1)
	alive[candidate.ID] = true // oldest also still alive

	table.Update(context.Background(), candidate)

	for _, p := range table.Routes(candidate.ID) {
		if p.ID == candidate.ID {
			t.Errorf("newcomer %s admitted despite live bucket", candidate.ID)
		}
	}
}
