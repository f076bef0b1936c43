package overlay

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"go.mediahub.dev/mediahub/internal/library"
	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

func TestNodePingRoundTrip(t *testing.T) {
	a, err := New("127.0.0.1:0", library.New(nil), nil)
	if err != nil {
		t.Fatalf("New node a: %v", err)
	}
	defer a.Close()

	b, err := New("127.0.0.1:0", library.New(nil), nil)
	if err != nil {
		t.Fatalf("New node b: %v", err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx)
	go b.Serve(ctx)

	bAddr, err := net.ResolveUDPAddr("udp", b.Addr())
	if err != nil {
		t.Fatalf("resolve b addr: %v", err)
	}
	peerB := Peer{ID: b.Self, Addr: *bAddr}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := a.Ping(pingCtx, peerB); err != nil {
		t.Fatalf("a.Ping(b): %v", err)
	}

	routes := a.table.Routes(b.Self)
	found := false
	for _, p := range routes {
		if p.ID == b.Self {
			found = true
		}
	}
	if !found {
		t.Errorf("a's routing table does not contain b after a successful ping")
	}
}

func TestNodeSearchAndGet(t *testing.T) {
	indexHTML := []byte("<html></html>")
	m := manifest.Manifest{
		Name: "example",
		Media: manifest.Media{
			Type: manifest.KindApp,
			App: &manifest.AppMedia{
				Target: manifest.KindRoot,
				Paths:  map[string]digest.Digest{"index.html": digest.Sum(indexHTML)},
			},
		},
	}
	pkg, err := container.Load(bytes.NewReader(mustSavePackage(t, m, indexHTML)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	b, err := New("127.0.0.1:0", library.New([]*container.Package{pkg}), nil)
	if err != nil {
		t.Fatalf("New node b: %v", err)
	}
	defer b.Close()
	a, err := New("127.0.0.1:0", library.New(nil), nil)
	if err != nil {
		t.Fatalf("New node a: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Serve(ctx)
	go b.Serve(ctx)

	bAddr, err := net.ResolveUDPAddr("udp", b.Addr())
	if err != nil {
		t.Fatalf("resolve b addr: %v", err)
	}
	peerB := Peer{ID: b.Self, Addr: *bAddr}

	if err := a.Ping(context.Background(), peerB); err != nil {
		t.Fatalf("a.Ping(b): %v", err)
	}

	digests, found, err := a.Search(context.Background(), b.Self)
	if err != nil {
		t.Fatalf("a.Search(b): %v", err)
	}
	if !found {
		t.Fatal("a.Search(b): want found peer known in routing table")
	}
	if len(digests) != 1 || digests[0] != pkg.Hash {
		t.Errorf("a.Search(b) digests = %v, want [%s]", digests, pkg.Hash)
	}

	got, found, ok, err := a.Get(context.Background(), b.Self, pkg.Hash)
	if err != nil {
		t.Fatalf("a.Get(b, pkg.Hash): %v", err)
	}
	if !found || !ok {
		t.Fatalf("a.Get(b, pkg.Hash): found=%v ok=%v, want true, true", found, ok)
	}
	if got.Name != m.Name {
		t.Errorf("a.Get(b, pkg.Hash).Name = %q, want %q", got.Name, m.Name)
	}

	_, _, ok, err = a.Get(context.Background(), b.Self, digest.Digest{0xff})
	if err != nil {
		t.Fatalf("a.Get(b, unknown): %v", err)
	}
	if ok {
		t.Error("a.Get(b, unknown) ok = true, want false")
	}

	if _, found, err := a.Search(context.Background(), digest.Identifier{0xee}); err != nil || found {
		t.Errorf("a.Search(unknown id) = found=%v err=%v, want false, nil", found, err)
	}
}

func TestNodeProvidersTracksDistinctPeers(t *testing.T) {
	n, err := New("127.0.0.1:0", library.New(nil), nil)
	if err != nil {
		t.Fatalf("New node: %v", err)
	}
	defer n.Close()

	d := digest.Sum([]byte("content"))
	peerA := Peer{ID: digest.Identifier{0x01}, Addr: net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1111}}
	peerB := Peer{ID: digest.Identifier{0x02}, Addr: net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}}

	n.recordProvider(d, peerA)
	n.recordProvider(d, peerB)
	n.recordProvider(d, peerA) // re-announcing a known peer must not duplicate it

	providers := n.Providers(d)
	if len(providers) != 2 {
		t.Fatalf("Providers(d) = %v, want 2 distinct peers", providers)
	}
	seen := map[digest.Identifier]bool{}
	for _, p := range providers {
		seen[p.ID] = true
	}
	if !seen[peerA.ID] || !seen[peerB.ID] {
		t.Errorf("Providers(d) = %v, want both %s and %s", providers, peerA, peerB)
	}
}

func mustSavePackage(t *testing.T, m manifest.Manifest, indexHTML []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	files := []container.FileSource{{
		Digest: digest.Sum(indexHTML),
		Open: func() (io.ReadCloser, int64, error) {
			return io.NopCloser(bytes.NewReader(indexHTML)), int64(len(indexHTML)), nil
		},
	}}
	if err := container.Save(&buf, m, files); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return buf.Bytes()
}
