// Package transport wraps quic-go to provide the overlay's stream
// transport: a QUIC connection whose handshake carries and asserts each
// side's node identifier in a self-signed certificate. Certificate
// verification is disabled, so an identifier is whatever the peer claims.
// The record layer is quic-go's standard TLS 1.3 packet protection; it is
// not replaced by a pass-through layer (see the design notes on the
// identity-bound handshake).
package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"go.mediahub.dev/mediahub/pkg/digest"
)

// identityALPN is the ALPN protocol identifier the overlay negotiates. A
// fixed value is fine; this transport is never exposed to the public
// internet or relied on for protocol negotiation.
const identityALPN = "mediahub/1"

// handshakeTimeout bounds how long a connection attempt or stream
// acceptance from a not-yet-verified peer may take.
const handshakeTimeout = 10 * time.Second

// Conn is an established connection to a peer, with that peer's asserted
// identifier available once the handshake completes.
type Conn struct {
	quicConn   quic.Connection
	RemoteID   digest.Identifier
	RemoteAddr net.Addr
}

// OpenStream opens a new bidirectional stream on the connection.
func (c *Conn) OpenStream(ctx context.Context) (quic.Stream, error) {
	return c.quicConn.OpenStreamSync(ctx)
}

// AcceptStream waits for the peer to open a new bidirectional stream.
func (c *Conn) AcceptStream(ctx context.Context) (quic.Stream, error) {
	return c.quicConn.AcceptStream(ctx)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.quicConn.CloseWithError(0, "")
}

// Listener accepts inbound overlay connections.
type Listener struct {
	self digest.Identifier
	ql   *quic.Listener
}

// Listen opens a QUIC listener bound to addr, identifying this node as self
// to every peer that connects.
func Listen(addr string, self digest.Identifier) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}

	tlsConf, err := identityTLSConfig(self)
	if err != nil {
		udpConn.Close()
		return nil, err
	}
	// The overlay's handshake asserts the peer's identifier on both sides
	// (spec.md §4.3.1), so the server side must request and accept the
	// client's self-signed identity certificate, not just present its own.
	tlsConf.ClientAuth = tls.RequireAnyClientCert

	ql, err := quic.Listen(udpConn, tlsConf, identityQUICConfig())
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("transport: quic listen: %w", err)
	}
	return &Listener{self: self, ql: ql}, nil
}

// Addr returns the listener's local address.
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// Accept waits for and returns the next inbound connection, asserting that
// the peer presented a well-formed identifier during the handshake.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	qc, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, err
	}
	remoteID, err := peerIdentifierFromConn(qc)
	if err != nil {
		qc.CloseWithError(0, "")
		return nil, fmt.Errorf("transport: inbound handshake: %w", err)
	}
	return &Conn{quicConn: qc, RemoteID: remoteID, RemoteAddr: qc.RemoteAddr()}, nil
}

// Close closes the listener.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// Dial opens a connection to a peer at addr, asserting that it presents
// wantID as its identifier during the handshake.
func Dial(ctx context.Context, addr string, self, wantID digest.Identifier) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}

	tlsConf, err := identityTLSConfig(self)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	qc, err := quic.DialAddr(dialCtx, udpAddr.String(), tlsConf, identityQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", addr, err)
	}

	remoteID, err := peerIdentifierFromConn(qc)
	if err != nil {
		qc.CloseWithError(0, "")
		return nil, fmt.Errorf("transport: outbound handshake: %w", err)
	}
	if !wantID.IsZero() && remoteID != wantID {
		qc.CloseWithError(0, "")
		return nil, fmt.Errorf("transport: peer identified as %s, expected %s", remoteID, wantID)
	}

	return &Conn{quicConn: qc, RemoteID: remoteID, RemoteAddr: qc.RemoteAddr()}, nil
}

func identityQUICConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: handshakeTimeout,
		KeepAlivePeriod:      30 * time.Second,
	}
}

// identityTLSConfig builds a TLS configuration whose only purpose is to
// carry self's identifier to the peer and accept whatever identifier the
// peer presents in turn: certificate verification is disabled, because the
// protocol's trust model is "the identifier is whatever the peer claims,"
// not "the identifier is backed by a certificate authority." This is the
// practical stand-in, on top of real quic-go, for an "identity function"
// record layer: quic-go does not expose a pluggable
// AEAD, so the weakening is expressed at the TLS layer instead by disabling
// verification rather than by a no-op cipher (see design notes).
func identityTLSConfig(self digest.Identifier) (*tls.Config, error) {
	cert, err := selfSignedCert(self)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		NextProtos:         []string{identityALPN},
		MinVersion:         tls.VersionTLS13,
	}, nil
}

// selfSignedCert returns a short-lived certificate whose subject common
// name is the node's hex identifier, so the peer can read it back out of
// the handshake without a side channel.
func selfSignedCert(self digest.Identifier) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: generate key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: self.String()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("transport: create certificate: %w", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// peerIdentifierFromConn reads the peer's asserted identifier back out of
// the already-completed TLS handshake's peer certificate.
func peerIdentifierFromConn(qc quic.Connection) (digest.Identifier, error) {
	state := qc.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return digest.Identifier{}, fmt.Errorf("transport: no peer certificate presented")
	}
	return digest.Parse(state.PeerCertificates[0].Subject.CommonName)
}
