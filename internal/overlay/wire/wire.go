// Package wire implements the overlay's on-stream framing: a little-endian
// u16 length prefix followed by a CBOR-encoded request or response, and the
// externally-tagged, snake_case request/response union itself.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"go.mediahub.dev/mediahub/pkg/digest"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

// PeerAddr is the wire representation of a routing table entry: a node
// identifier and the socket address it was last seen at.
type PeerAddr struct {
	ID   digest.Identifier `cbor:"id"`
	IP   string            `cbor:"ip"`
	Port int               `cbor:"port"`
}

// Request is the externally-tagged union of every request kind the overlay
// protocol defines. Exactly one field is non-nil.
type Request struct {
	Ping     *PingRequest     `cbor:"ping,omitempty"`
	Search   *SearchRequest   `cbor:"search,omitempty"`
	Get      *GetRequest      `cbor:"get,omitempty"`
	Announce *AnnounceRequest `cbor:"announce,omitempty"`
}

// PingRequest carries no data; a reply proves liveness and lets both sides
// learn or refresh each other's routing table entry.
type PingRequest struct{}

// SearchRequest carries no data; it asks a peer to enumerate the digests of
// every package it holds locally.
type SearchRequest struct{}

// GetRequest asks a peer to return the manifest for a given package digest.
type GetRequest struct {
	Digest digest.Digest `cbor:"digest"`
}

// AnnounceRequest advertises that the sender holds content addressed by
// Digest, for the advisory provider directory.
type AnnounceRequest struct {
	Digest digest.Digest `cbor:"digest"`
}

// Response is the externally-tagged union of every response kind.
type Response struct {
	Pong     *PongResponse     `cbor:"pong,omitempty"`
	Search   *SearchResponse   `cbor:"search,omitempty"`
	Manifest *ManifestResponse `cbor:"manifest,omitempty"`
	NotFound *NotFoundResponse `cbor:"not_found,omitempty"`
	Ok       *OkResponse       `cbor:"ok,omitempty"`
}

// PongResponse is the reply to PingRequest.
type PongResponse struct{}

// SearchResponse is the reply to SearchRequest: the responder's local
// package digests.
type SearchResponse struct {
	Digests []digest.Digest `cbor:"digests"`
}

// ManifestResponse is the successful reply to GetRequest.
type ManifestResponse struct {
	Manifest manifest.Manifest `cbor:"manifest"`
}

// NotFoundResponse is the reply to GetRequest when the digest is unknown.
type NotFoundResponse struct{}

// OkResponse is the reply to AnnounceRequest.
type OkResponse struct{}

// maxFrameLength bounds a single CBOR frame's body to what a u16 length
// prefix can express.
const maxFrameLength = math.MaxUint16

// WriteFrame writes v (a *Request or *Response) to w as a length-prefixed
// CBOR frame.
func WriteFrame(w io.Writer, v interface{}) error {
	body, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	if len(body) > maxFrameLength {
		return fmt.Errorf("wire: frame too large: %d bytes", len(body))
	}

	var lengthPrefix [2]byte
	binary.LittleEndian.PutUint16(lengthPrefix[:], uint16(len(body)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadRequest reads one length-prefixed Request frame from r.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	err := readFrame(r, &req)
	return req, err
}

// ReadResponse reads one length-prefixed Response frame from r.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := readFrame(r, &resp)
	return resp, err
}

func readFrame(r io.Reader, v interface{}) error {
	var lengthPrefix [2]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return fmt.Errorf("wire: read frame length: %w", err)
	}
	length := binary.LittleEndian.Uint16(lengthPrefix[:])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("wire: read frame body: %w", err)
	}
	if err := cbor.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}

// ErrUnexpectedMessage is the application error surfaced when a frame
// arrives that is not a valid reply to the request that was sent, or not a
// request the receiver recognizes as well-formed (exactly one variant set).
var ErrUnexpectedMessage = fmt.Errorf("wire: unexpected message")

// AppErrorUnexpectedMessage is the QUIC application error code a node uses
// to close a stream whose request it rejects with ErrUnexpectedMessage. A
// reply of the wrong kind is reported to the caller as ErrUnexpectedMessage
// after the stream has already closed normally.
const AppErrorUnexpectedMessage = 1
