// Package digest provides the fixed-width content digest and node identifier
// used throughout mediahub, along with the XOR distance metric the overlay
// routing table is built on.
package digest

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	godigest "github.com/opencontainers/go-digest"
)

// Size is the width, in bytes, of every Digest and Identifier.
const Size = 32

// Digest identifies a byte string by the SHA-256 hash of its content. The
// zero Digest is never produced by Sum and is not a valid content address.
type Digest [Size]byte

// Sum returns the Digest of b.
func Sum(b []byte) Digest {
	return digestFromGoDigest(godigest.Canonical.FromBytes(b))
}

// NewDigester returns a streaming hasher matching Sum's algorithm, for
// callers that cannot buffer the full content in memory.
func NewDigester() godigest.Digester {
	return godigest.Canonical.Digester()
}

// FromGoDigest converts a go-digest Digest computed with the Canonical
// algorithm into a Digest.
func FromGoDigest(gd godigest.Digest) Digest {
	return digestFromGoDigest(gd)
}

func digestFromGoDigest(gd godigest.Digest) Digest {
	decoded, err := hex.DecodeString(gd.Encoded())
	if err != nil || len(decoded) != Size {
		// go-digest's Canonical algorithm is SHA-256, which always yields a
		// 32-byte hex-encoded digest; this cannot happen.
		panic(fmt.Sprintf("digest: unexpected canonical digest %q", gd))
	}
	var d Digest
	copy(d[:], decoded)
	return d
}

// Verifier returns a godigest.Verifier pre-seeded for this Digest's
// algorithm, for streaming verification of content as it is read.
func (d Digest) Verifier() godigest.Verifier {
	return godigest.Digest("sha256:" + hex.EncodeToString(d[:])).Verifier()
}

// String returns the lowercase hexadecimal encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Compare returns -1, 0, or 1 as d is lexicographically less than, equal to,
// or greater than other, giving Digest a total order.
func (d Digest) Compare(other Digest) int {
	for i := range d {
		if d[i] != other[i] {
			if d[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Parse decodes a lowercase hexadecimal string into a Digest.
func Parse(s string) (Digest, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: parse %q: %w", s, err)
	}
	if len(decoded) != Size {
		return Digest{}, fmt.Errorf("digest: parse %q: want %d bytes, got %d", s, Size, len(decoded))
	}
	var d Digest
	copy(d[:], decoded)
	return d, nil
}

// MarshalText implements encoding.TextMarshaler, so a Digest round-trips
// through JSON and other text-based formats without a custom codec.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalCBOR implements cbor.Marshaler, encoding a Digest as the raw
// 32-byte string the wire protocol and manifest format require (spec.md §6),
// taking precedence over MarshalText so CBOR output never degrades to a
// hex text string.
func (d Digest) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (d *Digest) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("digest: decode cbor: %w", err)
	}
	if len(raw) != Size {
		return fmt.Errorf("digest: decode cbor: want %d bytes, got %d", Size, len(raw))
	}
	copy(d[:], raw)
	return nil
}

// Identifier is a node's identity in the overlay. It shares Digest's
// representation and total order, but is never the digest of anything; it is
// drawn from uniform random bytes at node startup.
type Identifier = Digest
