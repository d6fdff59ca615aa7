// Package accumulator implements a commutative name accumulator over the
// ristretto255 group.
//
// A name is a list of segments. Accumulating a name multiplies the group
// generator by the hash-to-scalar of every segment, so the result does not
// depend on segment order and cannot be inverted back to the segments. The
// hash of the compressed result is the name's Label.
package accumulator

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/group"
	"golang.org/x/crypto/sha3"
)

var (
	g   = group.Ristretto255
	dst = []byte("privatefs/accumulator/v1")

	ErrInvalidElement = errors.New("accumulator: invalid element encoding")
)

// Segment is one element of a name.
type Segment [32]byte

// NewSegment derives a segment from arbitrary bytes under a domain string.
func NewSegment(domain string, b []byte) Segment {
	h := sha3.New256()
	h.Write([]byte(domain))
	h.Write(b)
	var s Segment
	copy(s[:], h.Sum(nil))
	return s
}

// RandomSegment draws a segment from rng.
func RandomSegment(rng io.Reader) (Segment, error) {
	var s Segment
	if _, err := io.ReadFull(rng, s[:]); err != nil {
		return Segment{}, fmt.Errorf("accumulator: read segment: %w", err)
	}
	return s, nil
}

func (s Segment) scalar() group.Scalar {
	return g.HashToScalar(s[:], dst)
}

// Accumulator is an element of the group. The zero value is not usable; start
// from Empty.
type Accumulator struct {
	e group.Element
}

// Empty is the accumulator of no segments (the generator).
func Empty() Accumulator {
	return Accumulator{e: g.Generator()}
}

// Witness proves that Segment was added on top of Base.
type Witness struct {
	Base    Accumulator
	Segment Segment
}

// Add returns the accumulator with seg included, and the witness for it.
func (a Accumulator) Add(seg Segment) (Accumulator, Witness) {
	out := g.NewElement().Mul(a.e, seg.scalar())
	return Accumulator{e: out}, Witness{Base: a, Segment: seg}
}

// Verify reports whether acc equals the witness base with the segment added.
func (w Witness) Verify(acc Accumulator) bool {
	if w.Base.e == nil || acc.e == nil {
		return false
	}
	got, _ := w.Base.Add(w.Segment)
	return got.Equal(acc)
}

func (a Accumulator) Equal(b Accumulator) bool {
	if a.e == nil || b.e == nil {
		return a.e == nil && b.e == nil
	}
	return a.e.IsEqual(b.e)
}

func (a Accumulator) MarshalBinary() ([]byte, error) {
	if a.e == nil {
		return nil, ErrInvalidElement
	}
	return a.e.MarshalBinaryCompress()
}

func (a *Accumulator) UnmarshalBinary(b []byte) error {
	e := g.NewElement()
	if err := e.UnmarshalBinary(b); err != nil {
		return ErrInvalidElement
	}
	a.e = e
	return nil
}

// Label hashes the compressed element.
func (a Accumulator) Label() Label {
	b, err := a.MarshalBinary()
	if err != nil {
		// Only the zero value fails to marshal.
		panic(err)
	}
	return Label(sha3.Sum256(b))
}

// Label is the public, unlinkable identifier derived from an accumulator.
type Label [32]byte

func (l Label) String() string { return hex.EncodeToString(l[:]) }

func (l Label) IsZero() bool { return l == Label{} }

// ParseLabel parses the hex form produced by String.
func ParseLabel(s string) (Label, error) {
	var l Label
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(l) {
		return Label{}, fmt.Errorf("accumulator: invalid label %q", s)
	}
	copy(l[:], b)
	return l, nil
}
