package private

import (
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/ratchet"
)

const (
	infoRevisionKey     = "privatefs/revision-key/v1"
	infoRevisionSegment = "privatefs/revision-segment/v1"
	contentKeyDomain    = "privatefs/content-key/v1"
	inumberDomain       = "privatefs/inumber/v1"
)

// Key is a 256-bit symmetric key.
type Key [32]byte

func (k Key) Equal(o Key) bool { return subtle.ConstantTimeCompare(k[:], o[:]) == 1 }

// INumber is a node's permanent random identity.
type INumber [32]byte

// NewINumber draws a fresh INumber from rng.
func NewINumber(rng io.Reader) (INumber, error) {
	var i INumber
	if _, err := io.ReadFull(rng, i[:]); err != nil {
		return INumber{}, wrapError(KindRandomnessExhausted, "read inumber", err)
	}
	return i, nil
}

// Segment is the name segment this INumber contributes to its node's name.
func (i INumber) Segment() accumulator.Segment {
	return accumulator.NewSegment(inumberDomain, i[:])
}

func (i INumber) String() string { return fmt.Sprintf("%x", i[:8]) }

func expand(secret [32]byte, info string) [32]byte {
	var out [32]byte
	r := hkdf.New(sha3.New256, secret[:], nil, []byte(info))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// HKDF only fails past 255 blocks of output.
		panic(err)
	}
	return out
}

// RevisionKey derives the key that seals a revision's header and lets the
// holder read every later revision.
func RevisionKey(r ratchet.Ratchet) Key {
	return Key(expand(r.Key(), infoRevisionKey))
}

// ContentKey derives the key for one revision's body from its revision key.
// It cannot be turned back into the revision key.
func ContentKey(revisionKey Key) Key {
	h := sha3.New256()
	h.Write([]byte(contentKeyDomain))
	h.Write(revisionKey[:])
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func revisionSegment(r ratchet.Ratchet) accumulator.Segment {
	return accumulator.Segment(expand(r.Key(), infoRevisionSegment))
}

// ComputeLabel is the forest address of the revision identified by a bare
// name and ratchet state.
func ComputeLabel(name accumulator.Name, r ratchet.Ratchet) accumulator.Label {
	return name.With(revisionSegment(r)).Label()
}
