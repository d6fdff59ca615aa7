package private

import (
	"io"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/ratchet"
)

// Header is the identity part of a node, sealed under the revision key.
type Header struct {
	INumber INumber
	Ratchet ratchet.Ratchet
	Name    accumulator.Name
}

// newHeader allocates an INumber and ratchet and derives the bare name as
// parent name plus the INumber's segment.
func newHeader(parent accumulator.Name, rng io.Reader) (Header, error) {
	inum, err := NewINumber(rng)
	if err != nil {
		return Header{}, err
	}
	r, err := ratchet.New(rng)
	if err != nil {
		return Header{}, wrapError(KindRandomnessExhausted, "seed ratchet", err)
	}
	return Header{INumber: inum, Ratchet: r, Name: parent.With(inum.Segment())}, nil
}

func (h Header) Label() accumulator.Label { return ComputeLabel(h.Name, h.Ratchet) }
func (h Header) RevisionKey() Key         { return RevisionKey(h.Ratchet) }
func (h Header) ContentKey() Key          { return ContentKey(h.RevisionKey()) }

// Ref is the capability for this header's revision.
func (h Header) Ref() PrivateRef {
	rk := h.RevisionKey()
	return PrivateRef{Label: h.Label(), ContentKey: ContentKey(rk), RevisionKey: rk}
}

// at returns a copy of h moved to another ratchet state.
func (h Header) at(r ratchet.Ratchet) Header {
	h.Ratchet = r
	return h
}

func (h Header) clone() Header {
	h.Name = accumulator.NewName(h.Name.Segments...)
	return h
}

func (h Header) equal(o Header) bool {
	return h.INumber == o.INumber && h.Ratchet == o.Ratchet && h.Name.Equal(o.Name)
}
