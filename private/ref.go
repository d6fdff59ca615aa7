package private

import (
	"fmt"

	"github.com/multiformats/go-multibase"

	"xdao.co/privatefs/accumulator"
)

const (
	refVersion = 1

	// RefSize is the length of a PrivateRef's binary form, version byte excluded.
	RefSize = 3 * 32
)

// PrivateRef is the capability to find and read one revision of one node,
// and every later revision reachable from it.
type PrivateRef struct {
	Label       accumulator.Label
	ContentKey  Key
	RevisionKey Key
}

func (r PrivateRef) IsZero() bool { return r == PrivateRef{} }

func (r PrivateRef) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 1+RefSize)
	out = append(out, refVersion)
	out = append(out, r.Label[:]...)
	out = append(out, r.ContentKey[:]...)
	out = append(out, r.RevisionKey[:]...)
	return out, nil
}

func (r *PrivateRef) UnmarshalBinary(b []byte) error {
	if len(b) != 1+RefSize {
		return fmt.Errorf("private: ref has %d bytes, want %d", len(b), 1+RefSize)
	}
	if b[0] != refVersion {
		return fmt.Errorf("private: unsupported ref version %d", b[0])
	}
	b = b[1:]
	copy(r.Label[:], b[0:32])
	copy(r.ContentKey[:], b[32:64])
	copy(r.RevisionKey[:], b[64:96])
	return nil
}

// String is the shareable text form (multibase base32). It contains secret
// keys; treat it like a password.
func (r PrivateRef) String() string {
	b, _ := r.MarshalBinary()
	s, err := multibase.Encode(multibase.Base32, b)
	if err != nil {
		return ""
	}
	return s
}

// ParseRef parses the text form produced by String. Any multibase encoding
// is accepted.
func ParseRef(s string) (PrivateRef, error) {
	_, b, err := multibase.Decode(s)
	if err != nil {
		return PrivateRef{}, fmt.Errorf("private: decode ref: %w", err)
	}
	var r PrivateRef
	if err := r.UnmarshalBinary(b); err != nil {
		return PrivateRef{}, err
	}
	return r, nil
}

// Redacted is safe to log.
func (r PrivateRef) Redacted() string {
	return "ref:" + r.Label.String()[:16]
}
