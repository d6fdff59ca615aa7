// Package ratchet implements a skip ratchet: a hash-chain key schedule that
// can be advanced one step or jumped forward by many steps cheaply.
//
// The state has three chains. Each small step hashes the small chain; after
// 256 small steps the medium chain advances and the small chain is re-derived
// from it, and likewise the large chain after 256 medium steps. A state is
// therefore a coordinate (large epoch, medium, small) in steps of
// 65536, 256 and 1.
//
// Backward secrecy holds across large epochs only. A state carries the
// current large value, from which the first medium and small values of the
// epoch are re-derived, so its holder can compute every earlier state of the
// current large epoch (at most 65535 steps back). States of earlier large
// epochs cannot be computed. The fields are unexported; a state leaves the
// package only through MarshalBinary.
package ratchet

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

const (
	// Size is the length of the binary encoding.
	Size = 32*4 + 2

	mediumSteps = 256
	largeSteps  = mediumSteps * mediumSteps

	// DefaultMaxLargeSteps bounds Compare's search along the large chain.
	DefaultMaxLargeSteps = 100_000
)

var (
	// ErrUnknown means two ratchets could not be related within the search
	// bound, or belong to different chains.
	ErrUnknown      = errors.New("ratchet: states are not related within search bound")
	ErrInvalidState = errors.New("ratchet: invalid encoded state")
)

type Ratchet struct {
	salt          [32]byte
	large         [32]byte
	medium        [32]byte
	mediumCounter uint8
	small         [32]byte
	smallCounter  uint8
}

func hash(b [32]byte) [32]byte { return sha3.Sum256(b[:]) }

func hashN(b [32]byte, n uint64) [32]byte {
	for ; n > 0; n-- {
		b = hash(b)
	}
	return b
}

func compl(b [32]byte) [32]byte {
	for i := range b {
		b[i] = ^b[i]
	}
	return b
}

// New draws a fresh salt and seed from rng.
func New(rng io.Reader) (Ratchet, error) {
	var salt, seed [32]byte
	if _, err := io.ReadFull(rng, salt[:]); err != nil {
		return Ratchet{}, fmt.Errorf("ratchet: read salt: %w", err)
	}
	if _, err := io.ReadFull(rng, seed[:]); err != nil {
		return Ratchet{}, fmt.Errorf("ratchet: read seed: %w", err)
	}
	return Zero(salt, seed), nil
}

// Zero returns the first state of the chain identified by salt and seed.
func Zero(salt, seed [32]byte) Ratchet {
	r := Ratchet{salt: salt, large: sha3.Sum256(seed[:])}
	r.resetMedium()
	return r
}

func (r *Ratchet) resetMedium() {
	r.medium = hash(compl(r.large))
	r.mediumCounter = 0
	r.resetSmall()
}

func (r *Ratchet) resetSmall() {
	r.small = hash(compl(r.medium))
	r.smallCounter = 0
}

// Inc advances one step.
func (r *Ratchet) Inc() {
	if r.smallCounter < mediumSteps-1 {
		r.small = hash(r.small)
		r.smallCounter++
		return
	}
	if r.mediumCounter < mediumSteps-1 {
		r.medium = hash(r.medium)
		r.mediumCounter++
		r.resetSmall()
		return
	}
	r.large = hash(r.large)
	r.resetMedium()
}

// Skip advances n steps. Cost is bounded by the number of chain hashes at
// each level, not by n.
func (r *Ratchet) Skip(n uint64) {
	if n == 0 {
		return
	}
	pos := r.position()
	target := pos + n

	if target < largeSteps {
		m, s := target/mediumSteps, target%mediumSteps
		if m == uint64(r.mediumCounter) {
			r.small = hashN(r.small, s-uint64(r.smallCounter))
			r.smallCounter = uint8(s)
			return
		}
		r.medium = hashN(r.medium, m-uint64(r.mediumCounter))
		r.mediumCounter = uint8(m)
		r.resetSmall()
		r.small = hashN(r.small, s)
		r.smallCounter = uint8(s)
		return
	}

	r.large = hashN(r.large, target/largeSteps)
	rem := target % largeSteps
	r.resetMedium()
	r.medium = hashN(r.medium, rem/mediumSteps)
	r.mediumCounter = uint8(rem / mediumSteps)
	r.resetSmall()
	r.small = hashN(r.small, rem%mediumSteps)
	r.smallCounter = uint8(rem % mediumSteps)
}

// position is the offset within the current large epoch.
func (r Ratchet) position() uint64 {
	return uint64(r.mediumCounter)*mediumSteps + uint64(r.smallCounter)
}

// Key derives the 32-byte key for this state. Keys of distinct states are
// unrelated to each other.
func (r Ratchet) Key() [32]byte {
	var mixed [32]byte
	for i := range mixed {
		mixed[i] = r.large[i] ^ r.medium[i] ^ r.small[i]
	}
	h := sha3.New256()
	h.Write(r.salt[:])
	h.Write(mixed[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (r Ratchet) Equal(o Ratchet) bool { return r == o }

// Next returns the state one step ahead, leaving r unchanged.
func (r Ratchet) Next() Ratchet {
	r.Inc()
	return r
}

// Skipped returns the state n steps ahead, leaving r unchanged.
func (r Ratchet) Skipped(n uint64) Ratchet {
	r.Skip(n)
	return r
}

// Compare returns the number of steps from r to other: positive when other is
// ahead, negative when it is behind. maxLargeSteps bounds the search along
// the large chain in each direction; ErrUnknown is returned when the states
// are unrelated or too far apart.
func (r Ratchet) Compare(other Ratchet, maxLargeSteps int) (int64, error) {
	if r.salt != other.salt {
		return 0, ErrUnknown
	}
	if r == other {
		return 0, nil
	}
	if d, ok := forwardDistance(r, other, maxLargeSteps); ok {
		return d, nil
	}
	if d, ok := forwardDistance(other, r, maxLargeSteps); ok {
		return -d, nil
	}
	return 0, ErrUnknown
}

// forwardDistance finds d >= 0 with from.Skipped(d) == to.
func forwardDistance(from, to Ratchet, maxLargeSteps int) (int64, bool) {
	large := from.large
	for k := 0; k <= maxLargeSteps; k++ {
		if large == to.large {
			d := int64(k)*largeSteps + int64(to.position()) - int64(from.position())
			if d < 0 {
				return 0, false
			}
			return d, from.Skipped(uint64(d)) == to
		}
		large = hash(large)
	}
	return 0, false
}

func (r Ratchet) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, Size)
	out = append(out, r.salt[:]...)
	out = append(out, r.large[:]...)
	out = append(out, r.medium[:]...)
	out = append(out, r.mediumCounter)
	out = append(out, r.small[:]...)
	out = append(out, r.smallCounter)
	return out, nil
}

func (r *Ratchet) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return ErrInvalidState
	}
	copy(r.salt[:], b[0:32])
	copy(r.large[:], b[32:64])
	copy(r.medium[:], b[64:96])
	r.mediumCounter = b[96]
	copy(r.small[:], b[97:129])
	r.smallCounter = b[129]
	return nil
}
