package accumulator

// Name is an ordered list of segments. Order matters for equality and
// encoding but not for the accumulated value.
type Name struct {
	Segments []Segment
}

func NewName(segs ...Segment) Name {
	return Name{Segments: append([]Segment(nil), segs...)}
}

// With returns a copy of n extended by segs.
func (n Name) With(segs ...Segment) Name {
	out := make([]Segment, 0, len(n.Segments)+len(segs))
	out = append(out, n.Segments...)
	out = append(out, segs...)
	return Name{Segments: out}
}

func (n Name) Len() int { return len(n.Segments) }

func (n Name) Equal(o Name) bool {
	if len(n.Segments) != len(o.Segments) {
		return false
	}
	for i := range n.Segments {
		if n.Segments[i] != o.Segments[i] {
			return false
		}
	}
	return true
}

// Accumulate folds all segments into Empty.
func (n Name) Accumulate() Accumulator {
	s := g.NewScalar().SetUint64(1)
	for _, seg := range n.Segments {
		s = s.Mul(s, seg.scalar())
	}
	return Accumulator{e: g.NewElement().MulGen(s)}
}

// Label is shorthand for n.Accumulate().Label().
func (n Name) Label() Label {
	return n.Accumulate().Label()
}

// Bytes flattens the segments; used for encoding.
func (n Name) Bytes() [][]byte {
	out := make([][]byte, len(n.Segments))
	for i := range n.Segments {
		out[i] = append([]byte(nil), n.Segments[i][:]...)
	}
	return out
}

// NameFromBytes is the inverse of Bytes.
func NameFromBytes(bs [][]byte) (Name, error) {
	segs := make([]Segment, len(bs))
	for i, b := range bs {
		if len(b) != len(Segment{}) {
			return Name{}, ErrInvalidElement
		}
		copy(segs[i][:], b)
	}
	return Name{Segments: segs}, nil
}
