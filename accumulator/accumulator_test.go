package accumulator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func seg(s string) Segment { return NewSegment("test", []byte(s)) }

func TestAccumulateIsOrderIndependent(t *testing.T) {
	a := NewName(seg("a"), seg("b"), seg("c"))
	b := NewName(seg("c"), seg("a"), seg("b"))
	require.True(t, a.Accumulate().Equal(b.Accumulate()))
	require.Equal(t, a.Label(), b.Label())
	require.False(t, a.Equal(b))
}

func TestAccumulateMatchesIncrementalAdd(t *testing.T) {
	n := NewName(seg("root"), seg("x"), seg("y"))
	acc := Empty()
	for _, s := range n.Segments {
		acc, _ = acc.Add(s)
	}
	require.True(t, acc.Equal(n.Accumulate()))
}

func TestWitness(t *testing.T) {
	base := NewName(seg("p")).Accumulate()
	acc, w := base.Add(seg("child"))
	require.True(t, w.Verify(acc))

	other, _ := base.Add(seg("other"))
	require.False(t, w.Verify(other))
	require.False(t, Witness{Segment: seg("child")}.Verify(acc))
}

func TestLabelsDistinct(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seen := make(map[Label]int, 10_000)
	for i := 0; i < 10_000; i++ {
		s, err := RandomSegment(rng)
		require.NoError(t, err)
		l := NewName(seg("root"), s).Label()
		prev, dup := seen[l]
		require.False(t, dup, "collision between %d and %d", prev, i)
		seen[l] = i
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	acc := NewName(seg("a")).Accumulate()
	b, err := acc.MarshalBinary()
	require.NoError(t, err)

	var got Accumulator
	require.NoError(t, got.UnmarshalBinary(b))
	require.True(t, acc.Equal(got))
	require.Error(t, got.UnmarshalBinary([]byte("short")))
}

func TestParseLabel(t *testing.T) {
	l := NewName(seg("z")).Label()
	got, err := ParseLabel(l.String())
	require.NoError(t, err)
	require.Equal(t, l, got)

	for _, bad := range []string{"", "zz", fmt.Sprintf("%x", []byte{1, 2})} {
		_, err := ParseLabel(bad)
		require.Error(t, err)
	}
}

func TestNameBytesRoundTrip(t *testing.T) {
	n := NewName(seg("a"), seg("b"))
	got, err := NameFromBytes(n.Bytes())
	require.NoError(t, err)
	require.True(t, n.Equal(got))

	_, err = NameFromBytes([][]byte{{1, 2, 3}})
	require.Error(t, err)
}
