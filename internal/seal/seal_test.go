package seal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealIsDeterministic(t *testing.T) {
	var k [KeySize]byte
	k[0] = 1
	a := Seal(k, "d", []byte("hello"))
	b := Seal(k, "d", []byte("hello"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, Seal(k, "d", []byte("hellp")))
	require.NotEqual(t, a, Seal(k, "e", []byte("hello")))
	require.Len(t, a, len("hello")+Overhead)
}

func TestOpen(t *testing.T) {
	var k, other [KeySize]byte
	k[0], other[0] = 1, 2
	box := Seal(k, "d", []byte("secret"))

	pt, err := Open(k, "d", box)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), pt)

	_, err = Open(other, "d", box)
	require.ErrorIs(t, err, ErrOpen)
	_, err = Open(k, "x", box)
	require.ErrorIs(t, err, ErrOpen)
	_, err = Open(k, "d", box[:5])
	require.ErrorIs(t, err, ErrOpen)

	tampered := bytes.Clone(box)
	tampered[len(tampered)-1] ^= 1
	_, err = Open(k, "d", tampered)
	require.ErrorIs(t, err, ErrOpen)
}

func TestEmptyPlaintext(t *testing.T) {
	var k [KeySize]byte
	pt, err := Open(k, "d", Seal(k, "d", nil))
	require.NoError(t, err)
	require.Empty(t, pt)
}
