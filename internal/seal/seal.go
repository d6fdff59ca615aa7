// Package seal is deterministic authenticated encryption: the same key,
// domain and plaintext always give the same sealed bytes, so encrypted
// blocks stay content-addressable.
//
// The nonce is synthetic: the first 24 bytes of a BLAKE3 MAC of the domain
// and plaintext under the key. XChaCha20-Poly1305 does the encryption with
// the domain as associated data.
package seal

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/blake3"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSizeX
	Overhead  = NonceSize + chacha20poly1305.Overhead
)

// ErrOpen covers every reason a sealed box fails to open.
var ErrOpen = errors.New("seal: message authentication failed")

func nonce(key [KeySize]byte, domain string, plaintext []byte) []byte {
	h := blake3.New(32, key[:])
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(plaintext)
	return h.Sum(nil)[:NonceSize]
}

// Seal returns nonce || ciphertext.
func Seal(key [KeySize]byte, domain string, plaintext []byte) []byte {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		// Only a wrong key length fails, and the array type rules that out.
		panic(err)
	}
	n := nonce(key, domain, plaintext)
	out := make([]byte, 0, len(n)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, n...)
	return aead.Seal(out, n, plaintext, []byte(domain))
}

// Open reverses Seal. Besides the AEAD tag it checks that the nonce is the
// one Seal would have derived.
func Open(key [KeySize]byte, domain string, sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, ErrOpen
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic(err)
	}
	n, ct := sealed[:NonceSize], sealed[NonceSize:]
	pt, err := aead.Open(nil, n, ct, []byte(domain))
	if err != nil {
		return nil, ErrOpen
	}
	if subtle.ConstantTimeCompare(n, nonce(key, domain, pt)) != 1 {
		return nil, ErrOpen
	}
	return pt, nil
}
