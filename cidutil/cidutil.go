package cidutil

import (
	"bytes"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
//
// Every block store in this module addresses blocks this way, so a block's
// address depends only on its bytes.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verify reports whether data hashes to id.
func Verify(id cid.Cid, data []byte) bool {
	got, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return false
	}
	return got.Equals(id)
}

// Compare orders CIDs by their binary form.
func Compare(a, b cid.Cid) int {
	return bytes.Compare(a.Bytes(), b.Bytes())
}

// Sort sorts ids in place by binary form.
func Sort(ids []cid.Cid) {
	sort.Slice(ids, func(i, j int) bool { return Compare(ids[i], ids[j]) < 0 })
}

// Dedup returns ids sorted by binary form with duplicates removed.
// The input slice is not modified.
func Dedup(ids []cid.Cid) []cid.Cid {
	out := append([]cid.Cid(nil), ids...)
	Sort(out)
	n := 0
	for i, id := range out {
		if i > 0 && id.Equals(out[n-1]) {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
