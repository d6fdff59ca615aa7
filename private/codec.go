package private

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/vmihailenco/msgpack"

	"xdao.co/privatefs/accumulator"
	"xdao.co/privatefs/internal/seal"
	"xdao.co/privatefs/layout"
)

// FormatVersion tags every node block.
const FormatVersion = 1

const (
	headerDomain  = "privatefs/node/header/v1"
	contentDomain = "privatefs/node/content/v1"
)

// envelope is the only plaintext structure in a node block.
type envelope struct {
	V int    `msgpack:"v"`
	H []byte `msgpack:"h"`
	C []byte `msgpack:"c"`
}

type headerWire struct {
	V       int      `msgpack:"v"`
	INumber []byte   `msgpack:"i"`
	Ratchet []byte   `msgpack:"r"`
	Name    [][]byte `msgpack:"n"`
}

type contentWire struct {
	V        int         `msgpack:"v"`
	Kind     uint8       `msgpack:"k"`
	Created  int64       `msgpack:"ct"`
	Modified int64       `msgpack:"mt"`
	Previous []prevWire  `msgpack:"p"`
	Entries  []entryWire `msgpack:"e,omitempty"`
	File     *fileWire   `msgpack:"f,omitempty"`
}

type prevWire struct {
	Steps uint64 `msgpack:"s"`
	CID   []byte `msgpack:"c"`
}

type entryWire struct {
	Name        string `msgpack:"n"`
	Kind        uint8  `msgpack:"k"`
	INumber     []byte `msgpack:"i"`
	Label       []byte `msgpack:"l"`
	ContentKey  []byte `msgpack:"ck"`
	RevisionKey []byte `msgpack:"rk"`
}

type fileWire struct {
	Size   int64       `msgpack:"s"`
	Inline []byte      `msgpack:"i,omitempty"`
	Layout *layoutWire `msgpack:"l,omitempty"`
}

type layoutWire struct {
	Root   []byte `msgpack:"r"`
	Depth  int    `msgpack:"d"`
	Chunks int    `msgpack:"n"`
	Key    []byte `msgpack:"k"`
}

// EncryptBlock serializes n canonically and seals it: the header under the
// revision key, the body under the content key. Equal nodes give equal bytes.
func EncryptBlock(n Node) ([]byte, error) {
	c := n.base()
	hb, err := encodeHeader(c.header)
	if err != nil {
		return nil, err
	}
	cb, err := encodeContent(n)
	if err != nil {
		return nil, err
	}
	rk := c.header.RevisionKey()
	env := envelope{
		V: FormatVersion,
		H: seal.Seal(rk, headerDomain, hb),
		C: seal.Seal(ContentKey(rk), contentDomain, cb),
	}
	return msgpack.Marshal(&env)
}

func encodeHeader(h Header) ([]byte, error) {
	rb, err := h.Ratchet.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&headerWire{
		V:       FormatVersion,
		INumber: h.INumber[:],
		Ratchet: rb,
		Name:    h.Name.Bytes(),
	})
}

func encodeContent(n Node) ([]byte, error) {
	c := n.base()
	prev := append([]PreviousLink(nil), c.previous...)
	sortPrevious(prev)

	w := contentWire{
		V:        FormatVersion,
		Kind:     uint8(n.Kind()),
		Created:  c.metadata.Created.Unix(),
		Modified: c.metadata.Modified.Unix(),
		Previous: make([]prevWire, len(prev)),
	}
	for i, p := range prev {
		w.Previous[i] = prevWire{Steps: p.Steps, CID: p.CID.Bytes()}
	}

	switch v := n.(type) {
	case *Directory:
		for _, name := range v.names() {
			e := v.entries[name]
			ref := e.currentRef()
			inum := e.inumber
			w.Entries = append(w.Entries, entryWire{
				Name:        name,
				Kind:        uint8(e.kind),
				INumber:     inum[:],
				Label:       ref.Label[:],
				ContentKey:  ref.ContentKey[:],
				RevisionKey: ref.RevisionKey[:],
			})
		}
	case *File:
		fw := &fileWire{Size: v.size}
		if v.external != nil {
			fw.Layout = &layoutWire{
				Root:   v.external.Root.CID.Bytes(),
				Depth:  v.external.Root.Depth,
				Chunks: v.external.Root.Chunks,
				Key:    append([]byte(nil), v.external.Key[:]...),
			}
		} else if len(v.inline) > 0 {
			fw.Inline = v.inline
		}
		w.File = fw
	default:
		return nil, fmt.Errorf("private: unknown node type %T", n)
	}
	return msgpack.Marshal(&w)
}

func decryptFailure(msg string, cause error) error {
	return wrapError(KindDecryptionFailure, msg, cause)
}

// DecryptBlock opens a node block with ref. It fails with
// KindDecryptionFailure when the block does not authenticate or does not
// parse, and with KindIdentityMismatch when the sealed header does not derive
// ref's label and keys.
func DecryptBlock(data []byte, ref PrivateRef) (Node, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, decryptFailure("malformed node envelope", err)
	}
	if env.V != FormatVersion {
		return nil, decryptFailure(fmt.Sprintf("unsupported node format version %d", env.V), nil)
	}

	hb, err := seal.Open(ref.RevisionKey, headerDomain, env.H)
	if err != nil {
		return nil, decryptFailure("open node header", err)
	}
	h, err := decodeHeader(hb)
	if err != nil {
		return nil, decryptFailure("malformed node header", err)
	}
	rk := h.RevisionKey()
	if h.Label() != ref.Label || !rk.Equal(ref.RevisionKey) || !ContentKey(rk).Equal(ref.ContentKey) {
		return nil, newError(KindIdentityMismatch, "node header does not match the capability used to open it")
	}

	cb, err := seal.Open(ref.ContentKey, contentDomain, env.C)
	if err != nil {
		return nil, decryptFailure("open node content", err)
	}
	var w contentWire
	if err := msgpack.Unmarshal(cb, &w); err != nil {
		return nil, decryptFailure("malformed node content", err)
	}
	if w.V != FormatVersion {
		return nil, decryptFailure(fmt.Sprintf("unsupported node content version %d", w.V), nil)
	}

	c := common{
		header:    h,
		metadata:  Metadata{Created: unixTime(w.Created), Modified: unixTime(w.Modified)},
		persisted: blockCID(data),
	}
	for _, p := range w.Previous {
		id, err := cid.Cast(p.CID)
		if err != nil {
			return nil, decryptFailure("malformed previous link", err)
		}
		c.previous = append(c.previous, PreviousLink{Steps: p.Steps, CID: id})
	}

	switch NodeKind(w.Kind) {
	case DirectoryNode:
		if w.File != nil {
			return nil, decryptFailure("directory block carries file content", nil)
		}
		d := &Directory{common: c, entries: make(map[string]entry, len(w.Entries))}
		for i, ew := range w.Entries {
			if i > 0 && w.Entries[i-1].Name >= ew.Name {
				return nil, decryptFailure("directory entries out of order", nil)
			}
			e, err := decodeEntry(ew)
			if err != nil {
				return nil, decryptFailure("malformed directory entry", err)
			}
			d.entries[ew.Name] = e
		}
		return d, nil

	case FileNode:
		if w.File == nil || len(w.Entries) > 0 {
			return nil, decryptFailure("malformed file content", nil)
		}
		f := &File{common: c, size: w.File.Size, inline: w.File.Inline}
		if lw := w.File.Layout; lw != nil {
			root, err := cid.Cast(lw.Root)
			if err != nil || len(lw.Key) != len(layout.Key{}) {
				return nil, decryptFailure("malformed file layout", err)
			}
			ext := &external{Root: layout.Root{CID: root, Depth: lw.Depth, Chunks: lw.Chunks, Size: w.File.Size}}
			copy(ext.Key[:], lw.Key)
			f.external = ext
			f.inline = nil
		} else if int64(len(f.inline)) != f.size {
			return nil, decryptFailure("inline content length mismatch", nil)
		}
		return f, nil
	}
	return nil, decryptFailure(fmt.Sprintf("unknown node kind %d", w.Kind), nil)
}

func decodeHeader(b []byte) (Header, error) {
	var w headerWire
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return Header{}, err
	}
	if w.V != FormatVersion {
		return Header{}, fmt.Errorf("unsupported header version %d", w.V)
	}
	var h Header
	if len(w.INumber) != len(h.INumber) {
		return Header{}, fmt.Errorf("inumber has %d bytes", len(w.INumber))
	}
	copy(h.INumber[:], w.INumber)
	if err := h.Ratchet.UnmarshalBinary(w.Ratchet); err != nil {
		return Header{}, err
	}
	name, err := accumulator.NameFromBytes(w.Name)
	if err != nil {
		return Header{}, err
	}
	h.Name = name
	return h, nil
}

func decodeEntry(w entryWire) (entry, error) {
	if err := checkName(w.Name); err != nil {
		return entry{}, err
	}
	var e entry
	if len(w.INumber) != 32 || len(w.Label) != 32 || len(w.ContentKey) != 32 || len(w.RevisionKey) != 32 {
		return entry{}, fmt.Errorf("entry %q has malformed fields", w.Name)
	}
	e.kind = NodeKind(w.Kind)
	if e.kind != DirectoryNode && e.kind != FileNode {
		return entry{}, fmt.Errorf("entry %q has unknown kind %d", w.Name, w.Kind)
	}
	copy(e.inumber[:], w.INumber)
	copy(e.ref.Label[:], w.Label)
	copy(e.ref.ContentKey[:], w.ContentKey)
	copy(e.ref.RevisionKey[:], w.RevisionKey)
	return e, nil
}

// sortedNames returns map keys in byte order.
func sortedNames(m map[string]entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
