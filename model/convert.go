package model

import (
	"encoding/hex"

	"xdao.co/privatefs/private"
)

// FromNode projects a decrypted node. Key material is never included.
func FromNode(n private.Node) Node {
	h := n.Header()
	m := n.Metadata()
	out := Node{
		Kind:     n.Kind().String(),
		INumber:  hex.EncodeToString(h.INumber[:]),
		Label:    private.Label(n).String(),
		Created:  m.Created.Unix(),
		Modified: m.Modified.Unix(),
		Previous: make([]PreviousLink, 0, len(n.Previous())),
	}
	if id, ok := n.PersistedAs(); ok {
		out.CID = id.String()
	}
	if f, ok := n.(*private.File); ok {
		size, inline := f.Size(), f.IsInline()
		out.Size = &size
		out.Inline = &inline
	}
	for _, p := range n.Previous() {
		out.Previous = append(out.Previous, PreviousLink{Steps: p.Steps, CID: p.CID.String()})
	}
	return out
}

func FromEntries(path string, entries []private.EntryInfo) Listing {
	out := Listing{Path: path, Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, Entry{
			Name:    e.Name,
			Kind:    e.Kind.String(),
			INumber: hex.EncodeToString(e.INumber[:]),
		})
	}
	return out
}

func FromResolution(r *private.Resolution) Resolution {
	out := Resolution{
		Label:      r.Label.String(),
		Conflicted: r.Conflicted(),
		Candidates: make([]Node, 0, len(r.Candidates)),
	}
	for _, n := range r.Candidates {
		out.Candidates = append(out.Candidates, FromNode(n))
	}
	return out
}
