package model

// PreviousLink points at a predecessor revision.
type PreviousLink struct {
	Steps uint64 `json:"steps"`
	CID   string `json:"cid"`
}

// Node is a public view of one decrypted revision.
//
// Label is the forest address; it reveals nothing without the keys but is
// still only meant for the capability holder's own tooling.
type Node struct {
	Kind     string         `json:"kind"`
	INumber  string         `json:"inumber"`
	Label    string         `json:"label"`
	CID      string         `json:"cid,omitempty"`
	Created  int64          `json:"created"`
	Modified int64          `json:"modified"`
	Size     *int64         `json:"size,omitempty"`
	Inline   *bool          `json:"inline,omitempty"`
	Previous []PreviousLink `json:"previous"`
}

type Entry struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	INumber string `json:"inumber"`
}

type Listing struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// Resolution lists every revision found under one label.
type Resolution struct {
	Label      string `json:"label"`
	Conflicted bool   `json:"conflicted"`
	Candidates []Node `json:"candidates"`
}

// Commit is the state recorded after persisting a workspace.
type Commit struct {
	Label  string `json:"label"`
	Forest string `json:"forest"`
	Blocks int    `json:"blocks"`
}

// Share carries a capability. RefSecret is the ref's text form and grants
// read access to the node and its later revisions.
type Share struct {
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	RefSecret string `json:"refSecret"`
}

type GCReport struct {
	Live       int    `json:"live"`
	Superseded int    `json:"superseded"`
	Removed    int    `json:"removed"`
	Forest     string `json:"forest"`
}

// MergeReport describes a forest merge. Healed is set when diverged root
// revisions were joined into a new revision.
type MergeReport struct {
	Forest        string  `json:"forest"`
	ChangedLabels int     `json:"changedLabels"`
	Healed        bool    `json:"healed"`
	Bundle        *Bundle `json:"bundle,omitempty"`
}

type Bundle struct {
	Blocks int               `json:"blocks"`
	Roots  map[string]string `json:"roots"`
}
