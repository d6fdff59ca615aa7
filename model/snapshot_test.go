package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"xdao.co/privatefs/private"
	"xdao.co/privatefs/storage"
)

func TestSnapshot_Node_JSONShape(t *testing.T) {
	size, inline := int64(5), true
	n := Node{
		Kind:     "file",
		INumber:  "00ff",
		Label:    "abcd",
		CID:      "bafy-node-1",
		Created:  1700000000,
		Modified: 1700000001,
		Size:     &size,
		Inline:   &inline,
		Previous: []PreviousLink{{Steps: 1, CID: "bafy-node-0"}},
	}

	b, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}

	const want = "{\n" +
		"  \"kind\": \"file\",\n" +
		"  \"inumber\": \"00ff\",\n" +
		"  \"label\": \"abcd\",\n" +
		"  \"cid\": \"bafy-node-1\",\n" +
		"  \"created\": 1700000000,\n" +
		"  \"modified\": 1700000001,\n" +
		"  \"size\": 5,\n" +
		"  \"inline\": true,\n" +
		"  \"previous\": [\n" +
		"    {\n" +
		"      \"steps\": 1,\n" +
		"      \"cid\": \"bafy-node-0\"\n" +
		"    }\n" +
		"  ]\n" +
		"}"

	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestSnapshot_Directory_OmitsFileFields(t *testing.T) {
	n := Node{Kind: "dir", INumber: "01", Label: "02", Previous: []PreviousLink{}}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	const want = `{"kind":"dir","inumber":"01","label":"02","created":0,"modified":0,"previous":[]}`
	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestSnapshot_GCReport_JSONShape(t *testing.T) {
	b, err := json.Marshal(GCReport{Live: 3, Superseded: 2, Removed: 2, Forest: "bafy-forest"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	const want = `{"live":3,"superseded":2,"removed":2,"forest":"bafy-forest"}`
	if string(b) != want {
		t.Fatalf("snapshot mismatch:\n%s", string(b))
	}
}

func TestMapError(t *testing.T) {
	_, randErr := private.NewINumber(bytes.NewReader(nil))
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{storage.ErrNotFound, ErrNotFound},
		{fmt.Errorf("get: %w", storage.ErrCIDMismatch), ErrCIDMismatch},
		{storage.ErrInvalidCID, ErrInvalidCID},
		{NewError(ErrInvalidRequest, "bad"), ErrInvalidRequest},
		{randErr, ErrRandomnessExhausted},
		{fmt.Errorf("boom"), ErrInternal},
	}
	for _, tc := range cases {
		got := MapError(tc.err)
		if got == nil || got.Code != tc.want {
			t.Fatalf("MapError(%v) = %v, want %s", tc.err, got, tc.want)
		}
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
