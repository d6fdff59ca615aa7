// Package model defines stable boundary types for API layers.
//
// Encrypted node bytes and their CIDs are unaffected by any projection.
// These structs are the only types intended for direct JSON/YAML
// serialization by consumers; none of them carries key material unless the
// field name says so.
package model
