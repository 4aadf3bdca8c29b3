package models

import (
	"encoding/hex"
	"encoding/json"
)

// ConflictPolicy controls what a bulk Add does when a row for the same
// (object, tool) key already exists.
type ConflictPolicy int

const (
	// PolicySkip keeps the existing row and ignores the incoming one.
	PolicySkip ConflictPolicy = iota
	// PolicyOverwrite replaces the existing row with the incoming one.
	PolicyOverwrite
)

func (p ConflictPolicy) String() string {
	if p == PolicyOverwrite {
		return "overwrite"
	}
	return "skip"
}

// Sha1 is a content-addressed object identifier (20 raw bytes).
type Sha1 []byte

func (s Sha1) String() string { return hex.EncodeToString(s) }

// ContentMimetypeRow is a detected mimetype/encoding fact for one blob.
type ContentMimetypeRow struct {
	ID       Sha1
	ToolID   int64
	Mimetype string
	Encoding string
}

// ContentLicenseRow is one detected license for one blob. Unlike the other
// fact kinds a blob may carry several licenses for the same tool.
type ContentLicenseRow struct {
	ID      Sha1
	ToolID  int64
	License string
}

// ContentMetadataRow is the translated metadata document for one blob.
type ContentMetadataRow struct {
	ID       Sha1
	ToolID   int64
	Metadata json.RawMessage
}

// DirectoryIntrinsicRow is the aggregated metadata for one directory.
// Mappings is exactly the set of ecosystem detectors that produced a
// non-empty translation; an empty slice means the directory was processed
// and nothing was found, which is distinct from no row at all.
type DirectoryIntrinsicRow struct {
	ID       Sha1
	ToolID   int64
	Metadata json.RawMessage
	Mappings []string
}

// OriginIntrinsicRow is directory metadata copied up to its origin, with a
// provenance pointer to the directory it came from. The full-text search
// vector is derived from Metadata inside the store on every write.
type OriginIntrinsicRow struct {
	OriginURL     string
	ToolID        int64
	Metadata      json.RawMessage
	Mappings      []string
	FromDirectory Sha1
}

// OriginExtrinsicRow is metadata obtained outside the source tree (forge
// APIs, deposits), keyed the same way as intrinsic metadata.
type OriginExtrinsicRow struct {
	OriginURL    string
	ToolID       int64
	Metadata     json.RawMessage
	FromRemoteID string
	Format       string
	Authority    string
}

// FactKey is the (object, tool) pair every fact table is unique on.
type FactKey struct {
	ID     Sha1
	ToolID int64
}
