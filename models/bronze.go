package models

import "fmt"

// BronzeFileMetadata identifies one immutable raw source file as discovered
// in the bronze layer. It is created by discovery and never modified.
type BronzeFileMetadata struct {
	Vendor     string `json:"vendor"`
	DataType   string `json:"data_type"`
	BronzePath string `json:"bronze_path"`
	FileHash   string `json:"file_hash"`
	Exchange   string `json:"exchange"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Identity returns the manifest identity tuple for this file.
func (m BronzeFileMetadata) Identity() FileIdentity {
	return FileIdentity{
		Vendor:     m.Vendor,
		DataType:   m.DataType,
		BronzePath: m.BronzePath,
		FileHash:   m.FileHash,
	}
}

// FileIdentity is the deterministic key of one source file in the manifest.
// All four fields must be populated; a partial identity is a caller bug.
type FileIdentity struct {
	Vendor     string `json:"vendor"`
	DataType   string `json:"data_type"`
	BronzePath string `json:"bronze_path"`
	FileHash   string `json:"file_hash"`
}

// Complete reports whether every field of the identity is populated.
func (id FileIdentity) Complete() bool {
	return id.Vendor != "" && id.DataType != "" && id.BronzePath != "" && id.FileHash != ""
}

// Key returns a stable string form of the identity, usable as a file name
// component or map key.
func (id FileIdentity) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", id.Vendor, id.DataType, id.BronzePath, id.FileHash)
}

// RawRow is one parsed record before lineage assignment. SourcePos is the
// physical record index within the source file and defines canonical order.
type RawRow struct {
	SourcePos  int               `json:"source_pos"`
	EventTsUs  int64             `json:"event_ts_us"`
	NaturalKey string            `json:"natural_key"`
	Payload    map[string]string `json:"payload"`
}
