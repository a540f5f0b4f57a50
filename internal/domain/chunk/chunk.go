package chunk

// DefaultDocumentType is used when the caller does not tag a document.
const DefaultDocumentType = "text"

// Payload is one segment of a document's cleaned text. Never mutated after creation.
type Payload struct {
	Text           string   `json:"text"`
	SequenceNumber int      `json:"sequence_number"` // 1-based, dense within one document
	DocumentType   string   `json:"document_type"`
	Metadata       Metadata `json:"metadata"`
}

// Metadata describes how a payload was cut from its source.
type Metadata struct {
	SourceFilename string `json:"source_filename"`
	ChunkSize      int    `json:"chunk_size"` // characters (runes)
	WordCount      int    `json:"word_count"`
	// ChunkIndex is the position among all cut pieces before the minimum-size filter.
	ChunkIndex int `json:"chunk_index"`
	// OverlapChars is the length of the leading text repeated from the previous chunk.
	OverlapChars int `json:"overlap_chars"`
	// Truncated marks the lossy hard-cut path: part of an unbreakable word was dropped.
	Truncated bool  `json:"truncated"`
	Extra     Extra `json:"extra,omitempty"`
}

// FilenameSeparator splits filename tag values in the index, so it may not appear in a
// stored filename. Filenames may contain commas, the index's default separator.
const FilenameSeparator = "|"

// Keys written by the store for every record. Extra metadata may not use them.
const (
	KeyText         = "text"
	KeyFilename     = "filename"
	KeyChunkNumber  = "chunk_number"
	KeyDocumentType = "document_type"
	KeyCreatedAt    = "created_at"
	KeyCreatedUnix  = "created_ts"
	KeyFileRef      = "db_file_id"
	KeyChunkSize    = "chunk_size"
	KeyWordCount    = "word_count"
	KeyChunkIndex   = "chunk_index"
	KeyOverlap      = "overlap_chars"
	KeyTruncated    = "truncated"
	KeyVector       = "vector"
)

var reservedKeys = map[string]bool{
	KeyText: true, KeyFilename: true, KeyChunkNumber: true, KeyDocumentType: true,
	KeyCreatedAt: true, KeyCreatedUnix: true, KeyFileRef: true, KeyChunkSize: true, KeyWordCount: true,
	KeyChunkIndex: true, KeyOverlap: true, KeyTruncated: true, KeyVector: true,
}

// IsReserved reports whether key belongs to the fixed record schema.
func IsReserved(key string) bool { return reservedKeys[key] }
