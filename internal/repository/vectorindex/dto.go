package vectorindex

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
)

// extraPrefix namespaces caller metadata inside the hash.
const extraPrefix = "x_"

// returnFields are the hash fields read back for hits.
var returnFields = []string{
	chunk.KeyText,
	chunk.KeyFilename,
	chunk.KeyChunkNumber,
	chunk.KeyDocumentType,
	chunk.KeyCreatedAt,
	chunk.KeyFileRef,
}

// buildHashFields flattens a record and its vector into HSET fields.
func buildHashFields(r *record.Record, vector []float32) map[string]string {
	c := &r.Chunk
	m := make(map[string]string, 12+len(c.Metadata.Extra))
	m[chunk.KeyText] = c.Text
	m[chunk.KeyFilename] = r.Filename
	m[chunk.KeyChunkNumber] = strconv.Itoa(c.SequenceNumber)
	m[chunk.KeyDocumentType] = c.DocumentType
	m[chunk.KeyCreatedAt] = r.CreatedAt.Format(time.RFC3339)
	m[chunk.KeyCreatedUnix] = strconv.FormatInt(r.CreatedAt.Unix(), 10)
	m[chunk.KeyChunkSize] = strconv.Itoa(c.Metadata.ChunkSize)
	m[chunk.KeyWordCount] = strconv.Itoa(c.Metadata.WordCount)
	m[chunk.KeyChunkIndex] = strconv.Itoa(c.Metadata.ChunkIndex)
	m[chunk.KeyOverlap] = strconv.Itoa(c.Metadata.OverlapChars)
	m[chunk.KeyTruncated] = strconv.FormatBool(c.Metadata.Truncated)
	m[chunk.KeyVector] = vectorToBytes(vector)
	if r.FileRef != nil {
		m[chunk.KeyFileRef] = strconv.FormatInt(*r.FileRef, 10)
	}
	for k, v := range c.Metadata.Extra {
		m[extraPrefix+k] = v.Encode()
	}
	return m
}

// parseHit converts returned hash fields into a normalized hit.
func parseHit(id string, score float64, fields map[string]string) hit.Hit {
	h := hit.Hit{
		ID:           id,
		Score:        score,
		Text:         fields[chunk.KeyText],
		Filename:     fields[chunk.KeyFilename],
		DocumentType: fields[chunk.KeyDocumentType],
		CreatedAt:    fields[chunk.KeyCreatedAt],
	}
	if n, err := strconv.Atoi(fields[chunk.KeyChunkNumber]); err == nil {
		h.SequenceNumber = n
	}
	if v, ok := fields[chunk.KeyFileRef]; ok && v != "" {
		if ref, err := strconv.ParseInt(v, 10, 64); err == nil {
			h.FileRef = &ref
		}
	}
	return h
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
