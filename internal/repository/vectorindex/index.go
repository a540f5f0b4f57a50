package vectorindex

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
)

// HNSWConfig holds HNSW vector index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// namespaceToken hashes a namespace into a key-safe token. Tenants are usually
// emails, which contain characters FT index names do not accept.
func namespaceToken(namespace string) string {
	h := sha256.Sum256([]byte(namespace))
	return hex.EncodeToString(h[:])[:32]
}

type keyspace struct {
	index       string
	chunkPrefix string
}

func newKeyspace(keyPrefix, namespace string) keyspace {
	base := keyPrefix + "ns:" + namespaceToken(namespace) + ":"
	return keyspace{
		index:       base + "idx",
		chunkPrefix: base + "chunk:",
	}
}

func (k keyspace) key(recordID string) string { return k.chunkPrefix + recordID }

func (k keyspace) recordID(key string) string { return strings.TrimPrefix(key, k.chunkPrefix) }

// buildIndex defines the per-namespace FT index over chunk hashes.
func buildIndex(ks keyspace, vectorDim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(ks.index).
		Prefix(ks.chunkPrefix).
		TagWithOpts(chunk.KeyFilename, chunk.FilenameSeparator, true).
		Tag(chunk.KeyDocumentType).
		Numeric(chunk.KeyFileRef).
		SortableNumeric(chunk.KeyChunkNumber).
		SortableNumeric(chunk.KeyCreatedUnix).
		VectorHNSW(chunk.KeyVector, vectorDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
}
