package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
)

// Record is a chunk plus its storage identity inside one tenant namespace.
type Record struct {
	ID        string
	Namespace string
	Filename  string
	FileRef   *int64
	Chunk     chunk.Payload
	CreatedAt time.Time
}

// Stats is what the index can tell about a namespace.
type Stats struct {
	RecordCount int
}

// Namespace derives the tenant namespace: trimmed and case-folded.
func Namespace(tenant string) (string, error) {
	ns := strings.ToLower(strings.TrimSpace(tenant))
	if ns == "" {
		return "", fmt.Errorf("%w: tenant is required", domain.ErrInvalidInput)
	}
	return ns, nil
}

// ID builds the deterministic record id. A durable file reference wins over the filename.
func ID(fileRef *int64, filename string, seq int) string {
	if fileRef != nil {
		return "file_" + strconv.FormatInt(*fileRef, 10) + "#chunk" + strconv.Itoa(seq)
	}
	return filename + "#chunk" + strconv.Itoa(seq)
}

// New builds a record for chunk c stored at createdAt.
func New(namespace string, fileRef *int64, filename string, c chunk.Payload, createdAt time.Time) Record {
	var ref *int64
	if fileRef != nil {
		v := *fileRef
		ref = &v
	}
	return Record{
		ID:        ID(fileRef, filename, c.SequenceNumber),
		Namespace: namespace,
		Filename:  filename,
		FileRef:   ref,
		Chunk:     c,
		CreatedAt: createdAt.UTC(),
	}
}
