package hit

import (
	"cmp"
	"slices"
)

// Hit is a retrieved chunk with no index-specific types, ready for serialization.
type Hit struct {
	ID             string  `json:"id"`
	Score          float64 `json:"score"`
	Text           string  `json:"text"`
	Filename       string  `json:"filename"`
	SequenceNumber int     `json:"sequence_number"`
	DocumentType   string  `json:"document_type"`
	CreatedAt      string  `json:"created_at"`
	FileRef        *int64  `json:"file_ref,omitempty"`
}

// SortByRelevance orders hits by descending score; ties keep index order.
func SortByRelevance(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(b.Score, a.Score) })
}

// SortByDocumentOrder orders hits by ascending sequence number.
func SortByDocumentOrder(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(a.SequenceNumber, b.SequenceNumber) })
}

// IDs returns hit ids in order.
func IDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i := range hits {
		out[i] = hits[i].ID
	}
	return out
}
