package segmenter

import "github.com/kailas-cloud/ragstore/internal/domain/chunk"

// QualityReport summarizes chunk sizes for ingestion diagnostics.
type QualityReport struct {
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
	TotalChunks  int    `json:"total_chunks"`
	AvgChunkSize int    `json:"avg_chunk_size"`
	MinChunkSize int    `json:"min_chunk_size"`
	MaxChunkSize int    `json:"max_chunk_size"`
	TooSmall     int    `json:"chunks_too_small"`
	TooLarge     int    `json:"chunks_too_large"`
}

// Quality checks chunks against this segmenter's sizes. More than 20% undersized
// chunks, or an average below the minimum, makes the set invalid.
func (s *Segmenter) Quality(chunks []chunk.Payload) QualityReport {
	if len(chunks) == 0 {
		return QualityReport{Reason: "no chunks generated"}
	}

	r := QualityReport{Valid: true, TotalChunks: len(chunks), MinChunkSize: -1}
	total := 0
	for i := range chunks {
		size := runeLen(chunks[i].Text)
		total += size
		if r.MinChunkSize < 0 || size < r.MinChunkSize {
			r.MinChunkSize = size
		}
		r.MaxChunkSize = max(r.MaxChunkSize, size)
		if size < s.cfg.MinChunkSize {
			r.TooSmall++
		}
		if size*5 > s.cfg.ChunkSize*6 {
			r.TooLarge++
		}
	}
	r.AvgChunkSize = total / len(chunks)

	switch {
	case r.TooSmall*5 > len(chunks):
		r.Valid = false
		r.Reason = "too many small chunks"
	case r.AvgChunkSize < s.cfg.MinChunkSize:
		r.Valid = false
		r.Reason = "average chunk size too small"
	}
	return r
}
