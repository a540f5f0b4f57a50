package segmenter

import (
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// Default sizes in characters. 2048 is roughly 512 tokens at 4 characters per token.
const (
	DefaultChunkSize    = 2048
	DefaultOverlapSize  = 256
	DefaultMinChunkSize = 128
)

// Config is fixed at construction.
type Config struct {
	ChunkSize    int `yaml:"chunk_size"`
	OverlapSize  int `yaml:"overlap_size"`
	MinChunkSize int `yaml:"min_chunk_size"`
}

// DefaultConfig returns the production sizes.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    DefaultChunkSize,
		OverlapSize:  DefaultOverlapSize,
		MinChunkSize: DefaultMinChunkSize,
	}
}

// Validate checks that all sizes are positive and smaller than ChunkSize.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", domain.ErrInvalidInput)
	}
	if c.OverlapSize <= 0 {
		return fmt.Errorf("%w: overlap_size must be positive", domain.ErrInvalidInput)
	}
	if c.MinChunkSize <= 0 {
		return fmt.Errorf("%w: min_chunk_size must be positive", domain.ErrInvalidInput)
	}
	if c.OverlapSize >= c.ChunkSize {
		return fmt.Errorf("%w: overlap_size (%d) must be less than chunk_size (%d)",
			domain.ErrInvalidInput, c.OverlapSize, c.ChunkSize)
	}
	if c.MinChunkSize >= c.ChunkSize {
		return fmt.Errorf("%w: min_chunk_size (%d) must be less than chunk_size (%d)",
			domain.ErrInvalidInput, c.MinChunkSize, c.ChunkSize)
	}
	return nil
}
