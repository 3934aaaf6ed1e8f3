// Package colfile reads and writes the columnar artifact.
//
// Layout (all integers little-endian):
//
//	[magic "JCOL"][version u8][reserved 3B]                    header
//	[chunk-length u32][chunk-bytes] ...                         one per chunk
//	[footer-length u32][footer JSON]
//	[footer-length u32][footer xxh3 u64][magic "JCOL"]          trailer
//
//	chunk-bytes := [codec u8][uncompressed-length u32][payload]
//	payload     := [rows u32][columns u32] column...
//	column      := [type u8][validity ceil(rows/8)B][values-length u32][values]
//
// A file is complete only when the trailer magic is present and the footer
// checksum matches. Writers never produce a trailer on failure, so a crashed
// or aborted run is always detected as ErrIncomplete.
package colfile

import (
	"errors"

	"jsonl2col/internal/schema"
)

const (
	Magic   = "JCOL"
	Version = 1

	headerSize  = 8
	trailerSize = 16
	// chunkPrefix is the chunk-length field in front of every chunk.
	chunkPrefix = 4
	// blockHeader is codec + uncompressed length at the start of chunk-bytes.
	blockHeader = 5

	createdBy = "jsonl2col"
)

var (
	// ErrIncomplete marks an artifact without a valid footer: the run that
	// produced it failed, was aborted, or the file was truncated.
	ErrIncomplete = errors.New("colfile: artifact incomplete (missing or invalid footer)")
	// ErrCorrupt marks a chunk or footer whose contents fail validation.
	ErrCorrupt = errors.New("colfile: artifact corrupt")
	// ErrNotArtifact is returned when the header magic does not match.
	ErrNotArtifact = errors.New("colfile: not a columnar artifact")
)

// Footer is the JSON metadata written after the last chunk.
type Footer struct {
	Version      int             `json:"version"`
	CreatedBy    string          `json:"created_by"`
	Codec        Codec           `json:"codec"`
	Schema       []schema.Column `json:"schema"`
	Chunks       []ChunkMeta     `json:"chunks"`
	TotalRows    int64           `json:"total_rows"`
	RowsExamined int64           `json:"rows_examined"`
	RowsSkipped  int64           `json:"rows_skipped"`
	Sampled      bool            `json:"sampled"`
	Mode         string          `json:"mode"`
}

// ChunkMeta indexes one chunk. Offset is the position of the chunk's length
// prefix; Length and XXH3 cover chunk-bytes only.
type ChunkMeta struct {
	Offset     int64   `json:"offset"`
	Length     int64   `json:"length"`
	Rows       int     `json:"rows"`
	XXH3       uint64  `json:"xxh3"`
	NullCounts []int64 `json:"null_counts"`
}

// RunInfo carries the inference and decode facts recorded in the footer.
type RunInfo struct {
	RowsExamined int64
	RowsSkipped  int64
	Sampled      bool
	Mode         string
}
