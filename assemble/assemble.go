// Package assemble reconstructs Arrow arrays from Dremel-shredded
// parquet leaf columns.  An assembler tree mirrors the selected schema
// subtree: leaves decode typed values and level streams from column
// chunks, list assemblers turn repetition runs into offsets, and
// struct assemblers merge sibling level streams into struct validity.
package assemble

import (
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"
)

var (
	ErrInvalidArgument = errors.New("quiver: invalid argument")
	ErrNotImplemented  = errors.New("quiver: not implemented")
	ErrInvalid         = errors.New("quiver: invalid data")
	ErrIO              = errors.New("quiver: io error")
)

// Assembler produces batches of one output column.  After NextBatch,
// DefLevels and RepLevels expose the level streams observed (or
// derived) for that batch so a parent assembler can reconstruct
// nesting above this node.
type Assembler interface {
	// NextBatch reads up to n records and materializes them as an
	// Arrow array.  A nil array means the source column chunks are
	// exhausted.  The returned array may be shorter than n.
	NextBatch(n int64) (arrow.Array, error)
	DefLevels() []int16
	RepLevels() []int16
	MaxDefLevel() int16
	MaxRepLevel() int16
	Field() arrow.Field
}

// ColumnIterator steps a leaf assembler across the column chunks of
// one leaf column, one chunk per row group.  Next returns nil once
// all chunks have been handed out.
type ColumnIterator interface {
	Next() (file.ColumnChunkReader, error)
	Descr() *schema.Column
}
