package quiver

import (
	"fmt"

	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"go.uber.org/zap"
)

// ScanContents streams the given leaf columns (all when nil) without
// materializing arrays and returns the record count, verifying that
// every scanned column agrees on it.
func (r *FileReader) ScanContents(columns []int, batchSize int64) (int64, error) {
	cols, err := r.normalizeIndices(columns)
	if err != nil {
		return 0, err
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("%w: batch size %d", ErrInvalidArgument, batchSize)
	}
	total := int64(-1)
	for _, c := range cols {
		n, err := r.scanColumn(c, batchSize)
		if err != nil {
			return 0, wrapIO(err)
		}
		if total >= 0 && n != total {
			return 0, fmt.Errorf("%w: column %d scanned %d records, column %d scanned %d",
				ErrInvalid, c, n, cols[0], total)
		}
		total = n
	}
	if total < 0 {
		total = 0
	}
	r.logger.Debug("scanned contents", zap.Int64("records", total), zap.Int("columns", len(cols)))
	return total, nil
}

// scanColumn drains one column chunk by chunk, counting records: with
// repetition levels a record starts wherever rep is zero, otherwise
// every level is a record.
func (r *FileReader) scanColumn(col int, batchSize int64) (int64, error) {
	descr := r.reader.MetaData().Schema.Column(col)
	var defs, reps []int16
	if descr.MaxDefinitionLevel() > 0 {
		defs = make([]int16, batchSize)
	}
	if descr.MaxRepetitionLevel() > 0 {
		reps = make([]int16, batchSize)
	}
	var records int64
	it := allRowGroupsIterator{reader: r.reader, col: col}
	for {
		cr, err := it.Next()
		if err != nil {
			return 0, err
		}
		if cr == nil {
			return records, nil
		}
		for cr.HasNext() {
			levels, err := readDense(cr, batchSize, defs, reps)
			if err != nil {
				return 0, err
			}
			if levels == 0 {
				break
			}
			if reps != nil {
				for _, rep := range reps[:levels] {
					if rep == 0 {
						records++
					}
				}
			} else {
				records += levels
			}
		}
	}
}

// readDense advances a chunk reader by up to batchSize levels,
// discarding the decoded values.
func readDense(cr file.ColumnChunkReader, batchSize int64, defs, reps []int16) (int64, error) {
	var levels int64
	var err error
	switch rd := cr.(type) {
	case *file.BooleanColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]bool, batchSize), defs, reps)
	case *file.Int32ColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]int32, batchSize), defs, reps)
	case *file.Int64ColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]int64, batchSize), defs, reps)
	case *file.Int96ColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]parquet.Int96, batchSize), defs, reps)
	case *file.Float32ColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]float32, batchSize), defs, reps)
	case *file.Float64ColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]float64, batchSize), defs, reps)
	case *file.ByteArrayColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]parquet.ByteArray, batchSize), defs, reps)
	case *file.FixedLenByteArrayColumnChunkReader:
		levels, _, err = rd.ReadBatch(batchSize, make([]parquet.FixedLenByteArray, batchSize), defs, reps)
	default:
		return 0, fmt.Errorf("%w: scanning %s columns", ErrNotImplemented, cr.Type())
	}
	return levels, err
}
