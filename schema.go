package quiver

import (
	"fmt"

	"github.com/apache/arrow-go/v18/parquet/schema"

	"github.com/brimdata/quiver/assemble"
)

// leafRange is the half-open range of leaf column indices owned by
// one top-level field.  Column indexing follows depth-first leaf
// order, so every field owns a contiguous, disjoint range.
type leafRange struct {
	start, end int
}

func fieldLeafRanges(sc *schema.Schema) []leafRange {
	root := sc.Root()
	ranges := make([]leafRange, root.NumFields())
	col := 0
	for i := 0; i < root.NumFields(); i++ {
		n := assemble.CountLeaves(root.Field(i))
		ranges[i] = leafRange{start: col, end: col + n}
		col += n
	}
	return ranges
}

// fieldsForColumns maps requested leaf column indices to the ordered
// set of top-level fields owning them.
func fieldsForColumns(sc *schema.Schema, cols []int) []int {
	ranges := fieldLeafRanges(sc)
	var fields []int
	for f, r := range ranges {
		for _, c := range cols {
			if c >= r.start && c < r.end {
				fields = append(fields, f)
				break
			}
		}
	}
	return fields
}

// normalizeIndices validates requested column indices, defaulting to
// the full column set when none are given.
func (r *FileReader) normalizeIndices(indices []int) ([]int, error) {
	numCols := r.reader.MetaData().Schema.NumColumns()
	if indices == nil {
		all := make([]int, numCols)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, i := range indices {
		if i < 0 || i >= numCols {
			return nil, fmt.Errorf("%w: column index %d out of range [0, %d)",
				ErrInvalidArgument, i, numCols)
		}
	}
	return indices, nil
}

// batchSize returns the record budget that fully drains field f: the
// largest per-column value count among its selected leaves, summed
// across row groups for a whole-file read.
func (r *FileReader) batchSize(f int, cols []int, rowGroup int) (int64, error) {
	ranges := fieldLeafRanges(r.reader.MetaData().Schema)
	var size int64
	for _, c := range cols {
		if c < ranges[f].start || c >= ranges[f].end {
			continue
		}
		var colSize int64
		if rowGroup < 0 {
			for g := 0; g < r.reader.NumRowGroups(); g++ {
				cc, err := r.reader.MetaData().RowGroup(g).ColumnChunk(c)
				if err != nil {
					return 0, err
				}
				colSize += cc.NumValues()
			}
		} else {
			cc, err := r.reader.MetaData().RowGroup(rowGroup).ColumnChunk(c)
			if err != nil {
				return 0, err
			}
			colSize = cc.NumValues()
		}
		size = max(size, colSize)
	}
	return size, nil
}
