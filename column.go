package quiver

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/brimdata/quiver/assemble"
)

// ColumnReader reads one leaf column as a flat array, batch by batch,
// stepping across row groups transparently.
type ColumnReader struct {
	leaf *assemble.Leaf
}

// Column returns a standalone reader for leaf column i over all row
// groups.
func (r *FileReader) Column(i int) (*ColumnReader, error) {
	sc := r.reader.MetaData().Schema
	if i < 0 || i >= sc.NumColumns() {
		return nil, fmt.Errorf("%w: column index %d out of range [0, %d)",
			ErrInvalidArgument, i, sc.NumColumns())
	}
	info, err := assemble.LeafForColumn(sc, i)
	if err != nil {
		return nil, err
	}
	leaf, err := assemble.NewLeaf(r.mem, &allRowGroupsIterator{reader: r.reader, col: i}, info.Field, info.MinSpaceDef)
	if err != nil {
		return nil, wrapIO(err)
	}
	return &ColumnReader{leaf: leaf}, nil
}

// Field reports the column's Arrow field.
func (c *ColumnReader) Field() arrow.Field { return c.leaf.Field() }

// NextBatch reads up to n records; nil means the column is exhausted.
func (c *ColumnReader) NextBatch(n int64) (arrow.Array, error) {
	arr, err := c.leaf.NextBatch(n)
	return arr, wrapIO(err)
}
