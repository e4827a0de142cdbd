package quiver

import (
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"
)

// allRowGroupsIterator hands out one column chunk reader per row
// group, in file order.
type allRowGroupsIterator struct {
	reader *file.Reader
	col    int
	next   int
}

func (it *allRowGroupsIterator) Next() (file.ColumnChunkReader, error) {
	if it.next >= it.reader.NumRowGroups() {
		return nil, nil
	}
	rg := it.reader.RowGroup(it.next)
	it.next++
	return rg.Column(it.col)
}

func (it *allRowGroupsIterator) Descr() *schema.Column {
	return it.reader.MetaData().Schema.Column(it.col)
}

// singleRowGroupIterator yields exactly one chunk, for reads scoped
// to one row group.
type singleRowGroupIterator struct {
	reader   *file.Reader
	col      int
	rowGroup int
	done     bool
}

func (it *singleRowGroupIterator) Next() (file.ColumnChunkReader, error) {
	if it.done {
		return nil, nil
	}
	it.done = true
	return it.reader.RowGroup(it.rowGroup).Column(it.col)
}

func (it *singleRowGroupIterator) Descr() *schema.Column {
	return it.reader.MetaData().Schema.Column(it.col)
}
