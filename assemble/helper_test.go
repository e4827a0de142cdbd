package assemble_test

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"
	"github.com/stretchr/testify/require"

	"github.com/brimdata/quiver/assemble"
)

// col holds the shredded representation of one leaf column within one
// row group: typed values plus the level streams that place them.
type col struct {
	vals any
	defs []int16
	reps []int16
}

// writeFile serializes row groups of shredded columns into an
// in-memory parquet file and reopens it for reading.
func writeFile(t *testing.T, sc *schema.Schema, rowGroups [][]col) *file.Reader {
	t.Helper()
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithDictionaryDefault(false))
	w := file.NewParquetWriter(&buf, sc.Root(), file.WithWriterProps(props))
	for _, rg := range rowGroups {
		rgw := w.AppendRowGroup()
		for _, c := range rg {
			cw, err := rgw.NextColumn()
			require.NoError(t, err)
			writeColumn(t, cw, c)
			require.NoError(t, cw.Close())
		}
		require.NoError(t, rgw.Close())
	}
	require.NoError(t, w.Close())
	r, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return r
}

func writeColumn(t *testing.T, cw file.ColumnChunkWriter, c col) {
	t.Helper()
	var err error
	switch vals := c.vals.(type) {
	case []bool:
		_, err = cw.(*file.BooleanColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []int32:
		_, err = cw.(*file.Int32ColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []int64:
		_, err = cw.(*file.Int64ColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []parquet.Int96:
		_, err = cw.(*file.Int96ColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []float32:
		_, err = cw.(*file.Float32ColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []float64:
		_, err = cw.(*file.Float64ColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []parquet.ByteArray:
		_, err = cw.(*file.ByteArrayColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	case []parquet.FixedLenByteArray:
		_, err = cw.(*file.FixedLenByteArrayColumnChunkWriter).WriteBatch(vals, c.defs, c.reps)
	default:
		t.Fatalf("unsupported column values %T", c.vals)
	}
	require.NoError(t, err)
}

// rgIter steps a leaf across all row groups of r.
type rgIter struct {
	r    *file.Reader
	col  int
	next int
}

func (it *rgIter) Next() (file.ColumnChunkReader, error) {
	if it.next >= it.r.NumRowGroups() {
		return nil, nil
	}
	rg := it.r.RowGroup(it.next)
	it.next++
	return rg.Column(it.col)
}

func (it *rgIter) Descr() *schema.Column {
	return it.r.MetaData().Schema.Column(it.col)
}

func iterFor(r *file.Reader) assemble.IteratorFactory {
	return func(c int) assemble.ColumnIterator {
		return &rgIter{r: r, col: c}
	}
}

// buildField assembles top-level field f over every column.
func buildField(t *testing.T, r *file.Reader, f int) assemble.Assembler {
	t.Helper()
	asm, err := assemble.Build(memory.DefaultAllocator, r.MetaData().Schema, f, nil, iterFor(r))
	require.NoError(t, err)
	require.NotNil(t, asm)
	return asm
}

func prim(t *testing.T, name string, rep parquet.Repetition, typ parquet.Type) *schema.PrimitiveNode {
	t.Helper()
	n, err := schema.NewPrimitiveNode(name, rep, typ, -1, -1)
	require.NoError(t, err)
	return n
}

func primConv(t *testing.T, name string, rep parquet.Repetition, typ parquet.Type, conv schema.ConvertedType, typeLen int) *schema.PrimitiveNode {
	t.Helper()
	n, err := schema.NewPrimitiveNodeConverted(name, rep, typ, conv, typeLen, 0, 0, -1)
	require.NoError(t, err)
	return n
}

func group(t *testing.T, name string, rep parquet.Repetition, fields ...schema.Node) *schema.GroupNode {
	t.Helper()
	n, err := schema.NewGroupNode(name, rep, schema.FieldList(fields), -1)
	require.NoError(t, err)
	return n
}

func groupConv(t *testing.T, name string, rep parquet.Repetition, conv schema.ConvertedType, fields ...schema.Node) *schema.GroupNode {
	t.Helper()
	n, err := schema.NewGroupNodeConverted(name, rep, schema.FieldList(fields), conv, -1)
	require.NoError(t, err)
	return n
}

func message(t *testing.T, fields ...schema.Node) *schema.Schema {
	t.Helper()
	return schema.NewSchema(group(t, "schema", parquet.Repetitions.Required, fields...))
}

func ba(strs ...string) []parquet.ByteArray {
	out := make([]parquet.ByteArray, len(strs))
	for i, s := range strs {
		out[i] = parquet.ByteArray(s)
	}
	return out
}
