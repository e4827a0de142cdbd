// Package quiver reads parquet files into Arrow arrays, assembling
// nested records from Dremel definition and repetition levels.
package quiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/brimdata/quiver/assemble"
	"github.com/brimdata/quiver/pkg/taskrunner"
)

// ReaderProps configures a FileReader.  The zero value selects the
// default allocator, sequential reads, and no logging.
type ReaderProps struct {
	// Mem serves every output buffer allocation.  Decode and level
	// scratch are ordinary Go slices and do not go through Mem.
	Mem memory.Allocator
	// NumThreads bounds per-field parallelism for table reads.
	NumThreads int
	// Logger traces reads at debug level.
	Logger *zap.Logger
}

// FileReader assembles Arrow arrays and tables from an open parquet
// file.  Methods are safe to call sequentially; a single table read
// parallelizes internally across top-level fields.
type FileReader struct {
	mem      memory.Allocator
	reader   *file.Reader
	logger   *zap.Logger
	nthreads int
}

// NewFileReader wraps an already-open parquet file reader.
func NewFileReader(pf *file.Reader, props ReaderProps) *FileReader {
	mem := props.Mem
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	nthreads := props.NumThreads
	if nthreads < 1 {
		nthreads = 1
	}
	logger := props.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileReader{mem: mem, reader: pf, logger: logger, nthreads: nthreads}
}

// NewReader opens a parquet file from a random-access reader.
// Options are forwarded to the physical reader.
func NewReader(r parquet.ReaderAtSeeker, props ReaderProps, opts ...file.ReadOption) (*FileReader, error) {
	pf, err := file.NewParquetReader(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return NewFileReader(pf, props), nil
}

// OpenFile opens a parquet file on the local file system.
func OpenFile(path string, props ReaderProps, opts ...file.ReadOption) (*FileReader, error) {
	pf, err := file.OpenParquetFile(path, false, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return NewFileReader(pf, props), nil
}

func (r *FileReader) Close() error {
	return r.reader.Close()
}

// ParquetReader exposes the underlying physical reader.
func (r *FileReader) ParquetReader() *file.Reader { return r.reader }

func (r *FileReader) NumRowGroups() int { return r.reader.NumRowGroups() }

// SetNumThreads adjusts per-field parallelism for subsequent reads.
func (r *FileReader) SetNumThreads(n int) {
	if n < 1 {
		n = 1
	}
	r.nthreads = n
}

// Schema maps the file's parquet schema to an Arrow schema, carrying
// the file-level key/value metadata through the conversion.  With
// leaf column indices given, the schema is restricted to the
// top-level fields owning them.
func (r *FileReader) Schema(indices ...int) (*arrow.Schema, error) {
	md := r.reader.MetaData()
	sc, err := pqarrow.FromParquet(md.Schema, &pqarrow.ArrowReadProperties{}, md.KeyValueMetadata())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotImplemented, err)
	}
	if indices == nil {
		return sc, nil
	}
	cols, err := r.normalizeIndices(indices)
	if err != nil {
		return nil, err
	}
	var fields []arrow.Field
	for _, f := range fieldsForColumns(md.Schema, cols) {
		fields = append(fields, sc.Field(f))
	}
	return arrow.NewSchema(fields, nil), nil
}

// wrapIO converts physical-reader failures to ErrIO at the façade
// boundary, leaving the engine's own error kinds untouched.
func wrapIO(err error) error {
	if err == nil ||
		errors.Is(err, ErrInvalid) || errors.Is(err, ErrNotImplemented) ||
		errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// ReadColumn reads leaf column i across all row groups as one flat
// array, ignoring any enclosing structure.
func (r *FileReader) ReadColumn(i int) (arrow.Array, error) {
	cr, err := r.Column(i)
	if err != nil {
		return nil, err
	}
	size, err := r.columnBatchSize(i)
	if err != nil {
		return nil, wrapIO(err)
	}
	arr, err := cr.NextBatch(size)
	if err != nil {
		return nil, wrapIO(err)
	}
	if arr == nil {
		return array.MakeArrayOfNull(r.mem, cr.leaf.Field().Type, 0), nil
	}
	return arr, nil
}

func (r *FileReader) columnBatchSize(col int) (int64, error) {
	var size int64
	for g := 0; g < r.reader.NumRowGroups(); g++ {
		cc, err := r.reader.MetaData().RowGroup(g).ColumnChunk(col)
		if err != nil {
			return 0, err
		}
		size += cc.NumValues()
	}
	return size, nil
}

// ReadField assembles top-level field i across all row groups.  The
// optional indices restrict which of the field's leaf columns are
// read; a selection that excludes the whole field yields nil.
func (r *FileReader) ReadField(i int, indices ...int) (arrow.Array, error) {
	return r.readField(i, indices, -1)
}

func (r *FileReader) readField(f int, indices []int, rowGroup int) (arrow.Array, error) {
	cols, err := r.normalizeIndices(indices)
	if err != nil {
		return nil, err
	}
	asm, err := r.assembler(f, cols, rowGroup)
	if err != nil {
		return nil, wrapIO(err)
	}
	if asm == nil {
		return nil, nil
	}
	size, err := r.batchSize(f, cols, rowGroup)
	if err != nil {
		return nil, wrapIO(err)
	}
	arr, err := asm.NextBatch(size)
	if err != nil {
		return nil, wrapIO(err)
	}
	if arr == nil {
		arr = array.MakeArrayOfNull(r.mem, asm.Field().Type, 0)
	}
	return arr, nil
}

func (r *FileReader) assembler(f int, cols []int, rowGroup int) (assemble.Assembler, error) {
	iter := func(col int) assemble.ColumnIterator {
		if rowGroup < 0 {
			return &allRowGroupsIterator{reader: r.reader, col: col}
		}
		return &singleRowGroupIterator{reader: r.reader, col: col, rowGroup: rowGroup}
	}
	return assemble.Build(r.mem, r.reader.MetaData().Schema, f, cols, iter)
}

// ReadTable assembles all row groups into one table, restricted to
// the given leaf columns (all when none are given).
func (r *FileReader) ReadTable(indices ...int) (arrow.Table, error) {
	return r.readTable(-1, indices)
}

// ReadRowGroup assembles one row group into a table.
func (r *FileReader) ReadRowGroup(g int, indices ...int) (arrow.Table, error) {
	if g < 0 || g >= r.reader.NumRowGroups() {
		return nil, fmt.Errorf("%w: row group %d out of range [0, %d)",
			ErrInvalidArgument, g, r.reader.NumRowGroups())
	}
	return r.readTable(g, indices)
}

func (r *FileReader) readTable(rowGroup int, indices []int) (arrow.Table, error) {
	cols, err := r.normalizeIndices(indices)
	if err != nil {
		return nil, err
	}
	sc := r.reader.MetaData().Schema
	fieldIdxs := fieldsForColumns(sc, cols)
	r.logger.Debug("reading table",
		zap.Int("row_group", rowGroup),
		zap.Int("fields", len(fieldIdxs)),
		zap.Int("columns", len(cols)),
		zap.Int("threads", r.nthreads))

	arrays := make([]arrow.Array, len(fieldIdxs))
	fields := make([]arrow.Field, len(fieldIdxs))
	// One task per top-level field; output slots are bound by task
	// index so completion order never reorders columns.
	err = taskrunner.New(r.nthreads).Run(context.Background(), len(fieldIdxs), func(i int) error {
		asm, err := r.assembler(fieldIdxs[i], cols, rowGroup)
		if err != nil {
			return wrapIO(err)
		}
		size, err := r.batchSize(fieldIdxs[i], cols, rowGroup)
		if err != nil {
			return wrapIO(err)
		}
		arr, err := asm.NextBatch(size)
		if err != nil {
			return wrapIO(err)
		}
		if arr == nil {
			arr = array.MakeArrayOfNull(r.mem, asm.Field().Type, 0)
		}
		arrays[i] = arr
		fields[i] = asm.Field()
		return nil
	})
	if err != nil {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
		return nil, err
	}

	tableCols := make([]arrow.Column, len(arrays))
	for i, arr := range arrays {
		chunked := arrow.NewChunked(fields[i].Type, []arrow.Array{arr})
		tableCols[i] = *arrow.NewColumn(fields[i], chunked)
		chunked.Release()
		arr.Release()
	}
	return array.NewTable(arrow.NewSchema(fields, nil), tableCols, -1), nil
}
