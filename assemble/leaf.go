package assemble

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/schema"
)

const (
	julianUnixEpochDays = 2440588
	nanosPerDay         = 86400 * 1000 * 1000 * 1000
	millisPerDay        = 86400 * 1000
)

// Leaf drives one leaf column across its column chunks, decoding
// typed values together with their definition and repetition levels.
// Reads continue seamlessly into the next row group's chunk until the
// requested record count is reached or the column is exhausted.
type Leaf struct {
	mem         memory.Allocator
	input       ColumnIterator
	descr       *schema.Column
	field       arrow.Field
	minSpaceDef int16

	cr file.ColumnChunkReader

	defs, reps []int16
	numLevels  int

	numScratch  []byte
	boolScratch []bool
	baScratch   []parquet.ByteArray
	flbaScratch []parquet.FixedLenByteArray
}

var _ Assembler = (*Leaf)(nil)

// NewLeaf binds a leaf assembler to a column chunk iterator.  The
// field gives the Arrow target type; minSpaceDef is the definition
// level below which a position is absent entirely rather than null
// (zero when the column has no repeated ancestor).
func NewLeaf(mem memory.Allocator, input ColumnIterator, field arrow.Field, minSpaceDef int16) (*Leaf, error) {
	l := &Leaf{
		mem:         mem,
		input:       input,
		descr:       input.Descr(),
		field:       field,
		minSpaceDef: minSpaceDef,
	}
	if err := l.nextRowGroup(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Leaf) Field() arrow.Field   { return l.field }
func (l *Leaf) MaxDefLevel() int16   { return l.descr.MaxDefinitionLevel() }
func (l *Leaf) MaxRepLevel() int16   { return l.descr.MaxRepetitionLevel() }
func (l *Leaf) DefLevels() []int16   { return l.defs[:l.numLevels] }
func (l *Leaf) RepLevels() []int16 {
	if l.descr.MaxRepetitionLevel() == 0 {
		return nil
	}
	return l.reps[:l.numLevels]
}

func (l *Leaf) nextRowGroup() error {
	cr, err := l.input.Next()
	if err != nil {
		return err
	}
	l.cr = cr
	return nil
}

func (l *Leaf) NextBatch(n int64) (arrow.Array, error) {
	if l.cr == nil {
		return nil, nil
	}
	l.numLevels = 0
	if l.descr.MaxDefinitionLevel() > 0 && int64(len(l.defs)) < n {
		l.defs = make([]int16, n)
	}
	if l.descr.MaxRepetitionLevel() > 0 && int64(len(l.reps)) < n {
		l.reps = make([]int16, n)
	}
	switch l.field.Type.ID() {
	case arrow.NULL:
		return array.NewNull(int(n)), nil
	case arrow.BOOL:
		return readBool(l, n)
	case arrow.INT8:
		return readConvert(l, n, func(v int32) int8 { return int8(v) })
	case arrow.UINT8:
		return readConvert(l, n, func(v int32) uint8 { return uint8(v) })
	case arrow.INT16:
		return readConvert(l, n, func(v int32) int16 { return int16(v) })
	case arrow.UINT16:
		return readConvert(l, n, func(v int32) uint16 { return uint16(v) })
	case arrow.INT32, arrow.UINT32, arrow.DATE32, arrow.TIME32:
		return readDirect[int32](l, n)
	case arrow.INT64, arrow.UINT64, arrow.TIME64:
		return readDirect[int64](l, n)
	case arrow.FLOAT32:
		return readDirect[float32](l, n)
	case arrow.FLOAT64:
		return readDirect[float64](l, n)
	case arrow.DATE64:
		return readConvert(l, n, func(v int32) int64 { return int64(v) * millisPerDay })
	case arrow.TIMESTAMP:
		if l.descr.PhysicalType() == parquet.Types.Int96 {
			return readConvert(l, n, int96Nanos)
		}
		return readDirect[int64](l, n)
	case arrow.STRING, arrow.BINARY:
		return readByteArray(l, n)
	case arrow.FIXED_SIZE_BINARY:
		return readFixedLen(l, n)
	default:
		return nil, fmt.Errorf("%w: no decode path for columns of type %s",
			ErrNotImplemented, l.field.Type)
	}
}

// int96Nanos converts a deprecated impala timestamp: the low 8 bytes
// hold nanoseconds within the day, the high 4 the julian day number.
func int96Nanos(v parquet.Int96) int64 {
	days := int64(binary.LittleEndian.Uint32(v[8:12]))
	nanos := int64(binary.LittleEndian.Uint64(v[0:8]))
	return (days-julianUnixEpochDays)*nanosPerDay + nanos
}

// chunkReader is the dense read surface of the typed column chunk
// readers; *file.Int32ColumnChunkReader and friends satisfy it.
type chunkReader[P any] interface {
	ReadBatch(batchSize int64, values []P, defLvls, repLvls []int16) (total int64, valuesRead int, err error)
	HasNext() bool
}

func castSlice[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(*new(T)))
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// numScratch returns an n-element decode scratch of a pointer-free
// numeric type, backed by a buffer reused across batches and chunks.
func numScratch[P any](l *Leaf, n int) []P {
	size := n * int(unsafe.Sizeof(*new(P)))
	if cap(l.numScratch) < size {
		l.numScratch = make([]byte, size)
	}
	return castSlice[P](l.numScratch[:size:size])
}

// fixedOutput accumulates a fixed-width output buffer and its
// validity bitmap across chunk boundaries within one batch.
type fixedOutput struct {
	values       *memory.Buffer
	validity     *memory.Buffer
	validityBits []byte
	length       int
	nulls        int
}

func (l *Leaf) newFixedOutput(n int64, byteWidth int, packed bool) *fixedOutput {
	out := &fixedOutput{values: memory.NewResizableBuffer(l.mem)}
	if packed {
		out.values.Resize(int(bitutil.BytesForBits(n)))
	} else {
		out.values.Resize(int(n) * byteWidth)
	}
	if l.descr.MaxDefinitionLevel() > 0 {
		out.validity = memory.NewResizableBuffer(l.mem)
		out.validity.Resize(int(bitutil.BytesForBits(n + 1)))
		out.validityBits = out.validity.Bytes()
	}
	return out
}

func (o *fixedOutput) release() {
	o.values.Release()
	if o.validity != nil {
		o.validity.Release()
	}
}

// finish shrinks the buffers to the populated length and transfers
// them into a new array.  The validity bitmap is shrunk only when
// utilization fell below 80% of the requested batch, and elided
// entirely when no nulls were seen.
func (o *fixedOutput) finish(l *Leaf, n int64, byteWidth int, packed bool) (arrow.Array, error) {
	if packed {
		o.values.Resize(int(bitutil.BytesForBits(int64(o.length))))
	} else {
		o.values.Resize(o.length * byteWidth)
	}
	bufs := []*memory.Buffer{nil, o.values}
	if o.validity != nil && o.nulls > 0 {
		if float64(o.length) < 0.8*float64(n) {
			o.validity.Resize(int(bitutil.BytesForBits(int64(o.length))))
		}
		bufs[0] = o.validity
	}
	data := array.NewData(l.field.Type, o.length, bufs, nil, o.nulls, 0)
	arr := array.MakeFromData(data)
	data.Release()
	o.release()
	return arr, nil
}

// spread distributes the decoded values of one dense run into their
// final slots.  A level produces a slot iff its definition level is
// at least minSpaceDef; the slot holds a value iff the level equals
// the column's max definition level.  Returns the slots produced.
func (l *Leaf) spread(out *fixedOutput, defs []int16, place func(src, dst int)) int {
	maxDef := l.descr.MaxDefinitionLevel()
	start := out.length
	src := 0
	for _, d := range defs {
		switch {
		case d == maxDef:
			place(src, out.length)
			bitutil.SetBit(out.validityBits, out.length)
			src++
			out.length++
		case d >= l.minSpaceDef:
			out.nulls++
			out.length++
		}
	}
	return out.length - start
}

// growLevels widens the level scratch when a batch touches more
// levels than it produces slots (possible under deep repetition).
func (l *Leaf) growLevels() {
	l.defs = append(l.defs, make([]int16, len(l.defs)+1)...)
	if l.descr.MaxRepetitionLevel() > 0 {
		l.reps = append(l.reps, make([]int16, len(l.reps)+1)...)
	}
}

// levelRun sizes the next dense read against the remaining level
// scratch, growing it if a previous run consumed the headroom.
func (l *Leaf) levelRun(valuesToRead int64) (defs, reps []int16) {
	for int64(len(l.defs)-l.numLevels) < 1 {
		l.growLevels()
	}
	toRead := min(valuesToRead, int64(len(l.defs)-l.numLevels))
	defs = l.defs[l.numLevels : l.numLevels+int(toRead)]
	if l.descr.MaxRepetitionLevel() > 0 {
		reps = l.reps[l.numLevels : l.numLevels+int(toRead)]
	}
	return defs, reps
}

func (l *Leaf) advance() error {
	if !l.cr.HasNext() {
		return l.nextRowGroup()
	}
	return nil
}

func wrongPhysical[P any](l *Leaf) error {
	return fmt.Errorf("%w: column %q: physical type %s cannot decode into %T values",
		ErrInvalid, l.descr.Name(), l.descr.PhysicalType(), *new(P))
}

// readDirect decodes a column whose parquet value layout matches the
// Arrow value layout bit for bit.  With no definition levels the
// values land straight in the destination buffer.
func readDirect[P any](l *Leaf, n int64) (arrow.Array, error) {
	byteWidth := int(unsafe.Sizeof(*new(P)))
	out := l.newFixedOutput(n, byteWidth, false)
	dest := castSlice[P](out.values.Bytes())
	maxDef := l.descr.MaxDefinitionLevel()
	valuesToRead := n
	for valuesToRead > 0 && l.cr != nil {
		rd, ok := l.cr.(chunkReader[P])
		if !ok {
			out.release()
			return nil, wrongPhysical[P](l)
		}
		if maxDef == 0 {
			_, valuesRead, err := rd.ReadBatch(valuesToRead, dest[out.length:], nil, nil)
			if err != nil {
				out.release()
				return nil, err
			}
			out.length += valuesRead
			valuesToRead -= int64(valuesRead)
		} else {
			defs, reps := l.levelRun(valuesToRead)
			scratch := numScratch[P](l, len(defs))
			levels, _, err := rd.ReadBatch(int64(len(defs)), scratch, defs, reps)
			if err != nil {
				out.release()
				return nil, err
			}
			slots := l.spread(out, defs[:levels], func(src, dst int) {
				dest[dst] = scratch[src]
			})
			l.numLevels += int(levels)
			valuesToRead -= int64(slots)
		}
		if err := l.advance(); err != nil {
			out.release()
			return nil, err
		}
	}
	return out.finish(l, n, byteWidth, false)
}

// readConvert decodes a column whose values need a per-value scalar
// transform into the Arrow representation (widening, date64, int96).
func readConvert[P, A any](l *Leaf, n int64, conv func(P) A) (arrow.Array, error) {
	byteWidth := int(unsafe.Sizeof(*new(A)))
	out := l.newFixedOutput(n, byteWidth, false)
	dest := castSlice[A](out.values.Bytes())
	maxDef := l.descr.MaxDefinitionLevel()
	valuesToRead := n
	for valuesToRead > 0 && l.cr != nil {
		rd, ok := l.cr.(chunkReader[P])
		if !ok {
			out.release()
			return nil, wrongPhysical[P](l)
		}
		if maxDef == 0 {
			scratch := numScratch[P](l, int(valuesToRead))
			_, valuesRead, err := rd.ReadBatch(valuesToRead, scratch, nil, nil)
			if err != nil {
				out.release()
				return nil, err
			}
			for i := range valuesRead {
				dest[out.length+i] = conv(scratch[i])
			}
			out.length += valuesRead
			valuesToRead -= int64(valuesRead)
		} else {
			defs, reps := l.levelRun(valuesToRead)
			scratch := numScratch[P](l, len(defs))
			levels, _, err := rd.ReadBatch(int64(len(defs)), scratch, defs, reps)
			if err != nil {
				out.release()
				return nil, err
			}
			slots := l.spread(out, defs[:levels], func(src, dst int) {
				dest[dst] = conv(scratch[src])
			})
			l.numLevels += int(levels)
			valuesToRead -= int64(slots)
		}
		if err := l.advance(); err != nil {
			out.release()
			return nil, err
		}
	}
	return out.finish(l, n, byteWidth, false)
}

// readBool decodes booleans into a bit-packed values buffer.
func readBool(l *Leaf, n int64) (arrow.Array, error) {
	out := l.newFixedOutput(n, 0, true)
	bits := out.values.Bytes()
	maxDef := l.descr.MaxDefinitionLevel()
	valuesToRead := n
	for valuesToRead > 0 && l.cr != nil {
		rd, ok := l.cr.(chunkReader[bool])
		if !ok {
			out.release()
			return nil, wrongPhysical[bool](l)
		}
		if maxDef == 0 {
			scratch := boolScratch(l, int(valuesToRead))
			_, valuesRead, err := rd.ReadBatch(valuesToRead, scratch, nil, nil)
			if err != nil {
				out.release()
				return nil, err
			}
			for i := range valuesRead {
				if scratch[i] {
					bitutil.SetBit(bits, out.length+i)
				}
			}
			out.length += valuesRead
			valuesToRead -= int64(valuesRead)
		} else {
			defs, reps := l.levelRun(valuesToRead)
			scratch := boolScratch(l, len(defs))
			levels, _, err := rd.ReadBatch(int64(len(defs)), scratch, defs, reps)
			if err != nil {
				out.release()
				return nil, err
			}
			slots := l.spread(out, defs[:levels], func(src, dst int) {
				if scratch[src] {
					bitutil.SetBit(bits, dst)
				}
			})
			l.numLevels += int(levels)
			valuesToRead -= int64(slots)
		}
		if err := l.advance(); err != nil {
			out.release()
			return nil, err
		}
	}
	return out.finish(l, n, 0, true)
}

func boolScratch(l *Leaf, n int) []bool {
	if cap(l.boolScratch) < n {
		l.boolScratch = make([]bool, n)
	}
	return l.boolScratch[:n]
}

// readByteArray decodes variable-length binary through an array
// builder, which owns the offset and validity bookkeeping.
func readByteArray(l *Leaf, n int64) (arrow.Array, error) {
	var bldr array.Builder
	var appendVal func(parquet.ByteArray)
	if l.field.Type.ID() == arrow.STRING {
		b := array.NewStringBuilder(l.mem)
		bldr, appendVal = b, func(v parquet.ByteArray) { b.Append(string(v)) }
	} else {
		b := array.NewBinaryBuilder(l.mem, arrow.BinaryTypes.Binary)
		bldr, appendVal = b, func(v parquet.ByteArray) { b.Append(v) }
	}
	defer bldr.Release()
	if err := readBuilt(l, n, byteArrayScratch, bldr, appendVal); err != nil {
		return nil, err
	}
	return bldr.NewArray(), nil
}

// readFixedLen decodes fixed-width binary values.
func readFixedLen(l *Leaf, n int64) (arrow.Array, error) {
	b := array.NewFixedSizeBinaryBuilder(l.mem, l.field.Type.(*arrow.FixedSizeBinaryType))
	defer b.Release()
	if err := readBuilt(l, n, fixedLenScratch, b, func(v parquet.FixedLenByteArray) { b.Append(v) }); err != nil {
		return nil, err
	}
	return b.NewArray(), nil
}

func byteArrayScratch(l *Leaf, n int) []parquet.ByteArray {
	if cap(l.baScratch) < n {
		l.baScratch = make([]parquet.ByteArray, n)
	}
	return l.baScratch[:n]
}

func fixedLenScratch(l *Leaf, n int) []parquet.FixedLenByteArray {
	if cap(l.flbaScratch) < n {
		l.flbaScratch = make([]parquet.FixedLenByteArray, n)
	}
	return l.flbaScratch[:n]
}

// readBuilt is the shared chunk loop for builder-backed leaves.
func readBuilt[P any](l *Leaf, n int64, scratchFn func(*Leaf, int) []P, bldr array.Builder, appendVal func(P)) error {
	maxDef := l.descr.MaxDefinitionLevel()
	valuesToRead := n
	for valuesToRead > 0 && l.cr != nil {
		rd, ok := l.cr.(chunkReader[P])
		if !ok {
			return wrongPhysical[P](l)
		}
		if maxDef == 0 {
			scratch := scratchFn(l, int(valuesToRead))
			_, valuesRead, err := rd.ReadBatch(valuesToRead, scratch, nil, nil)
			if err != nil {
				return err
			}
			for i := range valuesRead {
				appendVal(scratch[i])
			}
			valuesToRead -= int64(valuesRead)
		} else {
			defs, reps := l.levelRun(valuesToRead)
			scratch := scratchFn(l, len(defs))
			levels, _, err := rd.ReadBatch(int64(len(defs)), scratch, defs, reps)
			if err != nil {
				return err
			}
			src, slots := 0, 0
			for _, d := range defs[:levels] {
				switch {
				case d == maxDef:
					appendVal(scratch[src])
					src++
					slots++
				case d >= l.minSpaceDef:
					bldr.AppendNull()
					slots++
				}
			}
			l.numLevels += int(levels)
			valuesToRead -= int64(slots)
		}
		if err := l.advance(); err != nil {
			return err
		}
	}
	return nil
}
