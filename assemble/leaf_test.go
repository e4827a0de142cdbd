package assemble_test

import (
	"encoding/binary"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brimdata/quiver/assemble"
)

func TestLeafRequiredInt64(t *testing.T) {
	sc := message(t, prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int64))
	r := writeFile(t, sc, [][]col{{{vals: []int64{1, 2, 3, 4, 5}}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(5)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.Int64)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, a.Int64Values())
	assert.Equal(t, 0, a.NullN())
	assert.Empty(t, asm.DefLevels())

	// The column is drained; the next batch reports exhaustion.
	next, err := asm.NextBatch(5)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestLeafOptionalFloat64(t *testing.T) {
	sc := message(t, prim(t, "b", parquet.Repetitions.Optional, parquet.Types.Double))
	r := writeFile(t, sc, [][]col{{{
		vals: []float64{2, 4, 5},
		defs: []int16{0, 1, 0, 1, 1},
	}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(5)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.Float64)
	require.Equal(t, 5, a.Len())
	assert.Equal(t, 2, a.NullN())
	for i, want := range []bool{true, false, true, false, false} {
		assert.Equal(t, want, a.IsNull(i), "slot %d", i)
	}
	assert.Equal(t, 2.0, a.Value(1))
	assert.Equal(t, 4.0, a.Value(3))
	assert.Equal(t, 5.0, a.Value(4))
	assert.Equal(t, []int16{0, 1, 0, 1, 1}, asm.DefLevels())
}

func TestLeafOptionalString(t *testing.T) {
	sc := message(t, primConv(t, "s", parquet.Repetitions.Optional, parquet.Types.ByteArray, schema.ConvertedTypes.UTF8, -1))
	r := writeFile(t, sc, [][]col{{{
		vals: ba("x", "y"),
		defs: []int16{1, 0, 1},
	}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(3)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.String)
	require.Equal(t, 3, a.Len())
	assert.Equal(t, 1, a.NullN())
	assert.Equal(t, "x", a.Value(0))
	assert.True(t, a.IsNull(1))
	assert.Equal(t, "y", a.Value(2))
}

func TestLeafOptionalBool(t *testing.T) {
	sc := message(t, prim(t, "ok", parquet.Repetitions.Optional, parquet.Types.Boolean))
	r := writeFile(t, sc, [][]col{{{
		vals: []bool{true, false, true},
		defs: []int16{1, 0, 1, 1},
	}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(4)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.Boolean)
	require.Equal(t, 4, a.Len())
	assert.Equal(t, 1, a.NullN())
	assert.True(t, a.Value(0))
	assert.True(t, a.IsNull(1))
	assert.False(t, a.Value(2))
	assert.True(t, a.Value(3))
}

func int96(days uint32, nanos uint64) parquet.Int96 {
	var v parquet.Int96
	binary.LittleEndian.PutUint64(v[0:8], nanos)
	binary.LittleEndian.PutUint32(v[8:12], days)
	return v
}

func TestLeafInt96Timestamp(t *testing.T) {
	sc := message(t, prim(t, "ts", parquet.Repetitions.Required, parquet.Types.Int96))
	r := writeFile(t, sc, [][]col{{{vals: []parquet.Int96{int96(2440589, 1)}}}})
	asm := buildField(t, r, 0)
	require.Equal(t, arrow.TIMESTAMP, asm.Field().Type.ID())
	arr, err := asm.NextBatch(1)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.Timestamp)
	require.Equal(t, 1, a.Len())
	// One julian day past the unix epoch plus one nanosecond.
	assert.Equal(t, arrow.Timestamp(86400000000001), a.Value(0))
}

func TestLeafDate64(t *testing.T) {
	// Date64 is not produced by the converted-type mapping; drive the
	// decode path with an explicit target field.
	sc := message(t, primConv(t, "d", parquet.Repetitions.Required, parquet.Types.Int32, schema.ConvertedTypes.Date, -1))
	r := writeFile(t, sc, [][]col{{{vals: []int32{3}}}})
	leaf, err := assemble.NewLeaf(memory.DefaultAllocator, &rgIter{r: r},
		arrow.Field{Name: "d", Type: arrow.FixedWidthTypes.Date64}, 0)
	require.NoError(t, err)
	arr, err := leaf.NextBatch(1)
	require.NoError(t, err)
	defer arr.Release()
	assert.Equal(t, arrow.Date64(3*86400000), arr.(*array.Date64).Value(0))
}

func TestLeafWidening(t *testing.T) {
	sc := message(t,
		primConv(t, "i8", parquet.Repetitions.Optional, parquet.Types.Int32, schema.ConvertedTypes.Int8, -1),
		primConv(t, "u16", parquet.Repetitions.Required, parquet.Types.Int32, schema.ConvertedTypes.Uint16, -1),
	)
	r := writeFile(t, sc, [][]col{{
		{vals: []int32{-1, 7}, defs: []int16{1, 0, 1}},
		{vals: []int32{65535, 2, 3}},
	}})

	i8 := buildField(t, r, 0)
	arr, err := i8.NextBatch(3)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.Int8)
	assert.Equal(t, int8(-1), a.Value(0))
	assert.True(t, a.IsNull(1))
	assert.Equal(t, int8(7), a.Value(2))

	u16 := buildField(t, r, 1)
	arr2, err := u16.NextBatch(3)
	require.NoError(t, err)
	defer arr2.Release()
	assert.Equal(t, []uint16{65535, 2, 3}, arr2.(*array.Uint16).Uint16Values())
}

func TestLeafFixedLenBinary(t *testing.T) {
	f, err := schema.NewPrimitiveNode("f", parquet.Repetitions.Optional, parquet.Types.FixedLenByteArray, -1, 2)
	require.NoError(t, err)
	sc := message(t, f)
	r := writeFile(t, sc, [][]col{{{
		vals: []parquet.FixedLenByteArray{[]byte("ab"), []byte("cd")},
		defs: []int16{1, 0, 1},
	}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(3)
	require.NoError(t, err)
	defer arr.Release()
	a := arr.(*array.FixedSizeBinary)
	require.Equal(t, 3, a.Len())
	assert.Equal(t, []byte("ab"), a.Value(0))
	assert.True(t, a.IsNull(1))
	assert.Equal(t, []byte("cd"), a.Value(2))
}

func TestLeafRowGroupCrossing(t *testing.T) {
	sc := message(t, prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int32))
	r := writeFile(t, sc, [][]col{
		{{vals: []int32{1, 2, 3}}},
		{{vals: []int32{4, 5, 6}}},
	})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(6)
	require.NoError(t, err)
	defer arr.Release()
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, arr.(*array.Int32).Int32Values())
}

func TestLeafShortBatch(t *testing.T) {
	sc := message(t, prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int32))
	r := writeFile(t, sc, [][]col{{{vals: []int32{9, 8}}}})
	asm := buildField(t, r, 0)
	arr, err := asm.NextBatch(10)
	require.NoError(t, err)
	defer arr.Release()
	assert.Equal(t, 2, arr.Len())
}
