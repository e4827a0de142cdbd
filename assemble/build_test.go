package assemble_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brimdata/quiver/assemble"
)

func TestBuildSelection(t *testing.T) {
	sc := message(t,
		prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int64),
		group(t, "s", parquet.Repetitions.Optional,
			prim(t, "x", parquet.Repetitions.Optional, parquet.Types.Int32),
			prim(t, "y", parquet.Repetitions.Optional, parquet.Types.Int32)))
	r := writeFile(t, sc, [][]col{{
		{vals: []int64{1}},
		{vals: []int32{2}, defs: []int16{2}},
		{vals: []int32{3}, defs: []int16{2}},
	}})
	mem := memory.DefaultAllocator

	// Selecting only column 0 leaves field 1 with no assembler.
	asm, err := assemble.Build(mem, r.MetaData().Schema, 1, []int{0}, iterFor(r))
	require.NoError(t, err)
	assert.Nil(t, asm)

	// Selecting one struct leaf narrows the struct type to it.
	asm, err = assemble.Build(mem, r.MetaData().Schema, 1, []int{2}, iterFor(r))
	require.NoError(t, err)
	require.NotNil(t, asm)
	st := asm.Field().Type.(*arrow.StructType)
	require.Equal(t, 1, st.NumFields())
	assert.Equal(t, "y", st.Field(0).Name)
}

func TestBuildFieldIndexOutOfRange(t *testing.T) {
	sc := message(t, prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int32))
	r := writeFile(t, sc, [][]col{{{vals: []int32{1}}}})
	_, err := assemble.Build(memory.DefaultAllocator, r.MetaData().Schema, 3, nil, iterFor(r))
	assert.ErrorIs(t, err, assemble.ErrInvalidArgument)
}

func TestBuildUnannotatedRepeatedGroup(t *testing.T) {
	sc := message(t,
		group(t, "g", parquet.Repetitions.Repeated,
			prim(t, "x", parquet.Repetitions.Required, parquet.Types.Int32)))
	r := writeFile(t, sc, [][]col{{{vals: []int32{1}, defs: []int16{1}, reps: []int16{0}}}})
	_, err := assemble.Build(memory.DefaultAllocator, r.MetaData().Schema, 0, nil, iterFor(r))
	assert.ErrorIs(t, err, assemble.ErrNotImplemented)
}

func TestBuildListElementWithTwoChildren(t *testing.T) {
	sc := message(t,
		groupConv(t, "xs", parquet.Repetitions.Optional, schema.ConvertedTypes.List,
			group(t, "list", parquet.Repetitions.Repeated,
				prim(t, "a", parquet.Repetitions.Required, parquet.Types.Int32),
				prim(t, "b", parquet.Repetitions.Required, parquet.Types.Int32))))
	r := writeFile(t, sc, [][]col{{
		{vals: []int32{1}, defs: []int16{2}, reps: []int16{0}},
		{vals: []int32{2}, defs: []int16{2}, reps: []int16{0}},
	}})
	_, err := assemble.Build(memory.DefaultAllocator, r.MetaData().Schema, 0, nil, iterFor(r))
	assert.ErrorIs(t, err, assemble.ErrNotImplemented)
}

func TestBuildUnsupportedConvertedType(t *testing.T) {
	dec, err := schema.NewPrimitiveNodeConverted("d", parquet.Repetitions.Required, parquet.Types.Int32,
		schema.ConvertedTypes.Decimal, -1, 9, 2, -1)
	require.NoError(t, err)
	sc := message(t, dec)
	r := writeFile(t, sc, [][]col{{{vals: []int32{100}}}})
	_, err = assemble.Build(memory.DefaultAllocator, r.MetaData().Schema, 0, nil, iterFor(r))
	assert.ErrorIs(t, err, assemble.ErrNotImplemented)
}

func TestLeafForColumn(t *testing.T) {
	sc := message(t,
		prim(t, "a", parquet.Repetitions.Optional, parquet.Types.Int64),
		groupConv(t, "xs", parquet.Repetitions.Optional, schema.ConvertedTypes.List,
			group(t, "list", parquet.Repetitions.Repeated,
				prim(t, "element", parquet.Repetitions.Optional, parquet.Types.Int32))))

	flat, err := assemble.LeafForColumn(sc, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", flat.Field.Name)
	assert.Equal(t, int16(0), flat.MinSpaceDef)

	elem, err := assemble.LeafForColumn(sc, 1)
	require.NoError(t, err)
	assert.Equal(t, "element", elem.Field.Name)
	// Below definition level 2 the containing list never produced
	// this position at all.
	assert.Equal(t, int16(2), elem.MinSpaceDef)

	_, err = assemble.LeafForColumn(sc, 2)
	assert.ErrorIs(t, err, assemble.ErrInvalidArgument)
}
