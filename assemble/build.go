package assemble

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/schema"
)

// IteratorFactory binds a leaf column index to its chunk iterator,
// letting the caller choose between all-row-groups and
// single-row-group iteration.
type IteratorFactory func(col int) ColumnIterator

// CountLeaves reports the number of leaf columns under a schema node.
// Column indices follow depth-first leaf order, so the leaves of
// top-level field f occupy one contiguous index range.
func CountLeaves(n schema.Node) int {
	g, ok := n.(*schema.GroupNode)
	if !ok {
		return 1
	}
	var count int
	for i := 0; i < g.NumFields(); i++ {
		count += CountLeaves(g.Field(i))
	}
	return count
}

// Build constructs the assembler tree for top-level field f of the
// schema, restricted to the leaf columns in indices (nil selects all).
// It returns nil when none of the field's leaves are selected.
func Build(mem memory.Allocator, sc *schema.Schema, f int, indices []int, iter IteratorFactory) (Assembler, error) {
	root := sc.Root()
	if f < 0 || f >= root.NumFields() {
		return nil, fmt.Errorf("%w: field index %d out of range [0, %d)",
			ErrInvalidArgument, f, root.NumFields())
	}
	b := &builder{mem: mem, sc: sc, iter: iter}
	if indices != nil {
		b.selected = make(map[int]struct{}, len(indices))
		for _, i := range indices {
			b.selected[i] = struct{}{}
		}
	}
	for i := 0; i < f; i++ {
		b.col += CountLeaves(root.Field(i))
	}
	return b.node(root.Field(f), 0, 0, 0)
}

type builder struct {
	mem      memory.Allocator
	sc       *schema.Schema
	selected map[int]struct{} // nil selects every column
	iter     IteratorFactory
	col      int // running leaf column index
}

func (b *builder) wants(col int) bool {
	if b.selected == nil {
		return true
	}
	_, ok := b.selected[col]
	return ok
}

// node builds the assembler for n given the definition and repetition
// levels of its parent and the definition bound below which positions
// in this subtree are absent rather than null.
func (b *builder) node(n schema.Node, pdef, prep, minSpace int16) (Assembler, error) {
	if _, ok := n.(*schema.PrimitiveNode); ok {
		col := b.col
		b.col++
		if !b.wants(col) {
			return nil, nil
		}
		f, err := leafField(b.sc.Column(col))
		if err != nil {
			return nil, err
		}
		return NewLeaf(b.mem, b.iter(col), f, minSpace)
	}
	g := n.(*schema.GroupNode)
	switch g.ConvertedType() {
	case schema.ConvertedTypes.List:
		return b.list(g, pdef, prep, minSpace)
	case schema.ConvertedTypes.Map, schema.ConvertedTypes.MapKeyValue:
		return b.mapGroup(g, pdef, prep, minSpace)
	default:
		if g.RepetitionType() == parquet.Repetitions.Repeated {
			return nil, fmt.Errorf("%w: repeated group %q without LIST or MAP annotation",
				ErrNotImplemented, g.Name())
		}
		return b.structGroup(g, pdef, prep, minSpace)
	}
}

func (b *builder) structGroup(g *schema.GroupNode, pdef, prep, minSpace int16) (Assembler, error) {
	def := pdef
	optional := g.RepetitionType() == parquet.Repetitions.Optional
	if optional {
		def++
	}
	var children []Assembler
	var fields []arrow.Field
	for i := 0; i < g.NumFields(); i++ {
		child, err := b.node(g.Field(i), def, prep, minSpace)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
			fields = append(fields, child.Field())
		}
	}
	if len(children) == 0 {
		return nil, nil
	}
	f := arrow.Field{Name: g.Name(), Type: arrow.StructOf(fields...), Nullable: optional}
	return NewStruct(b.mem, children, f, def, prep, minSpace), nil
}

// list handles the three-level LIST shape: the annotated group holds
// one repeated middle group whose single child is the element.
func (b *builder) list(g *schema.GroupNode, pdef, prep, minSpace int16) (Assembler, error) {
	optional := g.RepetitionType() == parquet.Repetitions.Optional
	def := pdef
	if optional {
		def++
	}
	mid, err := listMiddle(g)
	if err != nil {
		return nil, err
	}
	if mid.NumFields() != 1 {
		return nil, fmt.Errorf("%w: list %q: element group with more than one child",
			ErrNotImplemented, g.Name())
	}
	// The repeated level raises the definition bound by one, and any
	// position below it was dropped with its containing list.
	child, err := b.node(mid.Field(0), def+1, prep+1, def+1)
	if err != nil || child == nil {
		return nil, err
	}
	f := arrow.Field{Name: g.Name(), Type: arrow.ListOfField(child.Field()), Nullable: optional}
	return NewList(b.mem, child, f, def, prep, minSpace), nil
}

// mapGroup handles MAP and the legacy MAP_KEY_VALUE shape: the
// repeated middle group is itself the element, a struct of key and
// value.
func (b *builder) mapGroup(g *schema.GroupNode, pdef, prep, minSpace int16) (Assembler, error) {
	optional := g.RepetitionType() == parquet.Repetitions.Optional
	def := pdef
	if optional {
		def++
	}
	mid, err := listMiddle(g)
	if err != nil {
		return nil, err
	}
	if mid.NumFields() != 2 {
		return nil, fmt.Errorf("%w: map %q: key_value group must have exactly key and value",
			ErrNotImplemented, g.Name())
	}
	keyAsm, err := b.node(mid.Field(0), def+1, prep+1, def+1)
	if err != nil {
		return nil, err
	}
	valAsm, err := b.node(mid.Field(1), def+1, prep+1, def+1)
	if err != nil {
		return nil, err
	}
	if keyAsm == nil && valAsm == nil {
		return nil, nil
	}
	var children []Assembler
	var fields []arrow.Field
	for _, c := range []Assembler{keyAsm, valAsm} {
		if c != nil {
			children = append(children, c)
			fields = append(fields, c.Field())
		}
	}
	entriesType := arrow.StructOf(fields...)
	entries := NewStruct(b.mem, children,
		arrow.Field{Name: mid.Name(), Type: entriesType}, def+1, prep+1, def+1)
	var listType arrow.DataType
	if keyAsm != nil && valAsm != nil {
		listType = arrow.MapOf(keyAsm.Field().Type, valAsm.Field().Type)
	} else {
		// A partial selection cannot form a map; fall back to the
		// equivalent list-of-struct shape.
		listType = arrow.ListOfField(arrow.Field{Name: mid.Name(), Type: entriesType})
	}
	f := arrow.Field{Name: g.Name(), Type: listType, Nullable: optional}
	return NewList(b.mem, entries, f, def, prep, minSpace), nil
}

func listMiddle(g *schema.GroupNode) (*schema.GroupNode, error) {
	if g.NumFields() != 1 {
		return nil, fmt.Errorf("%w: group %q: annotated container must hold one repeated group",
			ErrNotImplemented, g.Name())
	}
	mid, ok := g.Field(0).(*schema.GroupNode)
	if !ok || mid.RepetitionType() != parquet.Repetitions.Repeated {
		return nil, fmt.Errorf("%w: group %q: two-level repeated encoding",
			ErrNotImplemented, g.Name())
	}
	return mid, nil
}

// LeafInfo describes the level bounds of one leaf column as derived
// from its path through the schema.
type LeafInfo struct {
	Field       arrow.Field
	MinSpaceDef int16
}

// LeafForColumn walks the schema down to leaf column col, computing
// the definition bound of its nearest repeated ancestor on the way.
// It serves flat single-column readers that bypass the tree builder.
func LeafForColumn(sc *schema.Schema, col int) (LeafInfo, error) {
	if col < 0 || col >= sc.NumColumns() {
		return LeafInfo{}, fmt.Errorf("%w: column index %d out of range [0, %d)",
			ErrInvalidArgument, col, sc.NumColumns())
	}
	f, err := leafField(sc.Column(col))
	if err != nil {
		return LeafInfo{}, err
	}
	var walk func(n schema.Node, def, minSpace int16, first int) (int16, bool)
	walk = func(n schema.Node, def, minSpace int16, first int) (int16, bool) {
		if n.RepetitionType() == parquet.Repetitions.Optional {
			def++
		} else if n.RepetitionType() == parquet.Repetitions.Repeated {
			def++
			minSpace = def
		}
		if _, ok := n.(*schema.PrimitiveNode); ok {
			return minSpace, first == col
		}
		g := n.(*schema.GroupNode)
		for i := 0; i < g.NumFields(); i++ {
			c := g.Field(i)
			leaves := CountLeaves(c)
			if col < first+leaves {
				return walk(c, def, minSpace, first)
			}
			first += leaves
		}
		return minSpace, false
	}
	root := sc.Root()
	first := 0
	for i := 0; i < root.NumFields(); i++ {
		c := root.Field(i)
		leaves := CountLeaves(c)
		if col < first+leaves {
			minSpace, ok := walk(c, 0, 0, first)
			if !ok {
				return LeafInfo{}, fmt.Errorf("%w: column %d not found in schema", ErrInvalid, col)
			}
			return LeafInfo{Field: f, MinSpaceDef: minSpace}, nil
		}
		first += leaves
	}
	return LeafInfo{}, fmt.Errorf("%w: column %d not found in schema", ErrInvalid, col)
}
