package assemble

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// List wraps a single child assembler in one level of repetition,
// synthesizing offsets from the child's repetition runs and validity
// from its definition levels.  Maps assemble through the same path
// with a struct-of-key/value child; the map layout is identical to a
// list of structs.
type List struct {
	mem         memory.Allocator
	child       Assembler
	field       arrow.Field
	defLevel    int16
	repLevel    int16
	minSpaceDef int16

	// derived level streams, rebuilt on every batch
	defs, reps []int16
}

var _ Assembler = (*List)(nil)

func NewList(mem memory.Allocator, child Assembler, field arrow.Field, defLevel, repLevel, minSpaceDef int16) *List {
	return &List{
		mem:         mem,
		child:       child,
		field:       field,
		defLevel:    defLevel,
		repLevel:    repLevel,
		minSpaceDef: minSpaceDef,
	}
}

func (l *List) Field() arrow.Field { return l.field }
func (l *List) MaxDefLevel() int16 { return l.defLevel }
func (l *List) MaxRepLevel() int16 { return l.repLevel }
func (l *List) DefLevels() []int16 { return l.defs }
func (l *List) RepLevels() []int16 { return l.reps }

func (l *List) NextBatch(n int64) (arrow.Array, error) {
	l.defs = l.defs[:0]
	l.reps = l.reps[:0]
	child, err := l.child.NextBatch(n)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	defer child.Release()
	cdefs := l.child.DefLevels()
	creps := l.child.RepLevels()
	if len(creps) != len(cdefs) {
		return nil, fmt.Errorf("%w: list %q: child level streams disagree: %d def, %d rep",
			ErrInvalid, l.field.Name, len(cdefs), len(creps))
	}
	l.deriveLevels(cdefs, creps)
	return l.wrap(child, cdefs, creps)
}

// deriveLevels folds the child level streams into one entry per list
// slot.  A new list starts wherever the child repetition level drops
// below the child's max repetition; the slot's definition level is
// the maximum within the run capped at the list level, its repetition
// level the minimum capped likewise.
func (l *List) deriveLevels(cdefs, creps []int16) {
	childMaxRep := l.child.MaxRepLevel()
	for i := 0; i < len(cdefs); {
		def := int16(-1)
		rep := l.repLevel
		for {
			def = max(def, cdefs[i])
			rep = min(rep, creps[i])
			i++
			if i >= len(cdefs) || creps[i] < childMaxRep {
				break
			}
		}
		l.defs = append(l.defs, min(def, l.defLevel))
		l.reps = append(l.reps, rep)
	}
}

// wrap builds the offsets and validity buffers and assembles the list
// (or map) array around the child.
func (l *List) wrap(child arrow.Array, cdefs, creps []int16) (arrow.Array, error) {
	offsetsBuf := memory.NewResizableBuffer(l.mem)
	offsetsBuf.Resize((len(l.defs) + 1) * arrow.Int32SizeBytes)
	offsets := castSlice[int32](offsetsBuf.Bytes())
	validityBuf := memory.NewResizableBuffer(l.mem)
	validityBuf.Resize(int(bitutil.BytesForBits(int64(len(l.defs)) + 1)))
	validity := validityBuf.Bytes()
	release := func() {
		offsetsBuf.Release()
		validityBuf.Release()
	}

	var valIdx int32
	levelIdx := 0
	length := 0
	nulls := 0
	offsets[0] = 0
	for _, d := range l.defs {
		// Child values advance only through defined, non-empty lists.
		if d == l.defLevel && levelIdx < len(cdefs) && cdefs[levelIdx] > l.defLevel {
			for {
				levelIdx++
				valIdx++
				if levelIdx >= len(cdefs) || creps[levelIdx] <= l.repLevel {
					break
				}
			}
		} else {
			levelIdx++
		}
		// A slot exists only when the definition reaches the nearest
		// non-repeated ancestor bound; below that the list was never
		// materialized at this position.
		if d >= l.minSpaceDef {
			if d >= l.defLevel {
				bitutil.SetBit(validity, length)
			} else {
				nulls++
			}
			length++
			offsets[length] = valIdx
		}
	}
	if int(valIdx) != child.Len() {
		release()
		return nil, fmt.Errorf("%w: list %q: offsets cover %d child values, child has %d",
			ErrInvalid, l.field.Name, valIdx, child.Len())
	}

	offsetsBuf.Resize((length + 1) * arrow.Int32SizeBytes)
	bufs := []*memory.Buffer{nil, offsetsBuf}
	if nulls > 0 {
		validityBuf.Resize(int(bitutil.BytesForBits(int64(length))))
		bufs[0] = validityBuf
	}
	data := array.NewData(l.field.Type, length, bufs, []arrow.ArrayData{child.Data()}, nulls, 0)
	arr := array.MakeFromData(data)
	data.Release()
	release()
	return arr, nil
}
