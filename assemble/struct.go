package assemble

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Struct composes sibling assemblers into one struct array and
// synthesizes struct-level validity from their merged definition
// levels.
type Struct struct {
	mem         memory.Allocator
	children    []Assembler
	field       arrow.Field
	defLevel    int16
	repLevel    int16
	minSpaceDef int16

	defs, reps []int16
}

var _ Assembler = (*Struct)(nil)

func NewStruct(mem memory.Allocator, children []Assembler, field arrow.Field, defLevel, repLevel, minSpaceDef int16) *Struct {
	return &Struct{
		mem:         mem,
		children:    children,
		field:       field,
		defLevel:    defLevel,
		repLevel:    repLevel,
		minSpaceDef: minSpaceDef,
	}
}

func (s *Struct) Field() arrow.Field { return s.field }
func (s *Struct) MaxDefLevel() int16 { return s.defLevel }
func (s *Struct) MaxRepLevel() int16 { return s.repLevel }
func (s *Struct) DefLevels() []int16 { return s.defs }
func (s *Struct) RepLevels() []int16 { return s.reps }

func (s *Struct) NextBatch(n int64) (arrow.Array, error) {
	s.defs = nil
	s.reps = nil
	arrays := make([]arrow.Array, 0, len(s.children))
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	for _, c := range s.children {
		arr, err := c.NextBatch(n)
		if err != nil {
			return nil, err
		}
		if arr == nil {
			// Source exhausted; siblings are exhausted with it.
			return nil, nil
		}
		arrays = append(arrays, arr)
	}
	length := arrays[0].Len()
	for i, arr := range arrays[1:] {
		if arr.Len() != length {
			return nil, fmt.Errorf("%w: struct %q: child %q has %d rows, %q has %d",
				ErrInvalid, s.field.Name, s.children[i+1].Field().Name, arr.Len(),
				s.children[0].Field().Name, length)
		}
	}
	if err := s.mergeLevels(); err != nil {
		return nil, err
	}
	validity, nulls, err := s.synthesizeValidity(length)
	if err != nil {
		return nil, err
	}

	childData := make([]arrow.ArrayData, len(arrays))
	for i, arr := range arrays {
		childData[i] = arr.Data()
	}
	data := array.NewData(s.field.Type, length, []*memory.Buffer{validity}, childData, nulls, 0)
	arr := array.MakeFromData(data)
	data.Release()
	if validity != nil {
		validity.Release()
	}
	return arr, nil
}

// mergeLevels folds the children's level streams into the struct's.
// When the struct is present every child reports at least the struct
// level; when it is absent all children carry the same lower level,
// which max-of-min recovers.  Children whose subtree produced no
// levels (required all the way down) are skipped.
func (s *Struct) mergeLevels() error {
	maxRep := int16(0)
	for _, c := range s.children {
		maxRep = max(maxRep, c.MaxRepLevel())
	}
	for _, c := range s.children {
		cdefs := c.DefLevels()
		if len(cdefs) == 0 {
			continue
		}
		if s.defs == nil {
			s.defs = make([]int16, len(cdefs))
			for i := range s.defs {
				s.defs[i] = -1
			}
		} else if len(cdefs) != len(s.defs) {
			return fmt.Errorf("%w: struct %q: child %q reports %d levels, want %d",
				ErrInvalid, s.field.Name, c.Field().Name, len(cdefs), len(s.defs))
		}
		for i, d := range cdefs {
			s.defs[i] = max(s.defs[i], min(d, s.defLevel))
		}
		creps := c.RepLevels()
		if len(creps) == 0 {
			continue
		}
		if s.reps == nil {
			s.reps = make([]int16, len(creps))
			for i := range s.reps {
				s.reps[i] = maxRep
			}
		}
		for i, r := range creps {
			s.reps[i] = min(s.reps[i], r)
		}
	}
	return nil
}

func (s *Struct) synthesizeValidity(length int) (*memory.Buffer, int, error) {
	if s.defs == nil {
		return nil, 0, nil
	}
	buf := memory.NewResizableBuffer(s.mem)
	buf.Resize(int(bitutil.BytesForBits(int64(len(s.defs)))))
	bits := buf.Bytes()
	slot := 0
	nulls := 0
	for _, d := range s.defs {
		switch {
		case d >= s.defLevel:
			bitutil.SetBit(bits, slot)
			slot++
		case d >= s.minSpaceDef:
			nulls++
			slot++
		}
		// Below minSpaceDef the position never existed; the children
		// skipped it too, so no slot is emitted.
	}
	if slot != length {
		buf.Release()
		return nil, 0, fmt.Errorf("%w: struct %q: levels yield %d slots, children have %d rows",
			ErrInvalid, s.field.Name, slot, length)
	}
	if nulls == 0 {
		buf.Release()
		return nil, 0, nil
	}
	return buf, nulls, nil
}
