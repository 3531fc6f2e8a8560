package file

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/djberg96/hexapdf/pdf"
)

func indirect(number, generation uint, obj pdf.Object) pdf.IndirectObject {
	return pdf.IndirectObject{
		ObjectReference: pdf.ObjectReference{
			ObjectNumber:     number,
			GenerationNumber: generation,
		},
		Object: obj,
	}
}

func TestObjectTableExactAndLatestLookup(t *testing.T) {
	table := NewObjectTable()
	table.Put(indirect(3, 0, pdf.Integer(1)))
	table.Put(indirect(3, 1, pdf.Integer(2)))

	obj, ok := table.Get(3, 0)
	assert.True(t, ok)
	assert.Equal(t, pdf.Integer(1), obj.Object)

	// generation 1 was stored last, so it is the one on file
	obj, ok = table.Latest(3)
	assert.True(t, ok)
	assert.Equal(t, pdf.Integer(2), obj.Object)

	assert.True(t, table.Has(3))
	assert.True(t, table.HasGeneration(3, 0))
	assert.False(t, table.HasGeneration(3, 2))

	_, ok = table.Get(4, 0)
	assert.False(t, ok)
}

func TestObjectTableDeleteRemovesAllGenerations(t *testing.T) {
	table := NewObjectTable()
	table.Put(indirect(5, 0, pdf.Integer(1)))
	table.Put(indirect(5, 1, pdf.Integer(2)))
	table.Put(indirect(6, 0, pdf.Integer(3)))

	table.Delete(5)

	assert.False(t, table.Has(5))
	assert.False(t, table.HasGeneration(5, 0))
	assert.False(t, table.HasGeneration(5, 1))
	assert.True(t, table.Has(6))
}

func TestObjectTableIDsSortedAndMaxID(t *testing.T) {
	table := NewObjectTable()
	assert.Equal(t, uint(0), table.MaxID())

	table.Put(indirect(9, 0, pdf.Null{}))
	table.Put(indirect(2, 0, pdf.Null{}))
	table.Put(indirect(4, 0, pdf.Null{}))

	assert.Equal(t, []uint{2, 4, 9}, table.IDs())
	assert.Equal(t, uint(9), table.MaxID())
	assert.Equal(t, 3, table.Len())
}
