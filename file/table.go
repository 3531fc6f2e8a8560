package file

import (
	"sort"

	"github.com/djberg96/hexapdf/pdf"
)

type objectKey struct {
	number     uint
	generation uint
}

// ObjectTable maps (object number, generation number) pairs to the
// objects materialized in a revision. A secondary index records the
// generation currently on file for each object number, so references
// that omit the generation can be resolved.
//
// The table performs no I/O; lazily pulling objects out of a
// cross-reference index is the Revision's job.
type ObjectTable struct {
	objects map[objectKey]pdf.IndirectObject

	// generation on file per object number; at most one live
	// entry per exact (number, generation) pair
	onFile map[uint]uint
}

func NewObjectTable() *ObjectTable {
	return &ObjectTable{
		objects: map[objectKey]pdf.IndirectObject{},
		onFile:  map[uint]uint{},
	}
}

// Get returns the object stored under exactly (number, generation).
func (t *ObjectTable) Get(number, generation uint) (pdf.IndirectObject, bool) {
	obj, ok := t.objects[objectKey{number, generation}]
	return obj, ok
}

// Latest returns the object stored under number at the generation
// currently on file.
func (t *ObjectTable) Latest(number uint) (pdf.IndirectObject, bool) {
	generation, ok := t.onFile[number]
	if !ok {
		return pdf.IndirectObject{}, false
	}
	return t.Get(number, generation)
}

// Has reports whether any generation of number is stored.
func (t *ObjectTable) Has(number uint) bool {
	_, ok := t.onFile[number]
	return ok
}

// HasGeneration reports whether exactly (number, generation) is stored.
func (t *ObjectTable) HasGeneration(number, generation uint) bool {
	_, ok := t.objects[objectKey{number, generation}]
	return ok
}

// Put stores obj under its own identity, overwriting any object
// already stored there, and marks its generation as the one on file.
func (t *ObjectTable) Put(obj pdf.IndirectObject) {
	t.objects[objectKey{obj.ObjectNumber, obj.GenerationNumber}] = obj
	t.onFile[obj.ObjectNumber] = obj.GenerationNumber
}

// Delete removes every generation of number from the table.
func (t *ObjectTable) Delete(number uint) {
	for key := range t.objects {
		if key.number == number {
			delete(t.objects, key)
		}
	}
	delete(t.onFile, number)
}

// IDs returns the stored object numbers in ascending order.
func (t *ObjectTable) IDs() []uint {
	ids := make([]uint, 0, len(t.onFile))
	for number := range t.onFile {
		ids = append(ids, number)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MaxID returns the largest stored object number, or 0 when empty.
func (t *ObjectTable) MaxID() uint {
	var max uint
	for number := range t.onFile {
		if number > max {
			max = number
		}
	}
	return max
}

// Len returns the number of stored objects.
func (t *ObjectTable) Len() int {
	return len(t.objects)
}
