package file

import (
	"testing"

	"github.com/juju/errgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djberg96/hexapdf/pdf"
)

// countingLoader serves objects from a map, counting how often each
// one is materialized.
type countingLoader struct {
	objects map[uint]pdf.IndirectObject
	loads   map[uint]int
}

func newCountingLoader(objects ...pdf.IndirectObject) *countingLoader {
	l := &countingLoader{
		objects: map[uint]pdf.IndirectObject{},
		loads:   map[uint]int{},
	}
	for _, obj := range objects {
		l.objects[obj.ObjectNumber] = obj
	}
	return l
}

func (l *countingLoader) Load(entry Entry) (pdf.IndirectObject, error) {
	obj, ok := l.objects[entry.ID]
	if !ok {
		return pdf.IndirectObject{}, errgo.Newf("no object %d", entry.ID)
	}
	l.loads[entry.ID]++
	return obj, nil
}

func (l *countingLoader) totalLoads() int {
	total := 0
	for _, n := range l.loads {
		total += n
	}
	return total
}

func TestRevisionAddAndGet(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(42))))

	obj, ok, err := rev.Object(pdf.ObjectReference{ObjectNumber: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pdf.Integer(42), obj.Object)

	// wrong generation is absent, not an error
	_, ok, err = rev.Object(pdf.ObjectReference{ObjectNumber: 1, GenerationNumber: 2})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = rev.ObjectByNumber(9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevisionAddRejectsObjectNumberZero(t *testing.T) {
	rev := NewRevision()
	err := rev.Add(indirect(0, 0, pdf.Integer(1)))
	require.Error(t, err)
	assert.Equal(t, ErrReservedIdentity, errgo.Cause(err))
}

func TestRevisionAddRejectsDuplicateNumbers(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(1))))

	err := rev.Add(indirect(1, 0, pdf.Integer(2)))
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateIdentity, errgo.Cause(err))

	// a different generation of the same number is still a duplicate
	err = rev.Add(indirect(1, 1, pdf.Integer(3)))
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateIdentity, errgo.Cause(err))
}

func TestRevisionAddRejectsNumbersStillOnFile(t *testing.T) {
	index := NewXrefIndex()
	index.AddInUse(4, 0, 0)
	rev := LoadedRevision(index, nil, newCountingLoader())

	err := rev.Add(indirect(4, 0, pdf.Integer(1)))
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateIdentity, errgo.Cause(err))
}

func TestRevisionDeleteMarkFreeLeavesNullSentinel(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(2, 3, pdf.Integer(42))))

	rev.Delete(2, true)

	// the number still exists, as an explicit null with the
	// generation it had
	obj, ok, err := rev.ObjectByNumber(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pdf.IsNull(obj.Object))
	assert.Equal(t, uint(3), obj.GenerationNumber)

	// its number cannot be reused while the tombstone remains
	err = rev.Add(indirect(2, 0, pdf.Integer(1)))
	require.Error(t, err)
	assert.Equal(t, ErrDuplicateIdentity, errgo.Cause(err))
}

func TestRevisionDeleteHardErasesTheNumber(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Integer(42))))

	rev.Delete(2, false)

	_, ok, err := rev.ObjectByNumber(2)
	require.NoError(t, err)
	assert.False(t, ok)

	// the number is free for reuse
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Integer(7))))
}

func TestRevisionDeleteMarkFreeOfUnknownNumberIsNoop(t *testing.T) {
	rev := NewRevision()
	rev.Delete(9, true)

	_, ok, err := rev.ObjectByNumber(9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevisionMaterializesFreeEntriesAsNull(t *testing.T) {
	index := NewXrefIndex()
	index.AddFree(7, 3)
	rev := LoadedRevision(index, nil, newCountingLoader())

	obj, ok, err := rev.ObjectByNumber(7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, pdf.IsNull(obj.Object))
	assert.Equal(t, uint(3), obj.GenerationNumber)

	// the exact generation resolves too, other generations do not
	_, ok, _ = rev.Object(pdf.ObjectReference{ObjectNumber: 7, GenerationNumber: 3})
	assert.True(t, ok)
	_, ok, _ = rev.Object(pdf.ObjectReference{ObjectNumber: 7})
	assert.False(t, ok)
}

func TestRevisionObjectsVisitAllMaterializesOnce(t *testing.T) {
	loader := newCountingLoader(
		indirect(1, 0, pdf.Integer(10)),
		indirect(2, 0, pdf.Integer(20)),
	)
	index := NewXrefIndex()
	index.AddInUse(1, 0, 0)
	index.AddInUse(2, 0, 0)
	rev := LoadedRevision(index, nil, loader)

	objects, err := rev.Objects(true)
	require.NoError(t, err)
	// the free-list head materializes as null alongside the two
	// loaded objects
	assert.Len(t, objects, 3)
	assert.Equal(t, 2, loader.totalLoads())

	// a second traversal performs no further loads
	again, err := rev.Objects(true)
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Equal(t, 2, loader.totalLoads())
}

func TestRevisionObjectsResidentOnlySkipsTheIndex(t *testing.T) {
	loader := newCountingLoader(indirect(1, 0, pdf.Integer(10)))
	index := NewXrefIndex()
	index.AddInUse(1, 0, 0)
	rev := LoadedRevision(index, nil, loader)

	require.NoError(t, rev.Add(indirect(5, 0, pdf.Integer(50))))

	objects, err := rev.Objects(false)
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	assert.Equal(t, uint(5), objects[0].ObjectNumber)
	assert.Equal(t, 0, loader.totalLoads())
}

func TestRevisionMaxIDSpansTableAndIndex(t *testing.T) {
	index := NewXrefIndex()
	index.AddInUse(8, 0, 0)
	rev := LoadedRevision(index, nil, newCountingLoader())

	assert.Equal(t, uint(8), rev.MaxID())

	require.NoError(t, rev.Add(indirect(12, 0, pdf.Integer(1))))
	assert.Equal(t, uint(12), rev.MaxID())
}

func TestRevisionMaterializationFailureHasMalformedCause(t *testing.T) {
	index := NewXrefIndex()
	index.AddInUse(3, 0, 0)
	// loader knows nothing about object 3
	rev := LoadedRevision(index, nil, newCountingLoader())

	_, _, err := rev.ObjectByNumber(3)
	require.Error(t, err)
	assert.Equal(t, ErrMalformedObject, errgo.Cause(err))
}

func TestRevisionCompressedEntriesResolveAtGenerationZeroOnly(t *testing.T) {
	loader := newCountingLoader(indirect(5, 0, pdf.Integer(42)))

	index := NewXrefIndex()
	index.AddCompressed(5, 10, 2)
	rev := LoadedRevision(index, nil, loader)

	// compressed objects are generation 0 by format convention
	obj, ok, err := rev.Object(pdf.ObjectReference{ObjectNumber: 5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pdf.Integer(42), obj.Object)

	_, ok, err = rev.Object(pdf.ObjectReference{ObjectNumber: 5, GenerationNumber: 3})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, rev.Has(pdf.ObjectReference{ObjectNumber: 5}))
	assert.False(t, rev.Has(pdf.ObjectReference{ObjectNumber: 5, GenerationNumber: 3}))
}
