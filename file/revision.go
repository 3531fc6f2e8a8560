package file

import (
	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/pdf"
)

// A Loader materializes an object from a cross-reference entry,
// typically by parsing it out of a previously written byte stream.
// Materialization failures are reported with ErrMalformedObject as
// their cause.
type Loader interface {
	Load(entry Entry) (pdf.IndirectObject, error)
}

// Revision is one logical version of a document: a trailer, the
// objects materialized so far, and (for loaded documents) the
// cross-reference index describing where the rest of the objects can
// be found. Objects are pulled out of the index on demand and cached
// in the object table, so repeated access does not reload.
//
// A Revision is not safe for concurrent use; the chain assumes one
// mutator at a time.
type Revision struct {
	Trailer pdf.Dictionary

	table  *ObjectTable
	index  *XrefIndex // nil for revisions that were never on file
	loader Loader
}

// NewRevision returns an empty revision for a new document.
func NewRevision() *Revision {
	return &Revision{
		Trailer: pdf.Dictionary{},
		table:   NewObjectTable(),
	}
}

// LoadedRevision returns a revision backed by a parsed
// cross-reference index and trailer. The loader materializes objects
// the first time they are asked for.
func LoadedRevision(index *XrefIndex, trailer pdf.Dictionary, loader Loader) *Revision {
	if trailer == nil {
		trailer = pdf.Dictionary{}
	}
	return &Revision{
		Trailer: trailer,
		table:   NewObjectTable(),
		index:   index,
		loader:  loader,
	}
}

// Index returns the revision's cross-reference index, or nil when the
// revision was never on file.
func (r *Revision) Index() *XrefIndex {
	return r.index
}

// Object returns the object identified by ref. The generation number
// must match either a materialized object or the index entry for the
// object number.
//
// A free entry materializes as a null object carrying the entry's
// generation, which distinguishes "explicitly deleted" from "never
// existed" (ok == false).
func (r *Revision) Object(ref pdf.ObjectReference) (pdf.IndirectObject, bool, error) {
	if obj, ok := r.table.Get(ref.ObjectNumber, ref.GenerationNumber); ok {
		return obj, true, nil
	}
	return r.materialize(ref.ObjectNumber, &ref.GenerationNumber)
}

// ObjectByNumber is Object with the generation resolved by the table
// or the index rather than the caller.
func (r *Revision) ObjectByNumber(number uint) (pdf.IndirectObject, bool, error) {
	if obj, ok := r.table.Latest(number); ok {
		return obj, true, nil
	}
	return r.materialize(number, nil)
}

func (r *Revision) materialize(number uint, generation *uint) (pdf.IndirectObject, bool, error) {
	if r.index == nil {
		return pdf.IndirectObject{}, false, nil
	}
	entry, ok := r.index.Lookup(number)
	if !ok {
		return pdf.IndirectObject{}, false, nil
	}
	if generation != nil {
		// compressed objects are generation 0 by format convention
		want := entry.Generation
		if entry.Kind == CompressedEntry {
			want = 0
		}
		if *generation != want {
			return pdf.IndirectObject{}, false, nil
		}
	}

	var obj pdf.IndirectObject
	switch entry.Kind {
	case FreeEntry:
		// deleted, not absent
		obj = pdf.IndirectObject{
			ObjectReference: pdf.ObjectReference{
				ObjectNumber:     entry.ID,
				GenerationNumber: entry.Generation,
			},
			Object: pdf.Null{},
		}
	case InUseEntry, CompressedEntry:
		var err error
		obj, err = r.loader.Load(entry)
		if err != nil {
			return pdf.IndirectObject{}, false, errgo.WithCausef(err, ErrMalformedObject,
				"object %d", number)
		}
	default:
		return pdf.IndirectObject{}, false, errgo.WithCausef(nil, ErrUnsupportedEntryKind,
			"entry for object %d", number)
	}

	r.table.Put(obj)
	return obj, true, nil
}

// Has reports whether ref identifies an object in this revision,
// without materializing it.
func (r *Revision) Has(ref pdf.ObjectReference) bool {
	if r.table.HasGeneration(ref.ObjectNumber, ref.GenerationNumber) {
		return true
	}
	if r.index == nil {
		return false
	}
	entry, ok := r.index.Lookup(ref.ObjectNumber)
	if !ok {
		return false
	}
	if entry.Kind == CompressedEntry {
		return ref.GenerationNumber == 0
	}
	return entry.Generation == ref.GenerationNumber
}

// HasNumber reports whether any generation of number exists in this
// revision, without materializing it.
func (r *Revision) HasNumber(number uint) bool {
	if r.table.Has(number) {
		return true
	}
	return r.index != nil && r.index.Has(number)
}

// Add inserts obj into the revision under its own identity.
// Object number 0 is reserved, and a number already present in the
// revision (materialized or still on file) cannot be reused.
func (r *Revision) Add(obj pdf.IndirectObject) error {
	if obj.ObjectNumber == 0 {
		return errgo.WithCausef(nil, ErrReservedIdentity, "cannot add object 0")
	}
	if r.HasNumber(obj.ObjectNumber) {
		return errgo.WithCausef(nil, ErrDuplicateIdentity,
			"object %d %d", obj.ObjectNumber, obj.GenerationNumber)
	}
	r.table.Put(obj)
	return nil
}

// Put stores obj under its own identity, replacing whatever the
// revision knew about that object number. Editing layers use it to
// update objects that already exist.
func (r *Revision) Put(obj pdf.IndirectObject) {
	r.table.Put(obj)
}

// Delete removes number from the revision.
//
// With markFree, the object is replaced by a null sentinel carrying
// the generation it had, so serialization emits a free
// cross-reference entry and the generation chain survives for future
// reuse of the number. Without markFree the number is erased from
// both the table and the index, as though it never existed; that form
// is for rolling back same-session additions that were never
// persisted.
func (r *Revision) Delete(number uint, markFree bool) {
	if !markFree {
		r.table.Delete(number)
		if r.index != nil {
			r.index.Delete(number)
		}
		return
	}

	generation, known := r.generationOf(number)
	if !known {
		return
	}
	r.table.Put(pdf.IndirectObject{
		ObjectReference: pdf.ObjectReference{
			ObjectNumber:     number,
			GenerationNumber: generation,
		},
		Object: pdf.Null{},
	})
}

func (r *Revision) generationOf(number uint) (uint, bool) {
	if obj, ok := r.table.Latest(number); ok {
		return obj.GenerationNumber, true
	}
	if r.index != nil {
		if entry, ok := r.index.Lookup(number); ok {
			return entry.Generation, true
		}
	}
	return 0, false
}

// Objects returns the revision's objects sorted by object number.
//
// With visitAll, every entry still only present in the index is
// materialized first, so the traversal is complete and repeated calls
// perform no further loads. Without visitAll only objects that are
// already resident are returned; writers of incremental updates use
// that cheap form, since unmodified loaded objects are found
// unchanged on disk.
func (r *Revision) Objects(visitAll bool) ([]pdf.IndirectObject, error) {
	if visitAll && r.index != nil {
		for _, id := range r.index.IDs() {
			if r.table.Has(id) {
				continue
			}
			if _, _, err := r.ObjectByNumber(id); err != nil {
				return nil, errgo.Mask(err, errgo.Any)
			}
		}
	}

	objects := make([]pdf.IndirectObject, 0, r.table.Len())
	for _, id := range r.table.IDs() {
		obj, ok := r.table.Latest(id)
		if !ok {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// MaxID returns the largest object number known to the revision,
// resident or indexed.
func (r *Revision) MaxID() uint {
	max := r.table.MaxID()
	if r.index != nil {
		if size := r.index.Size(); size-1 > max {
			max = size - 1
		}
	}
	return max
}
