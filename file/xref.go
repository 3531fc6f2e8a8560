package file

import "sort"

// EntryKind tags the three kinds of cross-reference entries.
//
// Classic tables know free ("f") and in-use ("n") entries;
// cross-reference streams add compressed entries for objects stored
// inside an object stream (Table 18).
type EntryKind int

const (
	FreeEntry EntryKind = iota
	InUseEntry
	CompressedEntry
)

func (k EntryKind) String() string {
	switch k {
	case FreeEntry:
		return "free"
	case InUseEntry:
		return "in-use"
	case CompressedEntry:
		return "compressed"
	}
	return "unknown"
}

// Entry describes where one object is found in a previously written
// byte stream.
type Entry struct {
	Kind EntryKind

	ID         uint
	Generation uint // free and in-use entries

	Offset int64 // in-use: byte offset of the object record

	Container uint // compressed: object number of the object stream
	Index     int  // compressed: position within the object stream
}

// XrefIndex is an ordered set of cross-reference entries, at most one
// per object number. The number of the head-of-free-list sentinel
// (object 0, generation 65535) is always present; the constructor
// enforces it so the writer never has to special-case it.
type XrefIndex struct {
	entries map[uint]Entry
}

const maxGeneration = 65535

func NewXrefIndex() *XrefIndex {
	index := &XrefIndex{entries: map[uint]Entry{}}
	index.AddFree(0, maxGeneration)
	return index
}

// AddFree records id as free. Later calls for the same id replace the
// earlier entry.
func (x *XrefIndex) AddFree(id, generation uint) {
	x.entries[id] = Entry{Kind: FreeEntry, ID: id, Generation: generation}
}

// AddInUse records id as stored at the given byte offset.
func (x *XrefIndex) AddInUse(id, generation uint, offset int64) {
	x.entries[id] = Entry{Kind: InUseEntry, ID: id, Generation: generation, Offset: offset}
}

// AddCompressed records id as stored inside the object stream
// container at the given position. Compressed objects always have
// generation 0.
func (x *XrefIndex) AddCompressed(id, container uint, index int) {
	x.entries[id] = Entry{Kind: CompressedEntry, ID: id, Container: container, Index: index}
}

// Lookup returns the entry for id.
func (x *XrefIndex) Lookup(id uint) (Entry, bool) {
	entry, ok := x.entries[id]
	return entry, ok
}

// Has reports whether any entry exists for id.
func (x *XrefIndex) Has(id uint) bool {
	_, ok := x.entries[id]
	return ok
}

// IDs returns the indexed object numbers in ascending order.
func (x *XrefIndex) IDs() []uint {
	ids := make([]uint, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of entries.
func (x *XrefIndex) Len() int {
	return len(x.entries)
}

// Size returns the value for the trailer Size entry:
// the largest indexed object number plus one.
func (x *XrefIndex) Size() uint {
	var max uint
	for id := range x.entries {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// Subsections groups the entries into maximal runs of consecutive
// object numbers, ascending. The classic table encoding writes one
// subsection header per run.
func (x *XrefIndex) Subsections() [][]Entry {
	ids := x.IDs()
	if len(ids) == 0 {
		return nil
	}

	subsections := [][]Entry{}
	run := []Entry{x.entries[ids[0]]}
	for _, id := range ids[1:] {
		if id != run[len(run)-1].ID+1 {
			subsections = append(subsections, run)
			run = nil
		}
		run = append(run, x.entries[id])
	}
	return append(subsections, run)
}

// MergeOlder copies entries from an older index for object numbers
// this index does not know about. Newer sections mask older ones.
func (x *XrefIndex) MergeOlder(older *XrefIndex) {
	if older == nil {
		return
	}
	for id, entry := range older.entries {
		if _, ok := x.entries[id]; !ok {
			x.entries[id] = entry
		}
	}
}

// Copy returns an independent copy of the index.
func (x *XrefIndex) Copy() *XrefIndex {
	copied := &XrefIndex{entries: make(map[uint]Entry, len(x.entries))}
	for id, entry := range x.entries {
		copied.entries[id] = entry
	}
	return copied
}

// Delete removes the entry for id. Used when an object that was never
// persisted is rolled back.
func (x *XrefIndex) Delete(id uint) {
	delete(x.entries, id)
}
