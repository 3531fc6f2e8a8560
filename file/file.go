package file

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/pdf"
)

// File manages access to the objects stored in a PDF file.
//
// A File owns a chain of revisions: the frozen revisions parsed from
// disk (newest first, the original file state last) and one working
// revision that collects every change made since the file was opened
// or last saved. Saving appends the working revision as an
// incremental update section, so the bytes already on disk are never
// touched.
type File struct {
	filename string
	file     *os.File
	mmap     mmap.MMap
	created  bool

	data   []byte  // all previously written bytes
	reader *Reader // nil until the file has been read once

	working *Revision
	loaded  []*Revision // newest first

	prev    int64 // offset of the most recently written index
	hasPrev bool

	// UseXrefStreams selects the container-stream layout for newly
	// written sections. Sections holding object streams use it
	// regardless, since the classic table cannot address compressed
	// objects.
	UseXrefStreams bool

	// The catalog dictionary for the PDF document contained in the file.
	Root pdf.ObjectReference

	// The document's encryption dictionary.
	Encrypt pdf.Dictionary

	// The document's information dictionary.
	Info pdf.ObjectReference

	// An array of two byte-strings constituting a file identifier.
	ID pdf.Array
}

// Open opens a PDF file for manipulation of its objects.
func Open(filename string) (*File, error) {
	f := &File{filename: filename}

	var err error
	f.file, err = os.Open(filename)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}

	f.mmap, err = mmap.Map(f.file, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errgo.Mask(err, errgo.Any)
	}

	if err := f.load(f.mmap); err != nil {
		f.Close()
		return nil, errgo.Mask(err, errgo.Any)
	}
	return f, nil
}

// Read opens a PDF document held in memory.
func Read(data []byte) (*File, error) {
	f := &File{}
	if err := f.load(data); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return f, nil
}

func (f *File) load(data []byte) error {
	reader, err := NewReader(data)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}

	f.data = data
	f.reader = reader
	f.loaded = reader.Revisions()
	f.prev = reader.StartXref()
	f.hasPrev = true

	// the working revision sees everything the newest revision sees
	newest := f.loaded[0]
	f.working = LoadedRevision(newest.Index().Copy(), pdf.Dictionary{}, reader)

	// fill in values from the trailers, newest first
	if root, ok := f.trailerValue("Root").(pdf.ObjectReference); ok {
		f.Root = root
	}
	if encrypt, ok := f.trailerValue("Encrypt").(pdf.Dictionary); ok {
		f.Encrypt = encrypt
	}
	if info, ok := f.trailerValue("Info").(pdf.ObjectReference); ok {
		f.Info = info
	}
	if id, ok := f.trailerValue("ID").(pdf.Array); ok {
		f.ID = id
	}

	return nil
}

// trailerValue returns the value for key from the newest revision
// whose trailer has it.
func (f *File) trailerValue(key pdf.Name) pdf.Object {
	for _, rev := range f.loaded {
		if value, ok := rev.Trailer[key]; ok {
			return value
		}
	}
	return nil
}

// Create creates a new PDF file with no objects.
func Create(filename string) (*File, error) {
	f := &File{
		filename: filename,
		created:  true,
		working:  NewRevision(),
	}

	// write enough of the file that appends will not break things
	out, err := os.Create(filename)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	defer out.Close()
	if _, err := out.Write(header); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if _, err := out.Write(binaryMarker); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}

	return f, nil
}

// New returns an empty in-memory document. Serialize it with WriteTo.
func New() *File {
	return &File{working: NewRevision()}
}

// Revisions returns the revision chain, the working revision first,
// the originally loaded file state last.
func (f *File) Revisions() []*Revision {
	return append([]*Revision{f.working}, f.loaded...)
}

// CurrentRevision returns the mutable working revision.
func (f *File) CurrentRevision() *Revision {
	return f.working
}

// Get returns the referenced object.
//
// Resolution is tolerant: when the object does not exist in the
// current revision, or cannot be materialized, Get returns a Null
// whose Error field says why. Dangling references must not abort an
// otherwise readable document.
func (f *File) Get(reference pdf.ObjectReference) pdf.Object {
	obj, ok, err := f.working.Object(reference)
	if err != nil {
		return pdf.Null{Error: errgo.Notef(err, "could not load %d %d R",
			reference.ObjectNumber, reference.GenerationNumber)}
	}
	if !ok {
		return pdf.Null{Error: errgo.Newf("%d %d R not found",
			reference.ObjectNumber, reference.GenerationNumber)}
	}
	return obj.Object
}

// Resolve returns obj itself unless it is a reference, in which case
// the referenced object is returned (tolerantly, like Get).
func (f *File) Resolve(obj pdf.Object) pdf.Object {
	if ref, ok := obj.(pdf.ObjectReference); ok {
		return f.Get(ref)
	}
	return obj
}

// Add returns the object reference of obj after adding it to the
// working revision. An IndirectObject keeps its own identity; any
// other object is stored under a freshly allocated object number.
func (f *File) Add(obj pdf.Object) (pdf.ObjectReference, error) {
	if indirect, ok := obj.(pdf.IndirectObject); ok {
		if err := f.working.Add(indirect); err != nil {
			return indirect.ObjectReference, errgo.Mask(err, errgo.Any)
		}
		return indirect.ObjectReference, nil
	}

	ref := pdf.ObjectReference{ObjectNumber: f.AllocateID()}
	err := f.working.Add(pdf.IndirectObject{ObjectReference: ref, Object: obj})
	if err != nil {
		return ref, errgo.Mask(err, errgo.Any)
	}
	return ref, nil
}

// Update stores obj under its own identity, replacing whatever the
// working revision knew about that object number.
func (f *File) Update(obj pdf.IndirectObject) {
	f.working.Put(obj)
}

// AllocateID returns an object number not used anywhere in the
// document.
func (f *File) AllocateID() uint {
	return f.working.MaxID() + 1
}

// Free marks the object with the given number as deleted. The next
// save emits a free cross-reference entry for it.
func (f *File) Free(number uint) {
	f.working.Delete(number, true)
}

// Remove erases the object with the given number from the working
// revision entirely, as though it was never added. Use it to roll
// back additions that were never saved; objects that exist on disk
// should be freed instead.
func (f *File) Remove(number uint) {
	f.working.Delete(number, false)
}

// CompressObjects moves the given objects into a new object stream.
// The members keep their object numbers but their bytes are written
// inside the container, addressed by compressed cross-reference
// entries. Members must be resident, must not be streams, and must
// have generation 0.
//
// The next save uses the container-stream layout regardless of
// UseXrefStreams.
func (f *File) CompressObjects(numbers ...uint) (pdf.ObjectReference, error) {
	container := f.AllocateID()
	builder := NewObjectStreamBuilder(container)

	for _, number := range numbers {
		obj, ok, err := f.working.ObjectByNumber(number)
		if err != nil {
			return pdf.ObjectReference{}, errgo.Mask(err, errgo.Any)
		}
		if !ok {
			return pdf.ObjectReference{}, errgo.Newf("object %d not in document", number)
		}
		if obj.GenerationNumber != 0 {
			return pdf.ObjectReference{}, errgo.Newf("object %d has generation %d; compressed objects must have generation 0",
				number, obj.GenerationNumber)
		}
		if _, isStream := obj.Object.(pdf.Stream); isStream {
			return pdf.ObjectReference{}, errgo.Newf("object %d is a stream and cannot be compressed", number)
		}
		builder.Add(number)
	}

	stream, err := builder.WriteMembers(f.working)
	if err != nil {
		return pdf.ObjectReference{}, errgo.Mask(err, errgo.Any)
	}

	ref := pdf.ObjectReference{ObjectNumber: container}
	err = f.working.Add(pdf.IndirectObject{ObjectReference: ref, Object: stream})
	if err != nil {
		return ref, errgo.Mask(err, errgo.Any)
	}
	return ref, nil
}

// prepareSection readies the working revision for serialization:
// refreshes the file identifier, fills the trailer from the File's
// fields, and makes sure a cross-reference stream object exists when
// the section needs one.
func (f *File) prepareSection() error {
	f.refreshID()

	trailer := f.working.Trailer
	if f.Root.ObjectNumber != 0 {
		trailer["Root"] = f.Root
	}
	if len(f.Encrypt) != 0 {
		trailer["Encrypt"] = f.Encrypt
	}
	if f.Info.ObjectNumber != 0 {
		trailer["Info"] = f.Info
	}
	if len(f.ID) != 0 {
		trailer["ID"] = f.ID
	}

	objects, err := f.working.Objects(false)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	cls, err := classify(objects)
	if err != nil {
		// let the writer report structural errors
		if errgo.Cause(err) == ErrPayloadWithoutIndexContainer {
			cls.indexContainer = nil
		} else {
			return errgo.Mask(err, errgo.Any)
		}
	}

	needsContainer := f.UseXrefStreams || len(cls.payloads) > 0
	if needsContainer && cls.indexContainer == nil {
		placeholder := pdf.IndirectObject{
			ObjectReference: pdf.ObjectReference{ObjectNumber: f.AllocateID()},
			Object: pdf.Stream{
				Dictionary: pdf.Dictionary{"Type": typeXrefStream},
			},
		}
		if err := f.working.Add(placeholder); err != nil {
			return errgo.Mask(err, errgo.Any)
		}
	}
	return nil
}

// Save appends the working revision to the file on disk as an
// incremental update section. After saving, the File remains usable;
// saving again writes a further section.
//
// NOTE: a new object index is written on each save, taking space in
// the file on disk.
func (f *File) Save() error {
	if f.filename == "" {
		return errgo.New("document is not backed by a file; use WriteTo")
	}

	if err := f.prepareSection(); err != nil {
		return errgo.Mask(err, errgo.Any)
	}

	info, err := os.Stat(f.filename)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}

	out, err := os.OpenFile(f.filename, os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer out.Close()

	w := &writer{dst: out, offset: info.Size()}
	if err := f.separate(w); err != nil {
		return errgo.Mask(err, errgo.Any)
	}

	offset, err := w.writeRevision(f.working, f.prev, f.hasPrev)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	f.prev, f.hasPrev = offset, true

	return nil
}

// separate makes sure the new section starts on a fresh line.
func (f *File) separate(w *writer) error {
	if w.offset == 0 {
		return nil
	}
	last := make([]byte, 1)
	in, err := os.Open(f.filename)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	defer in.Close()
	if _, err := in.ReadAt(last, w.offset-1); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if last[0] != '\n' {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo serializes the whole document to w: the previously written
// bytes (when the document was loaded) followed by the working
// revision as an incremental update section. A fresh document gets
// the file header first.
func (f *File) WriteTo(dst io.Writer) (int64, error) {
	if err := f.prepareSection(); err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}

	w := &writer{dst: dst}
	prev, hasPrev := f.prev, f.hasPrev

	if f.data != nil {
		if _, err := w.Write(f.data); err != nil {
			return w.offset, err
		}
		if f.data[len(f.data)-1] != '\n' {
			if _, err := w.Write([]byte{'\n'}); err != nil {
				return w.offset, err
			}
		}
	} else {
		if err := w.writeHeader(); err != nil {
			return w.offset, err
		}
	}

	if _, err := w.writeRevision(f.working, prev, hasPrev); err != nil {
		return w.offset, errgo.Mask(err, errgo.Any)
	}
	return w.offset, nil
}

// WriteChain serializes a complete document from a revision chain
// held in memory, newest revision first (the order a File holds
// them). Each revision becomes one incremental update section, the
// oldest written first with no back-pointer.
func WriteChain(dst io.Writer, newestFirst []*Revision) (int64, error) {
	w := &writer{dst: dst}
	if err := w.writeHeader(); err != nil {
		return w.offset, err
	}

	oldestFirst := make([]*Revision, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		oldestFirst = append(oldestFirst, newestFirst[i])
	}

	if err := w.writeChain(oldestFirst, 0, false); err != nil {
		return w.offset, errgo.Mask(err, errgo.Any)
	}
	return w.offset, nil
}

// Close the File, does not Save.
func (f *File) Close() error {
	if f.mmap != nil {
		if err := f.mmap.Unmap(); err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		f.mmap = nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		f.file = nil
	}
	return nil
}
