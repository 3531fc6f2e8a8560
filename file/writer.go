package file

import (
	"fmt"
	"io"

	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/pdf"
)

// header is the magic line a file starts with, followed by a comment
// line of bytes above 127 so byte-stream tools treat the file as
// binary.
var (
	header       = []byte("%PDF-1.7\n")
	binaryMarker = []byte{'%', 0xE2, 0xE3, 0xCF, 0xD3, '\n'}
)

// writer counts the bytes written so cross-reference offsets can be
// recorded as objects are laid down.
type writer struct {
	dst    io.Writer
	offset int64
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	w.offset += int64(n)
	if err != nil {
		return n, errgo.Mask(err, errgo.Any)
	}
	return n, nil
}

func (w *writer) printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func (w *writer) writeHeader() error {
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(binaryMarker)
	return err
}

// compressedAt locates an object inside a payload container.
type compressedAt struct {
	container uint
	index     int
}

// classification is the result of scanning a revision for container
// objects before anything is written (§7.5.7, §7.5.8):
// at most one cross-reference stream, any number of object streams.
type classification struct {
	indexContainer *pdf.IndirectObject
	payloads       []uint
	memberOf       map[uint]compressedAt
}

func classify(objects []pdf.IndirectObject) (classification, error) {
	cls := classification{memberOf: map[uint]compressedAt{}}

	for i := range objects {
		stream, ok := objects[i].Object.(pdf.Stream)
		if !ok {
			continue
		}

		switch kindOfStream(stream) {
		case typeXrefStream:
			if cls.indexContainer != nil {
				return cls, errgo.WithCausef(nil, ErrMultipleIndexContainers,
					"objects %d and %d", cls.indexContainer.ObjectNumber, objects[i].ObjectNumber)
			}
			cls.indexContainer = &objects[i]

		case typeObjectStream:
			container := objects[i].ObjectNumber
			ids, err := memberIDs(stream)
			if err != nil {
				return cls, errgo.Notef(err, "object stream %d", container)
			}
			cls.payloads = append(cls.payloads, container)
			for index, id := range ids {
				cls.memberOf[id] = compressedAt{container: container, index: index}
			}
		}
	}

	if len(cls.payloads) > 0 && cls.indexContainer == nil {
		return cls, errgo.WithCausef(nil, ErrPayloadWithoutIndexContainer,
			"object streams %v", cls.payloads)
	}
	return cls, nil
}

// writeRevision serializes one revision as an incremental update
// section and returns the byte offset at which its index begins (the
// value for the following startxref and for the next section's Prev).
//
// Only objects already resident in the revision are written;
// unmodified loaded objects are found unchanged in the prior bytes of
// the stream and need not be rewritten.
func (w *writer) writeRevision(rev *Revision, prev int64, hasPrev bool) (int64, error) {
	objects, err := rev.Objects(false)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}

	// structural violations are fatal before any of the revision's
	// bytes are written
	cls, err := classify(objects)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}

	// flush payload containers so their bytes reflect the current
	// member values
	for i := range objects {
		stream, ok := objects[i].Object.(pdf.Stream)
		if !ok || kindOfStream(stream) != typeObjectStream {
			continue
		}
		builder := NewObjectStreamBuilder(objects[i].ObjectNumber)
		ids, err := memberIDs(stream)
		if err != nil {
			return 0, errgo.Notef(err, "object stream %d", objects[i].ObjectNumber)
		}
		for _, id := range ids {
			builder.Add(id)
		}
		flushed, err := builder.WriteMembers(rev)
		if err != nil {
			return 0, errgo.Mask(err, errgo.Any)
		}
		objects[i].Object = flushed
		rev.Put(objects[i])
	}

	// lay down object bodies, recording where each one lands
	index := NewXrefIndex()
	for _, obj := range objects {
		id := obj.ObjectNumber

		// the index container is written last, once its own
		// location is known
		if cls.indexContainer != nil && id == cls.indexContainer.ObjectNumber {
			continue
		}

		if pdf.IsNull(obj.Object) {
			index.AddFree(id, obj.GenerationNumber)
			continue
		}

		if at, compressed := cls.memberOf[id]; compressed {
			index.AddCompressed(id, at.container, at.index)
			continue
		}

		index.AddInUse(id, obj.GenerationNumber, w.offset)
		if _, err := pdf.WriteValue(w, obj); err != nil {
			return 0, errgo.Mask(err, errgo.Any)
		}
	}

	trailer := rev.Trailer.Copy()
	if hasPrev {
		trailer["Prev"] = pdf.Integer(prev)
	} else {
		delete(trailer, "Prev")
	}

	startxref := w.offset
	if cls.indexContainer != nil {
		err = w.writeIndexContainer(*cls.indexContainer, index, trailer, startxref)
	} else {
		err = w.writeTable(index, trailer)
	}
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}

	if err := w.printf("startxref\n%d\n%%%%EOF\n", startxref); err != nil {
		return 0, err
	}
	return startxref, nil
}

// writeIndexContainer finalizes and writes the cross-reference
// stream. Its own entry refers to the offset it is being written at.
func (w *writer) writeIndexContainer(container pdf.IndirectObject, index *XrefIndex, trailer pdf.Dictionary, startxref int64) error {
	index.AddInUse(container.ObjectNumber, container.GenerationNumber, startxref)

	stream, err := rebuildXrefStream(container.ObjectNumber, index, trailer)
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}

	_, err = pdf.WriteValue(w, pdf.IndirectObject{
		ObjectReference: container.ObjectReference,
		Object:          stream,
	})
	return err
}

// writeTable writes the classic two-part layout: subsectioned
// fixed-width table, then the trailer dictionary.
func (w *writer) writeTable(index *XrefIndex, trailer pdf.Dictionary) error {
	if err := w.printf("xref\n"); err != nil {
		return err
	}

	for _, subsection := range index.Subsections() {
		if err := w.printf("%d %d\n", subsection[0].ID, len(subsection)); err != nil {
			return err
		}
		for _, entry := range subsection {
			switch entry.Kind {
			case InUseEntry:
				// exactly 20 bytes including the newline
				if err := w.printf("%010d %05d n \n", entry.Offset, entry.Generation); err != nil {
					return err
				}
			case FreeEntry:
				if err := w.printf("0000000000 65535 f \n"); err != nil {
					return err
				}
			default:
				return errgo.WithCausef(nil, ErrUnsupportedEntryKind,
					"the classic table cannot address %v entry for object %d", entry.Kind, entry.ID)
			}
		}
	}

	trailer["Size"] = pdf.Integer(index.Size())
	if err := w.printf("trailer\n"); err != nil {
		return err
	}
	if _, err := pdf.WriteValue(w, trailer); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	return w.printf("\n")
}

// writeChain serializes revisions (given oldest first) as a sequence
// of chained incremental update sections, threading each section's
// index offset into the next section's Prev.
func (w *writer) writeChain(oldestFirst []*Revision, prev int64, hasPrev bool) error {
	for _, rev := range oldestFirst {
		offset, err := w.writeRevision(rev, prev, hasPrev)
		if err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		prev, hasPrev = offset, true
	}
	return nil
}
