package file

import (
	"bytes"
	"fmt"

	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/pdf"
)

// Container objects bundle other data to reduce file overhead:
// object streams (/Type /ObjStm) hold the payload bytes of many small
// objects, and cross-reference streams (/Type /XRef) hold the index
// itself in binary form.

// kindOfStream classifies a stream object by its Type entry.
func kindOfStream(s pdf.Stream) pdf.Name {
	name, _ := s.Dictionary["Type"].(pdf.Name)
	return name
}

const (
	typeObjectStream = pdf.Name("ObjStm")
	typeXrefStream   = pdf.Name("XRef")
)

// An ObjectStreamBuilder aggregates small objects into a single
// object stream. Members keep their object numbers but are addressed
// by (container id, position) in the cross-reference index, always
// with generation 0.
type ObjectStreamBuilder struct {
	id      uint
	members []uint
	at      map[uint]int
}

// NewObjectStreamBuilder returns a builder for an object stream that
// will be stored under the given object number.
func NewObjectStreamBuilder(id uint) *ObjectStreamBuilder {
	return &ObjectStreamBuilder{id: id, at: map[uint]int{}}
}

// ContainerID returns the object number the stream is stored under.
func (b *ObjectStreamBuilder) ContainerID() uint {
	return b.id
}

// Add appends an object number to the member list. Streams and the
// container itself cannot be members; the caller picks members
// accordingly. Adding a number twice keeps its first position.
func (b *ObjectStreamBuilder) Add(id uint) {
	if _, ok := b.at[id]; ok {
		return
	}
	b.at[id] = len(b.members)
	b.members = append(b.members, id)
}

// MemberIndex returns the position of id within the stream.
func (b *ObjectStreamBuilder) MemberIndex(id uint) (int, bool) {
	index, ok := b.at[id]
	return index, ok
}

// Members returns the member object numbers in stream order.
func (b *ObjectStreamBuilder) Members() []uint {
	return append([]uint(nil), b.members...)
}

// WriteMembers flushes the aggregated payload: it fetches every
// member from rev, encodes the "id offset" pair table followed by the
// member bodies, and returns the finished object stream. The body is
// flate-compressed.
func (b *ObjectStreamBuilder) WriteMembers(rev *Revision) (pdf.Stream, error) {
	pairs := &bytes.Buffer{}
	bodies := &bytes.Buffer{}

	for _, id := range b.members {
		obj, ok, err := rev.ObjectByNumber(id)
		if err != nil {
			return pdf.Stream{}, errgo.Mask(err, errgo.Any)
		}
		if !ok {
			return pdf.Stream{}, errgo.Newf("object stream %d: member %d not in revision", b.id, id)
		}
		if _, isStream := obj.Object.(pdf.Stream); isStream {
			return pdf.Stream{}, errgo.Newf("object stream %d: member %d is a stream", b.id, id)
		}

		fmt.Fprintf(pairs, "%d %d ", id, bodies.Len())
		if _, err := pdf.WriteValue(bodies, obj.Object); err != nil {
			return pdf.Stream{}, errgo.Mask(err, errgo.Any)
		}
		bodies.WriteByte('\n')
	}

	first := pairs.Len()
	data := append(pairs.Bytes(), bodies.Bytes()...)
	encoded, err := pdf.FlateEncode(data)
	if err != nil {
		return pdf.Stream{}, errgo.Mask(err, errgo.Any)
	}

	return pdf.Stream{
		Dictionary: pdf.Dictionary{
			"Type":   typeObjectStream,
			"N":      pdf.Integer(len(b.members)),
			"First":  pdf.Integer(first),
			"Filter": pdf.Name("FlateDecode"),
		},
		Stream: encoded,
	}, nil
}

type objStmMember struct {
	id     uint
	offset int
}

// parseObjectStreamIndex reads the "id offset" pairs at the front of a
// decoded object stream body.
func parseObjectStreamIndex(s pdf.Stream, decoded []byte) ([]objStmMember, int, error) {
	n, ok := s.Dictionary["N"].(pdf.Integer)
	if !ok {
		return nil, 0, errgo.New("object stream has no N entry")
	}
	first, ok := s.Dictionary["First"].(pdf.Integer)
	if !ok {
		return nil, 0, errgo.New("object stream has no First entry")
	}

	members := make([]objStmMember, 0, int(n))
	offset := 0
	for i := 0; i < int(n); i++ {
		idObj, consumed, err := pdf.ParseObject(decoded[offset:])
		if err != nil {
			return nil, 0, errgo.Notef(err, "object stream pair %d", i)
		}
		offset += consumed

		atObj, consumed, err := pdf.ParseObject(decoded[offset:])
		if err != nil {
			return nil, 0, errgo.Notef(err, "object stream pair %d", i)
		}
		offset += consumed

		id, idOK := idObj.(pdf.Integer)
		at, atOK := atObj.(pdf.Integer)
		if !idOK || !atOK {
			return nil, 0, errgo.New("object stream pair is not two integers")
		}
		members = append(members, objStmMember{id: uint(id), offset: int(at)})
	}

	return members, int(first), nil
}

// memberIDs lists the object numbers stored inside a loaded object
// stream, in stream order.
func memberIDs(s pdf.Stream) ([]uint, error) {
	decoded, err := s.Decode()
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	members, _, err := parseObjectStreamIndex(s, decoded)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	ids := make([]uint, len(members))
	for i, member := range members {
		ids[i] = member.id
	}
	return ids, nil
}

// rebuildXrefStream encodes index and trailer as a self-describing
// cross-reference stream stored under id. The columns are sized to
// the largest value each must hold (Table 17/18):
//
//	free:       {0, next free (unused here, 0), generation}
//	in-use:     {1, byte offset, generation}
//	compressed: {2, container object number, position}
func rebuildXrefStream(id uint, index *XrefIndex, trailer pdf.Dictionary) (pdf.Stream, error) {
	subsections := index.Subsections()

	rows := make([][3]uint64, 0, index.Len())
	indexArray := pdf.Array{}
	for _, subsection := range subsections {
		indexArray = append(indexArray,
			pdf.Integer(subsection[0].ID), pdf.Integer(len(subsection)))
		for _, entry := range subsection {
			row, err := entryRow(entry)
			if err != nil {
				return pdf.Stream{}, errgo.Mask(err, errgo.Any)
			}
			rows = append(rows, row)
		}
	}

	// size each column to its widest value
	var widest [3]uint64
	for _, row := range rows {
		for i, v := range row {
			if v > widest[i] {
				widest[i] = v
			}
		}
	}
	var widths [3]int
	for i := range widths {
		widths[i] = nBytesForInt(widest[i])
	}

	body := &bytes.Buffer{}
	for _, row := range rows {
		for i, v := range row {
			body.Write(intToBytes(v, widths[i]))
		}
	}

	dict := trailer.Copy()
	dict["Type"] = typeXrefStream
	dict["Size"] = pdf.Integer(index.Size())
	dict["W"] = pdf.Array{pdf.Integer(widths[0]), pdf.Integer(widths[1]), pdf.Integer(widths[2])}
	dict["Index"] = indexArray
	delete(dict, "Filter") // rows are written raw

	return pdf.Stream{Dictionary: dict, Stream: body.Bytes()}, nil
}

func entryRow(entry Entry) ([3]uint64, error) {
	switch entry.Kind {
	case FreeEntry:
		return [3]uint64{0, 0, uint64(entry.Generation)}, nil
	case InUseEntry:
		return [3]uint64{1, uint64(entry.Offset), uint64(entry.Generation)}, nil
	case CompressedEntry:
		return [3]uint64{2, uint64(entry.Container), uint64(entry.Index)}, nil
	}
	return [3]uint64{}, errgo.WithCausef(nil, ErrUnsupportedEntryKind,
		"entry for object %d", entry.ID)
}

// nBytesForInt returns the number of bytes required to encode value.
func nBytesForInt(value uint64) int {
	n := 1
	for n < 8 && value >= (1<<uint(8*n)) {
		n++
	}
	return n
}

func intToBytes(value uint64, size int) []byte {
	encoded := make([]byte, size)
	for i := size - 1; i >= 0; i-- {
		encoded[i] = byte(value)
		value >>= 8
	}
	return encoded
}

func bytesToInt(encoded []byte) uint64 {
	var value uint64
	for _, b := range encoded {
		value = value<<8 | uint64(b)
	}
	return value
}
