package file

import (
	"bytes"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/errgo"

	"github.com/djberg96/hexapdf/pdf"
)

// decodedStreamCacheSize bounds the number of decoded object stream
// bodies kept around. Members of the same container are usually read
// together, so even a small cache avoids most re-decoding.
const decodedStreamCacheSize = 16

// A Reader locates and materializes the objects of a previously
// written byte stream. It understands both access methods:
//
//  1. Cross-Reference Table (§7.5.4) and File Trailer (§7.5.5)
//  2. Cross-Reference Streams (§7.5.8)
//
// The method used can be determined by following the startxref
// reference: if the referenced position is an indirect object, the
// section is a cross-reference stream, otherwise a classic table.
type Reader struct {
	data []byte

	revisions []*Revision // newest first
	index     *XrefIndex  // merged view of the newest revision
	startxref int64       // offset of the newest section's index

	decoded *lru.Cache[uint, []byte]
}

type section struct {
	index   *XrefIndex
	trailer pdf.Dictionary
}

// NewReader parses the cross-reference sections of data. The object
// bodies themselves are materialized lazily through Load.
func NewReader(data []byte) (*Reader, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-1.")) {
		return nil, errgo.New("data does not have a PDF header")
	}

	decoded, err := lru.New[uint, []byte](decodedStreamCacheSize)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	r := &Reader{data: data, decoded: decoded}

	if err := r.loadSections(); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return r, nil
}

// Revisions returns the parsed revisions, newest first. Each revision
// sees its own section's entries over those inherited from older
// sections.
func (r *Reader) Revisions() []*Revision {
	return r.revisions
}

// StartXref returns the byte offset of the newest section's index,
// i.e. the value following the last startxref keyword.
func (r *Reader) StartXref() int64 {
	return r.startxref
}

func (r *Reader) loadSections() error {
	offset, err := r.findStartXref()
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	r.startxref = offset

	// walk the back-pointer chain, newest first
	sections := []section{}
	seen := map[int64]bool{}
	for {
		if seen[offset] {
			return errgo.Newf("cross-reference sections form a cycle at offset %d", offset)
		}
		seen[offset] = true

		sec, err := r.parseSection(offset)
		if err != nil {
			return errgo.Mask(err, errgo.Any)
		}
		sections = append(sections, sec)

		prev, hasPrev := sec.trailer["Prev"].(pdf.Integer)
		if !hasPrev {
			break
		}
		offset = int64(prev)
	}

	// build revisions oldest to newest, each inheriting the merged
	// index of the one before it
	var inherited *XrefIndex
	revisions := make([]*Revision, 0, len(sections))
	for i := len(sections) - 1; i >= 0; i-- {
		merged := sections[i].index.Copy()
		merged.MergeOlder(inherited)
		inherited = merged
		// prepend so the newest revision ends up first
		revisions = append([]*Revision{LoadedRevision(merged, sections[i].trailer, r)}, revisions...)
	}

	r.revisions = revisions
	r.index = revisions[0].Index()
	return nil
}

// findStartXref locates the offset written after the last startxref
// keyword, ignoring junk after the final %%EOF.
func (r *Reader) findStartXref() (int64, error) {
	eofOffset := bytes.LastIndex(r.data, []byte("%%EOF"))
	if eofOffset == -1 {
		return 0, errgo.New("data does not have a PDF ending")
	}

	startxrefOffset := bytes.LastIndex(r.data[:eofOffset], []byte("startxref"))
	if startxrefOffset == -1 {
		return 0, errgo.New("could not find startxref")
	}

	const digits = "0123456789"
	begin := bytes.IndexAny(r.data[startxrefOffset:eofOffset], digits)
	if begin == -1 {
		return 0, errgo.New("could not find beginning of startxref reference")
	}
	begin += startxrefOffset
	end := bytes.LastIndexAny(r.data[begin:eofOffset], digits)
	if end == -1 {
		return 0, errgo.New("could not find end of startxref reference")
	}
	end += begin + 1

	offset, err := strconv.ParseInt(string(r.data[begin:end]), 10, 64)
	if err != nil {
		return 0, errgo.Mask(err, errgo.Any)
	}
	return offset, nil
}

func (r *Reader) parseSection(offset int64) (section, error) {
	if offset < 0 || offset >= int64(len(r.data)) {
		return section{}, errgo.Newf("cross-reference offset %d outside data", offset)
	}

	switch r.data[offset] {
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// an indirect object, therefore a cross-reference stream §7.5.8
		return r.parseXrefStreamSection(offset)
	case 'x':
		// classic table §7.5.4
		return r.parseTableSection(offset)
	}
	return section{}, errgo.Newf("no cross-reference section at offset %d", offset)
}

func (r *Reader) parseXrefStreamSection(offset int64) (section, error) {
	obj, _, err := pdf.ParseIndirectObject(r.data[offset:])
	if err != nil {
		return section{}, errgo.Notef(err, "cross-reference stream at %d", offset)
	}
	stream, ok := obj.Object.(pdf.Stream)
	if !ok {
		return section{}, errgo.Newf("object at %d is not a cross-reference stream", offset)
	}

	decoded, err := stream.Decode()
	if err != nil {
		return section{}, errgo.Notef(err, "cross-reference stream at %d", offset)
	}

	wArray, ok := stream.Dictionary["W"].(pdf.Array)
	if !ok {
		return section{}, errgo.New("cross-reference stream has no W entry")
	}
	if len(wArray) != 3 {
		return section{}, errgo.New("cross-reference stream W does not have three columns")
	}
	widths := make([]int, len(wArray))
	stride := 0
	for i, w := range wArray {
		width, ok := w.(pdf.Integer)
		if !ok {
			return section{}, errgo.New("cross-reference stream W entry is not an integer")
		}
		widths[i] = int(width)
		stride += int(width)
	}

	size, ok := stream.Dictionary["Size"].(pdf.Integer)
	if !ok {
		return section{}, errgo.New("cross-reference stream has no Size entry")
	}

	type run struct{ first, count int }
	runs := []run{}
	if indexArray, ok := stream.Dictionary["Index"].(pdf.Array); ok {
		for i := 0; i+1 < len(indexArray); i += 2 {
			runs = append(runs, run{
				first: int(indexArray[i].(pdf.Integer)),
				count: int(indexArray[i+1].(pdf.Integer)),
			})
		}
	} else {
		// default when Index is not specified
		runs = append(runs, run{first: 0, count: int(size)})
	}

	index := NewXrefIndex()
	at := 0
	for _, run := range runs {
		id := uint(run.first)
		for n := 0; n < run.count; n++ {
			if at+stride > len(decoded) {
				return section{}, errgo.New("cross-reference stream is truncated")
			}
			var row [3]uint64
			for i, width := range widths {
				row[i] = bytesToInt(decoded[at : at+width])
				at += width
			}
			if widths[0] == 0 {
				// a missing type column defaults to in-use
				row[0] = 1
			}

			switch row[0] {
			case 0:
				index.AddFree(id, uint(row[2]))
			case 1:
				index.AddInUse(id, uint(row[2]), int64(row[1]))
			case 2:
				index.AddCompressed(id, uint(row[1]), int(row[2]))
			default:
				return section{}, errgo.WithCausef(nil, ErrUnsupportedEntryKind,
					"cross-reference stream row type %d", row[0])
			}
			id++
		}
	}

	return section{index: index, trailer: stream.Dictionary}, nil
}

func (r *Reader) parseTableSection(offset int64) (section, error) {
	slice := r.data[offset:]
	i := 0

	token, n := nextToken(slice)
	if string(token) != "xref" {
		return section{}, errgo.Newf("offset %d: could not match xref", offset)
	}
	i += n

	index := NewXrefIndex()
	for {
		token, n := nextToken(slice[i:])
		if string(token) == "trailer" {
			i += n
			break
		}
		if len(token) == 0 {
			return section{}, errgo.Newf("section at %d has no trailer", offset)
		}

		n, err := parseTableSubsection(slice[i:], index)
		if err != nil {
			return section{}, errgo.Mask(err, errgo.Any)
		}
		i += n
	}

	trailerObj, _, err := pdf.ParseObject(slice[i:])
	if err != nil {
		return section{}, errgo.Notef(err, "trailer of section at %d", offset)
	}
	trailer, ok := trailerObj.(pdf.Dictionary)
	if !ok {
		return section{}, errgo.Newf("trailer of section at %d is not a dictionary", offset)
	}

	return section{index: index, trailer: trailer}, nil
}

// parseTableSubsection reads one "first count" header and its
// fixed-width entry lines into index, returning the bytes consumed.
func parseTableSubsection(slice []byte, index *XrefIndex) (int, error) {
	i := 0

	token, n := nextToken(slice[i:])
	first, err := strconv.ParseUint(string(token), 10, 64)
	if err != nil {
		return i, errgo.Notef(err, "subsection first object number")
	}
	i += n

	token, n = nextToken(slice[i:])
	count, err := strconv.ParseUint(string(token), 10, 64)
	if err != nil {
		return i, errgo.Notef(err, "subsection entry count")
	}
	i += n

	id := uint(first)
	for j := uint64(0); j < count; j++ {
		token, n = nextToken(slice[i:])
		offset, err := strconv.ParseInt(string(token), 10, 64)
		if err != nil {
			return i, errgo.Notef(err, "entry for object %d", id)
		}
		i += n

		token, n = nextToken(slice[i:])
		generation, err := strconv.ParseUint(string(token), 10, 64)
		if err != nil {
			return i, errgo.Notef(err, "entry for object %d", id)
		}
		i += n

		token, n = nextToken(slice[i:])
		i += n
		switch string(token) {
		case "f":
			index.AddFree(id, uint(generation))
		case "n":
			index.AddInUse(id, uint(generation), offset)
		default:
			return i, errgo.Newf("entry for object %d has kind %q", id, token)
		}
		id++
	}

	return i, nil
}

// nextToken returns the next whitespace-bounded token in slice and
// the offset just past it.
func nextToken(slice []byte) ([]byte, int) {
	begin := 0
	for begin < len(slice) && isTableWhitespace(slice[begin]) {
		begin++
	}
	end := begin
	for end < len(slice) && !isTableWhitespace(slice[end]) {
		end++
	}
	return slice[begin:end], end
}

func isTableWhitespace(char byte) bool {
	switch char {
	case 0, 9, 10, 12, 13, 32:
		return true
	}
	return false
}

// Load materializes the object described by entry.
func (r *Reader) Load(entry Entry) (pdf.IndirectObject, error) {
	switch entry.Kind {
	case InUseEntry:
		return r.loadInUse(entry)
	case CompressedEntry:
		return r.loadCompressed(entry)
	}
	return pdf.IndirectObject{}, errgo.WithCausef(nil, ErrUnsupportedEntryKind,
		"cannot load %v entry for object %d", entry.Kind, entry.ID)
}

func (r *Reader) loadInUse(entry Entry) (pdf.IndirectObject, error) {
	if entry.Offset < 0 || entry.Offset >= int64(len(r.data)) {
		return pdf.IndirectObject{}, errgo.WithCausef(nil, ErrMalformedObject,
			"object %d offset %d outside data", entry.ID, entry.Offset)
	}

	obj, _, err := pdf.ParseIndirectObject(r.data[entry.Offset:])
	if err != nil {
		return pdf.IndirectObject{}, errgo.WithCausef(err, ErrMalformedObject,
			"object %d at offset %d", entry.ID, entry.Offset)
	}
	if obj.ObjectNumber != entry.ID {
		return pdf.IndirectObject{}, errgo.WithCausef(nil, ErrMalformedObject,
			"offset %d holds object %d, expected %d", entry.Offset, obj.ObjectNumber, entry.ID)
	}

	// a stream Length stored as a reference was resolved by scanning
	// for endstream; pin the dictionary to the actual byte count
	if stream, ok := obj.Object.(pdf.Stream); ok {
		if _, indirect := stream.Dictionary["Length"].(pdf.ObjectReference); indirect {
			stream.Dictionary["Length"] = pdf.Integer(len(stream.Stream))
			obj.Object = stream
		}
	}

	return obj, nil
}

func (r *Reader) loadCompressed(entry Entry) (pdf.IndirectObject, error) {
	decoded, members, first, err := r.containerBody(entry.Container)
	if err != nil {
		return pdf.IndirectObject{}, errgo.Mask(err, errgo.Any)
	}

	// trust the stored position, but fall back to a scan when the
	// index and the container disagree
	position := entry.Index
	if position < 0 || position >= len(members) || members[position].id != entry.ID {
		position = -1
		for i, member := range members {
			if member.id == entry.ID {
				position = i
				break
			}
		}
		if position == -1 {
			return pdf.IndirectObject{}, errgo.WithCausef(nil, ErrMalformedObject,
				"object %d not found in object stream %d", entry.ID, entry.Container)
		}
	}

	at := first + members[position].offset
	if at < 0 || at > len(decoded) {
		return pdf.IndirectObject{}, errgo.WithCausef(nil, ErrMalformedObject,
			"object %d offset outside object stream %d", entry.ID, entry.Container)
	}

	value, _, err := pdf.ParseObject(decoded[at:])
	if err != nil {
		return pdf.IndirectObject{}, errgo.WithCausef(err, ErrMalformedObject,
			"object %d in object stream %d", entry.ID, entry.Container)
	}

	return pdf.IndirectObject{
		ObjectReference: pdf.ObjectReference{ObjectNumber: entry.ID},
		Object:          value,
	}, nil
}

// containerBody decodes the object stream stored under container,
// caching the decoded bytes.
func (r *Reader) containerBody(container uint) ([]byte, []objStmMember, int, error) {
	containerEntry, ok := r.index.Lookup(container)
	if !ok || containerEntry.Kind != InUseEntry {
		return nil, nil, 0, errgo.WithCausef(nil, ErrMalformedObject,
			"object stream %d is not an in-use object", container)
	}

	obj, err := r.loadInUse(containerEntry)
	if err != nil {
		return nil, nil, 0, errgo.Mask(err, errgo.Any)
	}
	stream, ok := obj.Object.(pdf.Stream)
	if !ok || kindOfStream(stream) != typeObjectStream {
		return nil, nil, 0, errgo.WithCausef(nil, ErrMalformedObject,
			"object %d is not an object stream", container)
	}

	decoded, cached := r.decoded.Get(container)
	if !cached {
		decoded, err = stream.Decode()
		if err != nil {
			return nil, nil, 0, errgo.WithCausef(err, ErrMalformedObject,
				"could not decode object stream %d", container)
		}
		r.decoded.Add(container, decoded)
	}

	members, first, err := parseObjectStreamIndex(stream, decoded)
	if err != nil {
		return nil, nil, 0, errgo.WithCausef(err, ErrMalformedObject,
			"object stream %d", container)
	}
	return decoded, members, first, nil
}
