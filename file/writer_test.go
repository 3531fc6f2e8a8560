package file

import (
	"bytes"
	"testing"

	"github.com/juju/errgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djberg96/hexapdf/pdf"
)

func TestWriteRevisionClassicLayoutByteExact(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(42))))

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	require.NoError(t, w.writeHeader())

	startxref, err := w.writeRevision(rev, 0, false)
	require.NoError(t, err)

	// header (15 bytes) + "1 0 obj\n42\nendobj\n" (18 bytes)
	assert.Equal(t, int64(33), startxref)

	expected := "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n" +
		"1 0 obj\n42\nendobj\n" +
		"xref\n" +
		"0 2\n" +
		"0000000000 65535 f \n" +
		"0000000015 00000 n \n" +
		"trailer\n<</Size 2>>\n" +
		"startxref\n33\n%%EOF\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteRevisionFixedWidthEntries(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(1))))
	require.NoError(t, rev.Add(indirect(2, 7, pdf.Integer(2))))

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	require.NoError(t, w.writeHeader())
	_, err := w.writeRevision(rev, 0, false)
	require.NoError(t, err)

	// each table line is exactly 20 bytes including its newline
	assert.Contains(t, buf.String(), "0000000015 00000 n \n")
	assert.Contains(t, buf.String(), "0000000032 00007 n \n")
}

func TestWriteRevisionThreadsPrev(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(1))))

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	_, err := w.writeRevision(rev, 1234, true)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "/Prev 1234")
}

func TestWriteChainBackPointers(t *testing.T) {
	older := NewRevision()
	require.NoError(t, older.Add(indirect(1, 0, pdf.Name("first"))))
	newer := NewRevision()
	require.NoError(t, newer.Add(indirect(2, 0, pdf.Name("second"))))

	buf := &bytes.Buffer{}
	_, err := WriteChain(buf, []*Revision{newer, older})
	require.NoError(t, err)

	data := buf.Bytes()
	assert.Equal(t, 2, bytes.Count(data, []byte("%%EOF\n")))
	assert.Equal(t, 2, bytes.Count(data, []byte("startxref\n")))

	reader, err := NewReader(data)
	require.NoError(t, err)

	revisions := reader.Revisions()
	require.Len(t, revisions, 2)

	// the newest trailer points back at the older section's table
	prev, ok := revisions[0].Trailer["Prev"].(pdf.Integer)
	require.True(t, ok)
	assert.Equal(t, int64(bytes.Index(data, []byte("xref\n"))), int64(prev))
	_, ok = revisions[1].Trailer["Prev"]
	assert.False(t, ok)

	// the newest revision sees both objects, the oldest only its own
	obj, found, err := revisions[0].ObjectByNumber(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, pdf.Name("first"), obj.Object)

	_, found, err = revisions[1].ObjectByNumber(2)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteRevisionFreedObjectEmitsFreeEntry(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Integer(1))))
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Integer(2))))
	rev.Delete(2, true)

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	require.NoError(t, w.writeHeader())
	_, err := w.writeRevision(rev, 0, false)
	require.NoError(t, err)

	// object 2's bytes are not written, its entry is free
	assert.NotContains(t, buf.String(), "2 0 obj")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte(" f \n")))

	reader, err := NewReader(buf.Bytes())
	require.NoError(t, err)
	entry, ok := reader.Revisions()[0].Index().Lookup(2)
	require.True(t, ok)
	assert.Equal(t, FreeEntry, entry.Kind)
}

func TestWriteRevisionXrefStreamRoundTrip(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Dictionary{"Type": pdf.Name("Catalog")})))
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Stream{
		Dictionary: pdf.Dictionary{"Type": typeXrefStream},
	})))

	buf := &bytes.Buffer{}
	_, err := WriteChain(buf, []*Revision{rev})
	require.NoError(t, err)

	// no classic table keywords in this layout
	assert.NotContains(t, buf.String(), "trailer")
	assert.NotContains(t, buf.String(), "xref\n0")

	reader, err := NewReader(buf.Bytes())
	require.NoError(t, err)

	loaded := reader.Revisions()[0]
	obj, ok, err := loaded.ObjectByNumber(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pdf.Dictionary{"Type": pdf.Name("Catalog")}, obj.Object)

	// the index container indexes itself
	entry, ok := loaded.Index().Lookup(2)
	require.True(t, ok)
	assert.Equal(t, InUseEntry, entry.Kind)
	assert.Equal(t, int64(reader.StartXref()), entry.Offset)
}

func TestWriteRevisionCompressedMembersStayInsideContainer(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(5, 0, pdf.Integer(7))))

	builder := NewObjectStreamBuilder(3)
	builder.Add(5)
	container, err := builder.WriteMembers(rev)
	require.NoError(t, err)
	require.NoError(t, rev.Add(indirect(3, 0, container)))
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Stream{
		Dictionary: pdf.Dictionary{"Type": typeXrefStream},
	})))

	buf := &bytes.Buffer{}
	_, err = WriteChain(buf, []*Revision{rev})
	require.NoError(t, err)

	// the member's body lives inside the container only
	assert.NotContains(t, buf.String(), "5 0 obj")
	assert.Contains(t, buf.String(), "3 0 obj")

	reader, err := NewReader(buf.Bytes())
	require.NoError(t, err)

	loaded := reader.Revisions()[0]
	entry, ok := loaded.Index().Lookup(5)
	require.True(t, ok)
	assert.Equal(t, CompressedEntry, entry.Kind)
	assert.Equal(t, uint(3), entry.Container)

	obj, ok, err := loaded.ObjectByNumber(5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pdf.Integer(7), obj.Object)
}

func TestWriteRevisionRejectsMultipleIndexContainers(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(1, 0, pdf.Stream{
		Dictionary: pdf.Dictionary{"Type": typeXrefStream},
	})))
	require.NoError(t, rev.Add(indirect(2, 0, pdf.Stream{
		Dictionary: pdf.Dictionary{"Type": typeXrefStream},
	})))

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	_, err := w.writeRevision(rev, 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrMultipleIndexContainers, errgo.Cause(err))
	// nothing was written before the structural check failed
	assert.Zero(t, buf.Len())
}

func TestWriteRevisionRejectsPayloadWithoutIndexContainer(t *testing.T) {
	rev := NewRevision()
	require.NoError(t, rev.Add(indirect(5, 0, pdf.Integer(7))))

	builder := NewObjectStreamBuilder(3)
	builder.Add(5)
	container, err := builder.WriteMembers(rev)
	require.NoError(t, err)
	require.NoError(t, rev.Add(indirect(3, 0, container)))

	buf := &bytes.Buffer{}
	w := &writer{dst: buf}
	_, err = w.writeRevision(rev, 0, false)
	require.Error(t, err)
	assert.Equal(t, ErrPayloadWithoutIndexContainer, errgo.Cause(err))
	assert.Zero(t, buf.Len())
}
