package pdf

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// WriteValue serializes obj to w in its canonical token form.
// It is the value serializer used by the file package.
func WriteValue(w io.Writer, obj Object) (int64, error) {
	return obj.writeTo(w)
}

// EncodeValue returns the canonical token form of obj.
func EncodeValue(obj Object) ([]byte, error) {
	buf := &bytes.Buffer{}
	_, err := obj.writeTo(buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeTo serializes the Boolean according to the rules in
// §7.3.2
func (b Boolean) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	if b {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}

	return buf.WriteTo(w)
}

// writeTo serializes the Integer according to the rules in
// §7.3.3
func (i Integer) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	fmt.Fprintf(buf, "%d", int(i))

	return buf.WriteTo(w)
}

// writeTo serializes the Real according to the rules in
// §7.3.3
func (r Real) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	fmt.Fprintf(buf, "%v", float64(r))

	return buf.WriteTo(w)
}

// writeTo serializes the String according to the rules in
// §7.3.4
func (s String) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	buf.WriteByte('(')
	for _, b := range []byte(s) {
		switch b {
		case '\\':
			buf.WriteString("\\\\")
		case '(':
			buf.WriteString("\\(")
		case ')':
			buf.WriteString("\\)")
		case '\r':
			// an unescaped carriage return would read back as a
			// line feed
			buf.WriteString("\\r")
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(')')

	return buf.WriteTo(w)
}

// writeTo serializes the Name according to the rules in
// §7.3.5
func (n Name) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	fmt.Fprintf(buf, "/%s", n)

	return buf.WriteTo(w)
}

// writeTo serializes the Array according to the rules in
// §7.3.6
func (a Array) writeTo(w io.Writer) (int64, error) {
	buf := &buffer{}

	buf.WriteByte('[')
	for _, obj := range a {
		obj.writeTo(buf)
		buf.WriteByte(' ')
	}
	if len(a) != 0 {
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte(']')

	return buf.WriteTo(w)
}

// writeTo serializes the Dictionary according to the rules in
// §7.3.7
// Keys are written in sorted order so that equal dictionaries
// always serialize to the same bytes.
func (d Dictionary) writeTo(w io.Writer) (int64, error) {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, string(name))
	}
	sort.Strings(names)

	buf := &buffer{}

	buf.WriteString("<<")
	for _, name := range names {
		Name(name).writeTo(buf)
		buf.WriteByte(' ')
		d[Name(name)].writeTo(buf)
	}
	buf.WriteString(">>")

	return buf.WriteTo(w)
}

// writeTo serializes the Stream according to the rules in
// §7.3.8
// The Length entry is forced to the exact number of stream
// bytes written.
func (s Stream) writeTo(w io.Writer) (int64, error) {
	// the caller's dictionary is left untouched
	dict := s.Dictionary.Copy()
	dict[Name("Length")] = Integer(len(s.Stream))

	buf := &buffer{}

	dict.writeTo(buf)

	buf.Printf("\nstream\n")
	buf.Write(s.Stream)
	buf.Printf("\nendstream")

	return buf.WriteTo(w)
}

// writeTo serializes Null according to the rules in
// §7.3.9
func (null Null) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	buf.WriteString("null")

	return buf.WriteTo(w)
}

// writeTo serializes the ObjectReference according to the rules in
// §7.3.10
func (objref ObjectReference) writeTo(w io.Writer) (int64, error) {
	buf := &bytes.Buffer{}

	fmt.Fprintf(buf, "%d %d R", objref.ObjectNumber, objref.GenerationNumber)

	return buf.WriteTo(w)
}

// writeTo serializes the IndirectObject according to the rules in
// §7.3.10
func (inobj IndirectObject) writeTo(w io.Writer) (int64, error) {
	buf := &buffer{}
	buf.Printf("%d %d obj\n", inobj.ObjectNumber, inobj.GenerationNumber)
	inobj.Object.writeTo(buf)
	buf.Printf("\nendobj\n")
	return buf.WriteTo(w)
}
