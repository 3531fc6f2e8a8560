package pdf

import (
	"bytes"
	"fmt"
	"io"
)

// buffer accumulates serialized tokens, holding on to the first write
// error until WriteTo. The serializers can then be written as
// straight-line code without checking every write.
type buffer struct {
	bytes.Buffer
	err error
}

func (b *buffer) WriteTo(w io.Writer) (int64, error) {
	if b.err != nil {
		return 0, b.err
	}
	return b.Buffer.WriteTo(w)
}

func (b *buffer) Printf(format string, a ...interface{}) {
	if b.err != nil {
		return
	}
	_, b.err = fmt.Fprintf(&b.Buffer, format, a...)
}

func (b *buffer) WriteString(s string) {
	if b.err != nil {
		return
	}
	_, b.err = b.Buffer.WriteString(s)
}

func (b *buffer) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	var n int
	n, b.err = b.Buffer.Write(p)
	return n, b.err
}

func (b *buffer) WriteByte(c byte) {
	if b.err != nil {
		return
	}
	b.err = b.Buffer.WriteByte(c)
}

func (b *buffer) Truncate(n int) {
	if b.err != nil {
		return
	}
	b.Buffer.Truncate(n)
}
