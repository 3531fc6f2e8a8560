package file

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/djberg96/hexapdf/pdf"
)

// refreshID updates the file identifier array before a section is
// written. The first element is fixed when the document is first
// serialized and never changes afterwards, so readers can tell
// revisions of the same document apart from unrelated files. The
// second element changes with every write.
func (f *File) refreshID() {
	var first pdf.String
	if len(f.ID) == 2 {
		first, _ = f.ID[0].(pdf.String)
	}
	if first == nil {
		id := uuid.New()
		first = pdf.String(id[:])
	}

	hasher := blake3.New()
	hasher.Write([]byte(f.filename))
	hasher.Write(first)

	var state [16]byte
	binary.BigEndian.PutUint64(state[:8], uint64(f.working.MaxID()))
	binary.BigEndian.PutUint64(state[8:], uint64(time.Now().UnixNano()))
	hasher.Write(state[:])

	digest := hasher.Sum(nil)
	f.ID = pdf.Array{first, pdf.String(digest[:16])}
}
