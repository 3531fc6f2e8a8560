package file

import (
	"github.com/juju/errgo"
)

// Errors reported by the object store. Callers match them with
// errgo.Cause, e.g.
//
//	if errgo.Cause(err) == file.ErrDuplicateIdentity { ... }
var (
	// ErrReservedIdentity is returned when an object uses
	// object number 0, which is reserved for the head of the
	// free list.
	ErrReservedIdentity = errgo.New("object number 0 is reserved")

	// ErrDuplicateIdentity is returned when an object is added to a
	// revision that already has an object with that object number.
	ErrDuplicateIdentity = errgo.New("object number already used in this revision")

	// ErrMalformedObject is returned when an object described by the
	// cross-reference index cannot be materialized from its bytes.
	ErrMalformedObject = errgo.New("malformed indirect object")

	// ErrMultipleIndexContainers is returned by the writer when a
	// revision holds more than one cross-reference stream.
	ErrMultipleIndexContainers = errgo.New("revision has more than one cross-reference stream")

	// ErrPayloadWithoutIndexContainer is returned by the writer when a
	// revision holds object streams but no cross-reference stream;
	// the classic table format cannot address compressed objects.
	ErrPayloadWithoutIndexContainer = errgo.New("object streams require a cross-reference stream")

	// ErrUnsupportedEntryKind is returned when a cross-reference entry
	// of an unknown kind is encountered. The writer builds its own
	// index, so this should be unreachable.
	ErrUnsupportedEntryKind = errgo.New("unsupported cross-reference entry kind")
)
