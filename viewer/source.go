package viewer

import (
	"io"
	"net/http"
)

// Source is where a document comes from. It is one of Decoded, Raw, Stream
// or Remote and is dispatched once when the document is loaded.
type Source interface {
	isSource()
}

// Decoded passes an already-decoded document through without re-decoding.
// The viewer takes ownership and closes it on release.
type Decoded struct {
	Document Document
}

// Raw holds the bytes of a document.
type Raw struct {
	Data []byte
	// Name is informational and used in log output.
	Name string
}

// Stream reads the document from r.
type Stream struct {
	Reader io.Reader
	Name   string
}

// Remote fetches the document from URL.
type Remote struct {
	URL    string
	Header http.Header
}

func (*Decoded) isSource() {}
func (*Raw) isSource()     {}
func (*Stream) isSource()  {}
func (*Remote) isSource()  {}

// SameSource reports whether a and b identify the same source. Comparison
// is by identity: two Raw values holding equal bytes in different slices
// are different sources.
func SameSource(a, b Source) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Decoded:
		y, ok := b.(*Decoded)
		return ok && (x == y || x.Document == y.Document)
	case *Raw:
		y, ok := b.(*Raw)
		return ok && (x == y || sameBytes(x.Data, y.Data))
	case *Stream:
		y, ok := b.(*Stream)
		return ok && (x == y || x.Reader == y.Reader)
	case *Remote:
		y, ok := b.(*Remote)
		return ok && (x == y || x.URL == y.URL)
	}
	return false
}

func sameBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

// sourceName describes src for logging.
func sourceName(src Source) string {
	switch s := src.(type) {
	case *Decoded:
		return "decoded"
	case *Raw:
		if s.Name != "" {
			return s.Name
		}
		return "raw"
	case *Stream:
		if s.Name != "" {
			return s.Name
		}
		return "stream"
	case *Remote:
		return s.URL
	}
	return "none"
}
