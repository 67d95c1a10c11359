package csvstream

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// recordTap keeps the raw bytes encoding/csv has consumed but not yet
// returned as a record, so a record can be re-examined after Read.
type recordTap struct {
	r    io.Reader
	buf  []byte
	base int64 // stream offset of buf[0]
}

func (t *recordTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf = append(t.buf, p[:n]...)
	return n, err
}

// slice returns the raw bytes between two stream offsets.
func (t *recordTap) slice(from, to int64) []byte {
	lo, hi := from-t.base, to-t.base
	if lo < 0 {
		lo = 0
	}
	if hi > int64(len(t.buf)) {
		hi = int64(len(t.buf))
	}
	if lo >= hi {
		return nil
	}
	return t.buf[lo:hi]
}

// discard forgets everything before offset.
func (t *recordTap) discard(offset int64) {
	d := offset - t.base
	if d <= 0 {
		return
	}
	if d > int64(len(t.buf)) {
		d = int64(len(t.buf))
	}
	t.buf = append(t.buf[:0], t.buf[d:]...)
	t.base += d
}

// unterminatedQuote reports whether raw, one record as read with lazy
// quotes, contains a quoted field that never closes. Lazy quoting makes
// encoding/csv read such a field up to the end of the input instead of
// failing, so this is the only way to notice it.
func unterminatedQuote(raw []byte, comma rune) bool {
	raw = bytes.TrimLeft(raw, "\r\n")
	sep := make([]byte, utf8.RuneLen(comma))
	utf8.EncodeRune(sep, comma)

	for len(raw) > 0 {
		if raw[0] != '"' {
			// Unquoted field: runs to the next separator or line end.
			i := bytes.Index(raw, sep)
			nl := bytes.IndexAny(raw, "\r\n")
			if nl >= 0 && (i < 0 || nl < i) {
				return false
			}
			if i < 0 {
				return false
			}
			raw = raw[i+len(sep):]
			continue
		}

		// Quoted field: find the quote that closes it.
		raw = raw[1:]
		closed := false
		for len(raw) > 0 {
			i := bytes.IndexByte(raw, '"')
			if i < 0 {
				return true
			}
			raw = raw[i+1:]
			switch {
			case len(raw) > 0 && raw[0] == '"':
				raw = raw[1:]
			case len(raw) == 0, raw[0] == '\n', raw[0] == '\r':
				return false
			case bytes.HasPrefix(raw, sep):
				raw = raw[len(sep):]
				closed = true
			}
			if closed {
				break
			}
		}
		if !closed {
			return true
		}
	}
	return false
}
