package csvstream

// input.go builds the byte pipeline in front of the CSV tokenizer:
//
//   - countingReader: tracks raw bytes consumed (reported as Meta.Cursor)
//   - BOM skipping: drops a leading UTF-8 BOM written by Windows tools
//   - decoding: converts legacy single-byte encodings to UTF-8
//   - utf8Sanitizer: replaces bytes that are still invalid UTF-8 with '?'
//
// Use newInput to apply all of them in the right order.

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ErrUnsupportedEncoding is returned for an explicit encoding name that has
// no decoder.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// encodingPeekSize is how much input the charset detector looks at.
const encodingPeekSize = 2048

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decoders maps lower-cased encoding names to their canonical name and
// decoder. A nil Encoding means the input is already UTF-8.
var decoders = map[string]struct {
	name string
	enc  encoding.Encoding
}{
	"utf-8":        {"utf-8", nil},
	"utf8":         {"utf-8", nil},
	"ascii":        {"utf-8", nil},
	"us-ascii":     {"utf-8", nil},
	"iso-8859-1":   {"iso-8859-1", charmap.ISO8859_1},
	"latin1":       {"iso-8859-1", charmap.ISO8859_1},
	"iso-8859-15":  {"iso-8859-15", charmap.ISO8859_15},
	"windows-1252": {"windows-1252", charmap.Windows1252},
	"cp1252":       {"windows-1252", charmap.Windows1252},
	"windows-1251": {"windows-1251", charmap.Windows1251},
	"cp1251":       {"windows-1251", charmap.Windows1251},
}

// SupportedEncodings lists the canonical encoding names accepted by Config.Encoding.
func SupportedEncodings() []string {
	return []string{"utf-8", "iso-8859-1", "iso-8859-15", "windows-1252", "windows-1251"}
}

// countingReader wraps an io.Reader to track bytes read.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// newInput wraps r with the full decoding pipeline. It returns the UTF-8
// reader, the canonical name of the encoding that was applied, and the
// counter for raw bytes consumed.
func newInput(r io.Reader, enc string) (io.Reader, string, *countingReader, error) {
	counter := &countingReader{r: r}
	br := bufio.NewReader(counter)

	// Skip BOM; a BOM also settles the encoding question.
	hadBOM := false
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, "", nil, err
		}
		hadBOM = true
	}

	name, decoder, err := resolveEncoding(br, enc, hadBOM)
	if err != nil {
		return nil, "", nil, err
	}

	var decoded io.Reader = br
	if decoder != nil {
		decoded = transform.NewReader(br, decoder.NewDecoder())
	}

	return newUTF8Sanitizer(decoded), name, counter, nil
}

// resolveEncoding picks the decoder for the stream. An explicit name must
// be known. Without one, valid UTF-8 input is taken as is and anything else
// is handed to the charset detector.
func resolveEncoding(br *bufio.Reader, enc string, hadBOM bool) (string, encoding.Encoding, error) {
	if enc != "" {
		d, ok := decoders[strings.ToLower(strings.TrimSpace(enc))]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
		}
		return d.name, d.enc, nil
	}
	if hadBOM {
		return "utf-8", nil, nil
	}

	peek, _ := br.Peek(encodingPeekSize)
	if len(peek) == 0 {
		return "utf-8", nil, nil
	}
	if utf8.Valid(peek[:len(peek)-incompleteTail(peek)]) {
		return "utf-8", nil, nil
	}

	res, err := chardet.NewTextDetector().DetectBest(peek)
	if err != nil || res == nil {
		return "utf-8", nil, nil
	}
	if d, ok := decoders[strings.ToLower(res.Charset)]; ok {
		return d.name, d.enc, nil
	}
	// Unknown legacy charset: Windows-1252 decodes every byte, which beats
	// sanitizing most of the text into '?'.
	return "windows-1252", charmap.Windows1252, nil
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' on the fly.
// A multi-byte sequence split across reads is held back until complete.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = append(s.pending[:0], s.pending[n:]...)
	if len(s.pending) > 0 {
		// p is smaller than the held sequence; hand it over piecewise.
		return n, nil
	}

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if err == nil {
		if tail := incompleteTail(data); tail > 0 {
			s.pending = append(s.pending, data[n-tail:]...)
			data = data[:n-tail]
		}
	}

	if isASCII(data) {
		return len(data), err
	}
	return sanitize(data), err
}

// isASCII is the fast path: most CSV data never needs rewriting.
func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// incompleteTail returns how many trailing bytes form the start of a
// multi-byte sequence that is not complete yet.
func incompleteTail(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		if utf8.RuneStart(data[len(data)-i]) {
			if utf8.FullRune(data[len(data)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// sanitize rewrites data in place and returns the new length. Replacements
// are one byte wide, so output never outgrows input.
func sanitize(data []byte) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}
