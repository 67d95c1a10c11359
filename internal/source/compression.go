package source

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Compression is the container format of a stored file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

// Magic byte signatures.
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68} // "BZh"
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// DetectCompression inspects the leading bytes of a stream.
func DetectCompression(header []byte) Compression {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ
	default:
		return CompressionNone
	}
}

// decompress wraps rc so that reads return the uncompressed content.
// Closing the result closes rc.
func decompress(rc io.ReadCloser) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(rc)
	header, _ := br.Peek(len(xzMagic))

	kind := DetectCompression(header)

	var r io.Reader
	switch kind {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, kind, fmt.Errorf("create gzip reader: %w", err)
		}
		return &decompressingReadCloser{reader: gz, closers: []io.Closer{gz, rc}}, kind, nil

	case CompressionBzip2:
		r = bzip2.NewReader(br)

	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, kind, fmt.Errorf("create xz reader: %w", err)
		}
		r = xr

	default:
		r = br
	}

	return &decompressingReadCloser{reader: r, closers: []io.Closer{rc}}, kind, nil
}

// decompressingReadCloser pairs a decoding reader with the handles it owns.
type decompressingReadCloser struct {
	reader  io.Reader
	closers []io.Closer
}

func (d *decompressingReadCloser) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressingReadCloser) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
