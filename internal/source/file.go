// Package source provides the file handles a preview reads from.
//
// A File reports its stored size and opens a stream of its content.
// Open transparently undoes gzip, bzip2 and xz compression, detected by
// magic bytes; Size is always the stored (compressed) size.
package source

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// File is an opaque handle to a user-selected file.
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// pathFile is a file on the local filesystem.
type pathFile struct {
	path string
	size int64
}

// Path returns a File for the file at path.
func Path(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &pathFile{path: path, size: info.Size()}, nil
}

func (f *pathFile) Name() string { return filepath.Base(f.path) }
func (f *pathFile) Size() int64  { return f.size }

func (f *pathFile) Open() (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	rc, _, err := decompress(fh)
	return rc, err
}

// bytesFile is an in-memory file.
type bytesFile struct {
	name string
	data []byte
}

// Bytes returns a File backed by data.
func Bytes(name string, data []byte) File {
	return &bytesFile{name: name, data: data}
}

func (f *bytesFile) Name() string { return f.name }
func (f *bytesFile) Size() int64  { return int64(len(f.data)) }

func (f *bytesFile) Open() (io.ReadCloser, error) {
	rc, _, err := decompress(io.NopCloser(bytes.NewReader(f.data)))
	return rc, err
}

// multipartFile is an uploaded form file.
type multipartFile struct {
	fh *multipart.FileHeader
}

// Multipart returns a File for an uploaded form file. The upload must stay
// available (the request's multipart form not yet removed) while it is used.
func Multipart(fh *multipart.FileHeader) File {
	return &multipartFile{fh: fh}
}

func (f *multipartFile) Name() string { return f.fh.Filename }
func (f *multipartFile) Size() int64  { return f.fh.Size }

func (f *multipartFile) Open() (io.ReadCloser, error) {
	fh, err := f.fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", f.fh.Filename, err)
	}
	rc, _, err := decompress(fh)
	return rc, err
}
