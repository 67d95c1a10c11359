package source

import (
	"fmt"
	"io"
	"os"
)

// SpooledFile is a File copied to a temporary file so it outlives the
// request that delivered it. Remove deletes the copy.
type SpooledFile struct {
	name string
	path string
	size int64
}

// Spool copies r into a new file in dir (os.TempDir when empty).
func Spool(name string, r io.Reader, dir string) (*SpooledFile, error) {
	tmp, err := os.CreateTemp(dir, "csvpreview-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool %s: %w", name, err)
	}

	return &SpooledFile{name: name, path: tmp.Name(), size: n}, nil
}

func (f *SpooledFile) Name() string { return f.name }
func (f *SpooledFile) Size() int64  { return f.size }

func (f *SpooledFile) Open() (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open spooled %s: %w", f.name, err)
	}
	rc, _, err := decompress(fh)
	return rc, err
}

// Remove deletes the temporary copy.
func (f *SpooledFile) Remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
