package store

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/hashicorp/go-multierror"
)

type mmapCloser struct {
	m mmap.MMap
	f *os.File
}

func (c *mmapCloser) Close() error {
	var result *multierror.Error
	if err := c.m.Unmap(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.f.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// openMMapInput maps f read-only. The mapping and the file stay open until
// the returned input is closed; clones share the mapping.
func openMMapInput(name string, f *os.File, size int64, bufferSize int) (IndexInput, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return NewInput(name, bytes.NewReader(m), size, &mmapCloser{m: m, f: f}, bufferSize), nil
}
