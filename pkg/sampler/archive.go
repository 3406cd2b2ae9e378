package sampler

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies how a dump archive is compressed
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionBzip2 Compression = "bzip2"
	CompressionGzip  Compression = "gzip"
	CompressionZstd  Compression = "zstd"
)

var (
	magicBzip2 = []byte("BZh")
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectCompression sniffs the compression format from the leading bytes
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicBzip2):
		return CompressionBzip2
	default:
		return CompressionNone
	}
}

// archive is an open dump: a tar reader plus everything that must be closed
type archive struct {
	*tar.Reader
	compression Compression
	closers     []func() error
}

func (a *archive) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openArchive opens a tar dump, transparently decompressing bzip2, gzip or
// zstd streams.
func openArchive(path string) (*archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchive, err)
	}

	a := &archive{closers: []func() error{f.Close}}

	br := bufio.NewReaderSize(f, 1<<20)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		a.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrArchive, path, err)
	}

	var r io.Reader = br
	a.compression = DetectCompression(head)
	switch a.compression {
	case CompressionBzip2:
		r = bzip2.NewReader(br)
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrArchive, path, err)
		}
		a.closers = append(a.closers, gz.Close)
		r = gz
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrArchive, path, err)
		}
		a.closers = append(a.closers, func() error {
			zr.Close()
			return nil
		})
		r = zr
	}

	a.Reader = tar.NewReader(r)
	return a, nil
}
