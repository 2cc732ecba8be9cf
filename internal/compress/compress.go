package compress

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

// FromFilename infers the compression kind from a payload file name.
// Producers tag compressed files either in the manifest or by extension.
func FromFilename(name string) string {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return TypeZstd
	case strings.HasSuffix(name, ".gz"):
		return TypeGzip
	default:
		return TypeNone
	}
}

// TrimExtension strips the compression suffix so staged files carry their
// logical name.
func TrimExtension(name string) string {
	name = strings.TrimSuffix(name, ".zst")
	name = strings.TrimSuffix(name, ".gz")
	return name
}

func WrapReader(kind string, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case "", TypeNone:
		return io.NopCloser(r), nil
	case TypeGzip:
		return gzip.NewReader(r)
	case TypeZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{Decoder: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
