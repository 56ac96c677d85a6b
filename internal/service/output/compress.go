package output

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/webitel/datum-exporter/internal/domain/model/export"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// compressor wraps w with the writer for t. Closing it flushes the compressed stream but not w.
func compressor(w io.Writer, t export.CompressionType) (io.WriteCloser, error) {
	switch t {
	case "", export.CompressionNone:
		return nopWriteCloser{w}, nil
	case export.CompressionGzip:
		return gzip.NewWriter(w), nil
	case export.CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression %q", string(t))
	}
}
