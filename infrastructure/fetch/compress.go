package fetch

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// gzip stream magic number, first two bytes of every member
const (
	gzipMagic1 = 0x1f
	gzipMagic2 = 0x8b
)

// IsCompressed reports whether data starts with the gzip magic pair.
// Buffers shorter than two bytes are never classified as compressed.
func IsCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == gzipMagic1 && data[1] == gzipMagic2
}

// Decompress fully reconstructs the original blob from a gzip stream.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDecompressionError("invalid gzip stream", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, apperrors.NewDecompressionError("truncated gzip stream", err)
	}
	return out, nil
}

// Compress gzips a blob. Used by tooling and tests; the service itself
// only ever decompresses.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
