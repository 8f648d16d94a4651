package trace

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressionType defines the compression algorithm of a trace file
type CompressionType int

const (
	// NoCompression indicates plain JSON
	NoCompression CompressionType = iota
	// ZstdCompression indicates Zstandard compression
	ZstdCompression
)

// zstdMagic is the frame header every zstd stream starts with
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// DetectCompression sniffs the compression type from the leading bytes
func DetectCompression(data []byte) CompressionType {
	if bytes.HasPrefix(data, zstdMagic) {
		return ZstdCompression
	}
	return NoCompression
}

// CompressData compresses a byte slice using the specified compression algorithm
func CompressData(data []byte, compressionType CompressionType) ([]byte, error) {
	if compressionType == NoCompression {
		return data, nil
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// DecompressData decompresses a byte slice using the specified compression algorithm
func DecompressData(data []byte, compressionType CompressionType) ([]byte, error) {
	if compressionType == NoCompression {
		return data, nil
	}
	return zstdDecoder.DecodeAll(data, nil)
}

// NewCompressedWriter returns a writer that compresses data before writing.
// Callers must close it with CloseCompressedWriter.
func NewCompressedWriter(w io.Writer, compressionType CompressionType) (io.Writer, error) {
	if compressionType == NoCompression {
		return w, nil
	}
	return zstd.NewWriter(w)
}

// CloseCompressedWriter flushes and closes the compressed writer if needed
func CloseCompressedWriter(w io.Writer) error {
	if zw, ok := w.(*zstd.Encoder); ok {
		return zw.Close()
	}
	return nil
}
