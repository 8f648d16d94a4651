package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdinPath makes LoadFile read from standard input
const StdinPath = "-"

// FileOptions contains options for reading and writing trace files
type FileOptions struct {
	// CompressionType applies to writes; reads sniff the stream.
	CompressionType CompressionType

	// IntegrityKey, when set, requires a matching .sig sidecar on read
	// and produces one on write.
	IntegrityKey []byte
}

// DefaultFileOptions returns default options for trace files
func DefaultFileOptions() FileOptions {
	return FileOptions{CompressionType: NoCompression}
}

// LoadFile reads a trace document from path, decompressing and verifying
// it as needed.
func LoadFile(path string, options FileOptions) (*Document, error) {
	var (
		raw []byte
		err error
	)
	if path == StdinPath {
		raw, err = io.ReadAll(bufio.NewReader(os.Stdin))
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}

	if len(options.IntegrityKey) > 0 {
		if path == StdinPath {
			return nil, fmt.Errorf("integrity check requires a file, not stdin: %w", ErrIntegrity)
		}
		sig, err := os.ReadFile(path + SignatureSuffix)
		if err != nil {
			return nil, fmt.Errorf("read signature: %w", err)
		}
		if !VerifyHMAC(raw, options.IntegrityKey, string(sig)) {
			return nil, fmt.Errorf("%s: %w", path, ErrIntegrity)
		}
	}

	return DecodeBytes(raw)
}

// DecodeBytes decodes a possibly compressed trace document
func DecodeBytes(raw []byte) (*Document, error) {
	data, err := DecompressData(raw, DetectCompression(raw))
	if err != nil {
		return nil, fmt.Errorf("decompress trace: %w", err)
	}
	return ParseDocument(data)
}

// EncodeBytes serializes a document with the given compression
func EncodeBytes(doc *Document, compressionType CompressionType) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewCompressedWriter(&buf, compressionType)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode trace document: %w", err)
	}
	if err := CloseCompressedWriter(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes a document to path. A ".zst" suffix forces zstd.
func WriteFile(path string, doc *Document, options FileOptions) error {
	compressionType := options.CompressionType
	if strings.HasSuffix(path, ".zst") {
		compressionType = ZstdCompression
	}

	data, err := EncodeBytes(doc, compressionType)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}

	if len(options.IntegrityKey) > 0 {
		sig := CalculateHMAC(data, options.IntegrityKey)
		if err := os.WriteFile(path+SignatureSuffix, []byte(sig+"\n"), 0644); err != nil {
			return fmt.Errorf("write signature: %w", err)
		}
	}
	return nil
}
