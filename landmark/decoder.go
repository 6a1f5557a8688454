package landmark

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"os"
)

// DecodeMapData decodes map data from the supported payload formats:
// - Raw JSON (starts with '{')
// - Gzip-compressed JSON
// - Zlib-compressed JSON
func DecodeMapData(data []byte) (*Map, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	switch {
	case IsGzip(data):
		jsonBytes, err = inflateGzip(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip payload: %w", err)
		}
	case firstNonSpace(data) == '{':
		jsonBytes = data
	default:
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("unknown format: not JSON, gzip, or zlib-compressed: %w", err)
		}
	}

	if len(bytes.TrimSpace(jsonBytes)) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}

	return ParseMapJSON(jsonBytes)
}

// IsGzip checks if data starts with the gzip magic bytes
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// firstNonSpace returns the first non-whitespace byte, or 0.
func firstNonSpace(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}

// inflateGzip decompresses gzip-compressed data
func inflateGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decompressing gzip data: %w", err)
	}
	return decompressed, nil
}

// DecodeMapFile reads a map file in any supported encoding
func DecodeMapFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return DecodeMapData(data)
}
