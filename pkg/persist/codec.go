// Package persist provides codec-based file persistence for arbitrary state types.
package persist

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// File extensions for supported codecs.
const (
	jsonExtension = ".json"
	gobExtension  = ".gob"
	gzExtension   = ".json.gz"
	zstExtension  = ".json.zst"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".gob").
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

// GobCodec implements Codec using gob encoding.
type GobCodec struct{}

// NewGobCodec creates a gob codec.
func NewGobCodec() *GobCodec {
	return &GobCodec{}
}

// Encode implements Codec.Encode using gob encoding.
func (c *GobCodec) Encode(w io.Writer, state any) error {
	encoder := gob.NewEncoder(w)

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using gob decoding.
func (c *GobCodec) Decode(r io.Reader, state any) error {
	decoder := gob.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for gob files.
func (c *GobCodec) Extension() string {
	return gobExtension
}

// GzipJSONCodec wraps JSON encoding in gzip compression, used for semantic
// snapshots below the zstd size threshold.
type GzipJSONCodec struct {
	inner *JSONCodec
}

// NewGzipJSONCodec creates a gzip+JSON codec.
func NewGzipJSONCodec() *GzipJSONCodec {
	return &GzipJSONCodec{inner: NewJSONCodec()}
}

// Encode gzip-compresses JSON-encoded state.
func (c *GzipJSONCodec) Encode(w io.Writer, state any) error {
	gw := gzip.NewWriter(w)

	if err := c.inner.Encode(gw, state); err != nil {
		_ = gw.Close()

		return err
	}

	if err := gw.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	return nil
}

// Decode decompresses and JSON-decodes state.
func (c *GzipJSONCodec) Decode(r io.Reader, state any) error {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	return c.inner.Decode(gr, state)
}

// Extension implements Codec.Extension for gzip+JSON files.
func (c *GzipJSONCodec) Extension() string {
	return gzExtension
}

// ZstdJSONCodec wraps JSON encoding in zstd compression, used for semantic
// snapshots that exceed the gzip size threshold (large repos produce
// multi-megabyte snapshots where zstd's higher throughput pays for itself).
type ZstdJSONCodec struct {
	inner *JSONCodec
}

// NewZstdJSONCodec creates a zstd+JSON codec.
func NewZstdJSONCodec() *ZstdJSONCodec {
	return &ZstdJSONCodec{inner: NewJSONCodec()}
}

// Encode zstd-compresses JSON-encoded state.
func (c *ZstdJSONCodec) Encode(w io.Writer, state any) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	if err := c.inner.Encode(zw, state); err != nil {
		_ = zw.Close()

		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}

	return nil
}

// Decode decompresses and JSON-decodes state.
func (c *ZstdJSONCodec) Decode(r io.Reader, state any) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	return c.inner.Decode(zr, state)
}

// Extension implements Codec.Extension for zstd+JSON files.
func (c *ZstdJSONCodec) Extension() string {
	return zstExtension
}

// SaveState saves the given state to a file in the specified directory.
// The filename is constructed from the basename and the codec's extension.
func SaveState(dir, basename string, codec Codec, state any) error {
	filename := basename + codec.Extension()
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	defer file.Close()

	err = codec.Encode(file, state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return nil
}

// LoadState loads state from a file in the specified directory.
// The filename is constructed from the basename and the codec's extension.
// The state parameter must be a pointer to the target struct.
func LoadState(dir, basename string, codec Codec, state any) error {
	filename := basename + codec.Extension()
	path := filepath.Join(dir, filename)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, state)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}
