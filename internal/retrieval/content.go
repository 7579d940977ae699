package retrieval

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"
)

// ContentKind tags the Content union.
type ContentKind int

// Content kinds.
const (
	KindBinary ContentKind = iota
	KindText
)

// Content is retrieved file data, either decoded text or raw bytes.
type Content struct {
	kind         ContentKind
	text         string
	encoding     string
	data         []byte
	decompressed bool
}

// TextContent builds a Text variant.
func TextContent(text, encoding string) Content {
	return Content{kind: KindText, text: text, encoding: encoding}
}

// BinaryContent builds a Binary variant.
func BinaryContent(data []byte) Content {
	return Content{kind: KindBinary, data: data}
}

// Kind returns the variant tag.
func (c Content) Kind() ContentKind { return c.kind }

// Text returns the text and its encoding; ok is false for Binary content.
func (c Content) Text() (text, encoding string, ok bool) {
	if c.kind != KindText {
		return "", "", false
	}
	return c.text, c.encoding, true
}

// Decompressed reports whether the content was gunzipped during decoding.
func (c Content) Decompressed() bool { return c.decompressed }

// Bytes returns the bytes to write to disk.
func (c Content) Bytes() []byte {
	if c.kind == KindText {
		return []byte(c.text)
	}
	return c.data
}

// IsJSON reports whether the content parses as JSON.
func (c Content) IsJSON() bool {
	return json.Valid(c.Bytes())
}

// Decode turns raw bytes into Content. When gz is set, or the bytes carry
// the gzip magic number, and decompress is requested the data is gunzipped
// first. A decompression failure keeps the raw bytes; the returned error is
// informational and the Content is always usable.
func Decode(raw []byte, decompress, gz bool) (Content, error) {
	data := raw
	var decodeErr error
	decompressed := false
	if decompress && (gz || IsGzip(raw)) {
		out, err := gunzip(raw)
		if err != nil {
			decodeErr = fmt.Errorf("decompress: %w", err)
		} else {
			data = out
			decompressed = true
		}
	}
	var c Content
	if utf8.Valid(data) {
		c = TextContent(string(data), "utf-8")
	} else {
		c = BinaryContent(data)
	}
	c.decompressed = decompressed
	return c, decodeErr
}

// IsGzip checks for the gzip magic number.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close() //nolint:errcheck // reader over in-memory bytes
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return out, nil
}
