// Package codec converts records and collection indexes to and from their
// on-disk bytes in the configured store format.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/models"
)

// Format is the text serialization used for structured records and indexes.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("codec: unknown format %q", s)
	}
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	return string(f)
}

// Codec encodes records for one store instance.
type Codec struct {
	format Format
}

// New returns a Codec for format.
func New(format Format) *Codec {
	return &Codec{format: format}
}

// Format returns the configured format.
func (c *Codec) Format() Format {
	return c.format
}

// EncodeRecord validates payload against isBinary and returns the bytes to
// store. Binary payloads are passed through verbatim.
func (c *Codec) EncodeRecord(payload any, isBinary bool) ([]byte, error) {
	blob, payloadIsBinary := payload.([]byte)
	if isBinary {
		if !payloadIsBinary {
			return nil, apperr.Validation("codec: encode", "isBinary is set but payload is not binary")
		}
		return blob, nil
	}
	if payloadIsBinary {
		return nil, apperr.Validation("codec: encode", "payload is binary but isBinary is not set")
	}
	doc, ok := payload.(map[string]any)
	if !ok || doc == nil {
		return nil, apperr.Validation("codec: encode", "structured payload must be a key/value document")
	}
	return c.marshal(Normalize(doc))
}

// DecodeRecord parses stored bytes into a record.
func (c *Codec) DecodeRecord(id string, data []byte, isBinary bool) (*models.Record, error) {
	if isBinary {
		return &models.Record{ID: id, IsBinary: true, Blob: data}, nil
	}
	doc, err := c.decodeDocument(data)
	if err != nil {
		return nil, apperr.Serialization("codec: decode record "+id, err)
	}
	return &models.Record{ID: id, Document: doc}, nil
}

// EncodeIndex serializes a collection index.
func (c *Codec) EncodeIndex(entries []models.IndexEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.IndexEntry{}
	}
	return c.marshal(entries)
}

// DecodeIndex parses a collection index. Empty content is an empty index.
func (c *Codec) DecodeIndex(data []byte) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}
	if err := c.unmarshal(data, &entries); err != nil {
		return nil, apperr.Serialization("codec: decode index", err)
	}
	return entries, nil
}

func (c *Codec) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	switch c.format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, apperr.Serialization("codec: encode yaml", err)
		}
		if err := enc.Close(); err != nil {
			return nil, apperr.Serialization("codec: encode yaml", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return nil, apperr.Serialization("codec: encode json", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeDocument parses a structured record. JSON numbers are read as
// json.Number so large integers survive, then both formats are normalized.
func (c *Codec) decodeDocument(data []byte) (models.Document, error) {
	var doc models.Document
	if c.format == FormatYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	} else if err := DecodeJSONDocument(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return models.Document{}, nil
	}
	return Normalize(doc).(map[string]any), nil
}

// DecodeJSONDocument decodes a single JSON value from data into v, keeping
// numbers as json.Number. Trailing content is an error.
func DecodeJSONDocument(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON document")
	}
	return nil
}

func (c *Codec) unmarshal(data []byte, v any) error {
	if c.format == FormatYAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
