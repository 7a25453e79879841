// Package jsonutil is a configurable JSON encoding/decoding layer. It
// defaults to github.com/bytedance/sonic rather than encoding/json, since
// the pipeline's manifest/resume/document encoding is
// throughput-sensitive. Call sites import it under a local `json` alias so
// the codec can be swapped without touching them.
package jsonutil

import (
	"io"

	"github.com/bytedance/sonic"
)

// Encoder is the interface for streaming JSON encoding.
type Encoder interface {
	Encode(v any) error
}

// Decoder is the interface for streaming JSON decoding.
type Decoder interface {
	Decode(v any) error
}

// Config holds the JSON encoding/decoding functions, swappable for tests
// or alternative codecs without touching call sites.
type Config struct {
	Marshal       func(v any) ([]byte, error)
	MarshalIndent func(v any, prefix, indent string) ([]byte, error)
	Unmarshal     func(data []byte, v any) error
	NewEncoder    func(w io.Writer) Encoder
	NewDecoder    func(r io.Reader) Decoder
}

// DefaultConfig returns the default configuration, backed by sonic.
func DefaultConfig() Config {
	return Config{
		Marshal:       sonic.Marshal,
		MarshalIndent: sonic.MarshalIndent,
		Unmarshal:     sonic.Unmarshal,
		NewEncoder: func(w io.Writer) Encoder {
			return sonic.ConfigDefault.NewEncoder(w)
		},
		NewDecoder: func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		},
	}
}

var config = DefaultConfig()

// SetConfig replaces the global configuration.
func SetConfig(c Config) {
	config = c
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return config.Marshal(v)
}

// MarshalIndent is like Marshal but applies indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return config.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return config.Unmarshal(data, v)
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) Encoder {
	return config.NewEncoder(w)
}

// NewDecoder returns a Decoder that reads from r.
func NewDecoder(r io.Reader) Decoder {
	return config.NewDecoder(r)
}
