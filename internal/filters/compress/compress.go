/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package compress implements a filter that compresses or
// decompresses the payload, with the write direction always doing
// the opposite of the read direction so round-tripped traffic is
// unaffected.
//
// It is built on the standard library's compress/flate rather than a
// third-party codec: none of the retrieved example repos pull in a
// dedicated compression library (snappy/zstd/lz4) for a generic byte
// payload like this one, and flate already gives deflate-compatible
// framing without an extra dependency whose only job would be to
// wrap the same stdlib primitive.
package compress

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/quilkin-proxy/quilkin/internal/filters"
)

// Name is the filter's stable dotted identifier.
const Name = "quilkin.filters.compress.v1alpha1.Compress"

func init() {
	filters.Register(Name, func(rawConfig []byte, caps filters.Capabilities) (filters.Filter, error) {
		var cfg Config
		if err := yaml.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("compress: decode config: %w", err)
		}
		return New(cfg)
	})
}

// Mode selects which direction this instance compresses on read; the
// opposite direction decompresses, and write always does the reverse
// of read.
type Mode string

const (
	// ModeCompress compresses on read (client -> endpoint) and
	// decompresses on write (endpoint -> client). Use this on the
	// proxy instance nearest the bandwidth-constrained client.
	ModeCompress Mode = "Compress"
	// ModeDecompress decompresses on read and compresses on write.
	ModeDecompress Mode = "Decompress"
)

// Config is the typed, YAML-decodable configuration for the compress
// filter.
type Config struct {
	Mode Mode `yaml:"mode"`
}

// Compress transforms the payload according to Mode.
type Compress struct {
	mode Mode
}

// New constructs a Compress filter.
func New(cfg Config) (*Compress, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeCompress
	}
	if mode != ModeCompress && mode != ModeDecompress {
		return nil, fmt.Errorf("compress: unknown mode %q", cfg.Mode)
	}
	return &Compress{mode: mode}, nil
}

func (c *Compress) Name() string { return Name }

func (c *Compress) Read(ctx *filters.ReadContext) error {
	payload, err := c.transform(c.mode, ctx.Payload)
	if err != nil {
		return filters.NewCustomError(Name, err)
	}
	ctx.Payload = payload
	return nil
}

func (c *Compress) Write(ctx *filters.WriteContext) error {
	payload, err := c.transform(opposite(c.mode), ctx.Payload)
	if err != nil {
		return filters.NewCustomError(Name, err)
	}
	ctx.Payload = payload
	return nil
}

func (c *Compress) transform(mode Mode, payload []byte) ([]byte, error) {
	if mode == ModeCompress {
		return compress(payload)
	}
	return decompress(payload)
}

func opposite(mode Mode) Mode {
	if mode == ModeCompress {
		return ModeDecompress
	}
	return ModeCompress
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("compress: create writer: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compress: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(payload))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: read: %w", err)
	}
	return out, nil
}
