// Package compression provides the optional per-block zstd codec used by the
// sink before staging.
package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses blocks with zstd. A single encoder/decoder pair is reused
// across blocks; EncodeAll and DecodeAll are safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec with the given zstd compression level (1-19).
func NewCodec(level int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// Compress returns the zstd-compressed form of data.
func (c *Codec) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)))
}

// Decompress reverses Compress.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress block: %w", err)
	}
	return out, nil
}
