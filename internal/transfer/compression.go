package transfer

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// ParseCompression accepts "", "none" and "zstd" in any case.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// Codec encodes outgoing chunk payloads and decodes incoming ones. Each chunk
// is compressed independently so a receiver can decode it on arrival. A Codec
// is safe for concurrent use.
type Codec struct {
	compression Compression
	maxChunk    int
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

// NewCodec builds a codec for one compression mode. maxChunk bounds the
// decoded size of a received chunk.
func NewCodec(compression Compression, maxChunk int) (*Codec, error) {
	if maxChunk <= 0 {
		maxChunk = DefaultChunkSize
	}
	c := &Codec{compression: compression, maxChunk: maxChunk}

	switch compression {
	case "", CompressionNone:
		c.compression = CompressionNone
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		limit := uint64(maxChunk) * 4
		if limit < 1<<20 {
			limit = 1 << 20
		}
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		c.encoder = enc
		c.decoder = dec
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
	return c, nil
}

func (c *Codec) Compression() Compression {
	return c.compression
}

// Encode returns the wire form of a raw chunk.
func (c *Codec) Encode(raw []byte) ([]byte, error) {
	if c.compression == CompressionZstd {
		return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	}
	return raw, nil
}

// Decode returns the raw bytes of a received chunk, rejecting anything
// larger than the agreed maximum.
func (c *Codec) Decode(payload []byte) ([]byte, error) {
	raw := payload
	if c.compression == CompressionZstd {
		out, err := c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
		}
		raw = out
	}
	if len(raw) > c.maxChunk {
		return nil, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(raw), c.maxChunk)
	}
	return raw, nil
}

// Close releases the zstd state, if any.
func (c *Codec) Close() {
	if c.encoder != nil {
		_ = c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
