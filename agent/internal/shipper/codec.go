package shipper

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec transforms a chunk body before delivery. Each encoded chunk must be
// independently decodable, because chunks are appended to the same file:
// concatenated gzip members and zstd frames both satisfy that.
type Codec interface {
	// Ext is appended to the destination path.
	Ext() string
	Encode(data []byte) ([]byte, error)
}

// NewCodec returns the codec for a compress setting: "", "none", "gzip" or
// "zstd".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return plainCodec{}, nil
	case "gzip":
		return gzipCodec{}, nil
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("shipper: zstd encoder: %w", err)
		}
		return &zstdCodec{enc: enc}, nil
	default:
		return nil, fmt.Errorf("shipper: unknown compression %q: want gzip|zstd|none", name)
	}
}

type plainCodec struct{}

func (plainCodec) Ext() string                        { return "" }
func (plainCodec) Encode(data []byte) ([]byte, error) { return data, nil }

type gzipCodec struct{}

func (gzipCodec) Ext() string { return ".gz" }

func (gzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zstdCodec shares one encoder; EncodeAll is safe for concurrent use.
type zstdCodec struct {
	enc *zstd.Encoder
}

func (*zstdCodec) Ext() string { return ".zst" }

func (c *zstdCodec) Encode(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}
