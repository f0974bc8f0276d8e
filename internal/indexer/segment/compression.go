package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// Codec selects how bigram blocks are compressed.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps the indexer.compression setting to a Codec. An empty name
// selects zstd.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	case "none":
		return CodecNone, nil
	}
	return 0, fmt.Errorf("%w: unknown segment compression %q", apperrors.ErrInvalidInput, name)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

// maxZstdWindow bounds the memory a decoder may allocate for one frame.
const maxZstdWindow = 64 << 20

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxZstdWindow),
	)
}

// zstdDecodeInto fills out from payload and fails if the stream holds more
// or fewer bytes, so a corrupt frame can never grow past len(out).
func zstdDecodeInto(payload, out []byte) error {
	dec, err := getZstdDecoder()
	if err != nil {
		return fmt.Errorf("zstd decoder: %w", err)
	}
	defer zstdDecoderPool.Put(dec)
	if err := dec.Reset(bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("%w: zstd: %v", apperrors.ErrCorruptSegment, err)
	}
	if _, err := io.ReadFull(dec, out); err != nil {
		return fmt.Errorf("%w: zstd: %v", apperrors.ErrCorruptSegment, err)
	}
	var extra [1]byte
	if n, _ := dec.Read(extra[:]); n > 0 {
		return fmt.Errorf("%w: zstd stream longer than %d bytes", apperrors.ErrCorruptSegment, len(out))
	}
	return nil
}

// Block layout: [uncompressed u32][compressed u32][codec u8][payload].
// A compressed size of 0 means the payload is stored as is.
const blockHeaderSize = 9

func encodeBlock(data []byte, codec Codec) ([]byte, error) {
	var compressed []byte
	switch codec {
	case CodecNone:
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = buf[:n]
	case CodecZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("encoding block: unsupported %s", codec)
	}

	stored, payload := codec, compressed
	if len(compressed) == 0 || len(compressed) >= len(data) {
		stored, payload = CodecNone, data
	}
	out := make([]byte, blockHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
	if stored != CodecNone {
		binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	}
	out[8] = byte(stored)
	copy(out[blockHeaderSize:], payload)
	return out, nil
}

func decodeBlock(block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block of %d bytes has no header", apperrors.ErrCorruptSegment, len(block))
	}
	rawSize := binary.LittleEndian.Uint32(block[0:4])
	packedSize := binary.LittleEndian.Uint32(block[4:8])
	codec := Codec(block[8])
	payload := block[blockHeaderSize:]

	if packedSize == 0 {
		if uint32(len(payload)) < rawSize {
			return nil, fmt.Errorf("%w: stored block truncated", apperrors.ErrCorruptSegment)
		}
		return payload[:rawSize], nil
	}
	if uint32(len(payload)) < packedSize {
		return nil, fmt.Errorf("%w: compressed block truncated", apperrors.ErrCorruptSegment)
	}
	payload = payload[:packedSize]
	out := make([]byte, rawSize)

	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", apperrors.ErrCorruptSegment, err)
		}
		out = out[:n]
	case CodecZstd:
		if err := zstdDecodeInto(payload, out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown block codec %d", apperrors.ErrCorruptSegment, codec)
	}
	if uint32(len(out)) != rawSize {
		return nil, fmt.Errorf("%w: decompressed size mismatch", apperrors.ErrCorruptSegment)
	}
	return out, nil
}
