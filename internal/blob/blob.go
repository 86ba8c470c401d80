// Package blob frames opaque payloads for storage on disk: an optional
// compression pass (lz4 or zstd) and a blake3 digest of the original
// bytes so that truncated or edited files are rejected on load.
//
// Frame layout:
//
//	magic   [4]byte  "GKRB"
//	version uint8    1
//	tag     uint8    CompressionTag
//	size    uvarint  length of the uncompressed payload
//	digest  [32]byte blake3-256 of the uncompressed payload
//	body    []byte   payload, compressed according to tag
package blob

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// CompressionTag identifies the compression applied to a frame body.
// Values are stored in the frame header and must not change.
type CompressionTag uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone CompressionTag = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 CompressionTag = 1
	// CompressionZstd uses zstd at the default level.
	CompressionZstd CompressionTag = 2
)

const (
	frameVersion = 1
	digestSize   = 32
)

const (
	// maxPayloadSize bounds the size a frame header may declare.
	maxPayloadSize = math.MaxInt32
	// lz4MaxRatio is the largest expansion an lz4 block can encode.
	lz4MaxRatio = 255
)

var frameMagic = [4]byte{'G', 'K', 'R', 'B'}

var (
	// ErrCorrupt is returned when a frame is malformed or its digest does
	// not match the decoded payload.
	ErrCorrupt = errors.New("blob: corrupt frame")

	errIncompressible = errors.New("blob: payload is incompressible")
)

// String returns the name of the tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a tag name as produced by String.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so tags read naturally
// in YAML parameter files.
func (tag CompressionTag) MarshalText() ([]byte, error) {
	return []byte(tag.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (tag *CompressionTag) UnmarshalText(text []byte) error {
	parsed, err := ParseCompressionTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("blob: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
	if err != nil {
		panic("blob: zstd decoder initialization failed: " + err.Error())
	}
}

// Digest returns the blake3-256 digest of data.
func Digest(data []byte) [digestSize]byte {
	return blake3.Sum256(data)
}

// Encode frames payload, compressing it with tag. When the payload does
// not shrink the body is stored uncompressed and the header says so.
func Encode(payload []byte, tag CompressionTag) ([]byte, error) {
	body, used, err := compress(payload, tag)
	if err != nil {
		return nil, err
	}

	var header bytes.Buffer
	header.Write(frameMagic[:])
	header.WriteByte(frameVersion)
	header.WriteByte(byte(used))
	var sizeBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(sizeBuf[:], uint64(len(payload)))
	header.Write(sizeBuf[:n])
	digest := Digest(payload)
	header.Write(digest[:])

	out := make([]byte, 0, header.Len()+len(body))
	out = append(out, header.Bytes()...)
	return append(out, body...), nil
}

// Decode verifies a frame produced by Encode and returns the payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < len(frameMagic)+2 || !bytes.Equal(frame[:len(frameMagic)], frameMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	rest := frame[len(frameMagic):]
	if rest[0] != frameVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, rest[0])
	}
	tag := CompressionTag(rest[1])
	rest = rest[2:]
	size, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad size", ErrCorrupt)
	}
	if size > maxPayloadSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds limit", ErrCorrupt, size)
	}
	rest = rest[n:]
	if len(rest) < digestSize {
		return nil, fmt.Errorf("%w: truncated digest", ErrCorrupt)
	}
	var want [digestSize]byte
	copy(want[:], rest[:digestSize])
	body := rest[digestSize:]

	payload, err := decompress(body, tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if Digest(payload) != want {
		return nil, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	return payload, nil
}

func compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	var (
		body []byte
		err  error
	)
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		body, err = compressLZ4(data)
	case CompressionZstd:
		body, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return body, tag, nil
}

func decompress(body []byte, tag CompressionTag, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(body) != size {
			return nil, fmt.Errorf("uncompressed body: size %d does not match expected %d", len(body), size)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, size)
	case CompressionZstd:
		return decompressZstd(body, size)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	if size < 0 || size > len(compressed)*lz4MaxRatio {
		return nil, fmt.Errorf("lz4 decompress: size %d out of range for %d byte block", size, len(compressed))
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("zstd decompress: negative size %d", size)
	}
	// The declared size is untrusted; grow past the hint only as frames decode.
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, min(size, 1<<20)))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
