package colfile

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies the compression applied to a chunk payload.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecS2
	CodecGzip
)

// DefaultCodec is used when no codec is configured.
const DefaultCodec = CodecZstd

var codecNames = [...]string{
	CodecNone: "none",
	CodecZstd: "zstd",
	CodecS2:   "s2",
	CodecGzip: "gzip",
}

func (c Codec) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

func (c Codec) valid() bool { return int(c) < len(codecNames) }

// ParseCodec maps a codec name to a Codec. The empty string selects
// DefaultCodec.
func ParseCodec(s string) (Codec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultCodec, nil
	}
	for i, n := range codecNames {
		if n == s {
			return Codec(i), nil
		}
	}
	return CodecNone, fmt.Errorf("colfile: unknown codec %q (want none|zstd|s2|gzip)", s)
}

func (c Codec) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("colfile: invalid codec %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Codec) UnmarshalText(b []byte) error {
	v, err := ParseCodec(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// compressor holds reusable encoder state for one writer.
type compressor struct {
	codec Codec
	zenc  *zstd.Encoder
	s2buf []byte
	gzbuf bytes.Buffer
	gzw   *gzip.Writer
}

func newCompressor(c Codec) (*compressor, error) {
	cp := &compressor{codec: c}
	switch c {
	case CodecNone, CodecS2:
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("colfile: zstd encoder: %w", err)
		}
		cp.zenc = enc
	case CodecGzip:
		cp.gzw = gzip.NewWriter(&cp.gzbuf)
	default:
		return nil, fmt.Errorf("colfile: invalid codec %d", uint8(c))
	}
	return cp, nil
}

// appendCompressed appends the compressed form of src to dst.
func (cp *compressor) appendCompressed(dst, src []byte) ([]byte, error) {
	switch cp.codec {
	case CodecNone:
		return append(dst, src...), nil
	case CodecZstd:
		return cp.zenc.EncodeAll(src, dst), nil
	case CodecS2:
		cp.s2buf = s2.Encode(cp.s2buf[:cap(cp.s2buf)], src)
		return append(dst, cp.s2buf...), nil
	case CodecGzip:
		cp.gzbuf.Reset()
		cp.gzw.Reset(&cp.gzbuf)
		if _, err := cp.gzw.Write(src); err != nil {
			return nil, err
		}
		if err := cp.gzw.Close(); err != nil {
			return nil, err
		}
		return append(dst, cp.gzbuf.Bytes()...), nil
	default:
		return nil, fmt.Errorf("colfile: invalid codec %d", uint8(cp.codec))
	}
}

func (cp *compressor) Close() {
	if cp.zenc != nil {
		_ = cp.zenc.Close()
	}
}

// decompressor holds reusable decoder state for one reader.
type decompressor struct {
	zdec *zstd.Decoder
}

func (d *decompressor) decompress(c Codec, dst, src []byte, size int) ([]byte, error) {
	switch c {
	case CodecNone:
		return append(dst[:0], src...), nil
	case CodecZstd:
		if d.zdec == nil {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			d.zdec = dec
		}
		return d.zdec.DecodeAll(src, dst[:0])
	case CodecS2:
		n, err := s2.DecodedLen(src)
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, fmt.Errorf("s2 block decodes to %d bytes, want %d", n, size)
		}
		if cap(dst) < n {
			dst = make([]byte, n)
		}
		return s2.Decode(dst[:n], src)
	case CodecGzip:
		zr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		buf := bytes.NewBuffer(dst[:0])
		if _, err := io.Copy(buf, io.LimitReader(zr, int64(size)+1)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown codec %d", uint8(c))
	}
}

func (d *decompressor) Close() {
	if d.zdec != nil {
		d.zdec.Close()
	}
}
