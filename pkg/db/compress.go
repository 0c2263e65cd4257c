package db

import (
	"github.com/klauspost/compress/zstd"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

// Encoder reports are highly repetitive decimal text; they are stored
// zstd-compressed.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("db: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("db: zstd decoder initialization failed: " + err.Error())
	}
}

func compressReport(report string) []byte {
	return zstdEncoder.EncodeAll([]byte(report), nil)
}

func decompressReport(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	out, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to decompress encoder report")
	}
	return string(out), nil
}
