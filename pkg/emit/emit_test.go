package emit

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyVectors() *Vectors {
	return &Vectors{
		Kind:      bundle.KindNoDiff,
		Header:    []byte{0x02, 0x10, 0x00, 0x19, 0xcc, 0x00, 57},
		Fragments: [][]byte{{8, 0, 1, 255}, {8, 0, 2, 16}},
		RowLength: 4,
		Checksum:  0xe9c6d914c4b8d9ca,
	}
}

func TestRender_Legacy(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, legacyVectors()))
	out := buf.String()

	assert.Contains(t, out, "#ifndef PACKETS_H\n#define PACKETS_H\n\n#include \"mbed.h\"\n")
	assert.Contains(t, out, "\nuint8_t FAKE_PACKETS_HEADER[] = { 0x2, 0x10, 0x0, 0x19, 0xcc, 0x0, 0x39 };\n")
	assert.Contains(t, out, "\nuint8_t FAKE_PACKETS[][4] = {\n    { 8, 0, 1, 255 },\n    { 8, 0, 2, 16 },\n};\n")
	assert.Contains(t, out, "uint64_t FAKE_PACKETS_HASH = 0xe9c6d914c4b8d9ca;\n\n#endif\n")
	assert.NotContains(t, out, "const uint8_t")
	assert.NotContains(t, out, "SLOT2")
}

func TestRender_SignedDiff(t *testing.T) {
	source := []byte{0xAA, 0xBB}
	v := legacyVectors()
	v.Kind = bundle.KindSignedDiff
	v.Slot2 = &Slot2{Data: source, Digest: checksum.Digest(sha256.Sum256(source))}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, v))
	out := buf.String()

	assert.Contains(t, out, "const uint8_t FAKE_PACKETS_HEADER[] = {")
	assert.Contains(t, out, "const uint8_t FAKE_PACKETS[][4] = {")
	assert.Contains(t, out, "uint64_t FAKE_PACKETS_CRC64_HASH = 0xe9c6d914c4b8d9ca;\n")
	assert.Contains(t, out, "#define HAS_SLOT2_DATA      1\n")
	assert.Contains(t, out, "const uint8_t SLOT2_DATA[] = { 0xaa, 0xbb };\n")
	assert.Contains(t, out, "const size_t SLOT2_DATA_LENGTH = 2;\n")
	assert.Contains(t, out, "const uint8_t SLOT2_SHA256_HASH[32] = { "+strings.Join(v.Slot2.Digest.Bytes(), ", ")+" };\n")
	assert.True(t, strings.HasSuffix(out, "};\n\n#endif\n"))
}

func TestRender_ExternalManifest(t *testing.T) {
	v := legacyVectors()
	v.Kind = bundle.KindExternalManifest

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, v))
	assert.Contains(t, buf.String(), "FAKE_PACKETS_CRC64_HASH")
	assert.NotContains(t, buf.String(), "HAS_SLOT2_DATA")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *Vectors)
	}{
		{"empty header", func(v *Vectors) { v.Header = nil }},
		{"no fragments", func(v *Vectors) { v.Fragments = nil }},
		{"short row", func(v *Vectors) { v.Fragments[1] = []byte{8, 0} }},
		{"missing slot2", func(v *Vectors) { v.Kind = bundle.KindSignedDiff }},
		{"unexpected slot2", func(v *Vectors) { v.Slot2 = &Slot2{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := legacyVectors()
			tt.mutate(v)
			assert.ErrorIs(t, v.Validate(), errors.ErrInvariant)
		})
	}
}

func TestWrite_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packets.h")

	require.NoError(t, Write(path, legacyVectors()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(first), "FAKE_PACKETS_HASH")

	bad := legacyVectors()
	bad.Fragments = nil
	require.Error(t, Write(path, bad))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, after, "failed write must leave the previous artifact intact")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestWrite_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "packets.h")
	require.Error(t, Write(path, legacyVectors()))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
