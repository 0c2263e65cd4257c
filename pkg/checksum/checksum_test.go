package checksum

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/lorawan-fota/fragvec/pkg/errors"
)

func TestCRC64_CheckValue(t *testing.T) {
	if got := CRC64([]byte("123456789")); got != 0xe9c6d914c4b8d9ca {
		t.Errorf("CRC64(123456789) = %016x, want e9c6d914c4b8d9ca", got)
	}
	if got := CRC64(nil); got != 0 {
		t.Errorf("CRC64(nil) = %016x, want 0", got)
	}
}

func TestCRC64_Deterministic(t *testing.T) {
	data := bytes.Repeat([]byte{0x00, 0x01, 0x02}, 500)
	if CRC64(data) != CRC64(append([]byte(nil), data...)) {
		t.Error("CRC64 must be deterministic")
	}
	flipped := append([]byte(nil), data...)
	flipped[700] ^= 0x01
	if CRC64(data) == CRC64(flipped) {
		t.Error("single bit flip should change the checksum")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		sum  uint64
		want string
	}{
		{0, "0x0000000000000000"},
		{0xe9c6d914c4b8d9ca, "0xe9c6d914c4b8d9ca"},
		{0xff, "0x00000000000000ff"},
	}
	for _, tt := range tests {
		if got := Format(tt.sum); got != tt.want {
			t.Errorf("Format(%x) = %s, want %s", tt.sum, got, tt.want)
		}
	}
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"e9c6d914c4b8d9ca", "0xe9c6d914c4b8d9ca\n", "  E9C6D914C4B8D9CA "} {
		v, err := ParseHex(in)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", in, err)
		}
		if v != 0xe9c6d914c4b8d9ca {
			t.Errorf("ParseHex(%q) = %x", in, v)
		}
	}

	for _, in := range []string{"", "hash is ", "zz"} {
		if _, err := ParseHex(in); !errors.Is(err, errors.ErrTool) {
			t.Errorf("ParseHex(%q): expected ErrTool, got %v", in, err)
		}
	}
}

type fakeRunner struct {
	out  string
	argv []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, argv []string) ([]byte, error) {
	f.argv = argv
	return []byte(f.out), nil
}

func TestExecChecksummer(t *testing.T) {
	runner := &fakeRunner{out: "2a"}
	c := &ExecChecksummer{Runner: runner, Command: "./crc64"}

	if !c.NeedsFile() {
		t.Error("exec checksummer needs a file")
	}
	v, err := c.Checksum64(context.Background(), nil, "/work/bundle.bin")
	if err != nil {
		t.Fatalf("Checksum64: %v", err)
	}
	if v != 0x2a {
		t.Errorf("got %x, want 2a", v)
	}
	if len(runner.argv) != 2 || runner.argv[1] != "/work/bundle.bin" {
		t.Errorf("unexpected argv %v", runner.argv)
	}

	if _, err := c.Checksum64(context.Background(), nil, ""); !errors.Is(err, errors.ErrTool) {
		t.Errorf("expected ErrTool without a file, got %v", err)
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot2.bin")
	if err := os.WriteFile(path, []byte{0xAA, 0xBB}, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	d, err := DigestFile(path)
	if err != nil {
		t.Fatalf("DigestFile: %v", err)
	}
	if want := sha256.Sum256([]byte{0xAA, 0xBB}); d != Digest(want) {
		t.Errorf("digest mismatch: %x", d)
	}

	lits := d.Bytes()
	if len(lits) != 32 {
		t.Fatalf("expected 32 literals, got %d", len(lits))
	}

	if _, err := DigestFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, errors.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestDigestBytes(t *testing.T) {
	d, err := DigestReader(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("DigestReader: %v", err)
	}
	lits := d.Bytes()
	if lits[0] != "0xe3" || lits[1] != "0xb0" || lits[31] != "0x55" {
		t.Errorf("unexpected literals %v", lits)
	}
}
