// Package checksum computes the bundle CRC-64 and the source image digest.
package checksum

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash/crc64"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/tools"
)

// ToolName identifies the external checksum utility in errors.
const ToolName = "checksum-utility"

// JonesPolynomial is the reflected CRC-64/Jones polynomial used by the
// device's crc64() routine.
const JonesPolynomial = 0x95AC9329AC4BC9B5

var jonesTable = crc64.MakeTable(JonesPolynomial)

// CRC64 returns crc64(0, data, len(data)) as computed on the device:
// reflected, zero initial value, no final xor.
func CRC64(data []byte) uint64 {
	// hash/crc64 inverts on entry and exit; pre- and post-inverting cancels
	// both so the register starts at zero.
	return ^crc64.Update(^uint64(0), jonesTable, data)
}

// Format renders a checksum as a fixed-width C literal.
func Format(sum uint64) string {
	return fmt.Sprintf("0x%016x", sum)
}

// Checksummer computes the 64-bit bundle checksum. path is the persisted
// copy of data, for implementations that need a file.
type Checksummer interface {
	Checksum64(ctx context.Context, data []byte, path string) (uint64, error)
	// NeedsFile reports whether path must be populated.
	NeedsFile() bool
}

// InProcess computes CRC64 in memory.
type InProcess struct{}

func (InProcess) Checksum64(_ context.Context, data []byte, _ string) (uint64, error) {
	return CRC64(data), nil
}

func (InProcess) NeedsFile() bool { return false }

// ExecChecksummer runs an external utility that takes a file path and prints
// the checksum in hex.
type ExecChecksummer struct {
	Runner  tools.Runner
	Command string
}

func (c *ExecChecksummer) Checksum64(ctx context.Context, _ []byte, path string) (uint64, error) {
	if path == "" {
		return 0, errors.Toolf(ToolName, "no bundle file")
	}
	out, err := c.Runner.Run(ctx, ToolName, tools.Command(c.Command, path))
	if err != nil {
		return 0, err
	}
	return ParseHex(string(out))
}

func (c *ExecChecksummer) NeedsFile() bool { return true }

// ParseHex parses checksum tool output such as "e9c6d914c4b8d9ca" or
// "0xE9C6D914C4B8D9CA".
func ParseHex(out string) (uint64, error) {
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.Toolf(ToolName, "empty output")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Toolf(ToolName, "unparsable output %q", strings.TrimSpace(out))
	}
	return v, nil
}

// Digest is a SHA-256 digest.
type Digest [sha256.Size]byte

// DigestReader streams r through SHA-256.
func DigestReader(r io.Reader) (Digest, error) {
	var d Digest
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return d, err
	}
	copy(d[:], h.Sum(nil))
	return d, nil
}

// DigestFile streams the file at path through SHA-256.
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, errors.Input(path, err)
	}
	defer f.Close()

	d, err := DigestReader(f)
	if err != nil {
		return Digest{}, errors.Input(path, err)
	}
	slog.Info("source_digest_computed", "path", path, "sha256", fmt.Sprintf("%x", d[:8])+"...")
	return d, nil
}

// Bytes returns the digest as individual byte literals, as declared by a C
// byte array initializer.
func (d Digest) Bytes() []string {
	out := make([]string, len(d))
	for i, b := range d {
		out[i] = fmt.Sprintf("0x%x", b)
	}
	return out
}
