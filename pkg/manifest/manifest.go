// Package manifest builds the opaque manifest carried by the
// external_manifest strategy.
package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/tools"
)

// ToolName identifies the manifest builder in errors.
const ToolName = "manifest-builder"

// Builder kinds accepted by New.
const (
	KindCBOR = "cbor"
	KindExec = "exec"
)

// Version is the schema version written by CBORBuilder.
const Version = 1

// Options selects and configures a builder.
type Options struct {
	Kind     string
	Command  string
	Runner   tools.Runner
	Identity bundle.Identity
}

// New returns the manifest builder described by opts.
func New(opts Options) (bundle.ManifestBuilder, error) {
	switch opts.Kind {
	case KindCBOR, "":
		return NewCBORBuilder(opts.Identity)
	case KindExec:
		if opts.Runner == nil || opts.Command == "" {
			return nil, errors.New("exec manifest builder requires a runner and a command")
		}
		return &ExecBuilder{Runner: opts.Runner, Command: opts.Command}, nil
	}
	return nil, fmt.Errorf("unknown manifest builder: %q", opts.Kind)
}

// ExecBuilder runs an external manifest tool with the image path appended
// and takes its stdout as the manifest.
type ExecBuilder struct {
	Runner  tools.Runner
	Command string
}

func (b *ExecBuilder) Build(ctx context.Context, path string) ([]byte, error) {
	out, err := b.Runner.Run(ctx, ToolName, tools.Command(b.Command, path))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Toolf(ToolName, "empty manifest")
	}
	return out, nil
}

// Manifest is the document CBORBuilder encodes. Integer keys keep it
// compact on the wire.
type Manifest struct {
	Version       int    `cbor:"1,keyasint"`
	Sequence      uint32 `cbor:"2,keyasint"`
	VendorID      []byte `cbor:"3,keyasint"`
	ClassID       []byte `cbor:"4,keyasint"`
	PayloadSize   uint64 `cbor:"5,keyasint"`
	PayloadDigest []byte `cbor:"6,keyasint"`
}

// CBORBuilder encodes a Manifest in process using core deterministic
// encoding, so identical inputs give identical bytes.
type CBORBuilder struct {
	identity bundle.Identity
	encMode  cbor.EncMode
}

// NewCBORBuilder creates a builder stamping manifests with id.
func NewCBORBuilder(id bundle.Identity) (*CBORBuilder, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CBOR encoder")
	}
	return &CBORBuilder{identity: id, encMode: em}, nil
}

func (b *CBORBuilder) Build(_ context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Input(path, err)
	}
	digest, err := checksum.DigestFile(path)
	if err != nil {
		return nil, err
	}

	m := Manifest{
		Version:       Version,
		Sequence:      uint32(info.ModTime().Unix()),
		VendorID:      b.identity.Manufacturer[:],
		ClassID:       b.identity.DeviceClass[:],
		PayloadSize:   uint64(info.Size()),
		PayloadDigest: digest[:],
	}
	out, err := b.encMode.Marshal(m)
	if err != nil {
		return nil, errors.Tool(ToolName, err)
	}

	slog.Debug("cbor_manifest_encoded", "path", path, "bytes", len(out))
	return out, nil
}

// Decode parses a manifest produced by CBORBuilder.
func Decode(data []byte) (Manifest, error) {
	var m Manifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.Wrap(err, "failed to decode manifest")
	}
	return m, nil
}
