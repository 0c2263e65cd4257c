package bundle

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lorawan-fota/fragvec/pkg/errors"
)

const (
	// SignatureFieldSize is the fixed width of the signature field.
	SignatureFieldSize = 72
	// SignedDiffMetadataSize is the total size of a SignedDiff manifest.
	SignedDiffMetadataSize = 1 + SignatureFieldSize + 16 + 16 + 4 + 4
	// MaxSourceLength is the largest source image the 3-byte size field holds.
	MaxSourceLength = 1<<24 - 1
	// MaxManifestLength is the largest manifest whose length prefix keeps a
	// zero top byte.
	MaxManifestLength = 1<<24 - 1
)

// Signer produces a detached signature over a file.
type Signer interface {
	Sign(ctx context.Context, path string) ([]byte, error)
}

// ManifestBuilder produces an opaque manifest for a firmware image.
type ManifestBuilder interface {
	Build(ctx context.Context, path string) ([]byte, error)
}

// Identity holds the UUIDs embedded in a SignedDiff manifest.
type Identity struct {
	Manufacturer uuid.UUID
	DeviceClass  uuid.UUID
}

// PadSignature pads an ASN.1 ECDSA signature to SignatureFieldSize bytes.
// Only 70, 71 and 72 byte inputs are accepted.
func PadSignature(sig []byte) ([]byte, error) {
	switch len(sig) {
	case SignatureFieldSize - 2, SignatureFieldSize - 1, SignatureFieldSize:
	default:
		return nil, errors.Invariantf("signature length %d, want 70..72", len(sig))
	}
	padded := make([]byte, SignatureFieldSize)
	copy(padded, sig)
	return padded, nil
}

// DiffInfo encodes the diff flag and the source length, most significant
// byte first.
func DiffInfo(sourceLength int) ([4]byte, error) {
	var info [4]byte
	if sourceLength < 0 || sourceLength > MaxSourceLength {
		return info, errors.Invariantf("source length %d does not fit in 24 bits", sourceLength)
	}
	info[0] = 1
	info[1] = byte(sourceLength >> 16)
	info[2] = byte(sourceLength >> 8)
	info[3] = byte(sourceLength)
	return info, nil
}

// SignedDiffMetadata lays out a SignedDiff manifest.
func SignedDiffMetadata(sig []byte, id Identity, mtime time.Time, sourceLength int) ([]byte, error) {
	padded, err := PadSignature(sig)
	if err != nil {
		return nil, err
	}
	info, err := DiffInfo(sourceLength)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, SignedDiffMetadataSize)
	out = append(out, byte(len(sig)))
	out = append(out, padded...)
	out = append(out, id.Manufacturer[:]...)
	out = append(out, id.DeviceClass[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(mtime.Unix()))
	out = append(out, info[:]...)
	return out, nil
}

// ManifestMetadata wraps an opaque manifest with its length prefix and an
// all-zero diff-info field.
func ManifestMetadata(manifest []byte) ([]byte, error) {
	if len(manifest) > MaxManifestLength {
		return nil, errors.Invariantf("manifest length %d exceeds %d", len(manifest), MaxManifestLength)
	}
	out := make([]byte, 0, 8+len(manifest))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(manifest))&0x00FFFFFF)
	out = append(out, 0, 0, 0, 0)
	out = append(out, manifest...)
	return out, nil
}

// Composer builds the metadata region for a strategy.
type Composer struct {
	Signer    Signer
	Manifests ManifestBuilder
	Identity  Identity
}

// Compose returns the metadata for s. NoDiff yields empty metadata.
func (c *Composer) Compose(ctx context.Context, s Strategy) ([]byte, error) {
	switch s := s.(type) {
	case NoDiff:
		return []byte{}, nil

	case SignedDiff:
		return c.composeSignedDiff(ctx, s)

	case ExternalManifest:
		if c.Manifests == nil {
			return nil, errors.New("no manifest builder configured")
		}
		if _, err := os.Stat(s.Target); err != nil {
			return nil, errors.Input(s.Target, err)
		}
		manifest, err := c.Manifests.Build(ctx, s.Target)
		if err != nil {
			return nil, errors.Wrap(err, "manifest builder failed")
		}
		slog.Info("manifest_built", "target", s.Target, "manifest_bytes", len(manifest))
		return ManifestMetadata(manifest)
	}
	return nil, errors.New("unsupported strategy")
}

func (c *Composer) composeSignedDiff(ctx context.Context, s SignedDiff) ([]byte, error) {
	if c.Signer == nil {
		return nil, errors.New("no signer configured")
	}
	target, err := os.Stat(s.Target)
	if err != nil {
		return nil, errors.Input(s.Target, err)
	}
	source, err := os.Stat(s.Source)
	if err != nil {
		return nil, errors.Input(s.Source, err)
	}

	sig, err := c.Signer.Sign(ctx, s.Target)
	if err != nil {
		return nil, errors.Wrap(err, "signer failed")
	}
	slog.Info("target_signed", "target", s.Target, "signature_bytes", len(sig))

	return SignedDiffMetadata(sig, c.Identity, target.ModTime(), int(source.Size()))
}
