// Package bundle lays out update metadata and payload into the exact byte
// sequence handed to the fragment encoder.
package bundle

import "fmt"

// Kind names a metadata strategy.
type Kind string

const (
	// KindNoDiff is the legacy strategy: the bundle is the raw target image.
	KindNoDiff Kind = "no_diff"
	// KindSignedDiff prefixes the payload with a signed diff manifest.
	KindSignedDiff Kind = "signed_diff"
	// KindExternalManifest prefixes the target with a size-prefixed manifest
	// produced by the manifest builder.
	KindExternalManifest Kind = "external_manifest"
)

// ParseKind parses a strategy kind from its string form.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNoDiff, KindSignedDiff, KindExternalManifest:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown strategy: %q", s)
}

// UsesManifest reports whether the strategy carries a manifest region.
func (k Kind) UsesManifest() bool {
	return k == KindSignedDiff || k == KindExternalManifest
}

// Strategy is one of NoDiff, SignedDiff or ExternalManifest. Each variant
// carries only the inputs its layout needs.
type Strategy interface {
	Kind() Kind
	// PayloadPath is the file appended after the metadata.
	PayloadPath() string
	// TargetPath is the new firmware image.
	TargetPath() string
}

// NoDiff fragments the target image directly with no metadata.
type NoDiff struct {
	Target string
}

func (NoDiff) Kind() Kind { return KindNoDiff }
func (s NoDiff) PayloadPath() string { return s.Target }
func (s NoDiff) TargetPath() string { return s.Target }

// SignedDiff describes a delta update against Source. Payload optionally
// overrides the bytes placed after the manifest (a precomputed diff); when
// empty the target image is used.
type SignedDiff struct {
	Source  string
	Target  string
	Payload string
}

func (SignedDiff) Kind() Kind { return KindSignedDiff }

func (s SignedDiff) PayloadPath() string {
	if s.Payload != "" {
		return s.Payload
	}
	return s.Target
}

func (s SignedDiff) TargetPath() string { return s.Target }

// ExternalManifest wraps the target with a manifest blob.
type ExternalManifest struct {
	Target string
}

func (ExternalManifest) Kind() Kind { return KindExternalManifest }
func (s ExternalManifest) PayloadPath() string { return s.Target }
func (s ExternalManifest) TargetPath() string { return s.Target }

// New builds the strategy variant for kind from positional inputs.
// SignedDiff takes source, target and an optional payload; the other kinds
// take the target only.
func New(kind Kind, paths ...string) (Strategy, error) {
	switch kind {
	case KindNoDiff:
		if len(paths) != 1 {
			return nil, fmt.Errorf("%s: want 1 input, got %d", kind, len(paths))
		}
		return NoDiff{Target: paths[0]}, nil
	case KindExternalManifest:
		if len(paths) != 1 {
			return nil, fmt.Errorf("%s: want 1 input, got %d", kind, len(paths))
		}
		return ExternalManifest{Target: paths[0]}, nil
	case KindSignedDiff:
		if len(paths) < 2 || len(paths) > 3 {
			return nil, fmt.Errorf("%s: want 2 or 3 inputs, got %d", kind, len(paths))
		}
		s := SignedDiff{Source: paths[0], Target: paths[1]}
		if len(paths) == 3 {
			s.Payload = paths[2]
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown strategy: %q", kind)
}
