// Package pipeline runs the vector generation stages: compose metadata,
// build the bundle, encode, correct, checksum and emit.
package pipeline

import (
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/fragment"
)

// Job names the inputs and output of one run. It holds only plain fields so
// it can be persisted by the state machine.
type Job struct {
	Mode   bundle.Kind
	Source string
	Target string
	// Payload optionally replaces the target as the signed_diff payload.
	Payload string
	Output  string
}

// Strategy returns the bundle strategy for the job.
func (j Job) Strategy() (bundle.Strategy, error) {
	switch j.Mode {
	case bundle.KindSignedDiff:
		paths := []string{j.Source, j.Target}
		if j.Payload != "" {
			paths = append(paths, j.Payload)
		}
		return bundle.New(j.Mode, paths...)
	default:
		return bundle.New(j.Mode, j.Target)
	}
}

// Result accumulates stage outputs.
type Result struct {
	InputFingerprint string

	Metadata []byte
	Bundle   []byte

	Report    fragment.Report
	Corrected fragment.Corrected

	Checksum     uint64
	SourceDigest checksum.Digest

	ArtifactFingerprint string
}

// Stage names, in execution order.
const (
	StageComposeMetadata = "compose_metadata"
	StageBuildBundle     = "build_bundle"
	StageEncode          = "encode"
	StageCorrect         = "correct"
	StageChecksum        = "checksum"
	StageEmit            = "emit"
)
