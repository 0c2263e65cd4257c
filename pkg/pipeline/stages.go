package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/emit"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/fragment"
	"github.com/lorawan-fota/fragvec/pkg/security"
)

// Stages holds the collaborators shared by every stage.
type Stages struct {
	Composer    *bundle.Composer
	Encoder     fragment.Encoder
	Checksummer checksum.Checksummer
	Validator   *security.Validator

	// WorkDir receives the temporary bundle files handed to external tools.
	WorkDir      string
	FragmentSize int
	Window       int
	LegacyWindow int
	// Tooling describes the configured external tools. It is part of the
	// input fingerprint.
	Tooling string
}

// Stage is one named step of a run.
type Stage struct {
	Name string
	Run  func(ctx context.Context, job Job, res *Result) error
}

// All returns the stages in execution order.
func (s *Stages) All() []Stage {
	return []Stage{
		{StageComposeMetadata, s.ComposeMetadata},
		{StageBuildBundle, s.BuildBundle},
		{StageEncode, s.Encode},
		{StageCorrect, s.Correct},
		{StageChecksum, s.Checksum},
		{StageEmit, s.Emit},
	}
}

// WindowFor returns the encoder window for a strategy.
func (s *Stages) WindowFor(kind bundle.Kind) int {
	if kind == bundle.KindNoDiff {
		return s.LegacyWindow
	}
	return s.Window
}

func (s *Stages) fingerprintParams(kind bundle.Kind) FingerprintParams {
	p := FingerprintParams{
		FragmentSize: s.FragmentSize,
		Window:       s.WindowFor(kind),
		Tooling:      s.Tooling,
	}
	if s.Composer != nil {
		p.Identity = s.Composer.Identity
	}
	return p
}

// Run executes every stage in order and stops at the first error. No
// artifact is written unless all earlier stages succeed.
func (s *Stages) Run(ctx context.Context, job Job) (*Result, error) {
	res := &Result{}
	for _, st := range s.All() {
		slog.Info("pipeline_stage", "stage", st.Name, "mode", job.Mode)
		if err := st.Run(ctx, job, res); err != nil {
			slog.Error("pipeline_stage_failed", "stage", st.Name, "mode", job.Mode, "error", err)
			return nil, err
		}
	}
	return res, nil
}

// Validate checks inputs, limits and the output location.
func (s *Stages) Validate(job Job) error {
	if s.Validator == nil {
		return nil
	}
	if _, err := s.Validator.ValidateImage("target", job.Target); err != nil {
		return err
	}
	if job.Mode == bundle.KindSignedDiff {
		size, err := s.Validator.ValidateImage("source", job.Source)
		if err != nil {
			return err
		}
		if err := s.Validator.ValidateSourceLength(size); err != nil {
			return err
		}
		if job.Payload != "" {
			if _, err := s.Validator.ValidateImage("payload", job.Payload); err != nil {
				return err
			}
		}
	}
	return s.Validator.ValidateOutputPath(job.Output)
}

// ComposeMetadata validates the job, fingerprints its inputs and composes
// the strategy metadata.
func (s *Stages) ComposeMetadata(ctx context.Context, job Job, res *Result) error {
	strategy, err := job.Strategy()
	if err != nil {
		return err
	}
	if err := s.Validate(job); err != nil {
		return err
	}

	fp, err := InputFingerprint(job, s.fingerprintParams(job.Mode))
	if err != nil {
		return err
	}
	res.InputFingerprint = fp

	metadata, err := s.Composer.Compose(ctx, strategy)
	if err != nil {
		return errors.Wrap(err, "compose metadata")
	}
	res.Metadata = metadata

	slog.Info("metadata_composed", "mode", job.Mode, "metadata_bytes", len(metadata))
	return nil
}

// BuildBundle appends the payload to the metadata.
func (s *Stages) BuildBundle(_ context.Context, job Job, res *Result) error {
	strategy, err := job.Strategy()
	if err != nil {
		return err
	}
	payload, err := bundle.ReadPayload(strategy)
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return errors.Input(strategy.PayloadPath(), fmt.Errorf("payload is empty"))
	}

	b := bundle.Build(res.Metadata, payload)
	if len(b) != len(res.Metadata)+len(payload) {
		return errors.Invariantf("bundle length %d != metadata %d + payload %d", len(b), len(res.Metadata), len(payload))
	}
	res.Bundle = b

	slog.Info("bundle_built", "mode", job.Mode, "length", len(b), "padding", bundle.Padding(len(b), s.FragmentSize))
	return nil
}

// Encode persists the bundle for the encoder and parses its report. The
// temp file is removed before Encode returns.
func (s *Stages) Encode(ctx context.Context, job Job, res *Result) error {
	f, err := s.persist(res.Bundle)
	if err != nil {
		return err
	}
	defer f.Remove()

	report, err := s.Encoder.Encode(ctx, f.Path, s.FragmentSize, s.WindowFor(job.Mode))
	if err != nil {
		return errors.Wrap(err, "encode bundle")
	}
	res.Report = report
	return nil
}

// Correct reorders the encoder output for the device.
func (s *Stages) Correct(_ context.Context, job Job, res *Result) error {
	corrected, err := fragment.Correct(job.Mode, res.Report, len(res.Bundle), s.FragmentSize)
	if err != nil {
		return err
	}
	res.Corrected = corrected
	return nil
}

// Checksum computes the bundle CRC-64 and, for signed_diff, the source
// image digest.
func (s *Stages) Checksum(ctx context.Context, job Job, res *Result) error {
	var path string
	if s.Checksummer.NeedsFile() {
		f, err := s.persist(res.Bundle)
		if err != nil {
			return err
		}
		defer f.Remove()
		path = f.Path
	}

	sum, err := s.Checksummer.Checksum64(ctx, res.Bundle, path)
	if err != nil {
		return errors.Wrap(err, "checksum bundle")
	}
	res.Checksum = sum
	slog.Info("bundle_checksummed", "crc64", checksum.Format(sum))

	if job.Mode == bundle.KindSignedDiff {
		digest, err := checksum.DigestFile(job.Source)
		if err != nil {
			return err
		}
		res.SourceDigest = digest
	}
	return nil
}

// Emit writes the C header and fingerprints it.
func (s *Stages) Emit(_ context.Context, job Job, res *Result) error {
	v := &emit.Vectors{
		Kind:      job.Mode,
		Header:    res.Corrected.Header,
		Fragments: res.Corrected.Fragments,
		RowLength: fragment.RowLength(s.FragmentSize),
		Checksum:  res.Checksum,
	}
	if job.Mode == bundle.KindSignedDiff {
		data, err := os.ReadFile(job.Source)
		if err != nil {
			return errors.Input(job.Source, err)
		}
		v.Slot2 = &emit.Slot2{Data: data, Digest: res.SourceDigest}
	}

	if err := emit.Write(job.Output, v); err != nil {
		return err
	}

	fp, err := FileFingerprint(job.Output)
	if err != nil {
		return err
	}
	res.ArtifactFingerprint = fp
	return nil
}

func (s *Stages) persist(data []byte) (*bundle.File, error) {
	if s.WorkDir != "" {
		if err := os.MkdirAll(s.WorkDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create work dir")
		}
	}
	return bundle.Persist(s.WorkDir, data)
}
