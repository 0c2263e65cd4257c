package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorawan-fota/fragvec/internal/config"
	"github.com/lorawan-fota/fragvec/pkg/bundle"
	"github.com/lorawan-fota/fragvec/pkg/checksum"
	"github.com/lorawan-fota/fragvec/pkg/db"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/fragment"
	appfsm "github.com/lorawan-fota/fragvec/pkg/fsm"
	"github.com/lorawan-fota/fragvec/pkg/identity"
	"github.com/lorawan-fota/fragvec/pkg/manifest"
	"github.com/lorawan-fota/fragvec/pkg/pipeline"
	"github.com/lorawan-fota/fragvec/pkg/security"
	"github.com/lorawan-fota/fragvec/pkg/signer"
	"github.com/lorawan-fota/fragvec/pkg/storage"
	"github.com/lorawan-fota/fragvec/pkg/tools"
	"github.com/superfly/fsm"
)

// runJob generates the vectors for job and records the run.
func runJob(ctx context.Context, job pipeline.Job) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fsmDBPath := cfg.FSMDBPath
	if cfg.Direct {
		fsmDBPath = ""
	}
	if err := ensureDirectories(cfg.SQLitePath, fsmDBPath, cfg.WorkDir); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	validator := security.NewValidator(cfg.MaxImageSize)
	stages, err := newStages(cfg, tools.NewExecRunner(""), validator, job.Mode)
	if err != nil {
		return err
	}
	remote, err := newRemote(ctx, cfg, validator, job)
	if err != nil {
		return err
	}

	run := pipeline.NewRun(job)
	if err := repo.Create(run); err != nil {
		return errors.Wrap(err, "failed to record run")
	}

	if cfg.Direct {
		return runDirect(ctx, repo, stages, remote, run, job)
	}
	return runFSM(ctx, cfg, repo, stages, remote, run, job)
}

// newStages wires the collaborators for a run of the given kind. The signer
// and manifest builder are only built for the strategies that use them.
func newStages(cfg *config.Config, runner tools.Runner, validator *security.Validator, kind bundle.Kind) (*pipeline.Stages, error) {
	var sums checksum.Checksummer = checksum.InProcess{}
	if cfg.ChecksumCommand != "" {
		sums = &checksum.ExecChecksummer{Runner: runner, Command: cfg.ChecksumCommand}
	}

	composer := &bundle.Composer{}
	if kind.UsesManifest() {
		id, err := identity.Resolve(cfg.IdentityFile, cfg.ManufacturerName, cfg.DeviceClassName)
		if err != nil {
			return nil, err
		}
		composer.Identity = id
	}

	switch kind {
	case bundle.KindSignedDiff:
		s, err := signer.New(signer.Options{
			Kind:        cfg.Signer,
			KeyPath:     cfg.SigningKey,
			OpenSSLPath: cfg.OpenSSLPath,
			Runner:      runner,
		})
		if err != nil {
			return nil, errors.Wrap(err, "signer init failed")
		}
		composer.Signer = s
	case bundle.KindExternalManifest:
		b, err := manifest.New(manifest.Options{
			Kind:     cfg.ManifestBuilder,
			Command:  cfg.ManifestCommand,
			Runner:   runner,
			Identity: composer.Identity,
		})
		if err != nil {
			return nil, errors.Wrap(err, "manifest builder init failed")
		}
		composer.Manifests = b
	}

	return &pipeline.Stages{
		Composer:     composer,
		Encoder:      fragment.NewExecEncoder(runner, cfg.EncoderCommand),
		Checksummer:  sums,
		Validator:    validator,
		WorkDir:      cfg.WorkDir,
		FragmentSize: cfg.FragmentSize,
		Window:       cfg.Window,
		LegacyWindow: cfg.LegacyWindow,
		Tooling:      tooling(cfg, kind),
	}, nil
}

// tooling describes the tool settings that shape the artifact of kind.
func tooling(cfg *config.Config, kind bundle.Kind) string {
	t := fmt.Sprintf("encoder=%s;checksum=%s", cfg.EncoderCommand, cfg.ChecksumCommand)
	switch kind {
	case bundle.KindSignedDiff:
		t += fmt.Sprintf(";signer=%s;key=%s", cfg.Signer, cfg.SigningKey)
	case bundle.KindExternalManifest:
		t += ";manifest=" + cfg.ManifestBuilder
		if cfg.ManifestBuilder == manifest.KindExec {
			t += ";command=" + cfg.ManifestCommand
		}
	}
	return t
}

// newRemote builds the S3 side of a run. The client is only created when an
// input is an s3:// URI or publishing is enabled.
func newRemote(ctx context.Context, cfg *config.Config, validator *security.Validator, job pipeline.Job) (*pipeline.Remote, error) {
	remote := &pipeline.Remote{
		Validator:     validator,
		WorkDir:       cfg.WorkDir,
		PublishBucket: cfg.PublishBucket,
		PublishPrefix: cfg.PublishPrefix,
	}
	if !remote.NeedsClient(job) {
		return remote, nil
	}

	client, err := storage.NewClient(ctx, cfg.S3Region, cfg.S3Anonymous)
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	remote.Client = client
	return remote, nil
}

// runDirect executes the stages in process.
func runDirect(ctx context.Context, repo *db.Repository, stages *pipeline.Stages, remote *pipeline.Remote, run *db.Run, job pipeline.Job) error {
	if err := repo.UpdateStatus(run.ID, db.StatusRunning, ""); err != nil {
		return errors.Wrap(err, "failed to update status")
	}

	res, uri, err := func() (*pipeline.Result, string, error) {
		resolved, err := remote.Fetch(ctx, job)
		if err != nil {
			return nil, "", errors.Wrap(err, "fetch inputs")
		}
		run.SourcePath = resolved.Source

		res, err := stages.Run(ctx, resolved)
		if err != nil {
			return nil, "", err
		}

		uri, err := remote.Publish(ctx, resolved)
		if err != nil {
			return nil, "", errors.Wrap(err, "publish artifact")
		}
		return res, uri, nil
	}()
	if err != nil {
		pipeline.Fail(repo, run, err)
		return err
	}

	if _, err := pipeline.Complete(repo, run, res); err != nil {
		return errors.Wrap(err, "failed to record run")
	}
	slog.Info("generate_completed", "run_id", run.ID, "output", job.Output, "published", uri)
	return nil
}

// runFSM executes the stages as durable FSM transitions.
func runFSM(ctx context.Context, cfg *config.Config, repo *db.Repository, stages *pipeline.Stages, remote *pipeline.Remote, run *db.Run, job pipeline.Job) error {
	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, stages, remote)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	req := &appfsm.GenerateRequest{RunID: run.ID, Job: job}
	resp := &appfsm.GenerateResponse{}

	version, err := start(ctx, fmt.Sprintf("run-%d", run.ID), fsm.NewRequest(req, resp))
	if err != nil {
		pipeline.Fail(repo, run, err)
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "run_id", run.ID, "version", version)

	waitErr := manager.Wait(ctx, version)

	// Handlers record their error on the run before aborting.
	final, err := repo.Get(run.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load run")
	}
	if final == nil || final.Status != db.StatusComplete {
		if final != nil && final.ErrorMessage != "" {
			return errors.New(final.ErrorMessage)
		}
		if waitErr != nil {
			return errors.Wrap(waitErr, "FSM execution failed")
		}
		return fmt.Errorf("run %d did not complete", run.ID)
	}

	slog.Info("generate_completed", "run_id", run.ID, "output", job.Output, "published", resp.PublishedURI)
	return nil
}
