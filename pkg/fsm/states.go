package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorawan-fota/fragvec/pkg/db"
	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/lorawan-fota/fragvec/pkg/pipeline"
	"github.com/superfly/fsm"
)

// Handler is the transition signature shared by every state.
type Handler = fsm.Transition[GenerateRequest, GenerateResponse]

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo   *db.Repository
	stages *pipeline.Stages
	remote *pipeline.Remote
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(repo *db.Repository, stages *pipeline.Stages, remote *pipeline.Remote) *Machine {
	return &Machine{
		repo:   repo,
		stages: stages,
		remote: remote,
	}
}

// fail records err on the run and aborts the machine. Generation is
// deterministic, so no transition is retried.
func (m *Machine) fail(req *fsm.Request[GenerateRequest, GenerateResponse], state string, err error) (*fsm.Response[GenerateResponse], error) {
	slog.Error("fsm_state_failed", "run_id", req.Msg.RunID, "state", state, "error", err)
	if uerr := m.repo.UpdateStatus(req.Msg.RunID, db.StatusFailed, err.Error()); uerr != nil {
		slog.Error("status_update_failed", "run_id", req.Msg.RunID, "status", db.StatusFailed, "error", uerr)
	}
	if resp := req.W.Msg; resp != nil {
		resp.Status = db.StatusFailed
		resp.ErrorMessage = err.Error()
	}
	return nil, fsm.Abort(err)
}

// handleFetchInputs marks the run as running and resolves s3:// inputs
func (m *Machine) handleFetchInputs(ctx context.Context, req *fsm.Request[GenerateRequest, GenerateResponse]) (*fsm.Response[GenerateResponse], error) {
	slog.Info("fsm_state_fetch_inputs", "run_id", req.Msg.RunID, "mode", req.Msg.Job.Mode)

	resp := req.W.Msg
	if resp == nil {
		resp = &GenerateResponse{}
	}

	if err := m.repo.UpdateStatus(req.Msg.RunID, db.StatusRunning, ""); err != nil {
		return m.fail(req, StateFetchInputs, errors.Wrap(err, "failed to update status"))
	}

	job, err := m.remote.Fetch(ctx, req.Msg.Job)
	if err != nil {
		return m.fail(req, StateFetchInputs, errors.Wrap(err, "fetch inputs"))
	}
	resp.Job = job
	resp.Status = db.StatusRunning

	return fsm.NewResponse(resp), nil
}

// stage adapts a pipeline stage to a transition
func (m *Machine) stage(state string, run func(ctx context.Context, job pipeline.Job, res *pipeline.Result) error) Handler {
	return func(ctx context.Context, req *fsm.Request[GenerateRequest, GenerateResponse]) (*fsm.Response[GenerateResponse], error) {
		slog.Info("fsm_state", "run_id", req.Msg.RunID, "state", state)

		resp := req.W.Msg
		if resp == nil {
			return m.fail(req, state, fmt.Errorf("response not initialized"))
		}

		if err := run(ctx, resp.Job, &resp.Result); err != nil {
			return m.fail(req, state, err)
		}
		return fsm.NewResponse(resp), nil
	}
}

// handlePublish uploads the artifact when publishing is configured
func (m *Machine) handlePublish(ctx context.Context, req *fsm.Request[GenerateRequest, GenerateResponse]) (*fsm.Response[GenerateResponse], error) {
	slog.Info("fsm_state_publish", "run_id", req.Msg.RunID)

	resp := req.W.Msg
	if resp == nil {
		return m.fail(req, StatePublish, fmt.Errorf("response not initialized"))
	}

	uri, err := m.remote.Publish(ctx, resp.Job)
	if err != nil {
		return m.fail(req, StatePublish, errors.Wrap(err, "publish artifact"))
	}
	resp.PublishedURI = uri

	return fsm.NewResponse(resp), nil
}

// handleComplete stores the results and checks them against earlier runs
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[GenerateRequest, GenerateResponse]) (*fsm.Response[GenerateResponse], error) {
	slog.Info("fsm_state_complete", "run_id", req.Msg.RunID)

	resp := req.W.Msg
	if resp == nil {
		return m.fail(req, StateComplete, fmt.Errorf("response not initialized"))
	}

	run, err := m.repo.Get(req.Msg.RunID)
	if err != nil {
		return m.fail(req, StateComplete, errors.Wrap(err, "failed to load run"))
	}
	if run == nil {
		return m.fail(req, StateComplete, fmt.Errorf("run %d not found in database", req.Msg.RunID))
	}
	run.SourcePath = resp.Job.Source

	if _, err := pipeline.Complete(m.repo, run, &resp.Result); err != nil {
		return m.fail(req, StateComplete, errors.Wrap(err, "failed to record run"))
	}
	resp.Status = db.StatusComplete

	slog.Info("fsm_complete", "run_id", req.Msg.RunID, "output", resp.Job.Output, "published", resp.PublishedURI)
	return fsm.NewResponse(resp), nil
}
