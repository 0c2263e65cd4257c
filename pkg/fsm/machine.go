// Package fsm implements the vector generation finite state machine workflow.
// It drives the pipeline stages from input fetch to artifact publish as
// durable transitions using the superfly/fsm library.
package fsm

import (
	"context"

	"github.com/lorawan-fota/fragvec/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the vector generation FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[GenerateRequest, GenerateResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[GenerateRequest, GenerateResponse](manager, MachineName).
		Start(StateFetchInputs, m.handleFetchInputs).
		To(StateComposeMetadata, m.stage(StateComposeMetadata, m.stages.ComposeMetadata)).
		To(StateBuildBundle, m.stage(StateBuildBundle, m.stages.BuildBundle)).
		To(StateEncode, m.stage(StateEncode, m.stages.Encode)).
		To(StateCorrect, m.stage(StateCorrect, m.stages.Correct)).
		To(StateChecksum, m.stage(StateChecksum, m.stages.Checksum)).
		To(StateEmit, m.stage(StateEmit, m.stages.Emit)).
		To(StatePublish, m.handlePublish).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
