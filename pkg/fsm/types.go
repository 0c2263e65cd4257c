package fsm

import "github.com/lorawan-fota/fragvec/pkg/pipeline"

// GenerateRequest is the FSM input
type GenerateRequest struct {
	// RunID is the history record created before the machine starts.
	RunID int64
	Job   pipeline.Job
}

// GenerateResponse is the FSM output (accumulated across transitions)
type GenerateResponse struct {
	// From FetchInputs: the job with every input resolved to a local file
	Job pipeline.Job

	// From the pipeline stages
	Result pipeline.Result

	// From Publish
	PublishedURI string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateFetchInputs     = "fetch_inputs"
	StateComposeMetadata = pipeline.StageComposeMetadata
	StateBuildBundle     = pipeline.StageBuildBundle
	StateEncode          = pipeline.StageEncode
	StateCorrect         = pipeline.StageCorrect
	StateChecksum        = pipeline.StageChecksum
	StateEmit            = pipeline.StageEmit
	StatePublish         = "publish"
	StateComplete        = "complete"
	StateFailed          = "failed"
)

// MachineName is the name the state machine is registered under.
const MachineName = "generate-vectors"
