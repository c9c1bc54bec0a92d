package ports

import "context"

// TokenUsage reports token consumption of one model call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// FrameRequest is the tuple sent to the vision model for one cycle.
type FrameRequest struct {
	FrameBase64  string
	AriaSnapshot string
	History      string
	Task         string
}

// FrameDecision is the structured action the model chose for a frame, plus
// any free-text reasoning emitted before the tool-use block.
type FrameDecision struct {
	Name      string
	Input     map[string]any
	Reasoning string
	Usage     TokenUsage
}

// VisionModel abstracts the vision-capable language model. Implementations
// constrain the model to emit exactly one action from the agent vocabulary.
type VisionModel interface {
	AnalyzeFrame(ctx context.Context, req FrameRequest) (*FrameDecision, error)
}
