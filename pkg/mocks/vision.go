package mocks

import (
	"context"

	"github.com/user/browserstudio/pkg/ports"
)

// VisionModel is a mock implementation of ports.VisionModel.
type VisionModel struct {
	AnalyzeFrameFunc func(ctx context.Context, req ports.FrameRequest) (*ports.FrameDecision, error)
}

// NewVisionModel creates a new mock VisionModel.
func NewVisionModel() *VisionModel {
	return &VisionModel{}
}

func (m *VisionModel) AnalyzeFrame(ctx context.Context, req ports.FrameRequest) (*ports.FrameDecision, error) {
	if m.AnalyzeFrameFunc != nil {
		return m.AnalyzeFrameFunc(ctx, req)
	}
	return &ports.FrameDecision{
		Name:  "done",
		Input: map[string]any{"success": true, "summary": "mock run"},
		Usage: ports.TokenUsage{Input: 100, Output: 10},
	}, nil
}

var _ ports.VisionModel = (*VisionModel)(nil)
