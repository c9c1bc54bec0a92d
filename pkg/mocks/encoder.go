package mocks

import (
	"context"

	"github.com/user/browserstudio/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder.
type VideoEncoder struct {
	EncodeFunc func(ctx context.Context, frames [][]byte, fps float64, outputPath string) error
}

// NewVideoEncoder creates a new mock VideoEncoder.
func NewVideoEncoder() *VideoEncoder {
	return &VideoEncoder{}
}

func (m *VideoEncoder) Encode(ctx context.Context, frames [][]byte, fps float64, outputPath string) error {
	if m.EncodeFunc != nil {
		return m.EncodeFunc(ctx, frames, fps, outputPath)
	}
	return nil
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)
