package ports

import (
	"context"
	"errors"
)

// ErrEncoderUnavailable indicates the external video encoder binary could not
// be found. Callers fall back to writing the raw frame sequence.
var ErrEncoderUnavailable = errors.New("video encoder not available")

// VideoEncoder abstracts video encoding of an in-memory frame sequence.
type VideoEncoder interface {
	// Encode writes the JPEG frame sequence as a video file at outputPath.
	Encode(ctx context.Context, frames [][]byte, fps float64, outputPath string) error
}
