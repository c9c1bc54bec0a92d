package webmencoder

import (
	"context"
	"errors"
	"testing"

	"github.com/user/browserstudio/pkg/ports"
)

func TestFindFFmpegBadEnvPath(t *testing.T) {
	t.Setenv("FFMPEG_PATH", "/nonexistent/ffmpeg")
	if _, err := FindFFmpeg(); !errors.Is(err, ports.ErrEncoderUnavailable) {
		t.Errorf("expected ErrEncoderUnavailable, got %v", err)
	}
}

func TestEncodeNoFrames(t *testing.T) {
	enc := NewEncoder()
	if err := enc.Encode(context.Background(), nil, 30, "out.webm"); err == nil {
		t.Error("expected error for empty frame sequence")
	}
}
