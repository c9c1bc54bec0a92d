// Package webmencoder encodes JPEG frame sequences to WebM using an
// external ffmpeg process.
package webmencoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/user/browserstudio/pkg/ports"
)

// IsFFmpegAvailable checks if ffmpeg is available on the system.
func IsFFmpegAvailable() bool {
	_, err := FindFFmpeg()
	return err == nil
}

// FindFFmpeg searches for ffmpeg.
// Priority: 1) FFMPEG_PATH env, 2) PATH, 3) common locations
func FindFFmpeg() (string, error) {
	// Check FFMPEG_PATH environment variable
	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ports.ErrEncoderUnavailable, envPath)
	}

	// Check PATH
	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	// Check common locations
	var commonPaths []string
	if runtime.GOOS == "windows" {
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
		}
	} else if runtime.GOOS == "darwin" {
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	} else {
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ports.ErrEncoderUnavailable
}

// Encoder implements WebM encoding using an ffmpeg external process.
type Encoder struct{}

// NewEncoder creates a new ffmpeg-based WebM encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode pipes the JPEG frames into ffmpeg and writes a WebM file at
// outputPath. Returns ports.ErrEncoderUnavailable when no ffmpeg binary
// can be found.
func (e *Encoder) Encode(ctx context.Context, frames [][]byte, fps float64, outputPath string) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}

	ffmpegPath, err := FindFFmpeg()
	if err != nil {
		return err
	}

	args := []string{
		"-y",                // Overwrite output
		"-f", "image2pipe",  // JPEG frames on stdin
		"-vcodec", "mjpeg",
		"-r", fmt.Sprintf("%.2f", fps),
		"-i", "pipe:0",
		"-c:v", "libvpx-vp9",
		"-b:v", "1M",
		"-pix_fmt", "yuv420p",
		// Screencast frames can arrive with odd dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	writeErr := func() error {
		defer stdin.Close()
		for i, frame := range frames {
			if _, err := stdin.Write(frame); err != nil {
				return fmt.Errorf("failed to write frame %d: %w", i, err)
			}
		}
		return nil
	}()

	if err := cmd.Wait(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, stderr.String())
	}
	if writeErr != nil {
		os.Remove(outputPath)
		return writeErr
	}

	return nil
}

// Ensure Encoder implements ports.VideoEncoder
var _ ports.VideoEncoder = (*Encoder)(nil)
