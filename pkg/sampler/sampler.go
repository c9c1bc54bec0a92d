// Package sampler decides which captured frames are worth analyzing.
//
// The agent loop captures a screenshot every cycle, but consecutive frames of
// a static page are nearly identical and would waste model tokens. The sampler
// downscales each frame to a small grayscale thumbnail, compares it against
// the previously accepted one, and only accepts frames whose pixel difference
// crosses a threshold. A heartbeat forces acceptance after a run of skips so
// slow animations cannot starve the loop forever.
package sampler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"golang.org/x/image/draw"
)

// Config holds frame sampling parameters.
type Config struct {
	// ThumbSize is the side length in pixels of the comparison thumbnail.
	ThumbSize int
	// DiffThreshold is the fraction of changed pixels required to accept a frame.
	DiffThreshold float64
	// PixelDelta is the minimum grayscale delta for a pixel to count as changed.
	PixelDelta int
	// HeartbeatEvery forces acceptance after this many consecutive skips.
	HeartbeatEvery int
}

// DefaultConfig returns the standard sampling parameters.
func DefaultConfig() Config {
	return Config{
		ThumbSize:      16,
		DiffThreshold:  0.05,
		PixelDelta:     25,
		HeartbeatEvery: 5,
	}
}

// Sampler tracks the last accepted frame thumbnail and skip count.
// Safe for concurrent use.
type Sampler struct {
	config Config

	mu    sync.Mutex
	prev  *image.Gray
	skips int
}

// New creates a Sampler with the given config. Zero-valued fields are
// replaced with defaults.
func New(config Config) *Sampler {
	def := DefaultConfig()
	if config.ThumbSize <= 0 {
		config.ThumbSize = def.ThumbSize
	}
	if config.DiffThreshold <= 0 {
		config.DiffThreshold = def.DiffThreshold
	}
	if config.PixelDelta <= 0 {
		config.PixelDelta = def.PixelDelta
	}
	if config.HeartbeatEvery <= 0 {
		config.HeartbeatEvery = def.HeartbeatEvery
	}
	return &Sampler{config: config}
}

// HasChanged reports whether the frame differs enough from the last accepted
// frame to be worth analyzing. The first frame is always accepted. When the
// frame is visually unchanged, a heartbeat still accepts every
// HeartbeatEvery-th call so the loop cannot go blind.
func (s *Sampler) HasChanged(frame []byte) (bool, error) {
	thumb, err := s.thumbnail(frame)
	if err != nil {
		return false, fmt.Errorf("failed to decode frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ratio := diffRatio(s.prev, thumb, s.config.PixelDelta)
	if ratio > s.config.DiffThreshold {
		s.prev = thumb
		s.skips = 0
		return true, nil
	}

	s.skips++
	if s.skips >= s.config.HeartbeatEvery {
		s.prev = thumb
		s.skips = 0
		return true, nil
	}
	return false, nil
}

// ForceCapture discards the stored thumbnail so the next frame is accepted
// unconditionally. Called after navigations and page recovery, where the
// previous thumbnail no longer describes the page being looked at.
func (s *Sampler) ForceCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prev = nil
	s.skips = 0
}

// Reset clears all sampling state.
func (s *Sampler) Reset() {
	s.ForceCapture()
}

// thumbnail decodes a JPEG frame and downscales it to a square grayscale
// thumbnail for cheap comparison.
func (s *Sampler) thumbnail(frame []byte) (*image.Gray, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	thumb := image.NewGray(image.Rect(0, 0, s.config.ThumbSize, s.config.ThumbSize))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)
	return thumb, nil
}

// diffRatio returns the fraction of thumbnail pixels whose grayscale delta
// exceeds pixelDelta. A nil previous thumbnail compares as fully changed.
func diffRatio(prev, next *image.Gray, pixelDelta int) float64 {
	if prev == nil {
		return 1.0
	}
	bounds := next.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 1.0
	}

	changed := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			d := int(prev.GrayAt(x, y).Y) - int(next.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			if d > pixelDelta {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}
