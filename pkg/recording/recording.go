// Package recording captures screencast frames from a page and turns them
// into a video with correlated console logs.
//
// One recording may be active per page at a time. Frames accumulate in
// memory while the screencast runs; Stop hands them to the external encoder
// and writes key frames, a filmstrip, and a JSON summary next to the video.
// When no encoder binary is available the raw frame sequence is kept
// instead, so a capture is never lost to a missing dependency.
package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/user/browserstudio/pkg/ports"
	"github.com/user/browserstudio/pkg/registry"
)

const encodeFPS = 30.0

var (
	// ErrAlreadyRecording is returned when a page already has an active recording.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned when stopping a page with no active recording.
	ErrNotRecording = errors.New("no recording in progress")

	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// Options configure one recording. The JSON tags are the wire names used
// by the recording start request.
type Options struct {
	MaxWidth           int  `json:"maxWidth"`
	MaxHeight          int  `json:"maxHeight"`
	Quality            int  `json:"quality"`
	EveryNthFrame      int  `json:"everyNthFrame"`
	CaptureConsoleLogs bool `json:"captureConsoleLogs"`
	ExtractKeyFrames   bool `json:"extractKeyFrames"`
	KeyFrameCount      int  `json:"keyFrameCount"`
}

// DefaultOptions returns the standard recording configuration.
func DefaultOptions() Options {
	return Options{
		MaxWidth:           1280,
		MaxHeight:          720,
		Quality:            80,
		EveryNthFrame:      1,
		CaptureConsoleLogs: true,
		ExtractKeyFrames:   true,
		KeyFrameCount:      5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxWidth <= 0 {
		o.MaxWidth = d.MaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = d.MaxHeight
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = d.Quality
	}
	if o.EveryNthFrame <= 0 {
		o.EveryNthFrame = d.EveryNthFrame
	}
	if o.KeyFrameCount <= 0 {
		o.KeyFrameCount = d.KeyFrameCount
	}
	return o
}

// Status reports the recording state of one page.
type Status struct {
	IsRecording     bool
	StartedAt       time.Time
	FrameCount      int
	ConsoleLogCount int
}

// Result is everything a finished recording produced.
type Result struct {
	VideoPath     string
	DurationMs    int64
	FrameCount    int
	ConsoleLogs   []ports.ConsoleLogEntry
	KeyFramePaths []string
	SummaryPath   string
}

// summaryFile is the on-disk schema of the recording summary.
type summaryFile struct {
	Recording struct {
		VideoPath  string    `json:"videoPath"`
		DurationMs int64     `json:"durationMs"`
		FrameCount int       `json:"frameCount"`
		StartedAt  time.Time `json:"startedAt"`
		StoppedAt  time.Time `json:"stoppedAt"`
	} `json:"recording"`
	ConsoleLogs []ports.ConsoleLogEntry `json:"consoleLogs"`
	KeyFrames   []string                `json:"keyFrames"`
	Page        struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"page"`
}

type session struct {
	mu           sync.Mutex
	startedAt    time.Time
	consoleStart int
	opts         Options
	frames       [][]byte
	stopped      bool
}

func (s *session) addFrame(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Frames that race in after Stop detaches the screencast are dropped.
	if s.stopped {
		return
	}
	s.frames = append(s.frames, data)
}

func (s *session) finish() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.frames
}

func (s *session) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Engine manages per-page recordings and their output files.
type Engine struct {
	dir     string
	encoder ports.VideoEncoder
	fs      ports.FileSystem
	logger  ports.Logger

	mu       sync.Mutex
	sessions map[string]*session
	finished map[string]*Result
}

// NewEngine creates an Engine writing into dir.
func NewEngine(dir string, encoder ports.VideoEncoder, fs ports.FileSystem, logger ports.Logger) *Engine {
	return &Engine{
		dir:      dir,
		encoder:  encoder,
		fs:       fs,
		logger:   logger.WithComponent("recording"),
		sessions: make(map[string]*session),
		finished: make(map[string]*Result),
	}
}

// Start begins a screencast recording on the entry's page.
func (e *Engine) Start(ctx context.Context, entry *registry.Entry, opts Options) error {
	opts = opts.withDefaults()

	e.mu.Lock()
	if _, active := e.sessions[entry.Name]; active {
		e.mu.Unlock()
		return fmt.Errorf("%w on page %s", ErrAlreadyRecording, entry.Name)
	}
	sess := &session{
		startedAt:    time.Now(),
		consoleStart: entry.ConsoleCount(),
		opts:         opts,
	}
	e.sessions[entry.Name] = sess
	e.mu.Unlock()

	screencast := ports.ScreencastOptions{
		Quality:       opts.Quality,
		MaxWidth:      opts.MaxWidth,
		MaxHeight:     opts.MaxHeight,
		EveryNthFrame: opts.EveryNthFrame,
	}
	if err := entry.Page().StartScreencast(ctx, screencast, sess.addFrame); err != nil {
		e.mu.Lock()
		delete(e.sessions, entry.Name)
		e.mu.Unlock()
		return fmt.Errorf("failed to start screencast: %w", err)
	}

	e.logger.Info("Recording started on page %s", entry.Name)
	return nil
}

// Stop ends the recording on the entry's page and produces its artifacts.
func (e *Engine) Stop(ctx context.Context, entry *registry.Entry) (*Result, error) {
	e.mu.Lock()
	sess, active := e.sessions[entry.Name]
	if !active {
		e.mu.Unlock()
		return nil, ErrNotRecording
	}
	delete(e.sessions, entry.Name)
	e.mu.Unlock()

	page := entry.Page()
	if err := page.StopScreencast(ctx); err != nil {
		e.logger.Warn("Failed to stop screencast on page %s: %v", entry.Name, err)
	}

	frames := sess.finish()
	stoppedAt := time.Now()
	durationMs := stoppedAt.Sub(sess.startedAt).Milliseconds()

	var consoleLogs []ports.ConsoleLogEntry
	if sess.opts.CaptureConsoleLogs {
		consoleLogs = entry.ConsoleSince(sess.consoleStart)
	} else {
		consoleLogs = []ports.ConsoleLogEntry{}
	}

	if err := e.fs.MkdirAll(e.dir); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	base := fmt.Sprintf("%s-%d", SanitizeName(entry.Name), sess.startedAt.UnixMilli())

	result := &Result{
		DurationMs:  durationMs,
		FrameCount:  len(frames),
		ConsoleLogs: consoleLogs,
	}

	if len(frames) > 0 {
		videoPath, err := e.encode(ctx, frames, base)
		if err != nil {
			return nil, err
		}
		result.VideoPath = videoPath

		if sess.opts.ExtractKeyFrames {
			result.KeyFramePaths = e.extractKeyFrames(frames, base, sess.opts.KeyFrameCount)
			e.writeFilmstrip(frames, base, sess.opts.KeyFrameCount)
		}
	} else {
		e.logger.Warn("Recording on page %s captured no frames", entry.Name)
	}

	summaryPath, err := e.writeSummary(ctx, page, sess.startedAt, stoppedAt, result, base)
	if err != nil {
		e.logger.Warn("Failed to write recording summary: %v", err)
	} else {
		result.SummaryPath = summaryPath
	}

	e.mu.Lock()
	e.finished[entry.Name] = result
	e.mu.Unlock()

	e.logger.Info("Recording stopped on page %s (%d frames, %dms)", entry.Name, result.FrameCount, durationMs)
	return result, nil
}

// encode runs the external encoder, falling back to a raw frame directory
// when no encoder binary is available.
func (e *Engine) encode(ctx context.Context, frames [][]byte, base string) (string, error) {
	videoPath := filepath.Join(e.dir, base+".webm")
	err := e.encoder.Encode(ctx, frames, encodeFPS, videoPath)
	if err == nil {
		return videoPath, nil
	}
	if !errors.Is(err, ports.ErrEncoderUnavailable) {
		return "", fmt.Errorf("failed to encode video: %w", err)
	}

	e.logger.Warn("Video encoder unavailable, keeping raw frame sequence")
	framesDir := filepath.Join(e.dir, base+"-frames")
	if err := e.fs.MkdirAll(framesDir); err != nil {
		return "", fmt.Errorf("failed to create frames directory: %w", err)
	}
	for i, frame := range frames {
		path := filepath.Join(framesDir, fmt.Sprintf("frame-%05d.jpg", i))
		if err := e.fs.WriteFile(path, frame); err != nil {
			return "", fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}
	return framesDir, nil
}

// extractKeyFrames writes up to count frames evenly spaced across the
// capture and returns their paths.
func (e *Engine) extractKeyFrames(frames [][]byte, base string, count int) []string {
	if count > len(frames) {
		count = len(frames)
	}
	step := len(frames) / count

	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		path := filepath.Join(e.dir, fmt.Sprintf("%s-keyframe-%d.jpg", base, i+1))
		if err := e.fs.WriteFile(path, frames[i*step]); err != nil {
			e.logger.Warn("Failed to write key frame %d: %v", i+1, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func (e *Engine) writeFilmstrip(frames [][]byte, base string, count int) {
	data, err := renderFilmstrip(frames, count)
	if err != nil {
		e.logger.Warn("Failed to render filmstrip: %v", err)
		return
	}
	path := filepath.Join(e.dir, base+"-filmstrip.jpg")
	if err := e.fs.WriteFile(path, data); err != nil {
		e.logger.Warn("Failed to write filmstrip: %v", err)
	}
}

func (e *Engine) writeSummary(ctx context.Context, page ports.Page, startedAt, stoppedAt time.Time, result *Result, base string) (string, error) {
	var s summaryFile
	s.Recording.VideoPath = result.VideoPath
	s.Recording.DurationMs = result.DurationMs
	s.Recording.FrameCount = result.FrameCount
	s.Recording.StartedAt = startedAt
	s.Recording.StoppedAt = stoppedAt
	s.ConsoleLogs = result.ConsoleLogs
	if s.ConsoleLogs == nil {
		s.ConsoleLogs = []ports.ConsoleLogEntry{}
	}
	s.KeyFrames = result.KeyFramePaths
	if s.KeyFrames == nil {
		s.KeyFrames = []string{}
	}

	// Best effort. The page may already be navigating away or closed.
	if url, err := page.URL(ctx); err == nil {
		s.Page.URL = url
	}
	if title, err := page.Title(ctx); err == nil {
		s.Page.Title = title
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := filepath.Join(e.dir, base+"-summary.json")
	if err := e.fs.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// Abort stops any active recording on the page and discards its frames.
// Used during page teardown where no artifacts are wanted.
func (e *Engine) Abort(ctx context.Context, name string, page ports.Page) {
	e.mu.Lock()
	sess, active := e.sessions[name]
	if active {
		delete(e.sessions, name)
	}
	e.mu.Unlock()
	if !active {
		return
	}

	sess.finish()
	if page != nil {
		if err := page.StopScreencast(ctx); err != nil {
			e.logger.Warn("Failed to stop screencast on page %s: %v", name, err)
		}
	}
	e.logger.Info("Recording aborted on page %s", name)
}

// Status reports the recording state of the named page. consoleCount is the
// page's current total console log count, used to report how many entries
// the active recording spans.
func (e *Engine) Status(name string, consoleCount int) Status {
	e.mu.Lock()
	sess, active := e.sessions[name]
	e.mu.Unlock()

	if !active {
		return Status{}
	}
	logCount := consoleCount - sess.consoleStart
	if logCount < 0 {
		logCount = 0
	}
	return Status{
		IsRecording:     true,
		StartedAt:       sess.startedAt,
		FrameCount:      sess.frameCount(),
		ConsoleLogCount: logCount,
	}
}

// LastResult returns the most recent finished recording for the page, along
// with whether a recording is currently active.
func (e *Engine) LastResult(name string) (result *Result, pending bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, pending = e.sessions[name]
	return e.finished[name], pending
}

// SanitizeName maps a page name onto a filesystem-safe base name.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}
