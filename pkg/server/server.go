// Package server exposes the control plane over HTTP.
//
// Clients create named pages, read and clear their console logs, drive
// recordings, and trigger agent runs. Responses are JSON throughout. The
// browser-level CDP websocket endpoint is reported at the root so external
// automation clients can connect directly.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/browserstudio/pkg/agent"
	"github.com/user/browserstudio/pkg/ports"
	"github.com/user/browserstudio/pkg/recording"
	"github.com/user/browserstudio/pkg/registry"
)

// RunAgentFunc executes one agent task against a named page.
type RunAgentFunc func(ctx context.Context, pageName, task string, cfg agent.Config) (*agent.Result, error)

// Options configure the Server.
type Options struct {
	Addr        string
	WSEndpoint  func() string
	AgentConfig agent.Config
	RunAgent    RunAgentFunc
}

// Server is the HTTP control plane.
type Server struct {
	opts     Options
	registry *registry.Registry
	recorder *recording.Engine
	logger   ports.Logger

	httpServer *http.Server
}

// New creates a Server. RunAgent may be nil when no vision model is
// configured; the agent route then reports the capability as missing.
func New(reg *registry.Registry, rec *recording.Engine, logger ports.Logger, opts Options) *Server {
	s := &Server{
		opts:     opts,
		registry: reg,
		recorder: rec,
		logger:   logger.WithComponent("server"),
	}
	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /pages", s.handleListPages)
	mux.HandleFunc("POST /pages", s.handleCreatePage)
	mux.HandleFunc("DELETE /pages/{name}", s.handleDeletePage)
	mux.HandleFunc("GET /pages/{name}/console", s.handleGetConsole)
	mux.HandleFunc("DELETE /pages/{name}/console", s.handleClearConsole)
	mux.HandleFunc("GET /pages/{name}/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("POST /pages/{name}/recording/start", s.handleRecordingStart)
	mux.HandleFunc("POST /pages/{name}/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("GET /pages/{name}/video", s.handleVideo)
	mux.HandleFunc("POST /pages/{name}/agent/run", s.handleAgentRun)
	return mux
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Server listening on %s", s.opts.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{"error": fmt.Sprintf(format, args...)})
}

// decodeBody unmarshals an optional JSON request body into v. An empty body
// leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	ws := ""
	if s.opts.WSEndpoint != nil {
		ws = s.opts.WSEndpoint()
	}
	writeJSON(w, http.StatusOK, map[string]any{"wsEndpoint": ws})
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.registry.Names()})
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Viewport *struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"viewport"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	width, height := 0, 0
	if req.Viewport != nil {
		width, height = req.Viewport.Width, req.Viewport.Height
	}
	entry, err := s.registry.Create(r.Context(), req.Name, width, height)
	switch {
	case errors.Is(err, registry.ErrInvalidName), errors.Is(err, registry.ErrPageExists):
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	ws := ""
	if s.opts.WSEndpoint != nil {
		ws = s.opts.WSEndpoint()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wsEndpoint": ws,
		"name":       entry.Name,
		"targetId":   entry.TargetID,
	})
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	// An active recording dies with the page. No artifacts are produced.
	s.recorder.Abort(r.Context(), name, entry.Page())

	if err := s.registry.Delete(r.Context(), name); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	logs := entry.ConsoleLogs()
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleClearConsole(w http.ResponseWriter, r *http.Request) {
	entry, err := s.registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	cleared := entry.ClearConsole()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": cleared,
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	status := s.recorder.Status(name, entry.ConsoleCount())
	resp := map[string]any{"isRecording": status.IsRecording}
	if status.IsRecording {
		resp["startedAt"] = status.StartedAt.UnixMilli()
		resp["frameCount"] = status.FrameCount
		resp["consoleLogCount"] = status.ConsoleLogCount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	var req struct {
		Options json.RawMessage `json:"options"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	// Overlay the request options onto the defaults so omitted fields keep
	// their default values.
	opts := recording.DefaultOptions()
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid recording options: %v", err)
			return
		}
	}

	err = s.recorder.Start(r.Context(), entry, opts)
	switch {
	case errors.Is(err, recording.ErrAlreadyRecording):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	entry, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	result, err := s.recorder.Stop(r.Context(), entry)
	switch {
	case errors.Is(err, recording.ErrNotRecording):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "No recording in progress"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"videoPath":     result.VideoPath,
		"durationMs":    result.DurationMs,
		"frameCount":    result.FrameCount,
		"consoleLogs":   result.ConsoleLogs,
		"keyFramePaths": result.KeyFramePaths,
		"summaryPath":   result.SummaryPath,
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.registry.Get(name); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	result, pending := s.recorder.LastResult(name)
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"pending": pending,
			"error":   "No finished recording for this page",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"videoPath": result.VideoPath,
		"pending":   pending,
	})
}

// agentConfigRequest carries per-run overrides of the configured defaults.
type agentConfigRequest struct {
	Model              string   `json:"model"`
	MaxCycles          int      `json:"maxCycles"`
	MaxTokens          int      `json:"maxTokens"`
	MaxCostUSD         float64  `json:"maxCostUsd"`
	MaxDurationMs      int64    `json:"maxDurationMs"`
	ReadOnly           bool     `json:"readOnly"`
	BlockedURLPatterns []string `json:"blockedUrlPatterns"`
}

func (s *Server) handleAgentRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.registry.Get(name); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	if s.opts.RunAgent == nil {
		writeError(w, http.StatusServiceUnavailable, "agent is not configured: set ANTHROPIC_API_KEY")
		return
	}

	var req struct {
		Task   string              `json:"task"`
		Config *agentConfigRequest `json:"config"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "task must not be empty")
		return
	}

	cfg := s.opts.AgentConfig
	if req.Config != nil {
		applyAgentOverrides(&cfg, req.Config)
	}

	result, err := s.opts.RunAgent(r.Context(), name, req.Task, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func applyAgentOverrides(cfg *agent.Config, o *agentConfigRequest) {
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.MaxCycles > 0 {
		cfg.MaxCycles = o.MaxCycles
		cfg.Budget.MaxCycles = o.MaxCycles
	}
	if o.MaxTokens > 0 {
		cfg.Budget.MaxTokens = o.MaxTokens
	}
	if o.MaxCostUSD > 0 {
		cfg.Budget.MaxCostUSD = o.MaxCostUSD
	}
	if o.MaxDurationMs > 0 {
		cfg.Budget.MaxDuration = time.Duration(o.MaxDurationMs) * time.Millisecond
	}
	if o.ReadOnly {
		cfg.Safety.ReadOnlyMode = true
	}
	if len(o.BlockedURLPatterns) > 0 {
		cfg.Safety.BlockedURLPatterns = append(cfg.Safety.BlockedURLPatterns, o.BlockedURLPatterns...)
	}
}
