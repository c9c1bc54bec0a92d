package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/browserstudio/pkg/adapters/logger"
	"github.com/user/browserstudio/pkg/agent"
	"github.com/user/browserstudio/pkg/mocks"
	"github.com/user/browserstudio/pkg/ports"
	"github.com/user/browserstudio/pkg/recording"
	"github.com/user/browserstudio/pkg/registry"
)

type testEnv struct {
	server   *Server
	registry *registry.Registry
	recorder *recording.Engine
	page     *mocks.Page
	onFrame  func([]byte)
	runAgent RunAgentFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{page: mocks.NewPage()}
	env.page.TargetIDFunc = func() string { return "target-1" }
	env.page.StartScreencastFunc = func(ctx context.Context, opts ports.ScreencastOptions, f func([]byte)) error {
		env.onFrame = f
		return nil
	}

	log := logger.NewNoop()
	env.registry = registry.New(
		func(ctx context.Context, width, height int) (ports.Page, error) { return env.page, nil },
		nil, log)
	env.recorder = recording.NewEngine(t.TempDir(), mocks.NewVideoEncoder(), mocks.NewFileSystem(), log)
	env.registry.SetOnPageClosed(func(name string, page ports.Page) {
		env.recorder.Abort(context.Background(), name, page)
	})

	env.server = New(env.registry, env.recorder, log, Options{
		Addr:       ":0",
		WSEndpoint: func() string { return "ws://127.0.0.1:9223/devtools/browser/abc" },
		RunAgent: func(ctx context.Context, pageName, task string, cfg agent.Config) (*agent.Result, error) {
			if env.runAgent != nil {
				return env.runAgent(ctx, pageName, task, cfg)
			}
			return &agent.Result{Success: true, Summary: "done"}, nil
		},
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func (env *testEnv) createPage(t *testing.T, name string) {
	t.Helper()
	rec, _ := env.do(t, http.MethodPost, "/pages", map[string]any{"name": name})
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to create page %s: %d %s", name, rec.Code, rec.Body.String())
	}
}

func TestRootReturnsWSEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.HasPrefix(resp["wsEndpoint"].(string), "ws://") {
		t.Errorf("unexpected wsEndpoint: %v", resp["wsEndpoint"])
	}
}

func TestCreatePage(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/pages", map[string]any{
		"name":     "main",
		"viewport": map[string]int{"width": 1024, "height": 768},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if resp["name"] != "main" || resp["targetId"] != "target-1" {
		t.Errorf("unexpected response: %v", resp)
	}
	if resp["wsEndpoint"] == "" {
		t.Error("expected wsEndpoint in create response")
	}
}

func TestCreatePageInvalidName(t *testing.T) {
	env := newTestEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/pages", map[string]any{"name": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp["error"] == nil {
		t.Error("expected error message")
	}

	rec, _ = env.do(t, http.MethodPost, "/pages", map[string]any{"name": strings.Repeat("x", 257)})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized name, got %d", rec.Code)
	}
}

func TestCreatePageDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")
	rec, _ := env.do(t, http.MethodPost, "/pages", map[string]any{"name": "main"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate name, got %d", rec.Code)
	}
}

func TestListPages(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "beta")
	env.createPage(t, "alpha")

	rec, resp := env.do(t, http.MethodGet, "/pages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	pages := resp["pages"].([]any)
	if len(pages) != 2 || pages[0] != "alpha" || pages[1] != "beta" {
		t.Errorf("unexpected pages: %v", pages)
	}
}

func TestDeletePage(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	rec, resp := env.do(t, http.MethodDelete, "/pages/main", nil)
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("unexpected delete response: %d %v", rec.Code, resp)
	}

	rec, _ = env.do(t, http.MethodDelete, "/pages/main", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted page, got %d", rec.Code)
	}
}

func TestDeletePageAbortsRecording(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to start recording: %d", rec.Code)
	}
	stopped := false
	env.page.StopScreencastFunc = func(ctx context.Context) error {
		stopped = true
		return nil
	}

	rec, _ = env.do(t, http.MethodDelete, "/pages/main", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	if !stopped {
		t.Error("expected screencast stopped on page delete")
	}
}

func TestBrowserClosedPageIsRemoved(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	if rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start failed: %d", rec.Code)
	}
	stopped := false
	env.page.StopScreencastFunc = func(ctx context.Context) error {
		stopped = true
		return nil
	}

	// The browser reports the target gone, e.g. window.close() in the page.
	env.page.CloseCallback()

	rec, resp := env.do(t, http.MethodGet, "/pages", nil)
	if rec.Code != http.StatusOK || len(resp["pages"].([]any)) != 0 {
		t.Errorf("expected no pages after browser-side close, got %v", resp["pages"])
	}
	if !stopped {
		t.Error("expected active recording aborted with the page")
	}
	if rec, _ := env.do(t, http.MethodGet, "/pages/main/recording/status", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for closed page, got %d", rec.Code)
	}

	// The name is free again and its recording state starts clean.
	env.createPage(t, "main")
	if rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", nil); rec.Code != http.StatusOK {
		t.Errorf("expected fresh page to record, got %d", rec.Code)
	}
}

func TestConsoleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	var sink func(ports.ConsoleLogEntry)
	env.page.SubscribeConsoleFunc = func(ctx context.Context, s func(ports.ConsoleLogEntry)) error {
		sink = s
		return nil
	}
	env.createPage(t, "main")
	sink(ports.ConsoleLogEntry{Level: "error", Text: "boom"})
	sink(ports.ConsoleLogEntry{Level: "log", Text: "hello"})

	rec, resp := env.do(t, http.MethodGet, "/pages/main/console", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if resp["count"].(float64) != 2 {
		t.Errorf("expected count 2, got %v", resp["count"])
	}
	logs := resp["logs"].([]any)
	first := logs[0].(map[string]any)
	if first["level"] != "error" || first["text"] != "boom" {
		t.Errorf("unexpected first log: %v", first)
	}

	rec, resp = env.do(t, http.MethodDelete, "/pages/main/console", nil)
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("unexpected clear response: %d %v", rec.Code, resp)
	}
	if resp["cleared"].(float64) != 2 {
		t.Errorf("expected 2 cleared, got %v", resp["cleared"])
	}

	_, resp = env.do(t, http.MethodGet, "/pages/main/console", nil)
	if resp["count"].(float64) != 0 {
		t.Errorf("expected empty log after clear, got %v", resp["count"])
	}
}

func TestConsoleUnknownPage(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodGet, "/pages/ghost/console", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodDelete, "/pages/ghost/console", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	rec, resp := env.do(t, http.MethodGet, "/pages/main/recording/status", nil)
	if rec.Code != http.StatusOK || resp["isRecording"] != false {
		t.Fatalf("expected idle status, got %d %v", rec.Code, resp)
	}

	rec, resp = env.do(t, http.MethodPost, "/pages/main/recording/start", nil)
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("unexpected start response: %d %v", rec.Code, resp)
	}

	env.onFrame([]byte("f0"))
	env.onFrame([]byte("f1"))

	rec, resp = env.do(t, http.MethodGet, "/pages/main/recording/status", nil)
	if resp["isRecording"] != true {
		t.Fatalf("expected active status, got %v", resp)
	}
	if resp["frameCount"].(float64) != 2 {
		t.Errorf("expected 2 frames, got %v", resp["frameCount"])
	}

	rec, resp = env.do(t, http.MethodPost, "/pages/main/recording/stop", nil)
	if rec.Code != http.StatusOK || resp["success"] != true {
		t.Fatalf("unexpected stop response: %d %v", rec.Code, resp)
	}
	if !strings.HasSuffix(resp["videoPath"].(string), ".webm") {
		t.Errorf("unexpected video path: %v", resp["videoPath"])
	}
	if resp["frameCount"].(float64) != 2 {
		t.Errorf("expected 2 frames in stop response, got %v", resp["frameCount"])
	}
}

func TestRecordingStartOptions(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	var gotOpts ports.ScreencastOptions
	env.page.StartScreencastFunc = func(ctx context.Context, opts ports.ScreencastOptions, f func([]byte)) error {
		gotOpts = opts
		env.onFrame = f
		return nil
	}

	rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", map[string]any{
		"options": map[string]any{
			"maxWidth":      640,
			"maxHeight":     480,
			"quality":       50,
			"keyFrameCount": 2,
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start failed: %d %s", rec.Code, rec.Body.String())
	}
	if gotOpts.MaxWidth != 640 || gotOpts.MaxHeight != 480 || gotOpts.Quality != 50 {
		t.Errorf("request options not applied to screencast: %+v", gotOpts)
	}
	if gotOpts.EveryNthFrame != 1 {
		t.Errorf("expected omitted fields to keep their defaults, got %+v", gotOpts)
	}

	for i := 0; i < 10; i++ {
		env.onFrame([]byte(fmt.Sprintf("f%d", i)))
	}
	rec, resp := env.do(t, http.MethodPost, "/pages/main/recording/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop failed: %d %s", rec.Code, rec.Body.String())
	}
	if paths := resp["keyFramePaths"].([]any); len(paths) != 2 {
		t.Errorf("expected 2 key frames, got %v", paths)
	}
}

func TestRecordingStartConflict(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	if rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("first start failed: %d", rec.Code)
	}
	rec, resp := env.do(t, http.MethodPost, "/pages/main/recording/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if resp["success"] != false {
		t.Errorf("expected success=false, got %v", resp)
	}
}

func TestRecordingStopWithoutStart(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	rec, resp := env.do(t, http.MethodPost, "/pages/main/recording/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if resp["error"] != "No recording in progress" {
		t.Errorf("unexpected error message: %v", resp["error"])
	}
}

func TestRecordingUnknownPage(t *testing.T) {
	env := newTestEnv(t)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/pages/ghost/recording/status"},
		{http.MethodPost, "/pages/ghost/recording/start"},
		{http.MethodPost, "/pages/ghost/recording/stop"},
		{http.MethodGet, "/pages/ghost/video"},
	} {
		rec, _ := env.do(t, route.method, route.path, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", route.method, route.path, rec.Code)
		}
	}
}

func TestVideoEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	_, resp := env.do(t, http.MethodGet, "/pages/main/video", nil)
	if resp["pending"] != false || resp["error"] == nil {
		t.Errorf("expected no recording yet, got %v", resp)
	}

	if rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start failed: %d", rec.Code)
	}
	_, resp = env.do(t, http.MethodGet, "/pages/main/video", nil)
	if resp["pending"] != true {
		t.Errorf("expected pending during recording, got %v", resp)
	}

	env.onFrame([]byte("f0"))
	if rec, _ := env.do(t, http.MethodPost, "/pages/main/recording/stop", nil); rec.Code != http.StatusOK {
		t.Fatalf("stop failed: %d", rec.Code)
	}
	_, resp = env.do(t, http.MethodGet, "/pages/main/video", nil)
	if resp["pending"] != false {
		t.Errorf("expected not pending after stop, got %v", resp)
	}
	if !strings.HasSuffix(resp["videoPath"].(string), ".webm") {
		t.Errorf("unexpected video path: %v", resp["videoPath"])
	}
}

func TestAgentRun(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	var gotTask, gotPage string
	env.runAgent = func(ctx context.Context, pageName, task string, cfg agent.Config) (*agent.Result, error) {
		gotPage, gotTask = pageName, task
		return &agent.Result{Success: true, Summary: "clicked the button", TotalCycles: 3}, nil
	}

	rec, resp := env.do(t, http.MethodPost, "/pages/main/agent/run", map[string]any{
		"task": "click the signup button",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if gotPage != "main" || gotTask != "click the signup button" {
		t.Errorf("unexpected runner args: page=%q task=%q", gotPage, gotTask)
	}
	if resp["success"] != true || resp["totalCycles"].(float64) != 3 {
		t.Errorf("unexpected result: %v", resp)
	}
}

func TestAgentRunEmptyTask(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")
	rec, _ := env.do(t, http.MethodPost, "/pages/main/agent/run", map[string]any{"task": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestAgentRunUnknownPage(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/pages/ghost/agent/run", map[string]any{"task": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAgentRunNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")
	env.server.opts.RunAgent = nil

	rec, _ := env.do(t, http.MethodPost, "/pages/main/agent/run", map[string]any{"task": "x"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestAgentRunConfigOverrides(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")

	var gotCfg agent.Config
	env.runAgent = func(ctx context.Context, pageName, task string, cfg agent.Config) (*agent.Result, error) {
		gotCfg = cfg
		return &agent.Result{Success: true}, nil
	}

	rec, _ := env.do(t, http.MethodPost, "/pages/main/agent/run", map[string]any{
		"task": "check the page",
		"config": map[string]any{
			"maxCycles":          7,
			"maxCostUsd":         0.5,
			"readOnly":           true,
			"blockedUrlPatterns": []string{`\.bank\.`},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if gotCfg.MaxCycles != 7 || gotCfg.Budget.MaxCycles != 7 {
		t.Errorf("expected maxCycles override, got %+v", gotCfg)
	}
	if gotCfg.Budget.MaxCostUSD != 0.5 {
		t.Errorf("expected cost override, got %v", gotCfg.Budget.MaxCostUSD)
	}
	if !gotCfg.Safety.ReadOnlyMode || len(gotCfg.Safety.BlockedURLPatterns) != 1 {
		t.Errorf("expected safety overrides, got %+v", gotCfg.Safety)
	}
}

func TestAgentRunError(t *testing.T) {
	env := newTestEnv(t)
	env.createPage(t, "main")
	env.runAgent = func(ctx context.Context, pageName, task string, cfg agent.Config) (*agent.Result, error) {
		return nil, fmt.Errorf("page acquisition failed")
	}
	rec, resp := env.do(t, http.MethodPost, "/pages/main/agent/run", map[string]any{"task": "x"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if resp["error"] == nil {
		t.Error("expected error message")
	}
}
