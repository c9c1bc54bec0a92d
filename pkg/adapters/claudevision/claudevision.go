// Package claudevision implements ports.VisionModel against the Anthropic
// Messages API. Each frame analysis is a single non-streaming call carrying
// the screenshot, the accessibility snapshot and the compressed history, with
// the action vocabulary exposed as tools so the model must answer with
// exactly one structured action.
package claudevision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/user/browserstudio/pkg/ports"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

const systemPrompt = `You are a browser automation agent. Each turn you receive a screenshot of the current page, a textual accessibility (ARIA) snapshot of the same page, the task you are working on, and a summary of your previous actions.

Interactable elements in the ARIA snapshot are marked with [ref=eN]. Prefer acting on elements by their ref; fall back to screenshot coordinates only when no suitable ref exists.

Choose exactly one action per turn by calling exactly one tool. When the task is complete call done with a summary and any extracted data. If the task cannot be completed call fail with the reason. Do not call done or fail prematurely while productive actions remain.`

// Config holds vision client parameters.
type Config struct {
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	MaxTokens int64         `yaml:"maxTokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Client calls the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    ports.Logger
}

// New creates a vision client. The API key falls back to the
// ANTHROPIC_API_KEY environment variable when empty.
func New(config Config, logger ports.Logger) *Client {
	opts := []option.RequestOption{}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	model := config.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		logger:    logger.WithComponent("vision"),
	}
}

// AnalyzeFrame sends one perception tuple and parses the chosen action.
func (c *Client) AnalyzeFrame(ctx context.Context, req ports.FrameRequest) (*ports.FrameDecision, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64("image/jpeg", req.FrameBase64),
		anthropic.NewTextBlock(buildPrompt(req)),
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
		Tools: actionTools(),
	})
	if err != nil {
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}

	decision := &ports.FrameDecision{
		Usage: ports.TokenUsage{
			Input:  int(msg.Usage.InputTokens),
			Output: int(msg.Usage.OutputTokens),
		},
	}

	var reasoning []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			reasoning = append(reasoning, block.Text)
		case "tool_use":
			if decision.Name != "" {
				continue
			}
			toolUse := block.AsToolUse()
			decision.Name = toolUse.Name
			input := map[string]any{}
			if err := json.Unmarshal(toolUse.Input, &input); err != nil {
				return nil, fmt.Errorf("failed to parse tool input for %s: %w", toolUse.Name, err)
			}
			decision.Input = input
		}
	}
	decision.Reasoning = strings.TrimSpace(strings.Join(reasoning, "\n"))

	// A pure-text reply means the model declined to act. Surface it as a
	// fail so the loop terminates with the explanation instead of spinning.
	if decision.Name == "" {
		c.logger.Warn("Model returned no tool use, treating as fail")
		decision.Name = "fail"
		reason := decision.Reasoning
		if reason == "" {
			reason = "model returned no action"
		}
		decision.Input = map[string]any{"reason": reason}
	}

	c.logger.Debug("Model chose %s (%d in / %d out tokens)",
		decision.Name, decision.Usage.Input, decision.Usage.Output)
	return decision, nil
}

// buildPrompt assembles the text portion of the user turn.
func buildPrompt(req ports.FrameRequest) string {
	var b strings.Builder
	b.WriteString("## Task\n")
	b.WriteString(req.Task)
	b.WriteString("\n")
	if req.History != "" {
		b.WriteString("\n## Previous Actions\n")
		b.WriteString(req.History)
		b.WriteString("\n")
	}
	b.WriteString("\n## Current Page ARIA Snapshot\n```\n")
	b.WriteString(req.AriaSnapshot)
	b.WriteString("\n```\n")
	b.WriteString("\nThe screenshot above shows the current page. Choose the single best next action.")
	return b.String()
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func tool(name, desc string, properties map[string]any) anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(desc),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
			},
		},
	}
}

// actionTools defines the agent vocabulary as one tool per action kind.
func actionTools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		tool("click", "Click an element by its ARIA ref, or a point by viewport coordinates.", map[string]any{
			"ref":    prop("string", "ARIA ref of the element to click, e.g. e5"),
			"x":      prop("number", "Viewport x coordinate, used when no ref is given"),
			"y":      prop("number", "Viewport y coordinate, used when no ref is given"),
			"button": prop("string", "Mouse button: left (default), right or middle"),
		}),
		tool("type", "Type text into an element or the focused input.", map[string]any{
			"ref":         prop("string", "ARIA ref of the input, omit to type into the focused element"),
			"text":        prop("string", "Text to type"),
			"clear_first": prop("boolean", "Clear the existing value before typing"),
		}),
		tool("scroll", "Scroll the page.", map[string]any{
			"direction": prop("string", "up, down, left or right (default down)"),
			"amount":    prop("number", "Scroll distance in pixels (default 300)"),
		}),
		tool("navigate", "Navigate the page to a URL.", map[string]any{
			"url": prop("string", "Absolute URL to load"),
		}),
		tool("keyboard", "Press a key or key combination.", map[string]any{
			"key": prop("string", "Key to press, e.g. Enter, Escape, Control+a"),
		}),
		tool("wait", "Wait for the page to change on its own.", map[string]any{
			"ms": prop("number", "Milliseconds to wait (default 1000)"),
		}),
		tool("hover", "Hover over an element or a point.", map[string]any{
			"ref": prop("string", "ARIA ref of the element to hover"),
			"x":   prop("number", "Viewport x coordinate, used when no ref is given"),
			"y":   prop("number", "Viewport y coordinate, used when no ref is given"),
		}),
		tool("select", "Select an option in a dropdown.", map[string]any{
			"ref":   prop("string", "ARIA ref of the select element"),
			"value": prop("string", "Option value or visible label to select"),
		}),
		tool("done", "Finish the task.", map[string]any{
			"success":        prop("boolean", "Whether the task goal was achieved"),
			"summary":        prop("string", "One-paragraph summary of the outcome"),
			"extracted_data": prop("object", "Data extracted from the page, if the task asked for any"),
		}),
		tool("fail", "Give up on the task.", map[string]any{
			"reason": prop("string", "Why the task cannot be completed"),
		}),
	}
}

var _ ports.VisionModel = (*Client)(nil)
