// Package openai is the reference ModelClient adapter of §6, speaking the
// OpenAI-compatible chat-completions wire protocol via go-openai. It is the
// one required ModelClient implementation; the harness's provider-profile
// resolution (internal/profile) constructs one Client per resolved role.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	sdk "github.com/sashabaranov/go-openai"

	"github.com/mcpeval/harness/internal/model"
)

// Client adapts an OpenAI-compatible endpoint to model.Client.
type Client struct {
	cfg    Config
	inner  *sdk.Client
	roleID string
}

// New constructs a Client. roleID is a human label (e.g. "solver.reasoning")
// used only in log lines, grounded on the teacher's per-component log tags.
func New(cfg Config, roleID string) *Client {
	sdkCfg := sdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Client{cfg: cfg, inner: sdk.NewClientWithConfig(sdkCfg), roleID: roleID}
}

func (c *Client) Name() string         { return "openai" }
func (c *Client) DefaultModel() string { return c.cfg.Model }
func (c *Client) SupportsTools() bool  { return true }

// ChatComplete implements model.Client. It retries transient errors with
// exponential backoff and jitter, bounding each attempt with a per-call
// context timeout, matching the teacher's CallLLM/mcpToolTimeout pattern.
func (c *Client) ChatComplete(ctx context.Context, messages []model.Message, tools []model.ToolDef) (model.Response, error) {
	req := sdk.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: toSDKMessages(messages),
	}
	if len(tools) > 0 {
		req.Tools = toSDKTools(tools)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
			log.Printf("[Model] %s: retrying chat completion (attempt %d/%d) after %s", c.roleID, attempt+1, c.cfg.MaxRetries+1, backoff+jitter)
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return model.Response{}, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		resp, err := c.inner.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			return fromSDKResponse(resp), nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return model.Response{}, fmt.Errorf("openai: chat completion for %s: %w", c.roleID, lastErr)
}

func isRetryable(err error) bool {
	var apiErr *sdk.APIError
	if asAPIError(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Network-level errors (no structured API error) are treated as
	// transient.
	return true
}

func asAPIError(err error, target **sdk.APIError) bool {
	apiErr, ok := err.(*sdk.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}

func toSDKMessages(messages []model.Message) []sdk.ChatCompletionMessage {
	out := make([]sdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		sm := sdk.ChatCompletionMessage{
			Role:       toSDKRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			sm.ToolCalls = append(sm.ToolCalls, sdk.ToolCall{
				ID:   tc.ID,
				Type: sdk.ToolTypeFunction,
				Function: sdk.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, sm)
	}
	return out
}

// toSDKRole maps the harness's role tags onto the subset the OpenAI wire
// protocol recognizes; "developer" nudges and the reserved "platform" role
// are sent as "user"/"system" respectively since the chat-completions API
// has no first-class equivalent (grounded on the teacher's go-openai usage,
// which only ever emits system/user/assistant/tool).
func toSDKRole(role string) string {
	switch strings.ToLower(role) {
	case "system":
		return sdk.ChatMessageRoleSystem
	case "assistant":
		return sdk.ChatMessageRoleAssistant
	case "tool":
		return sdk.ChatMessageRoleTool
	case "developer":
		return sdk.ChatMessageRoleUser
	case "platform":
		return sdk.ChatMessageRoleSystem
	default:
		return sdk.ChatMessageRoleUser
	}
}

func toSDKTools(tools []model.ToolDef) []sdk.Tool {
	out := make([]sdk.Tool, 0, len(tools))
	for _, t := range tools {
		var params any = json.RawMessage(t.Parameters)
		if len(t.Parameters) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out = append(out, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func fromSDKResponse(resp sdk.ChatCompletionResponse) model.Response {
	if len(resp.Choices) == 0 {
		return model.Response{}
	}
	choice := resp.Choices[0]
	out := model.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCallRef{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}
