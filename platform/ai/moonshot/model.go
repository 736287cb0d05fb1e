// Package moonshot adapts Moonshot's OpenAI-compatible chat API to the ADK
// model interface, so agents can run on Kimi models.
package moonshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	defaultBaseURL = "https://api.moonshot.ai/v1"
	defaultModel   = "kimi-k2-turbo-preview"
	defaultTimeout = 60 * time.Second
)

// Config selects the Kimi model and how to reach it.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// DisableThinking turns off thinking mode on kimi-k2.5. The API then
	// pins temperature to 0.6, so any configured temperature is ignored.
	DisableThinking bool
	// HTTPTimeout bounds one completion round trip. Zero means the default.
	HTTPTimeout time.Duration
}

// KimiModel implements model.LLM against the Moonshot chat completions API.
type KimiModel struct {
	config Config
	client *http.Client
}

// NewModel creates the model adapter, filling config defaults.
func NewModel(cfg Config) *KimiModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultTimeout
	}
	return &KimiModel{
		config: cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Name returns the configured model identifier.
func (m *KimiModel) Name() string {
	return m.config.Model
}

// GenerateContent yields a single non-streamed completion. The stream flag is
// accepted for interface compatibility; responses are always collected whole.
func (m *KimiModel) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.complete(ctx, req)
		yield(resp, err)
	}
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function toolCallFunc `json:"function"`
}

type toolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolSpecFunc `json:"function"`
}

type toolSpecFunc struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			ToolCalls []toolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (m *KimiModel) complete(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	payload := map[string]any{
		"model":    m.config.Model,
		"messages": m.buildMessages(req.Contents),
	}

	if m.config.DisableThinking {
		payload["thinking"] = map[string]string{"type": "disabled"}
	} else if req.Config != nil && req.Config.Temperature != nil {
		payload["temperature"] = float64(*req.Config.Temperature)
	}

	if tools := m.buildTools(req); len(tools) > 0 {
		payload["tools"] = tools
		payload["tool_choice"] = "auto"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal kimi request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build kimi request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kimi request: %w", err)
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode kimi response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("kimi api error (%s): %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kimi api error: status %d", resp.StatusCode)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("kimi api error: empty choices")
	}

	return toLLMResponse(result.Choices[0].Message.Content, result.Choices[0].Message.ToolCalls), nil
}

// toLLMResponse converts the completion into ADK content parts: one text
// part, then one function call part per tool call.
func toLLMResponse(content string, calls []toolCall) *model.LLMResponse {
	parts := make([]*genai.Part, 0, 1+len(calls))
	if strings.TrimSpace(content) != "" {
		parts = append(parts, genai.NewPartFromText(content))
	}
	for _, tc := range calls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{"_raw": tc.Function.Arguments}
			}
		}
		parts = append(parts, &genai.Part{
			FunctionCall: &genai.FunctionCall{
				ID:   tc.ID,
				Name: tc.Function.Name,
				Args: args,
			},
		})
	}

	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: parts,
		},
	}
}

// buildMessages flattens ADK content into the chat message list. Function
// responses become tool messages and must precede the turn that consumed
// them, matching the ordering the completions API expects.
func (m *KimiModel) buildMessages(contents []*genai.Content) []chatMessage {
	messages := make([]chatMessage, 0, len(contents))
	for _, content := range contents {
		if content == nil {
			continue
		}

		role := "user"
		if content.Role == "model" {
			role = "assistant"
		}

		text, calls, toolMessages := splitParts(content.Parts)
		messages = append(messages, toolMessages...)
		if text != "" || len(calls) > 0 {
			messages = append(messages, chatMessage{
				Role:      role,
				Content:   text,
				ToolCalls: calls,
			})
		}
	}
	return messages
}

// splitParts separates one turn's parts into its text, the tool calls it
// issued and the tool responses it carries.
func splitParts(parts []*genai.Part) (string, []toolCall, []chatMessage) {
	var calls []toolCall
	var toolMessages []chatMessage
	var text strings.Builder

	for _, part := range parts {
		switch {
		case part == nil:
		case part.FunctionResponse != nil:
			payload, _ := json.Marshal(part.FunctionResponse.Response)
			toolMessages = append(toolMessages, chatMessage{
				Role:       "tool",
				ToolCallID: part.FunctionResponse.ID,
				Content:    string(payload),
				Name:       part.FunctionResponse.Name,
			})
		case part.FunctionCall != nil:
			args, _ := json.Marshal(part.FunctionCall.Args)
			calls = append(calls, toolCall{
				ID:   part.FunctionCall.ID,
				Type: "function",
				Function: toolCallFunc{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
		case strings.TrimSpace(part.Text) != "":
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(part.Text)
		}
	}

	return strings.TrimSpace(text.String()), calls, toolMessages
}

func (m *KimiModel) buildTools(req *model.LLMRequest) []toolSpec {
	if req == nil || req.Config == nil || len(req.Config.Tools) == 0 {
		return nil
	}

	var tools []toolSpec
	for _, gt := range req.Config.Tools {
		if gt == nil || gt.FunctionDeclarations == nil {
			continue
		}
		for _, decl := range gt.FunctionDeclarations {
			if decl == nil || decl.Name == "" {
				continue
			}
			var params any
			switch {
			case decl.ParametersJsonSchema != nil:
				params = decl.ParametersJsonSchema
			case decl.Parameters != nil:
				params = decl.Parameters
			}
			tools = append(tools, toolSpec{
				Type: "function",
				Function: toolSpecFunc{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  params,
				},
			})
		}
	}

	return tools
}
