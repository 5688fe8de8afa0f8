package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient talks to the Gemini API through the genai SDK.
// The SDK client is created lazily so a missing key surfaces on first use.
type GeminiClient struct {
	apiKey           string
	httpTimeout      time.Duration
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient returns a Gemini runtime with the given retry policy.
func NewGeminiClient(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *GeminiClient {
	if retryMax <= 0 {
		retryMax = 3
	}
	return &GeminiClient{
		apiKey:           apiKey,
		httpTimeout:      httpTimeout,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = errors.New("gemini api key is missing (set FINAI_GEMINI_API_KEY or gemini_api_key in config)")
			return
		}
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: &http.Client{Timeout: c.httpTimeout},
		})
	})
	return c.client, c.initErr
}

// Generate maps the chat request onto GenerateContent, retrying 429/5xx.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}
	contents, system, err := toGenaiContents(req.Messages)
	if err != nil {
		return nil, err
	}
	cfg, err := toGenaiConfig(req, system)
	if err != nil {
		return nil, err
	}
	model := strings.TrimPrefix(req.Model, "google/")

	backoff := c.retryBaseDelay
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			return fromGenaiResponse(resp)
		}
		lastErr = classifyGenaiError(err)
		var ae genai.APIError
		retryable := errors.As(err, &ae) && (ae.Code == http.StatusTooManyRequests || ae.Code >= 500)
		if !retryable || attempt == c.retryMaxAttempts {
			break
		}
		sleep := withJitter(backoff)
		if c.retryMaxDelay > 0 && sleep > c.retryMaxDelay {
			sleep = c.retryMaxDelay
		}
		time.Sleep(sleep)
		backoff *= 2
	}
	return nil, lastErr
}

// toGenaiContents splits out system text and folds consecutive same-role turns.
func toGenaiContents(msgs []Message) ([]*genai.Content, string, error) {
	var system []string
	var out []*genai.Content
	push := func(role string, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case RoleUser:
			push(string(genai.RoleUser), &genai.Part{Text: m.Content})
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if strings.TrimSpace(tc.Function.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						return nil, "", fmt.Errorf("tool call %s arguments: %w", tc.Function.Name, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Args: args}})
			}
			push(string(genai.RoleModel), parts...)
		case RoleTool:
			push(string(genai.RoleUser), &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}})
		default:
			return nil, "", fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, strings.Join(system, "\n\n"), nil
}

func toGenaiConfig(req GenerateRequest, system string) (*genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			d := &genai.FunctionDeclaration{Name: t.Function.Name, Description: t.Function.Description}
			if len(t.Function.Parameters) > 0 {
				var schema map[string]any
				if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
					return nil, fmt.Errorf("tool %s schema: %w", t.Function.Name, err)
				}
				d.ParametersJsonSchema = schema
			}
			decls = append(decls, d)
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	} else if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg, nil
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: empty response")
	}
	cand := resp.Candidates[0]
	msg := Message{Role: RoleAssistant}
	var text strings.Builder
	if cand.Content != nil {
		for i, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			text.WriteString(p.Text)
			if p.FunctionCall == nil {
				continue
			}
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: encode args: %w", err)
			}
			id := p.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:       id,
				Type:     "function",
				Function: FunctionCall{Name: p.FunctionCall.Name, Arguments: string(args)},
			})
		}
	}
	msg.Content = text.String()
	out := &GenerateResponse{
		Choices: []Choice{{Message: msg, FinishReason: string(cand.FinishReason)}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// classifyGenaiError maps SDK API errors onto the shared error taxonomy.
func classifyGenaiError(err error) error {
	var ae genai.APIError
	if !errors.As(err, &ae) {
		return fmt.Errorf("gemini request: %w", err)
	}
	apiErr := &APIError{StatusCode: ae.Code, Code: ae.Status, Message: ae.Message}
	switch {
	case ae.Code == http.StatusUnauthorized || ae.Code == http.StatusForbidden:
		return &AuthError{APIError: apiErr}
	case ae.Code == http.StatusTooManyRequests:
		if containsAnyFold(ae.Message, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		return &RateLimitError{APIError: apiErr}
	case ae.Code == http.StatusNotFound:
		return &ModelNotFoundError{APIError: apiErr}
	case ae.Code == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case ae.Code >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}
