package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/liushuangls/go-anthropic/v2"

	"github.com/slidesmith/slidesmith/internal/genlink/content"
	"github.com/slidesmith/slidesmith/internal/genlink/driver"
)

const defaultMaxTokens = 1024

// Client implements the Anthropic driver over the official messages API via
// the go-anthropic SDK.
type Client struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	sdk *anthropicsdk.Client
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	baseURL = strings.TrimSpace(baseURL)

	opts := []anthropicsdk.ClientOption{}
	if baseURL != "" {
		opts = append(opts, anthropicsdk.WithBaseURL(baseURL))
	}

	return &Client{
		APIKey:  apiKey,
		BaseURL: baseURL,
		sdk:     anthropicsdk.NewClient(apiKey, opts...),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "anthropic"
}

// Capabilities describes supported features. Structured output is carried in
// the prompt text; the messages API has no response_format parameter.
func (c *Client) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		SupportsImages:     false,
		SupportsJSONSchema: false,
	}
}

// Complete sends a messages request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil || c.sdk == nil {
		return nil, fmt.Errorf("anthropic client not configured")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	payload, err := buildMessagesRequest(req)
	if err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.sdk.CreateMessages(ctx, *payload)
	duration := time.Since(start)

	traceBody, _ := json.Marshal(payload)
	if err != nil {
		perr := mapSDKError(err)
		driver.Trace(driver.TraceEntry{
			Provider:    "anthropic",
			Endpoint:    "/messages",
			Method:      http.MethodPost,
			Model:       string(payload.Model),
			PromptSlug:  req.PromptSlug,
			RequestBody: traceBody,
			StatusCode:  statusCodeOf(perr),
			Error:       err.Error(),
			DurationMs:  duration.Milliseconds(),
		})
		return nil, perr
	}

	traceResp, _ := json.Marshal(resp)
	driver.Trace(driver.TraceEntry{
		Provider:    "anthropic",
		Endpoint:    "/messages",
		Method:      http.MethodPost,
		Model:       string(payload.Model),
		PromptSlug:  req.PromptSlug,
		RequestBody: traceBody,
		StatusCode:  http.StatusOK,
		Response:    traceResp,
		DurationMs:  duration.Milliseconds(),
	})

	return toDriverResponse(&resp), nil
}

func buildMessagesRequest(req *driver.Request) (*anthropicsdk.MessagesRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	payload := &anthropicsdk.MessagesRequest{
		Model:     anthropicsdk.Model(req.Model),
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		payload.Temperature = &temp
	}

	for _, msg := range req.Messages {
		text, err := flattenText(msg.Content)
		if err != nil {
			return nil, err
		}
		switch msg.Role {
		case "system":
			if payload.System != "" {
				payload.System += "\n\n"
			}
			payload.System += text
		case "user":
			payload.Messages = append(payload.Messages, anthropicsdk.NewUserTextMessage(text))
		case "assistant":
			payload.Messages = append(payload.Messages, anthropicsdk.NewAssistantTextMessage(text))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	return payload, nil
}

func flattenText(blocks []content.ContentBlock) (string, error) {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != content.ContentTypeText {
			return "", fmt.Errorf("unsupported content type: %s", block.Type)
		}
		parts = append(parts, block.Text)
	}
	return strings.Join(parts, "\n"), nil
}

func toDriverResponse(resp *anthropicsdk.MessagesResponse) *driver.Response {
	blocks := make([]content.ContentBlock, 0, len(resp.Content))
	for _, item := range resp.Content {
		blocks = append(blocks, content.Text(item.GetText()))
	}

	return &driver.Response{
		Content:      blocks,
		FinishReason: string(resp.StopReason),
		Usage: &driver.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// mapSDKError normalizes SDK failures to ProviderError so retry and fallback
// classification treat both drivers uniformly. Context errors pass through
// for cancellation handling.
func mapSDKError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var reqErr *anthropicsdk.RequestError
	if errors.As(err, &reqErr) {
		return &driver.ProviderError{
			Provider:   "anthropic",
			StatusCode: reqErr.StatusCode,
			Message:    reqErr.Error(),
		}
	}

	var apiErr *anthropicsdk.APIError
	if errors.As(err, &apiErr) {
		return &driver.ProviderError{
			Provider:   "anthropic",
			StatusCode: statusFromAPIErrorType(apiErr),
			Message:    apiErr.Message,
		}
	}

	return &driver.ProviderError{Provider: "anthropic", Message: err.Error()}
}

func statusFromAPIErrorType(apiErr *anthropicsdk.APIError) int {
	switch {
	case apiErr.IsRateLimitErr():
		return http.StatusTooManyRequests
	case apiErr.IsOverloadedErr():
		return http.StatusServiceUnavailable
	case apiErr.IsAuthenticationErr():
		return http.StatusUnauthorized
	case apiErr.IsPermissionErr():
		return http.StatusForbidden
	case apiErr.IsNotFoundErr():
		return http.StatusNotFound
	case apiErr.IsInvalidRequestErr():
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func statusCodeOf(err error) int {
	var perr *driver.ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode
	}
	return 0
}
