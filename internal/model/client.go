// Package model talks to the generative model through an OpenAI-compatible
// chat completions API. Vertex AI serves Gemini behind such an endpoint, so
// the same client covers Vertex, OpenAI and local gateways.
package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
	"github.com/JakeFAU/tab-harvester/internal/retry"
)

// Supported providers.
const (
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// DefaultModel is the Gemini model served by Vertex AI.
const DefaultModel = "google/gemini-2.0-flash-001"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Config selects the provider and the generation parameters.
type Config struct {
	Provider       string
	ProjectID      string
	Location       string
	Model          string
	APIKey         string
	BaseURL        string
	MaxTokens      int
	Temperature    float32
	JSONMode       bool
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// HTTPClient overrides the transport. For Vertex it must already attach
	// credentials.
	HTTPClient *http.Client
}

// Client implements harvest.Generator.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	jsonMode    bool
	policy      *retry.Policy
	logger      *zap.Logger
}

var _ harvest.Generator = (*Client)(nil)

// New builds a client for cfg.Provider. Vertex uses Application Default
// Credentials unless cfg.HTTPClient is set.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var clientConfig openai.ClientConfig
	switch cfg.Provider {
	case ProviderVertex, "":
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("model.project_id is required for the vertex provider")
		}
		clientConfig = openai.DefaultConfig("")
		clientConfig.BaseURL = cfg.BaseURL
		if clientConfig.BaseURL == "" {
			clientConfig.BaseURL = VertexBaseURL(cfg.ProjectID, cfg.Location)
		}
		httpClient := cfg.HTTPClient
		if httpClient == nil {
			var err error
			httpClient, err = google.DefaultClient(ctx, cloudPlatformScope)
			if err != nil {
				return nil, fmt.Errorf("load application default credentials: %w", err)
			}
		}
		clientConfig.HTTPClient = httpClient
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("model.api_key is required for the openai provider")
		}
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		if cfg.HTTPClient != nil {
			clientConfig.HTTPClient = cfg.HTTPClient
		}
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
		policy:      retry.NewExponential(attempts, cfg.RetryBaseDelay, 5*time.Second),
		logger:      logger,
	}, nil
}

// VertexBaseURL returns the OpenAI-compatible endpoint for a project and region.
func VertexBaseURL(projectID, location string) string {
	if location == "" {
		location = "us-central1"
	}
	host := location + "-aiplatform.googleapis.com"
	if location == "global" {
		host = "aiplatform.googleapis.com"
	}
	return fmt.Sprintf("https://%s/v1/projects/%s/locations/%s/endpoints/openapi", host, projectID, location)
}

// Generate sends one chat completion and returns the first choice's text.
// Transient failures are retried within the attempt budget and ctx.
func (c *Client) Generate(ctx context.Context, prompt, systemInstruction string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	for attempt := 1; ; attempt++ {
		text, err := c.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if !retryable(err) || c.policy.Exhausted(attempt) {
			return "", err
		}
		c.logger.Warn("model request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if waitErr := c.policy.Wait(ctx, attempt); waitErr != nil {
			return "", fmt.Errorf("%w (%v)", err, waitErr)
		}
	}
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", fmt.Errorf("model returned empty content (finish_reason=%s)", choice.FinishReason)
	}
	return choice.Message.Content, nil
}

// retryable reports whether err is worth another attempt: rate limits, server
// errors and network timeouts. Context errors never are.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
