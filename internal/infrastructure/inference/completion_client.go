package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"resty.dev/v3"

	domaininference "github.com/janhq/chat-stream-api/internal/domain/inference"
	"github.com/janhq/chat-stream-api/internal/infrastructure/observability"
	"github.com/janhq/chat-stream-api/internal/utils/platformerrors"
)

const maxErrorBodyBytes = 4 * 1024

// Config configures CompletionClient.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	ReadTimeout time.Duration
}

// CompletionClient streams text completions from an OpenAI-compatible
// /completions endpoint.
type CompletionClient struct {
	client      *resty.Client
	baseURL     string
	apiKey      string
	model       string
	readTimeout time.Duration
	log         zerolog.Logger
}

var _ domaininference.Generator = (*CompletionClient)(nil)

func NewCompletionClient(client *resty.Client, cfg Config, log zerolog.Logger) *CompletionClient {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 120 * time.Second
	}
	return &CompletionClient{
		client:      client,
		baseURL:     normalizeBaseURL(cfg.BaseURL),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		readTimeout: readTimeout,
		log:         log.With().Str("component", "inference-client").Logger(),
	}
}

// GenerateStream opens a streaming completion. The returned stream is bound to
// ctx: cancelling it ends the upstream request.
func (c *CompletionClient) GenerateStream(ctx context.Context, req domaininference.Request) (domaininference.Stream, error) {
	ctx, span := observability.StartSpan(ctx, "chat-stream-api", "inference.GenerateStream")
	defer span.End()
	observability.AddSpanAttributes(ctx,
		attribute.String("inference.model", c.model),
		attribute.Int("inference.max_tokens", req.MaxTokens),
	)

	body := openai.CompletionRequest{
		Model:     c.model,
		Prompt:    req.Prompt,
		MaxTokens: req.MaxTokens,
		Stop:      req.StopSequences,
		Stream:    true,
	}

	httpReq := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetHeader("Accept-Encoding", "identity").
		SetBody(body).
		SetDoNotParseResponse(true)
	if strings.TrimSpace(c.apiKey) != "" {
		httpReq.SetHeader("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := httpReq.Post(c.baseURL + "/completions")
	if err != nil {
		classified := classifyTransportError(ctx, err)
		observability.RecordError(ctx, classified)
		return nil, classified
	}
	if resp.IsError() {
		classified := c.errorFromResponse(ctx, resp)
		observability.RecordError(ctx, classified)
		return nil, classified
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
			"inference stream returned an empty body", nil, "")
	}

	observability.AddSpanEvent(ctx, "inference.stream_opened", attribute.Int("http.status_code", resp.StatusCode()))
	return newCompletionStream(ctx, resp.RawResponse.Body, c.model, c.readTimeout), nil
}

func (c *CompletionClient) errorFromResponse(ctx context.Context, resp *resty.Response) error {
	status := resp.StatusCode()
	errorType := platformerrors.ErrorTypeExternal
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		errorType = platformerrors.ErrorTypeTimeout
	}

	detail := ""
	if resp.RawResponse != nil && resp.RawResponse.Body != nil {
		defer resp.RawResponse.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, maxErrorBodyBytes))
		detail = strings.TrimSpace(string(raw))
	}

	c.log.Error().
		Int("status", status).
		Str("body", detail).
		Msg("inference request rejected")

	return platformerrors.NewErrorWithContext(ctx, platformerrors.LayerInfrastructure, errorType,
		fmt.Sprintf("inference service returned status %d", status), nil, "",
		map[string]any{"status": status, "body": detail})
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeCancelled,
			"inference request cancelled", err, "")
	}
	if isTimeout(err) {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeTimeout,
			"inference request timed out", err, "")
	}
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal,
		"inference request failed", err, "")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func normalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
