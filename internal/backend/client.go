package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/xaenox/scan-bot/internal/models"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

// Client talks to the scan service. Read-only calls are retried with exponential
// backoff; scans append data and are sent once.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	maxRetries int
	userAgent  string
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: scheme and host are required", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "scan-bot"
	}

	return &Client{
		baseURL:    base,
		http:       &http.Client{Timeout: timeout},
		maxRetries: max(cfg.MaxRetries, 0),
		userAgent:  userAgent,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}, nil
}

type scanTextRequest struct {
	Prompt string `json:"prompt"`
	Text   string `json:"text"`
}

func (c *Client) ScanText(ctx context.Context, apiKey, prompt, text string) (*models.ScanResult, error) {
	body, err := json.Marshal(scanTextRequest{Prompt: prompt, Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode scan request: %w", err)
	}

	var result models.ScanResult
	if err := c.do(ctx, http.MethodPost, c.endpoint("v1", "scan"), apiKey, "application/json", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ScanFile(ctx context.Context, apiKey, prompt string, data []byte, filename, mimeType string, opts models.ScanOptions) (*models.ScanResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("encode prompt field: %w", err)
	}
	if err := w.WriteField("vision", strconv.FormatBool(opts.Vision)); err != nil {
		return nil, fmt.Errorf("encode vision field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var result models.ScanResult
	if err := c.do(ctx, http.MethodPost, c.endpoint("v1", "scan", "file"), apiKey, w.FormDataContentType(), buf.Bytes(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListEndpoints(ctx context.Context, apiKey string) ([]models.EndpointRef, error) {
	var resp struct {
		Endpoints []models.EndpointRef `json:"endpoints"`
	}
	if err := c.fetch(ctx, c.endpoint("v1", "endpoints"), apiKey, &resp); err != nil {
		return nil, err
	}
	return resp.Endpoints, nil
}

func (c *Client) GetEndpointData(ctx context.Context, apiKey, endpointPath string) (*models.EndpointData, error) {
	// Clean on a rooted path cannot climb above the data prefix
	cleaned := path.Clean("/" + endpointPath)

	var data models.EndpointData
	if err := c.fetch(ctx, c.endpoint("v1", "data", cleaned), apiKey, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) GetUsageStats(ctx context.Context, apiKey string) (*models.UsageStats, error) {
	var stats models.UsageStats
	if err := c.fetch(ctx, c.endpoint("v1", "usage"), apiKey, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ValidateCredential reports false when the service rejects the key and an error
// when the answer could not be obtained.
func (c *Client) ValidateCredential(ctx context.Context, apiKey string) (bool, error) {
	err := c.fetch(ctx, c.endpoint("v1", "usage"), apiKey, nil)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

func (c *Client) endpoint(elem ...string) string {
	return c.baseURL.JoinPath(elem...).String()
}

// fetch performs an idempotent GET with retries
func (c *Client) fetch(ctx context.Context, target, apiKey string, out any) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.do(ctx, http.MethodGet, target, apiKey, "", nil, out)
		if err == nil {
			return struct{}{}, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		c.logger.Warn("Scan service call failed, retrying",
			zap.Error(err),
			zap.String("url", target),
			zap.Int("attempt", attempt))
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.maxRetries)+1),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, target, apiKey, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Scan service call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		message = payload.Error
		if message == "" {
			message = payload.Message
		}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
