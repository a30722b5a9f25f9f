// Package clients provides the shared HTTP client for destination adapters
package clients

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/maccman/opentrack-sub000/pkg/errors"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`
}

// DefaultHTTPConfig returns the configuration destination adapters use. The
// request timeout is the only deadline a delivery call carries; there is no
// overall fan-out deadline.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		EnableHTTP2:         true,
		DialTimeout:         5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		RequestTimeout:      10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// HTTPClient is a pooled HTTP client that speaks JSON and normalizes
// non-2xx responses into classified errors.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("failed to enable HTTP/2, falling back to HTTP/1.1", zap.Error(err))
		}
	}

	return &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
	}
}

// DoJSON sends a JSON request and decodes a JSON response into out (which may
// be nil). Transport failures and non-2xx statuses come back as classified
// *errors.Error values; the caller never sees a raw *http.Response.
func (c *HTTPClient) DoJSON(ctx context.Context, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Responses are small; read fully so the connection can be reused.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Classify(err)
	}

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.ClassifyStatus(resp.StatusCode, responseMessage(respBody, resp.StatusCode))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return errors.Wrap(err, errors.ErrorTypeUnknown, "failed to decode response body")
		}
	}

	return nil
}

// responseMessage extracts a human error string from a response body,
// preferring common JSON error shapes over the raw body.
func responseMessage(body []byte, status int) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) > 0 && len(body) <= 256 {
		return string(body)
	}
	return http.StatusText(status)
}
