// Package transport performs single HTTP attempts against the backend.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Config holds backend connection settings.
type Config struct {
	BaseURL             string        `yaml:"base_url"`
	UserAgent           string        `yaml:"user_agent"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
	MaxResponseBytes    int64         `yaml:"max_response_bytes"`
}

const defaultMaxResponseBytes = 32 << 20

// HTTP dispatches one attempt per call. It never retries and never
// interprets status codes; both belong to the pipeline.
type HTTP struct {
	base       string
	userAgent  string
	maxBody    int64
	httpClient *http.Client
}

// NewHTTP creates a dispatcher for the backend at cfg.BaseURL. Timeouts
// come from the per-attempt context, not the client.
func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
		}
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}

	return &HTTP{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxResponseBytes,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
			},
		},
	}, nil
}

// URL resolves a request target against the base URL.
func (h *HTTP) URL(target string) (string, error) {
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		return target, nil
	}
	if h.base == "" {
		return "", fmt.Errorf("relative target %q without a base url", target)
	}
	return h.base + "/" + strings.TrimLeft(target, "/"), nil
}

// Dispatch sends req once. Any received response is returned without
// error, whatever its status.
func (h *HTTP) Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	start := time.Now()

	target, err := h.URL(req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotDispatched, err)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { domain.NotifyDispatched(ctx) },
	}
	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrNotDispatched, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.ID != "" {
		httpReq.Header.Set(domain.HeaderRequestID, req.ID)
	}
	if h.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > h.maxBody {
		return nil, fmt.Errorf("%w: http %d, more than %d bytes", domain.ErrResponseTooLarge, resp.StatusCode, h.maxBody)
	}

	return &domain.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Latency:    time.Since(start),
	}, nil
}

// Close releases idle connections.
func (h *HTTP) Close() {
	h.httpClient.CloseIdleConnections()
}
