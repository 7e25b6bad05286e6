package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Per-call timeout overrides used by long-running or latency-sensitive callers.
const (
	TimeoutDefault = 4 * time.Second
	TimeoutSearch  = 1500 * time.Millisecond
	TimeoutCreate  = 8 * time.Second
	TimeoutBulk    = 10 * time.Second
	TimeoutReport  = 20 * time.Second
	TimeoutSync    = 60 * time.Second
)

// HeaderRequestID carries the logical request ID across retries.
const HeaderRequestID = "X-Request-ID"

// Attempt is the mutable retry state of one logical request.
type Attempt struct {
	Count       int // dispatches made so far
	MaxAttempts int // 0 means the policy default
}

// Request describes one logical outgoing call.
// The same instance is reused across retries of that call.
type Request struct {
	ID      string
	Method  string
	Target  string // path relative to the backend base URL, or an absolute URL
	Header  http.Header
	Body    []byte
	Timeout time.Duration // per-attempt override, 0 uses the default

	// NoQueue makes the request fail with ErrNetworkOffline instead of
	// waiting in the offline queue.
	NoQueue bool

	Attempt Attempt
}

// NewRequest creates a request with a fresh ID.
func NewRequest(method, target string, body []byte) *Request {
	return &Request{
		ID:     uuid.NewString(),
		Method: method,
		Target: target,
		Header: make(http.Header),
		Body:   body,
	}
}

// NewJSONRequest marshals v as the request body.
func NewJSONRequest(method, target string, v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	r := NewRequest(method, target, body)
	r.Header.Set("Content-Type", "application/json")
	return r, nil
}

// WithTimeout sets the per-attempt timeout override and returns r.
func (r *Request) WithTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// WithMaxAttempts overrides the retry budget for this call and returns r.
func (r *Request) WithMaxAttempts(n int) *Request {
	r.Attempt.MaxAttempts = n
	return r
}

// Fresh returns a copy with the attempt counter reset, used when a queued
// request is replayed after reconnect.
func (r *Request) Fresh() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	c.Attempt.Count = 0
	return &c
}

// EffectiveTimeout returns the override if set, else def.
func (r *Request) EffectiveTimeout(def time.Duration) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return def
}

// Response is what the backend answered for the final attempt.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
	Latency    time.Duration
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
