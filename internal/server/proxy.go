package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Per-call controls a proxied client may send. They are not forwarded.
const (
	HeaderTimeout     = "X-Relay-Timeout"      // Go duration, per-attempt override
	HeaderNoQueue     = "X-Relay-No-Queue"     // "true" fails fast while offline
	HeaderMaxAttempts = "X-Relay-Max-Attempts" // retry budget override
	HeaderAttempts    = "X-Relay-Attempts"     // set on responses
)

const defaultMaxRequestBody = 16 << 20

var errBodyTooLarge = errors.New("request body too large")

// hop-by-hop headers are not forwarded in either direction
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

type proxy struct {
	pipeline Pipeline
	log      *slog.Logger
	maxBody  int64
}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := p.buildRequest(r)
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", err.Error(), 0)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), 0)
		return
	}

	resp, err := p.pipeline.Execute(r.Context(), req)
	if resp != nil {
		copyHeaders(w.Header(), resp.Header)
		w.Header().Set(HeaderAttempts, strconv.Itoa(resp.Attempts))
		w.WriteHeader(resp.StatusCode)
		w.Write(resp.Body)
		return
	}
	if r.Context().Err() != nil {
		// client went away
		return
	}

	p.log.Debug("proxied request failed", "method", req.Method, "target", req.Target, "error", err)

	var derr *domain.Error
	if !errors.As(err, &derr) {
		writeError(w, http.StatusBadGateway, "unknown", err.Error(), 0)
		return
	}
	switch derr.Kind {
	case domain.KindCircuitOpen:
		writeError(w, http.StatusServiceUnavailable, derr.Kind.String(), derr.Error(), derr.RetryIn)
	case domain.KindNetworkOffline:
		writeError(w, http.StatusServiceUnavailable, derr.Kind.String(), derr.Error(), 0)
	case domain.KindServerDown:
		code := http.StatusBadGateway
		if errors.Is(derr, domain.ErrTimeout) {
			code = http.StatusGatewayTimeout
		}
		writeError(w, code, derr.Kind.String(), derr.Error(), 0)
	case domain.KindInvalidRequest:
		writeError(w, http.StatusInternalServerError, derr.Kind.String(), derr.Error(), 0)
	default:
		writeError(w, http.StatusBadGateway, derr.Kind.String(), derr.Error(), 0)
	}
}

func (p *proxy) buildRequest(r *http.Request) (*domain.Request, error) {
	limit := p.maxBody
	if limit <= 0 {
		limit = defaultMaxRequestBody
	}
	if r.ContentLength > limit {
		return nil, errBodyTooLarge
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > limit {
			return nil, errBodyTooLarge
		}
	}

	req := domain.NewRequest(r.Method, r.URL.RequestURI(), body)
	if id := r.Header.Get(domain.HeaderRequestID); id != "" {
		req.ID = id
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Del(domain.HeaderRequestID)

	if v := r.Header.Get(HeaderTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, errors.New("invalid " + HeaderTimeout)
		}
		req.Timeout = d
	}
	if v := r.Header.Get(HeaderNoQueue); v != "" {
		noQueue, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.New("invalid " + HeaderNoQueue)
		}
		req.NoQueue = noQueue
	}
	if v := r.Header.Get(HeaderMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.New("invalid " + HeaderMaxAttempts)
		}
		req.Attempt.MaxAttempts = n
	}
	for _, h := range []string{HeaderTimeout, HeaderNoQueue, HeaderMaxAttempts} {
		req.Header.Del(h)
	}
	return req, nil
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

type errorBody struct {
	Error          string  `json:"error"`
	Message        string  `json:"message"`
	RetryInSeconds float64 `json:"retry_in_seconds,omitempty"`
}

func writeError(w http.ResponseWriter, code int, kind, msg string, retryIn time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	if retryIn > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryIn.Seconds()))))
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorBody{Error: kind, Message: msg, RetryInSeconds: retryIn.Seconds()})
}
