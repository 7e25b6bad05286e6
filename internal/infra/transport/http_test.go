package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

func TestHTTP_URL(t *testing.T) {
	h, err := NewHTTP(Config{BaseURL: "http://api.local/v1/"})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	tests := []struct {
		target string
		expect string
	}{
		{"/bills", "http://api.local/v1/bills"},
		{"bills?page=2", "http://api.local/v1/bills?page=2"},
		{"https://other.local/x", "https://other.local/x"},
	}
	for _, tt := range tests {
		got, err := h.URL(tt.target)
		if err != nil {
			t.Fatalf("URL(%q): %v", tt.target, err)
		}
		if got != tt.expect {
			t.Errorf("URL(%q) = %q, want %q", tt.target, got, tt.expect)
		}
	}
}

func TestNewHTTP_InvalidBase(t *testing.T) {
	if _, err := NewHTTP(Config{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for invalid base url")
	}
}

func TestHTTP_Dispatch(t *testing.T) {
	var gotMethod, gotPath, gotCT, gotAuth, gotID, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(domain.HeaderRequestID)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"b1"}`))
	}))
	defer server.Close()

	h, err := NewHTTP(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}

	req := domain.NewRequest(http.MethodPost, "/bills", []byte(`{"total":10}`))
	req.Header.Set("Authorization", "Bearer t")

	resp, err := h.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"id":"b1"}` {
		t.Errorf("body = %s", resp.Body)
	}
	if gotMethod != http.MethodPost || gotPath != "/bills" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q, want application/json default", gotCT)
	}
	if gotAuth != "Bearer t" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotID != req.ID {
		t.Errorf("%s = %q, want %q", domain.HeaderRequestID, gotID, req.ID)
	}
	if gotBody != `{"total":10}` {
		t.Errorf("server body = %q", gotBody)
	}
}

func TestHTTP_DispatchNotifiesHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h, _ := NewHTTP(Config{BaseURL: server.URL})
	var notified atomic.Int32
	ctx := domain.WithDispatchHook(context.Background(), func() { notified.Add(1) })

	if _, err := h.Dispatch(ctx, domain.NewRequest(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n := notified.Load(); n != 1 {
		t.Errorf("hook called %d times, want 1", n)
	}
}

func TestHTTP_DispatchErrorStatusIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	h, _ := NewHTTP(Config{BaseURL: server.URL})
	resp, err := h.Dispatch(context.Background(), domain.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHTTP_DispatchHonorsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	h, _ := NewHTTP(Config{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := h.Dispatch(ctx, domain.NewRequest(http.MethodGet, "/", nil)); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("dispatch should stop at the context deadline")
	}
}

func TestHTTP_DispatchRejectsOversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 17)))
	}))
	defer server.Close()

	h, _ := NewHTTP(Config{BaseURL: server.URL, MaxResponseBytes: 16})
	resp, err := h.Dispatch(context.Background(), domain.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(err, domain.ErrResponseTooLarge) {
		t.Fatalf("err = %v, want ErrResponseTooLarge", err)
	}
	if resp != nil {
		t.Errorf("truncated response returned: %q", resp.Body)
	}
}

func TestHTTP_DispatchAcceptsBodyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer server.Close()

	h, _ := NewHTTP(Config{BaseURL: server.URL, MaxResponseBytes: 16})
	resp, err := h.Dispatch(context.Background(), domain.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(resp.Body) != 16 {
		t.Errorf("body length = %d, want 16", len(resp.Body))
	}
}

func TestHTTP_DispatchRelativeTargetWithoutBase(t *testing.T) {
	h, _ := NewHTTP(Config{})
	_, err := h.Dispatch(context.Background(), domain.NewRequest(http.MethodGet, "/bills", nil))
	if !errors.Is(err, domain.ErrNotDispatched) {
		t.Fatalf("err = %v, want ErrNotDispatched", err)
	}
}
