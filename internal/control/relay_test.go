package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/netstatus"
	"github.com/vietddude/relay/internal/infra/token"
	"github.com/vietddude/relay/internal/server"
)

func TestRelay_Lifecycle(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	cfg := config.Default()
	cfg.Server.Port = 0 // Random port
	cfg.Backend.BaseURL = backend.URL
	cfg.Token.Storage = config.StorageMemory
	cfg.Network.Mode = config.NetworkHTTP
	cfg.Network.Interval = 50 * time.Millisecond

	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := r.Client().Execute(context.Background(), domain.NewRequest(http.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("unexpected body %s", resp.Body)
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := r.Wait(); err != nil {
		t.Errorf("Wait returned %v", err)
	}
}

func TestRelay_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Network.Mode = "carrier-pigeon"

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestRelay_OfflineProviderQueues(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	cfg := config.Default()
	cfg.Backend.BaseURL = backend.URL

	net := netstatus.NewStatic(false)
	r, err := New(context.Background(), cfg,
		WithProvider(net),
		WithStorage(token.NewMemoryStorage()),
		WithReauth(func(context.Context) {}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.Client().Execute(context.Background(), domain.NewRequest(http.MethodPost, "/bills", []byte(`{}`)))
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for r.Client().Status().QueueDepth != 1 {
		if time.Now().After(deadline) {
			t.Fatal("request was not queued")
		}
		time.Sleep(time.Millisecond)
	}

	net.SetOnline(true)
	if err := <-done; err != nil {
		t.Errorf("queued request failed: %v", err)
	}
}

type failingStorage struct {
	*token.MemoryStorage
}

func (failingStorage) Health(context.Context) error { return errors.New("storage unreachable") }

func healthReport(t *testing.T, r *Relay) server.HealthReport {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_relay/health", nil))

	var report server.HealthReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return report
}

func TestRelay_HealthReportsStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.BaseURL = "http://localhost:1"

	r, err := New(context.Background(), cfg, WithStorage(failingStorage{token.NewMemoryStorage()}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	report := healthReport(t, r)
	if report.Status != server.StatusDegraded {
		t.Errorf("status = %s, want degraded", report.Status)
	}
	if report.Checks["storage"] != "storage unreachable" {
		t.Errorf("storage check = %q", report.Checks["storage"])
	}
}

func TestRelay_DatabaseStorageHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.BaseURL = "http://localhost:1"
	cfg.Token.Storage = config.StorageDatabase
	cfg.Database.Driver = "sqlite3"
	cfg.Database.URL = filepath.Join(t.TempDir(), "relay.db")

	r, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	report := healthReport(t, r)
	if report.Status != server.StatusHealthy {
		t.Errorf("status = %s, want healthy", report.Status)
	}
	if report.Checks["storage"] != "ok" {
		t.Errorf("storage check = %q", report.Checks["storage"])
	}
}
