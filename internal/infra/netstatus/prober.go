package netstatus

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ProbeFunc returns nil when the backend is reachable.
type ProbeFunc func(ctx context.Context) error

// ProberConfig controls probe cadence.
type ProberConfig struct {
	Interval   time.Duration // between probes while online
	Timeout    time.Duration // per probe
	MinBackoff time.Duration // first re-probe delay while offline, doubles up to Interval
}

// DefaultProberConfig provides sane probe settings.
var DefaultProberConfig = ProberConfig{
	Interval:   5 * time.Second,
	Timeout:    2 * time.Second,
	MinBackoff: 250 * time.Millisecond,
}

// Prober is a Provider that periodically runs a probe.
type Prober struct {
	name  string
	probe ProbeFunc
	cfg   ProberConfig
	log   *slog.Logger

	mu     sync.RWMutex
	online bool
	subs   subscribers
}

// NewProber creates a prober. It reports online until the first probe says
// otherwise.
func NewProber(name string, probe ProbeFunc, cfg ProberConfig, logger *slog.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProberConfig.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProberConfig.Timeout
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultProberConfig.MinBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		name:   name,
		probe:  probe,
		cfg:    cfg,
		log:    logger.With("prober", name),
		online: true,
	}
}

// Online implements Provider.
func (p *Prober) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// Subscribe implements Provider.
func (p *Prober) Subscribe(fn func(bool)) func() {
	return p.subs.add(fn)
}

// Check runs a single probe and publishes the result.
func (p *Prober) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := p.probe(probeCtx)
	if ctx.Err() != nil {
		// shutting down, keep the last state
		return p.Online()
	}
	if err != nil {
		p.log.Debug("probe failed", "error", err)
	}
	p.set(err == nil)
	return err == nil
}

// Run probes until ctx is canceled. While offline it re-probes with
// exponential backoff capped at the online interval.
func (p *Prober) Run(ctx context.Context) error {
	p.log.Info("prober started", "interval", p.cfg.Interval)
	backoff := p.newBackoff()

	for {
		var wait time.Duration
		if p.Check(ctx) {
			backoff = p.newBackoff()
			wait = p.cfg.Interval
		} else {
			wait, _ = backoff.Next()
		}
		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("prober stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (p *Prober) newBackoff() goretry.Backoff {
	return goretry.WithCappedDuration(p.cfg.Interval, goretry.NewExponential(p.cfg.MinBackoff))
}

func (p *Prober) set(online bool) {
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if !changed {
		return
	}
	if online {
		p.log.Info("backend reachable")
	} else {
		p.log.Warn("backend unreachable")
	}
	p.subs.publish(online)
}

// HTTPProbe returns a probe that succeeds when url answers at all. Error
// statuses are the breaker's concern, not connectivity. A nil client uses
// http.DefaultClient.
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create probe request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

// GRPCProbe returns a probe using the standard gRPC health service.
// Anything other than SERVING counts as unreachable.
func GRPCProbe(conn grpc.ClientConnInterface, service string) ProbeFunc {
	client := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("health status %s", resp.GetStatus())
		}
		return nil
	}
}

// DialHealth opens a lazy gRPC connection for health probing. https:// or
// a :443 port selects TLS.
func DialHealth(endpoint string) (*grpc.ClientConn, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}
	return conn, nil
}
