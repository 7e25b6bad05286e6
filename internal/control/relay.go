package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/relay/internal/client"
	"github.com/vietddude/relay/internal/core/config"
	"github.com/vietddude/relay/internal/core/worker"
	"github.com/vietddude/relay/internal/infra/netstatus"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
	"github.com/vietddude/relay/internal/infra/storage/sqlstore"
	"github.com/vietddude/relay/internal/infra/token"
	"github.com/vietddude/relay/internal/infra/transport"
	"github.com/vietddude/relay/internal/metrics"
	"github.com/vietddude/relay/internal/server"
)

// Relay is the main application struct that manages the pipeline lifecycle.
type Relay struct {
	cfg        *config.AppConfig
	client     *client.Context
	monitor    *netstatus.Monitor
	prober     *netstatus.Prober // nil in static mode
	dispatcher *transport.HTTP
	server     *server.Server
	sweeper    *worker.ExpirySweeper
	closers    []io.Closer
	log        *slog.Logger

	group *errgroup.Group
}

// healthChecker is implemented by storages backed by a server.
type healthChecker interface {
	Health(ctx context.Context) error
}

// Option customizes a Relay.
type Option func(*options)

type options struct {
	reauth   token.ReauthFunc
	provider netstatus.Provider
	storage  token.Storage
}

// WithReauth sets the callback run after the backend rejected the token.
func WithReauth(fn token.ReauthFunc) Option {
	return func(o *options) { o.reauth = fn }
}

// WithProvider overrides the configured network status source.
func WithProvider(p netstatus.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithStorage overrides the configured token storage.
func WithStorage(s token.Storage) Option {
	return func(o *options) { o.storage = s }
}

// New wires every component from configuration.
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Relay{
		cfg: cfg,
		log: slog.Default().With("component", "relay"),
	}

	var serverOpts []server.Option
	storage := o.storage
	if storage == nil {
		var closer io.Closer
		var err error
		storage, closer, err = OpenStorage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			r.closers = append(r.closers, closer)
		}
		if hc, ok := closer.(healthChecker); ok {
			serverOpts = append(serverOpts, server.WithCheck("storage", hc.Health))
		}
	} else if hc, ok := storage.(healthChecker); ok {
		serverOpts = append(serverOpts, server.WithCheck("storage", hc.Health))
	}

	reauth := o.reauth
	if reauth == nil {
		reauth = func(context.Context) {
			r.log.Warn("Backend rejected the credential; log in again or run `relay token set`")
		}
	}
	tokens, err := token.NewStore(ctx, storage, cfg.Token.Key, reauth, nil)
	if err != nil {
		r.closeAll()
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		provider, err = r.openProvider()
		if err != nil {
			r.closeAll()
			return nil, err
		}
	}
	r.monitor = netstatus.NewMonitor(provider, nil)

	r.dispatcher, err = transport.NewHTTP(cfg.Backend.Config)
	if err != nil {
		r.closeAll()
		return nil, err
	}

	r.client = client.New(client.Config{
		Name:           cfg.Backend.Name,
		DefaultTimeout: cfg.Backend.DefaultTimeout,
		Retry:          cfg.Retry,
		Circuit:        cfg.Circuit,
		QueueMaxDepth:  cfg.Queue.MaxDepth,
	}, r.dispatcher, r.monitor, tokens)

	r.sweeper = worker.NewExpirySweeper(cfg.Token.SweepInterval, tokens, func() {
		metrics.TokenClears.WithLabelValues(cfg.Backend.Name).Inc()
	})

	serverOpts = append(serverOpts, server.WithMaxRequestBody(cfg.Server.MaxRequestBytes))
	r.server = server.NewServer(r.client, cfg.Server.Port, nil, serverOpts...)
	return r, nil
}

// OpenStorage opens the configured token storage. The returned closer is
// nil when nothing needs releasing.
func OpenStorage(ctx context.Context, cfg *config.AppConfig) (token.Storage, io.Closer, error) {
	switch cfg.Token.Storage {
	case config.StorageMemory:
		return token.NewMemoryStorage(), nil, nil
	case config.StorageRedis:
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		return rc, rc, nil
	case config.StorageDatabase:
		db, err := sqlstore.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		return sqlstore.NewTokenRepo(db), db, nil
	default:
		return token.NewFileStorage(cfg.Token.File), nil, nil
	}
}

func (r *Relay) openProvider() (netstatus.Provider, error) {
	n := r.cfg.Network
	pc := netstatus.ProberConfig{Interval: n.Interval, Timeout: n.Timeout, MinBackoff: n.MinBackoff}

	switch n.Mode {
	case config.NetworkHTTP:
		url := n.ProbeURL
		if url == "" {
			url = r.cfg.Backend.BaseURL
		}
		r.prober = netstatus.NewProber("http", netstatus.HTTPProbe(&http.Client{}, url), pc, nil)
		return r.prober, nil
	case config.NetworkGRPC:
		conn, err := netstatus.DialHealth(n.GRPCTarget)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, conn)
		r.prober = netstatus.NewProber("grpc", netstatus.GRPCProbe(conn, n.GRPCService), pc, nil)
		return r.prober, nil
	default:
		return netstatus.NewStatic(true), nil
	}
}

// Config returns the configuration the relay was built from.
func (r *Relay) Config() *config.AppConfig {
	return r.cfg
}

// Client returns the pipeline.
func (r *Relay) Client() *client.Context {
	return r.client
}

// Handler returns the HTTP handler of the relay server.
func (r *Relay) Handler() http.Handler {
	return r.server.Handler()
}

// Probe runs one connectivity check when a prober is configured.
func (r *Relay) Probe(ctx context.Context) {
	if r.prober != nil {
		r.prober.Check(ctx)
	}
}

// Start launches the server and the prober. It returns once they are
// running; Wait reports their exit.
func (r *Relay) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	r.group = g

	g.Go(func() error {
		if err := r.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	})
	if r.prober != nil {
		g.Go(func() error { return r.prober.Run(ctx) })
	}
	g.Go(func() error { return r.sweeper.Start(ctx) })
	return nil
}

// Wait blocks until every started task returned.
func (r *Relay) Wait() error {
	if r.group == nil {
		return nil
	}
	return r.group.Wait()
}

// Stop shuts the server down and releases connections.
func (r *Relay) Stop(ctx context.Context) error {
	r.log.Info("Stopping relay...")

	err := r.server.Stop(ctx)
	r.Close()
	return err
}

// Close releases resources without touching the server.
func (r *Relay) Close() {
	if r.client != nil {
		r.client.Close()
	}
	if r.monitor != nil {
		r.monitor.Close()
	}
	if r.dispatcher != nil {
		r.dispatcher.Close()
	}
	r.closeAll()
}

func (r *Relay) closeAll() {
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			r.log.Warn("Failed to close resource", "error", err)
		}
	}
	r.closers = nil
}
