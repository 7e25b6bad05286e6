package client

import (
	"context"
	"errors"
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/queue"
	"github.com/vietddude/relay/internal/infra/retry"
	"github.com/vietddude/relay/internal/metrics"
)

// Execute runs req through the pipeline: offline queueing, circuit
// breaking, credential attachment, dispatch and bounded retries.
//
// When the backend answered, the final response is returned even
// alongside an error so callers can inspect the body.
func (c *Context) Execute(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	resp, err := c.admit(ctx, req)
	c.observe(err)
	return resp, err
}

func (c *Context) admit(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	var entry *queue.Entry
	var admitErr error

	c.monitor.Admit(func(online bool) {
		if online {
			return
		}
		if req.NoQueue {
			admitErr = &domain.Error{Kind: domain.KindNetworkOffline}
			return
		}
		var err error
		entry, err = c.queue.Enqueue(ctx, req)
		if errors.Is(err, queue.ErrFull) {
			admitErr = &domain.Error{Kind: domain.KindNetworkOffline, Message: "offline queue full", Cause: err}
		}
	})
	if admitErr != nil {
		return nil, admitErr
	}

	if entry != nil {
		c.log.Debug("request queued until network returns", "id", req.ID, "method", req.Method, "target", req.Target)
		return entry.Completion.Wait(ctx)
	}
	return c.run(ctx, req, nil)
}

// Drain replays the offline queue in submission order. Each entry is
// started only after the previous one reached the network or finished,
// so dispatch order matches submission order.
func (c *Context) Drain() {
	entries := c.queue.Drain()
	if len(entries) == 0 {
		return
	}
	c.log.Info("replaying offline queue", "count", len(entries))

	for _, e := range entries {
		if e.Completion.Resolved() {
			continue
		}

		started := make(chan struct{})
		var once sync.Once
		signal := func() { once.Do(func() { close(started) }) }

		go func(e *queue.Entry) {
			resp, err := c.run(e.Ctx, e.Request.Fresh(), signal)
			e.Completion.Resolve(resp, err)
		}(e)
		<-started
	}
}

// run is the attempt loop. dispatched, when set, is called once the first
// attempt left the process or the loop ended without dispatching.
func (c *Context) run(ctx context.Context, req *domain.Request, dispatched func()) (*domain.Response, error) {
	if dispatched == nil {
		dispatched = func() {}
	}
	defer dispatched()

	// credentials are attached per attempt on top of the caller's headers
	header := req.Header.Clone()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !c.breaker.CanAttempt() {
			metrics.RejectedTotal.WithLabelValues(c.name).Inc()
			return nil, domain.NewCircuitOpenError(c.breaker.RemainingCooldown())
		}
		req.Attempt.Count++
		req.Header = header.Clone()
		c.tokens.Attach(req)

		resp, err := c.attempt(ctx, req, dispatched)
		if resp != nil {
			resp.Attempts = req.Attempt.Count
		}

		switch retry.Classify(ctx, resp, err) {
		case retry.ClassSuccess:
			c.breaker.RecordSuccess()
			return resp, nil

		case retry.ClassCanceled:
			c.breaker.ReleaseProbe()
			return nil, ctx.Err()

		case retry.ClassLocal:
			c.breaker.ReleaseProbe()
			return nil, retry.AttemptError(resp, err)

		case retry.ClassUnauthorized:
			c.breaker.ReleaseProbe()
			metrics.TokenClears.WithLabelValues(c.name).Inc()
			c.tokens.OnUnauthorized(ctx)
			return resp, domain.NewStatusError(resp)

		case retry.ClassTerminal:
			if c.cfg.Circuit.IgnoreClientErrors {
				c.breaker.ReleaseProbe()
			} else {
				c.breaker.RecordFailure()
			}
			return resp, domain.NewStatusError(resp)

		case retry.ClassRetryable:
			c.breaker.RecordFailure()
			lastErr := retry.AttemptError(resp, err)

			delay, ok := c.policy.Next(req.Attempt.Count, req.Attempt.MaxAttempts)
			if !ok {
				c.log.Warn("retry budget exhausted",
					"id", req.ID, "target", req.Target, "attempts", req.Attempt.Count, "error", lastErr)
				return resp, domain.NewServerDownError(lastErr)
			}

			metrics.RetriesTotal.WithLabelValues(c.name).Inc()
			c.log.Debug("retrying request",
				"id", req.ID, "target", req.Target, "attempt", req.Attempt.Count, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
}

func (c *Context) attempt(ctx context.Context, req *domain.Request, dispatched func()) (*domain.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.EffectiveTimeout(c.cfg.DefaultTimeout))
	defer cancel()

	start := c.now()
	resp, err := c.dispatcher.Dispatch(domain.WithDispatchHook(attemptCtx, dispatched), req)
	dispatched()

	metrics.DispatchLatency.WithLabelValues(c.name).Observe(c.now().Sub(start).Seconds())
	metrics.DispatchesTotal.WithLabelValues(c.name, dispatchClass(resp, err)).Inc()
	return resp, err
}

func (c *Context) observe(err error) {
	outcome := "success"
	if err != nil {
		outcome = domain.KindOf(err).String()
		if domain.KindOf(err) == domain.KindUnknown &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			outcome = "canceled"
		}
	}
	metrics.RequestsTotal.WithLabelValues(c.name, outcome).Inc()
}

func dispatchClass(resp *domain.Response, err error) string {
	switch {
	case err != nil && retry.IsTimeout(err):
		return "timeout"
	case err != nil || resp == nil:
		return "error"
	case resp.StatusCode >= 500:
		return "5xx"
	case resp.StatusCode >= 400:
		return "4xx"
	case resp.StatusCode >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
