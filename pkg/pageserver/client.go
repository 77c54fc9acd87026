// Package pageserver implements the bounded page-server client façade
// named component B in spec §2: send/flush/receive over the transport
// (§6.2), wrapped with the circuit breaker, retry, logging and
// tracing that spec §4.8/§4.9 name as the ambient and domain stack
// for this boundary.
package pageserver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/riverdb/pagestore-smgr/pkg/protocol"
)

// Client is the page-server client façade. One Client is owned by one
// backend's prefetch.Pipeline; it is not safe for concurrent use from
// multiple goroutines, matching the single-owner model of spec §5.
type Client struct {
	transport Transport
	breaker   *gobreaker.CircuitBreaker
	logger    log.Logger
	connID    uuid.UUID
	metrics   *metrics
}

// NewClient wraps transport with the façade's retry/circuit-breaker/
// tracing behavior. reg may be nil, in which case metrics are
// registered against a private registry.
func NewClient(transport Transport, logger log.Logger, reg prometheus.Registerer) *Client {
	connID := uuid.New()
	logger = log.With(logger, "conn_id", connID.String())

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pageserver-client",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{
		transport: transport,
		breaker:   breaker,
		logger:    logger,
		connID:    connID,
		metrics:   newMetrics(reg),
	}
}

// ConnID identifies this client's underlying connection; every log line
// the client writes carries it as conn_id.
func (c *Client) ConnID() uuid.UUID { return c.connID }

// Unavailable reports whether the circuit breaker is currently open,
// i.e. repeated disconnects mean this client should not be retried
// until the breaker's timeout elapses.
func (c *Client) Unavailable() bool {
	return c.breaker.State() == gobreaker.StateOpen
}

// Send encodes and hands req to the transport. Per spec Open Question
// (a) the source retries an unbounded "while (!send());" busy loop; we
// preserve that retry-until-accepted behavior but bound it by ctx and
// make every retry observable (metric + backoff + log), rather than
// guessing whether the unbounded spin was intentional back-pressure.
func (c *Client) Send(ctx context.Context, req *protocol.Request) bool {
	ctx, span := tracer.Start(ctx, "Client.Send")
	defer span.End()
	span.SetAttributes(attribute.Int("pageserver.request_tag", int(req.Tag)))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Millisecond
		b.MaxInterval = 50 * time.Millisecond
		bctx := backoff.WithContext(b, ctx)

		for {
			if c.transport.Send(ctx, req) {
				return true, nil
			}
			c.metrics.sendRetries.Inc()
			level.Debug(c.logger).Log("msg", "send rejected by transport, retrying", "request_tag", req.Tag)

			d := bctx.NextBackOff()
			if d == backoff.Stop {
				return false, ErrDisconnected
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return false, ErrDisconnected
			}
		}
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.disconnects.Inc()
		level.Warn(c.logger).Log("msg", "send failed", "err", err)
		return false
	}
	return result.(bool)
}

// Flush forces the transport's outbound buffer onto the wire.
func (c *Client) Flush(ctx context.Context) bool {
	ctx, span := tracer.Start(ctx, "Client.Flush")
	defer span.End()

	ok := c.transport.Flush(ctx)
	if !ok {
		span.SetStatus(codes.Error, "flush failed")
		c.metrics.disconnects.Inc()
		level.Warn(c.logger).Log("msg", "flush failed")
	}
	return ok
}

// Receive blocks for the next response in FIFO order.
func (c *Client) Receive(ctx context.Context) (*protocol.Response, bool) {
	ctx, span := tracer.Start(ctx, "Client.Receive")
	defer span.End()

	resp, ok := c.transport.Receive(ctx)
	if !ok {
		span.SetStatus(codes.Error, "receive failed")
		c.metrics.disconnects.Inc()
		level.Warn(c.logger).Log("msg", "receive failed, treating as disconnect")
		return nil, false
	}
	if resp.Tag == protocol.TagErrorResponse {
		level.Warn(c.logger).Log("msg", "page server returned an error", "err", resp.ErrorMsg)
	}
	span.SetAttributes(attribute.Int("pageserver.response_tag", int(resp.Tag)))
	return resp, true
}
