package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-intake/internal/application/port"
	"github.com/garyjia/invoice-intake/internal/domain/event"
	"github.com/garyjia/invoice-intake/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Options tune the NATS connection
type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// Publisher publishes domain events as JSON on the subject of their type
type Publisher struct {
	conn     Conn
	executor *resilience.Executor
	logger   *zap.Logger
}

// Connect dials the NATS server and returns a publisher over the connection
func Connect(url string, options Options, executor *resilience.Executor, logger *zap.Logger) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", url))
	return NewPublisher(conn, executor, logger), nil
}

// NewPublisher creates a publisher over an existing connection
func NewPublisher(conn Conn, executor *resilience.Executor, logger *zap.Logger) *Publisher {
	return &Publisher{conn: conn, executor: executor, logger: logger}
}

// Publish marshals e and publishes it on its type's subject
func (p *Publisher) Publish(ctx context.Context, e event.Event) error {
	subject := e.EventType().Subject()
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return err
	}

	p.logger.Debug("Event published",
		zap.String("subject", subject),
		zap.String("event_type", string(e.EventType())))
	return nil
}

// Close closes the underlying connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// NoopPublisher discards events; used when no NATS URL is configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, event.Event) error { return nil }

var (
	_ port.EventPublisher = (*Publisher)(nil)
	_ port.EventPublisher = NoopPublisher{}
)
