package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/infrastructure/resilience"
)

const queueGroup = "backfill-workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("inbox-triage"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats_disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats_reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishBackfillRequested(ctx context.Context, req domain.BackfillRequest) error {
	payload, err := encodeRequest(req)
	if err != nil {
		return err
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return publishError(req, err)
	}
	return nil
}

func (q *Queue) SubscribeBackfillRequested(ctx context.Context, handler func(context.Context, domain.BackfillRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// dispatch decodes one delivery and runs handler. Bad payloads and handler
// failures are logged; the message is not redelivered.
func dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.BackfillRequest) error) {
	req, err := decodeRequest(data)
	if err != nil {
		log.Error().Err(err).Int("bytes", len(data)).Msg("backfill_request_invalid")
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, req); err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("backfill_handler_failed")
	}
}

func encodeRequest(req domain.BackfillRequest) ([]byte, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode backfill request", errors.New("user_id is required"))
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal backfill request: %w", err)
	}
	return payload, nil
}

func decodeRequest(data []byte) (domain.BackfillRequest, error) {
	var req domain.BackfillRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.BackfillRequest{}, fmt.Errorf("unmarshal backfill request: %w", err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.BackfillRequest{}, errors.New("backfill request without user_id")
	}
	return req, nil
}
