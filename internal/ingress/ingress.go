// Package ingress consumes raw capture and screenshot messages from the
// transport, validates them and forwards normalized events to the correlator.
package ingress

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
	"github.com/git-apexplanners/wsscapt/internal/usecase"
)

// EventSink is the correlator-facing side of the ingress. A non-nil error
// from OnCapture means the event was not admitted and should be redelivered.
type EventSink interface {
	OnCapture(ctx context.Context, ev domain.CaptureEvent) error
	OnScreenshot(ctx context.Context, ev domain.ScreenshotEvent)
}

type Ingress struct {
	transport usecase.Transport
	sink      EventSink
	logger    *zerolog.Logger
	metrics   *observability.Metrics

	// fileExists is swapped in tests
	fileExists func(string) bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(transport usecase.Transport, sink EventSink, logger *zerolog.Logger, metrics *observability.Metrics) *Ingress {
	return &Ingress{
		transport:  transport,
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		fileExists: func(p string) bool { _, err := os.Stat(p); return err == nil },
	}
}

func (i *Ingress) Start(ctx context.Context) error {
	ctx, i.cancel = context.WithCancel(ctx)
	i.done = make(chan struct{})
	go func() {
		defer close(i.done)
		if err := i.transport.Consume(ctx, i.Handle); err != nil && ctx.Err() == nil {
			i.logger.Error().Err(err).Msg("transport consumer stopped")
		}
	}()
	return nil
}

func (i *Ingress) Stop(ctx context.Context) error {
	if i.cancel == nil {
		return nil
	}
	i.cancel()
	select {
	case <-i.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	i.cancel = nil
	return nil
}

func (i *Ingress) Health() error { return nil }

// Handle processes one delivery. Invalid messages are rejected (acknowledged
// as failed, not retried at this layer); valid ones are forwarded then acked.
func (i *Ingress) Handle(ctx context.Context, d usecase.Delivery) {
	env := d.Envelope
	switch env.Type {
	case usecase.EnvelopeCapture:
		ev, verr := i.captureEvent(env)
		if verr != nil {
			i.drop(d, env.Type, verr)
			return
		}
		if err := i.sink.OnCapture(ctx, ev); err != nil {
			i.logger.Warn().Err(err).Str("session", ev.SessionID).Msg("capture not admitted, leaving it to transport redelivery")
			if i.metrics != nil {
				i.metrics.EventsTotal.WithLabelValues(env.Type, "deferred").Inc()
			}
			d.Reject()
			return
		}
	case usecase.EnvelopeScreenshot:
		ev, verr := i.screenshotEvent(env)
		if verr != nil {
			i.drop(d, env.Type, verr)
			return
		}
		i.sink.OnScreenshot(ctx, ev)
	default:
		i.drop(d, env.Type, &domain.ValidationError{Field: "type", Reason: "is not a known event type"})
		return
	}
	if i.metrics != nil {
		i.metrics.EventsTotal.WithLabelValues(env.Type, "ok").Inc()
	}
	d.Ack()
}

func (i *Ingress) captureEvent(env usecase.Envelope) (domain.CaptureEvent, *domain.ValidationError) {
	if env.SessionID == "" {
		return domain.CaptureEvent{}, &domain.ValidationError{Field: "sessionId", Reason: "is empty"}
	}
	if env.Ts.IsZero() {
		return domain.CaptureEvent{}, &domain.ValidationError{Field: "ts", Reason: "is empty"}
	}
	if env.CorrelationKey == "" {
		return domain.CaptureEvent{}, &domain.ValidationError{Field: "correlationKey", Reason: "is empty"}
	}
	switch env.Direction {
	case domain.DirectionRequest, domain.DirectionResponse, domain.DirectionWebsocket:
	default:
		return domain.CaptureEvent{}, &domain.ValidationError{Field: "direction", Reason: "is not request, response or websocket"}
	}
	return domain.CaptureEvent{
		SessionID:      env.SessionID,
		Direction:      env.Direction,
		Ts:             env.Ts,
		CorrelationKey: env.CorrelationKey,
		Payload:        env.Payload,
	}, nil
}

func (i *Ingress) screenshotEvent(env usecase.Envelope) (domain.ScreenshotEvent, *domain.ValidationError) {
	if env.SessionID == "" {
		return domain.ScreenshotEvent{}, &domain.ValidationError{Field: "sessionId", Reason: "is empty"}
	}
	if env.Ts.IsZero() {
		return domain.ScreenshotEvent{}, &domain.ValidationError{Field: "ts", Reason: "is empty"}
	}
	if env.Path == "" {
		return domain.ScreenshotEvent{}, &domain.ValidationError{Field: "path", Reason: "is empty"}
	}
	if !i.fileExists(env.Path) {
		return domain.ScreenshotEvent{}, &domain.ValidationError{Field: "path", Reason: "does not exist on disk"}
	}
	return domain.ScreenshotEvent{SessionID: env.SessionID, Ts: env.Ts, Path: env.Path}, nil
}

func (i *Ingress) drop(d usecase.Delivery, typ string, verr *domain.ValidationError) {
	i.logger.Warn().Str("type", typ).Str("field", verr.Field).Err(verr).Msg("dropping invalid event")
	if i.metrics != nil {
		i.metrics.EventsTotal.WithLabelValues(typ, "invalid").Inc()
	}
	d.Reject()
}
