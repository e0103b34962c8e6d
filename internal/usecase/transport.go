package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

const (
	EnvelopeCapture    = "capture"
	EnvelopeScreenshot = "screenshot"
	EnvelopeReport     = "report"
)

// Envelope is the wire shape moved over the message transport.
type Envelope struct {
	ID             string           `json:"id,omitempty"`
	Type           string           `json:"type"`
	SessionID      string           `json:"sessionId"`
	Ts             time.Time        `json:"ts"`
	Direction      domain.Direction `json:"direction,omitempty"`
	CorrelationKey string           `json:"correlationKey,omitempty"`
	Payload        json.RawMessage  `json:"payload,omitempty"`
	Path           string           `json:"path,omitempty"`
}

// Delivery is one at-least-once message. Exactly one of Ack or Reject must be
// called; un-acked messages are redelivered per the transport's own policy.
type Delivery struct {
	Envelope Envelope
	ack      func()
	reject   func()
}

func NewDelivery(env Envelope, ack, reject func()) Delivery {
	return Delivery{Envelope: env, ack: ack, reject: reject}
}

func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Reject acknowledges the message as failed so it is not redelivered
// indefinitely by this layer.
func (d Delivery) Reject() {
	if d.reject != nil {
		d.reject()
	}
}

type Handler func(ctx context.Context, d Delivery)

// Transport decouples the capture producers from the correlator. It is an
// injected collaborator, never ambient global state.
type Transport interface {
	Consume(ctx context.Context, h Handler) error
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Recognizer maps a screenshot and a game layout to a symbol grid. A failure
// is surfaced as an error and must not crash the pipeline; the grid may be
// partially empty.
type Recognizer interface {
	Recognize(ctx context.Context, screenshotPath string, layout domain.GameLayout) (domain.SymbolGrid, error)
}
