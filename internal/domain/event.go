package domain

import (
	"encoding/json"
	"time"
)

type Direction string

const (
	DirectionRequest   Direction = "request"
	DirectionResponse  Direction = "response"
	DirectionWebsocket Direction = "websocket"
)

// CaptureEvent is one intercepted request, response or websocket frame as
// delivered by the interception collaborator. Payload is immutable once recorded.
type CaptureEvent struct {
	SessionID      string          `json:"sessionId"`
	Direction      Direction       `json:"direction"`
	Ts             time.Time       `json:"ts"`
	CorrelationKey string          `json:"correlationKey"`
	Payload        json.RawMessage `json:"payload"`
}

// ScreenshotEvent is one screen capture taken by the screenshot collaborator.
type ScreenshotEvent struct {
	SessionID string    `json:"sessionId"`
	Ts        time.Time `json:"ts"`
	Path      string    `json:"path"`
}
