// Package wsfeed is the websocket transport client. The interception and
// screenshot collaborators run out of process and push JSON envelopes over a
// single feed; acks and rejects travel back as small control frames so the
// feed can redeliver per its own backoff policy.
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/git-apexplanners/wsscapt/internal/usecase"
)

const (
	dialTimeout  = 10 * time.Second
	redialDelay  = 2 * time.Second
	writeTimeout = 5 * time.Second
)

var errNotConnected = errors.New("feed not connected")

type control struct {
	Type string `json:"type"` // "ack" | "reject"
	ID   string `json:"id"`
}

type Client struct {
	url    string
	logger *zerolog.Logger

	mu   sync.Mutex // guards conn writes
	conn *websocket.Conn
}

func New(url string, logger *zerolog.Logger) *Client {
	return &Client{url: url, logger: logger}
}

// Consume reads envelopes until the context is cancelled, redialing on
// connection loss.
func (c *Client) Consume(ctx context.Context, h usecase.Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", c.url).Msg("feed dial failed, retrying")
			select {
			case <-time.After(redialDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.readLoop(ctx, conn, h)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info().Str("url", c.url).Msg("connected to capture feed")
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, h usecase.Handler) {
	defer conn.Close()
	// unblock ReadMessage on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("feed read failed, reconnecting")
			}
			return
		}
		var env usecase.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("malformed feed message")
			continue
		}
		id := env.ID
		h(ctx, usecase.NewDelivery(env,
			func() { c.sendControl(control{Type: "ack", ID: id}) },
			func() { c.sendControl(control{Type: "reject", ID: id}) },
		))
	}
}

func (c *Client) sendControl(msg control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Warn().Err(err).Str("id", msg.ID).Msg("failed to send control frame")
	}
}

func (c *Client) Publish(ctx context.Context, env usecase.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
