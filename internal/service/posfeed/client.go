package posfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"MycoCast/internal/domain/models"
	drepo "MycoCast/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a TelemetryStream backed by the POS feed WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	regions        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new POS feed TelemetryStream.
func New(apiKey, websocketURL string, regions []string, reconnectDelay, pingInterval time.Duration) drepo.TelemetryStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		regions:        regions,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("posfeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("posfeed: connected")
	return nil
}

// Subscribe subscribes to configured regions.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("posfeed not connected")
	}
	for _, r := range c.regions {
		msg := map[string]string{"type": "subscribe", "region": r}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", r, err)
		}
		log.Printf("posfeed: subscribed %s", r)
	}
	return nil
}

type feedMessage struct {
	Type string                      `json:"type"`
	Data []*models.TelemetrySnapshot `json:"data"`
}

// Read streams telemetry snapshots and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.TelemetrySnapshot, <-chan error) {
	snaps := make(chan *models.TelemetrySnapshot, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(snaps)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("posfeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("posfeed read: %w", err)
					return
				}
				var m feedMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-telemetry frames
					continue
				}
				if m.Type != "telemetry" {
					continue
				}
				for _, t := range m.Data {
					if t == nil || t.Region == "" {
						continue
					}
					if t.Timestamp.IsZero() {
						t.Timestamp = time.Now()
					}
					select {
					case snaps <- t:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return snaps, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
