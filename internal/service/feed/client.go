package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"PulseDeck/internal/domain/models"
	drepo "PulseDeck/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements a BarStream backed by a broker candle WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	instruments    []string
	granularity    int // candle size in seconds
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new WebSocket BarStream.
func New(apiKey, websocketURL string, instruments []string, granularity int, reconnectDelay, pingInterval time.Duration) drepo.BarStream {
	if granularity <= 0 {
		granularity = 60
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		instruments:    instruments,
		granularity:    granularity,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("feed: connected")
	return nil
}

// Subscribe subscribes to candle streams for configured instruments.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, ins := range c.instruments {
		msg := map[string]any{
			"type":        "subscribe",
			"channel":     "candles",
			"instrument":  ins,
			"granularity": c.granularity,
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ins, err)
		}
		log.Printf("feed: subscribed %s", ins)
	}
	return nil
}

type wsCandle struct {
	I string  `json:"instrument"`
	T int64   `json:"epoch"` // seconds
	O float64 `json:"open"`
	H float64 `json:"high"`
	L float64 `json:"low"`
	C float64 `json:"close"`
	V float64 `json:"volume"`
}

type wsMessage struct {
	Type string     `json:"type"`
	Data []wsCandle `json:"data"`
}

// Read streams PriceBar events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.PriceBar, <-chan error) {
	bars := make(chan *models.PriceBar, 1024)
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
		defer close(bars)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-candle frames
					continue
				}
				if m.Type != "candle" {
					continue
				}
				for _, d := range m.Data {
					bar := &models.PriceBar{
						Instrument: d.I,
						Timestamp:  time.Unix(d.T, 0),
						Open:       d.O,
						High:       d.H,
						Low:        d.L,
						Close:      d.C,
						Volume:     d.V,
					}
					select {
					case bars <- bar:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return bars, errs
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
