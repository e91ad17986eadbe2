package usecase

import (
	"context"

	"PulseDeck/internal/domain/models"
	drepo "PulseDeck/internal/domain/repository"
	mid "PulseDeck/internal/middleware"
)

// Process adapts the registry to the pipeline's downstream interface.
func (r *SignalRegistry) Process(ctx context.Context, bar *models.PriceBar) error {
	r.UpdatePrice(bar)
	return nil
}

// BarCollector consumes bars from the live market stream and feeds them
// through the pipeline into the registry.
type BarCollector struct {
	stream  drepo.BarStream
	metrics drepo.Metrics
	pipe    *mid.BarPipeline
}

// NewBarCollector creates a new BarCollector instance.
func NewBarCollector(stream drepo.BarStream, metrics drepo.Metrics, pipe *mid.BarPipeline) *BarCollector {
	return &BarCollector{stream: stream, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.PriceBar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case bar := <-barCh:
			if bar == nil {
				continue
			}
			_ = c.pipe.Submit(ctx, bar)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
