package usecase

import (
	"context"
	"encoding/json"
	"time"

	"PulseDeck/internal/domain/models"
	domrepo "PulseDeck/internal/domain/repository"
	mid "PulseDeck/internal/middleware"
	pkgkafka "PulseDeck/pkg/kafka"
)

// KafkaBarsHandler consumes OHLCV bars from a Kafka topic and feeds them
// through the pipeline, as an alternative to the WebSocket feed.
type KafkaBarsHandler struct {
	topic   string
	pipe    *mid.BarPipeline
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, pipe *mid.BarPipeline, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {instrument, t, o, h, l, c, v}
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Instrument string  `json:"instrument"`
		T          int64   `json:"t"`
		O          float64 `json:"o"`
		H          float64 `json:"h"`
		L          float64 `json:"l"`
		C          float64 `json:"c"`
		V          float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	bar := &models.PriceBar{
		Instrument: m.Instrument,
		Timestamp:  time.Unix(m.T, 0),
		Open:       m.O,
		High:       m.H,
		Low:        m.L,
		Close:      m.C,
		Volume:     m.V,
	}
	// malformed bars are counted inside the pipeline and must not bounce
	// the message back to Kafka for redelivery
	_ = h.pipe.Submit(ctx, bar)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
