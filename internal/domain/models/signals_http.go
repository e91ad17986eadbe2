package models

// Requests for signal lifecycle HTTP endpoints. Defined in domain for consistency and reuse.

type RegisterSignalRequest struct {
	ID         string  `json:"id"`
	Instrument string  `json:"instrument" validate:"required"`
	Direction  string  `json:"direction" validate:"required,oneof=CALL PUT"`
	EntryPrice float64 `json:"entry_price" validate:"required,gt=0"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
	Volatility float64 `json:"volatility" validate:"gte=0"`
	Timestamp  string  `json:"timestamp"` // RFC3339 or unix seconds; defaults to now
	Deadline   string  `json:"deadline"`  // optional exit time, same formats
}

type SubmitBarRequest struct {
	Instrument string  `json:"instrument" validate:"required"`
	Timestamp  string  `json:"timestamp" validate:"required"`
	Open       float64 `json:"open" validate:"required"`
	High       float64 `json:"high" validate:"required"`
	Low        float64 `json:"low" validate:"required"`
	Close      float64 `json:"close" validate:"required"`
	Volume     float64 `json:"volume" validate:"gte=0"`
}

type HistoryRequest struct {
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	Source string `query:"source" json:"source" default:"memory" validate:"oneof=memory mirror"`
}
