package api

import (
	"errors"
	"net/http"
	"time"

	models "PulseDeck/internal/domain/models"
	drepo "PulseDeck/internal/domain/repository"
	mid "PulseDeck/internal/middleware"
	"PulseDeck/internal/service/ratelimit"
	"PulseDeck/internal/usecase"
	xhttp "PulseDeck/pkg/http"
	xlogger "PulseDeck/pkg/logger"
	xutil "PulseDeck/pkg/util"

	"github.com/labstack/echo/v4"
)

// SignalsEchoHandler exposes the signal lifecycle over HTTP.
type SignalsEchoHandler struct {
	logger   *xlogger.Logger
	registry *usecase.SignalRegistry
	ledger   *usecase.AntiLossLedger
	learning *usecase.LearningAggregator
	pipe     *mid.BarPipeline
	mirror   drepo.SignalMirror // nil when ClickHouse is disabled
	limiter  *ratelimit.Limiter
	regRate  float64 // registrations per minute per instrument
}

func NewSignalsEchoHandler(
	logger *xlogger.Logger,
	registry *usecase.SignalRegistry,
	ledger *usecase.AntiLossLedger,
	learning *usecase.LearningAggregator,
	pipe *mid.BarPipeline,
	mirror drepo.SignalMirror,
	limiter *ratelimit.Limiter,
	regRate float64,
) *SignalsEchoHandler {
	return &SignalsEchoHandler{
		logger:   logger,
		registry: registry,
		ledger:   ledger,
		learning: learning,
		pipe:     pipe,
		mirror:   mirror,
		limiter:  limiter,
		regRate:  regRate,
	}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/signals", h.Register)
	g.POST("/bars", h.SubmitBar)
	g.GET("/signals/active", h.Active)
	g.GET("/signals/history", h.History)
	g.GET("/patterns/stats", h.PatternStats)
	g.GET("/patterns/blocked", h.BlockedPatterns)
	g.GET("/learning", h.Learning)
}

// registerResponse echoes the derived registration state so the proposal
// policy can read back suppression and penalty.
type registerResponse struct {
	ID         string  `json:"id"`
	PatternKey string  `json:"pattern_key"`
	Suppressed bool    `json:"suppressed"`
	Penalty    float64 `json:"penalty"`
	State      string  `json:"state"`
}

func (h *SignalsEchoHandler) Register(c echo.Context) error {
	req := &models.RegisterSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if h.limiter != nil && h.regRate > 0 {
		if !h.limiter.Allow("register:"+req.Instrument, h.regRate, h.regRate/60.0) {
			return xhttp.DataResponse(c, http.StatusTooManyRequests, "registration rate exceeded")
		}
	}

	dir, ok := drepo.ParseDirection(req.Direction)
	if !ok {
		return xhttp.BadRequestResponse(c, "direction must be CALL or PUT")
	}

	params := usecase.RegisterParams{
		ID:         req.ID,
		Instrument: req.Instrument,
		Direction:  dir,
		EntryPrice: req.EntryPrice,
		Confidence: req.Confidence,
		Volatility: req.Volatility,
		Timestamp:  xhttp.ParseTimeDefault(req.Timestamp, time.Now()),
	}
	if req.Deadline != "" {
		if t, ok := xhttp.ParseTime(req.Deadline); ok {
			params.Deadline = t
		} else {
			return xhttp.BadRequestResponse(c, "deadline format invalid")
		}
	}

	sig, err := h.registry.Register(params)
	if err != nil {
		if errors.Is(err, usecase.ErrDuplicateID) {
			return xhttp.DataResponse(c, http.StatusConflict, "signal id already registered")
		}
		h.logger.Error("register error", xlogger.Error(err))
		return xhttp.BadRequestResponse(c, err.Error())
	}

	return xhttp.CreatedResponse(c, registerResponse{
		ID:         sig.ID,
		PatternKey: sig.PatternKey,
		Suppressed: sig.Suppressed,
		Penalty:    sig.Penalty,
		State:      string(sig.State),
	})
}

func (h *SignalsEchoHandler) SubmitBar(c echo.Context) error {
	req := &models.SubmitBarRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts, ok := xhttp.ParseTime(req.Timestamp)
	if !ok {
		return xhttp.BadRequestResponse(c, "timestamp format invalid")
	}
	bar := &models.PriceBar{
		Instrument: req.Instrument,
		Timestamp:  ts,
		Open:       req.Open,
		High:       req.High,
		Low:        req.Low,
		Close:      req.Close,
		Volume:     req.Volume,
	}
	// malformed bars are counted and dropped; the stream must keep flowing
	_ = h.pipe.Submit(c.Request().Context(), bar)
	return xhttp.DataResponse(c, http.StatusAccepted, nil)
}

func (h *SignalsEchoHandler) Active(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.registry.Active())
}

func (h *SignalsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Source == "mirror" && h.mirror != nil {
		instrument := c.QueryParam("instrument")
		to := time.Now()
		from, to := xutil.AlignFromTo(to.Add(-30*24*time.Hour), to, "1m")
		events, err := h.mirror.QueryOutcomes(c.Request().Context(), instrument, from, to, req.Limit)
		if err != nil {
			h.logger.Error("mirror history error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		return xhttp.ListResponse(c, events, int64(len(events)))
	}
	rows := h.registry.History(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// patternStatsResponse couples the ledger aggregate with pipeline input
// counters so callers see rejected bars alongside risk state.
type patternStatsResponse struct {
	usecase.LedgerStats
	RejectedBars int64 `json:"rejected_bars"`
	DroppedBars  int64 `json:"dropped_bars"`
}

func (h *SignalsEchoHandler) PatternStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, patternStatsResponse{
		LedgerStats:  h.ledger.Stats(),
		RejectedBars: h.pipe.RejectedBars(),
		DroppedBars:  h.pipe.DroppedBars(),
	})
}

func (h *SignalsEchoHandler) BlockedPatterns(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.ledger.BlockedPatterns())
}

func (h *SignalsEchoHandler) Learning(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.learning.Snapshot())
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
	status := map[string]any{
		"status":         "ok",
		"active_signals": len(h.registry.Active()),
	}
	if h.mirror != nil {
		if err := h.mirror.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["mirror"] = err.Error()
		}
	}
	return xhttp.SuccessResponse(c, status)
}
