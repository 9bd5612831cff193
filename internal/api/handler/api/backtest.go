// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/api/job"
	"github.com/newthinker/quantlab/internal/api/response"
	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/report"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/factory"
)

const (
	// JobType labels backtest jobs in the job store and metrics.
	JobType = "backtest"

	backtestTimeout = 5 * time.Minute
	dateLayout      = "2006-01-02"
)

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbol      string         `json:"symbol"`
	Timeframe   string         `json:"timeframe,omitempty"`
	Strategy    string         `json:"strategy"`
	Start       string         `json:"start,omitempty"`
	End         string         `json:"end,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Fee         *float64       `json:"fee,omitempty"`
	Slippage    *float64       `json:"slippage,omitempty"`
	InitialCash *float64       `json:"initial_cash,omitempty"`
}

// Runner executes one backtest. *backtest.Backtester satisfies it.
type Runner interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
}

// ReportSaver archives finished runs. *report.Archiver satisfies it.
type ReportSaver interface {
	Save(ctx context.Context, r *report.Report) (string, error)
}

// JobRecorder tracks active jobs. *metrics.Registry satisfies it.
type JobRecorder interface {
	SetJobsActive(jobType string, count int)
}

// Defaults fill in whatever a request leaves out.
type Defaults struct {
	Timeframe     core.Timeframe
	BaseTimeframe core.Timeframe
	Config        backtest.Config
	BarsPerYear   float64
	Overrides     map[string]map[string]any // Per-strategy params from config
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobStore *job.Store
	runner   Runner
	params   params.Store
	defaults Defaults
	reports  ReportSaver
	recorder JobRecorder
	logger   *zap.Logger
	timeout  time.Duration
}

// Option configures a BacktestHandler.
type Option func(*BacktestHandler)

// WithParamsStore resolves strategy params from the best-params store when a
// request carries none.
func WithParamsStore(s params.Store) Option {
	return func(h *BacktestHandler) { h.params = s }
}

// WithReports archives every completed run.
func WithReports(s ReportSaver) Option {
	return func(h *BacktestHandler) { h.reports = s }
}

func WithJobRecorder(r JobRecorder) Option {
	return func(h *BacktestHandler) { h.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *BacktestHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTimeout bounds each background run.
func WithTimeout(d time.Duration) Option {
	return func(h *BacktestHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(jobStore *job.Store, runner Runner, defaults Defaults, opts ...Option) *BacktestHandler {
	if defaults.Timeframe.IsZero() {
		defaults.Timeframe = core.MustParseTimeframe("15m")
	}
	h := &BacktestHandler{
		jobStore: jobStore,
		runner:   runner,
		defaults: defaults,
		logger:   zap.NewNop(),
		timeout:  backtestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, fmt.Errorf("decoding request: %w", err)))
		return
	}

	btReq, err := h.prepare(r.Context(), req)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}

	j := h.jobStore.Create(JobType)
	h.recordActive()

	// Copy values before starting goroutine to avoid race
	jobID := j.ID
	status := j.Status

	go h.runBacktest(jobID, btReq)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": status,
	})
}

// prepare turns a request body into an engine request.
func (h *BacktestHandler) prepare(ctx context.Context, req BacktestRequest) (backtest.Request, error) {
	if req.Symbol == "" || req.Strategy == "" {
		return backtest.Request{}, core.WrapError(core.ErrConfigMissing, errors.New("symbol and strategy are required"))
	}
	symbol := strings.ToUpper(req.Symbol)

	tf := h.defaults.Timeframe
	if req.Timeframe != "" {
		parsed, err := core.ParseTimeframe(req.Timeframe)
		if err != nil {
			return backtest.Request{}, err
		}
		tf = parsed
	}

	start, err := parseDate("start", req.Start)
	if err != nil {
		return backtest.Request{}, err
	}
	end, err := parseDate("end", req.End)
	if err != nil {
		return backtest.Request{}, err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return backtest.Request{}, core.WrapError(core.ErrConfigInvalid, errors.New("start must be before end"))
	}

	kind, err := strategy.ParseKind(req.Strategy)
	if err != nil {
		return backtest.Request{}, err
	}
	var strat strategy.Strategy
	if len(req.Params) > 0 {
		strat, err = factory.New(kind, req.Params)
	} else {
		key := params.Key{Symbol: symbol, Timeframe: tf.String(), Strategy: string(kind)}
		strat, _, err = factory.Resolve(ctx, h.params, key, h.defaults.Overrides[string(kind)])
	}
	if err != nil {
		return backtest.Request{}, err
	}

	cfg := h.defaults.Config
	if req.Fee != nil {
		cfg.Fee = *req.Fee
	}
	if req.Slippage != nil {
		cfg.Slippage = *req.Slippage
	}
	if req.InitialCash != nil {
		cfg.InitialCash = *req.InitialCash
	}

	return backtest.Request{
		Symbol:        symbol,
		Timeframe:     tf,
		BaseTimeframe: h.defaults.BaseTimeframe,
		Start:         start,
		End:           end,
		Strategy:      strat,
		Config:        cfg,
		BarsPerYear:   h.defaults.BarsPerYear,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s: %w", field, err))
	}
	return t, nil
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, req backtest.Request) {
	defer h.recordActive()

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		h.jobStore.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	rep := report.FromResult(result, time.Now())
	if h.reports != nil {
		if path, err := h.reports.Save(ctx, rep); err != nil {
			h.logger.Warn("archiving report failed", zap.String("job_id", jobID), zap.Error(err))
		} else {
			h.logger.Debug("report archived", zap.String("job_id", jobID), zap.String("path", path))
		}
	}

	h.jobStore.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = rep
	})
}

// asCoreError keeps coded errors as they are and files everything else
// under STRATEGY_FAILED.
func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return core.WrapError(coreErr, coreErr.Cause)
	}
	return core.WrapError(core.ErrStrategyFailed, err)
}

func (h *BacktestHandler) recordActive() {
	if h.recorder != nil {
		h.recorder.SetJobsActive(JobType, h.jobStore.Active(JobType))
	}
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	j, err := h.jobStore.Get(jobID)
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}

	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.Detail(j.Error)
	}

	response.JSON(w, http.StatusOK, resp)
}
