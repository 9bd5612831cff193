// internal/meta/advisor.go
package meta

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/llm"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
)

const systemPrompt = "Answer ONLY with one word: BUY, SELL, or HOLD. No explanation."

var decisionPattern = regexp.MustCompile(`\b(BUY|SELL|HOLD)\b`)

// Recorder counts decisions.
type Recorder interface {
	RecordDecision(decision string)
}

// AdvisorConfig holds advisor settings.
type AdvisorConfig struct {
	ContextHours int  // Hours of recent bars shown to the model
	ShowPrompt   bool // Log the prompt at info level
}

// Advisor asks an LLM for a single BUY/SELL/HOLD call given the last-bar
// actions of the base strategies. It runs live only and is never backtested.
type Advisor struct {
	llm      llm.Provider
	store    params.Store
	logger   *zap.Logger
	recorder Recorder
	cfg      AdvisorConfig
}

// NewAdvisor creates an advisor. store decorates strategy names with tuned
// parameters and may be nil.
func NewAdvisor(provider llm.Provider, store params.Store, logger *zap.Logger, cfg AdvisorConfig) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContextHours <= 0 {
		cfg.ContextHours = 4
	}
	return &Advisor{llm: provider, store: store, logger: logger, cfg: cfg}
}

// SetRecorder attaches a decision counter.
func (a *Advisor) SetRecorder(r Recorder) {
	a.recorder = r
}

// DecisionRequest carries what the model sees.
type DecisionRequest struct {
	Symbol    string
	Timeframe core.Timeframe
	Actions   map[strategy.Kind]core.Action
	Recent    []core.Bar // Most recent bars, oldest first
	Position  string     // Free-form holdings description, optional
}

// Decision is the model's answer.
type Decision struct {
	Action     core.Action                   `json:"action"`
	Raw        string                        `json:"raw"`
	Prompt     string                        `json:"prompt"`
	Strategies map[strategy.Kind]core.Action `json:"strategies"`
}

// ContextBars is the number of bars of width tf covering hours.
func ContextBars(tf core.Timeframe, hours int) int {
	width := tf.Duration().Minutes()
	if width <= 0 {
		return 1
	}
	return max(1, int(float64(hours*60)/width))
}

// Decide builds the prompt, queries the model once and extracts its call.
// Replies without a recognizable word yield HOLD.
func (a *Advisor) Decide(ctx context.Context, req DecisionRequest) (*Decision, error) {
	if a.llm == nil {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("no LLM provider configured"))
	}

	prompt, err := a.buildPrompt(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.cfg.ShowPrompt {
		a.logger.Info("advisor prompt", zap.String("prompt", truncate(prompt, 2000)))
	}

	raw, err := llm.Ask(ctx, a.llm, systemPrompt, prompt, 16)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}

	decision := &Decision{
		Action:     ParseDecision(raw),
		Raw:        raw,
		Prompt:     prompt,
		Strategies: req.Actions,
	}
	if a.recorder != nil {
		a.recorder.RecordDecision(string(decision.Action))
	}
	a.logger.Info("advisor decision",
		zap.String("symbol", req.Symbol),
		zap.String("provider", a.llm.Name()),
		zap.String("decision", string(decision.Action)),
	)
	return decision, nil
}

// ParseDecision extracts the first BUY, SELL or HOLD word from a reply.
func ParseDecision(reply string) core.Action {
	m := decisionPattern.FindStringSubmatch(strings.ToUpper(reply))
	if m == nil {
		return core.ActionHold
	}
	return core.Action(m[1])
}

func (a *Advisor) buildPrompt(ctx context.Context, req DecisionRequest) (string, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a trading assistant for %s. Decide BUY, SELL, or HOLD.\n", req.Symbol)
	if req.Position != "" {
		fmt.Fprintf(&sb, "\n--- Current Position ---\n%s\n", req.Position)
	}

	sb.WriteString("\n--- Strategy signals ---\n")
	kinds := make([]strategy.Kind, 0, len(req.Actions))
	for k := range req.Actions {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		name, err := a.decorate(ctx, req.Symbol, req.Timeframe.String(), kind)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, req.Actions[kind])
	}

	recent := req.Recent
	if n := ContextBars(req.Timeframe, a.cfg.ContextHours); len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	fmt.Fprintf(&sb, "\n--- Last %d hours OHLCV (%s bars) ---\n", a.cfg.ContextHours, req.Timeframe)
	for _, b := range recent {
		fmt.Fprintf(&sb, "%s O:%.2f H:%.2f L:%.2f C:%.2f V:%.2f\n",
			b.Time.UTC().Format("2006-01-02 15:04:05Z07:00"), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	return sb.String(), nil
}

// decorate renders a strategy name with its tuned parameters, e.g.
// "SMA (best: fast=10, slow=50, perf=12.35%, period=2022-09-01→2025-09-01)".
func (a *Advisor) decorate(ctx context.Context, symbol, timeframe string, kind strategy.Kind) (string, error) {
	name := strings.ToUpper(string(kind))
	if a.store == nil {
		return name + " (no backtest record)", nil
	}

	rec, ok, err := a.store.Get(ctx, params.Key{Symbol: symbol, Timeframe: timeframe, Strategy: string(kind)})
	if err != nil {
		return "", err
	}
	if !ok || len(rec.Params) == 0 {
		return name + " (no backtest record)", nil
	}

	keys := make([]string, 0, len(rec.Params))
	for k := range rec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, rec.Params[k])
	}
	best := strings.Join(parts, ", ")

	if rec.Performance == "" && rec.Period == "" {
		return fmt.Sprintf("%s (best: %s) (incomplete record)", name, best), nil
	}
	return fmt.Sprintf("%s (best: %s, perf=%s, period=%s)", name, best, orNA(rec.Performance), orNA(rec.Period)), nil
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
