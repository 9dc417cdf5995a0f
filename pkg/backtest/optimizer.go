package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"auctioncore/pkg/state"
	"auctioncore/pkg/store"
	"auctioncore/pkg/strategy"
)

// ParamRange defines one swept strategy parameter's grid of values.
type ParamRange struct {
	Name string
	Min  float64
	Max  float64
	Step float64
	Type ParamType
}

// ParamType indicates how to interpret a swept parameter's value.
type ParamType int

const (
	ParamTypeFloat ParamType = iota
	ParamTypeInt
)

// OptimizationGoal names the metric grid search ranks candidates by.
type OptimizationGoal string

const (
	GoalSharpeRatio  OptimizationGoal = "sharpe"
	GoalTotalPNL     OptimizationGoal = "pnl"
	GoalWinRate      OptimizationGoal = "win_rate"
	GoalProfitFactor OptimizationGoal = "profit_factor"
	GoalCalmarRatio  OptimizationGoal = "calmar"
)

// OptimizationResult stores the result of a single parameter combination.
type OptimizationResult struct {
	Parameters map[string]float64
	Metrics    OptimizationMetrics
	Rank       int
	Score      float64
}

// OptimizationMetrics contains the key performance metrics used for ranking.
type OptimizationMetrics struct {
	SharpeRatio  float64
	TotalPNL     float64
	TotalReturn  float64
	MaxDrawdown  float64
	WinRate      float64
	ProfitFactor float64
	CalmarRatio  float64
	TotalTrades  int
}

// ParameterOptimizer runs grid search over the strategy's tunable
// parameters, replaying the same historical window once per parameter
// combination and ranking the results by an OptimizationGoal.
type ParameterOptimizer struct {
	st          *store.Store
	baseStrat   strategy.Config
	baseState   state.Config
	baseRun     RunConfig
	logger      *slog.Logger
	paramRanges map[string]*ParamRange
	goal        OptimizationGoal
	maxWorkers  int
}

// NewParameterOptimizer creates an optimizer seeded with the baseline
// strategy/state/run configuration every grid point overrides from.
func NewParameterOptimizer(st *store.Store, baseStrat strategy.Config, baseState state.Config, baseRun RunConfig, logger *slog.Logger) *ParameterOptimizer {
	return &ParameterOptimizer{
		st:          st,
		baseStrat:   baseStrat,
		baseState:   baseState,
		baseRun:     baseRun,
		logger:      logger,
		paramRanges: make(map[string]*ParamRange),
		goal:        GoalSharpeRatio,
		maxWorkers:  4,
	}
}

// AddParamRange registers one parameter's sweep grid. Supported names:
// min_aggression, atr_stop_mult, atr_target_mult, risk_per_trade_pct,
// max_positions.
func (opt *ParameterOptimizer) AddParamRange(name string, min, max, step float64, paramType ParamType) {
	opt.paramRanges[name] = &ParamRange{Name: name, Min: min, Max: max, Step: step, Type: paramType}
}

// SetOptimizationGoal sets the ranking metric.
func (opt *ParameterOptimizer) SetOptimizationGoal(goal OptimizationGoal) {
	opt.goal = goal
}

// SetMaxWorkers bounds the number of backtests run concurrently.
func (opt *ParameterOptimizer) SetMaxWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	if workers > 16 {
		workers = 16
	}
	opt.maxWorkers = workers
}

// GridSearch replays every parameter combination and returns results
// ranked best-first by the configured goal.
func (opt *ParameterOptimizer) GridSearch(ctx context.Context) ([]*OptimizationResult, error) {
	combinations := opt.generateCombinations()
	total := len(combinations)
	if total == 0 {
		return nil, fmt.Errorf("no parameter combinations to test")
	}
	opt.logger.Info("grid search starting", "combinations", total, "goal", opt.goal, "workers", opt.maxWorkers)

	results := make([]*OptimizationResult, 0, total)
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, opt.maxWorkers)
	start := time.Now()

	for i, params := range combinations {
		wg.Add(1)
		go func(idx int, paramSet map[string]float64) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := opt.runWithParams(ctx, paramSet)
			if err != nil {
				opt.logger.Warn("grid search combination failed", "index", idx, "error", err)
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(i, params)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i, result := range results {
		result.Rank = i + 1
	}
	opt.logger.Info("grid search completed", "duration", time.Since(start), "successful", len(results), "total", total)
	return results, nil
}

func (opt *ParameterOptimizer) generateCombinations() []map[string]float64 {
	names := make([]string, 0, len(opt.paramRanges))
	for name := range opt.paramRanges {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([][]float64, len(names))
	for i, name := range names {
		pr := opt.paramRanges[name]
		var vs []float64
		for v := pr.Min; v <= pr.Max; v += pr.Step {
			if pr.Type == ParamTypeInt {
				vs = append(vs, float64(int(v)))
			} else {
				vs = append(vs, v)
			}
		}
		values[i] = vs
	}

	var combos []map[string]float64
	opt.recurse(names, values, 0, make(map[string]float64), &combos)
	return combos
}

func (opt *ParameterOptimizer) recurse(names []string, values [][]float64, depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(names) {
		combo := make(map[string]float64, len(current))
		for k, v := range current {
			combo[k] = v
		}
		*out = append(*out, combo)
		return
	}
	for _, v := range values[depth] {
		current[names[depth]] = v
		opt.recurse(names, values, depth+1, current, out)
	}
}

func (opt *ParameterOptimizer) runWithParams(ctx context.Context, params map[string]float64) (*OptimizationResult, error) {
	stratCfg := opt.baseStrat
	runCfg := opt.baseRun
	for name, value := range params {
		switch name {
		case "min_aggression":
			stratCfg.MinAggression = value
		case "atr_stop_mult":
			stratCfg.ATRStopMult = value
		case "atr_target_mult":
			stratCfg.ATRTargetMult = value
		case "risk_per_trade_pct":
			stratCfg.RiskPerTradePct = value
		case "max_positions":
			stratCfg.MaxPositions = int(value)
			runCfg.MaxPositions = int(value)
		}
	}

	runner := NewRunner(opt.st, stratCfg, opt.baseState, runCfg, opt.logger)
	result, err := runner.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay failed: %w", err)
	}

	metrics := OptimizationMetrics{
		SharpeRatio:  result.SharpeRatio,
		TotalPNL:     result.TotalPNL,
		TotalReturn:  result.TotalReturn,
		MaxDrawdown:  result.MaxDrawdown,
		WinRate:      result.WinRate,
		ProfitFactor: result.ProfitFactor,
		CalmarRatio:  result.CalmarRatio,
		TotalTrades:  result.TotalTrades,
	}

	return &OptimizationResult{
		Parameters: params,
		Metrics:    metrics,
		Score:      opt.score(&metrics),
	}, nil
}

func (opt *ParameterOptimizer) score(m *OptimizationMetrics) float64 {
	switch opt.goal {
	case GoalTotalPNL:
		return m.TotalPNL
	case GoalWinRate:
		return m.WinRate
	case GoalProfitFactor:
		return m.ProfitFactor
	case GoalCalmarRatio:
		return m.CalmarRatio
	default:
		return m.SharpeRatio
	}
}

// GetBestResult returns the top-ranked result, or nil if none.
func GetBestResult(results []*OptimizationResult) *OptimizationResult {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

// GetTopNResults returns the first n results, capped to len(results).
func GetTopNResults(results []*OptimizationResult, n int) []*OptimizationResult {
	if n > len(results) {
		n = len(results)
	}
	return results[:n]
}
