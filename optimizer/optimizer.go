package optimizer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bidcoef/matching"
	"bidcoef/models"
)

const (
	// DefaultSolveTimeout ограничение времени одного решения LP
	DefaultSolveTimeout = 30 * time.Second
	// CoefficientPlaces знаков после запятой у коэффициента
	CoefficientPlaces = 6
	// PricePlaces знаков после запятой у цены работы
	PricePlaces = 2
)

var hundred = decimal.NewFromInt(100)

// Optimizer подбирает коэффициенты по унифицированным ключам.
// Между вызовами изменяемого состояния не хранит.
type Optimizer struct {
	solver  Solver
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// Option настройка оптимизатора
type Option func(*Optimizer)

// WithSolver задает решатель LP
func WithSolver(s Solver) Option {
	return func(o *Optimizer) {
		if s != nil {
			o.solver = s
		}
	}
}

// WithTimeout задает ограничение времени решения. SimplexSolver по таймауту
// не останавливает симплекс: вычисление продолжается в фоне до конца, и при
// повторных таймаутах в OptimizeBatch такие горутины накапливаются.
func WithTimeout(d time.Duration) Option {
	return func(o *Optimizer) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New создает оптимизатор; по умолчанию симплекс gonum
func New(opts ...Option) *Optimizer {
	o := &Optimizer{
		solver:  NewSimplexSolver(0),
		timeout: DefaultSolveTimeout,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// lpInput агрегаты, из которых строится задача
type lpInput struct {
	keys        []models.UnifiedKey
	values      map[models.UnifiedKey]float64
	stages      []StageConstraint
	unforecast  []string
	unmatched   int
	matchedKeys map[models.UnifiedKey]*models.CatalogEntry
	// объемы ключей по этапам с прогнозом
	quantities map[string]map[models.UnifiedKey]decimal.Decimal
}

// Optimize строит и решает LP для одной итерации.
// previous используется только для выбора гиперпараметров.
func (o *Optimizer) Optimize(ctx context.Context, result *matching.MatchResult, forecasts models.Forecasts, iteration int, previous *models.IterationResult) (*models.IterationResult, error) {
	if result == nil {
		return nil, newValidationError("match_result", "match result is required")
	}
	if iteration < 1 {
		return nil, newValidationError("iteration", "iteration number must be >= 1, got %d", iteration)
	}
	if len(forecasts) == 0 {
		return nil, newValidationError("forecasts", "no stage forecasts available")
	}

	params := Hyperparameters(iteration, GapPercent(previous))
	in := collectInput(result, forecasts)
	if len(in.keys) == 0 {
		return nil, newValidationError("match_result", "no matched keys to optimize")
	}

	log := o.logger.With(zap.Int("iteration", iteration))
	var warnings []string
	if in.unmatched > 0 {
		log.Warn("optimizing with unmatched items excluded", zap.Int("unmatched_items", in.unmatched))
		warnings = append(warnings, fmt.Sprintf("%d unmatched items excluded from optimization", in.unmatched))
	}
	for _, stage := range in.unforecast {
		log.Warn("stage has no forecast and is left unconstrained", zap.String("stage", stage))
		warnings = append(warnings, fmt.Sprintf("stage %s has no forecast; budget not enforced", stage))
	}

	problem := BuildProblem(in.keys, in.values, in.stages, params)
	log.Info("solving coefficient LP",
		zap.Int("keys", len(in.keys)),
		zap.Int("budget_rows", len(problem.StageRows)),
		zap.Float64("min_coeff", params.MinCoeff),
		zap.Float64("max_coeff", params.MaxCoeff),
		zap.Float64("lambda", params.Lambda),
	)

	solveCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	startTime := time.Now()
	solution := o.solver.Solve(solveCtx, problem)
	elapsed := time.Since(startTime)

	if !solution.Status.Success() {
		log.Error("solver failed",
			zap.String("status", string(solution.Status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(solution.Err),
		)
		return nil, &SolverError{Status: solution.Status, Err: solution.Err}
	}
	if len(solution.X) < problem.NumVars {
		return nil, &SolverError{Status: StatusAbnormal, Err: fmt.Errorf("solution has %d values, want %d", len(solution.X), problem.NumVars)}
	}

	iter := &models.IterationResult{
		ID:             uuid.NewString(),
		Number:         iteration,
		CreatedAt:      o.now().UTC(),
		Params:         params,
		SolverStatus:   string(solution.Status),
		SolveDuration:  elapsed,
		ObjectiveValue: solution.Objective,
	}
	iter.Coefficients = buildCoefficients(problem, solution.X, in.matchedKeys, params)
	if lowered := fitRoundedBudgets(iter.Coefficients, in, forecasts, params); len(lowered) > 0 {
		log.Info("coefficients lowered to keep rounded stage costs within forecast",
			zap.Int("keys", len(lowered)),
		)
	}
	assemble(iter, result, forecasts)

	for _, s := range iter.Stages {
		if s.HasForecast && !s.OK {
			log.Warn("stage exceeds forecast after rounding",
				zap.String("stage", s.StageCode),
				zap.String("gap", s.Gap.String()),
			)
			warnings = append(warnings, fmt.Sprintf("stage %s exceeds forecast by %s after rounding", s.StageCode, s.Gap.Neg().String()))
		}
	}
	iter.Warnings = warnings

	log.Info("iteration solved",
		zap.String("status", iter.SolverStatus),
		zap.Float64("objective", iter.ObjectiveValue),
		zap.String("proposed", iter.Totals.Proposed.String()),
		zap.String("forecast", iter.Totals.Forecast.String()),
		zap.Duration("elapsed", elapsed),
	)

	return iter, nil
}

// collectInput суммирует quantity × basePrice по ключам и этапам
func collectInput(result *matching.MatchResult, forecasts models.Forecasts) lpInput {
	in := lpInput{
		values:      make(map[models.UnifiedKey]float64),
		matchedKeys: make(map[models.UnifiedKey]*models.CatalogEntry),
		quantities:  make(map[string]map[models.UnifiedKey]decimal.Decimal),
	}

	stageValues := make(map[string]map[models.UnifiedKey]decimal.Decimal)
	keyValues := make(map[models.UnifiedKey]decimal.Decimal)
	unforecast := make(map[string]bool)

	for _, doc := range result.Documents {
		for _, item := range doc.Items {
			a, ok := result.Assignment(item.ID)
			if !ok || !a.Matched() {
				in.unmatched++
				continue
			}

			in.matchedKeys[a.Key] = a.Entry
			v := item.Quantity.Mul(a.Entry.BasePrice)
			keyValues[a.Key] = keyValues[a.Key].Add(v)

			if _, has := forecasts[item.StageCode]; !has {
				unforecast[item.StageCode] = true
				continue
			}
			if stageValues[item.StageCode] == nil {
				stageValues[item.StageCode] = make(map[models.UnifiedKey]decimal.Decimal)
				in.quantities[item.StageCode] = make(map[models.UnifiedKey]decimal.Decimal)
			}
			stageValues[item.StageCode][a.Key] = stageValues[item.StageCode][a.Key].Add(v)
			in.quantities[item.StageCode][a.Key] = in.quantities[item.StageCode][a.Key].Add(item.Quantity)
		}
	}

	for key, v := range keyValues {
		in.keys = append(in.keys, key)
		in.values[key] = v.InexactFloat64()
	}
	sort.Slice(in.keys, func(i, j int) bool { return in.keys[i] < in.keys[j] })

	codes := make([]string, 0, len(stageValues))
	for code := range stageValues {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		sc := StageConstraint{
			StageCode: code,
			Budget:    forecasts[code].Budget.InexactFloat64(),
			Values:    make(map[models.UnifiedKey]float64, len(stageValues[code])),
		}
		for key, v := range stageValues[code] {
			sc.Values[key] = v.InexactFloat64()
		}
		in.stages = append(in.stages, sc)
	}

	for code := range unforecast {
		in.unforecast = append(in.unforecast, code)
	}
	sort.Strings(in.unforecast)

	return in
}

// buildCoefficients читает c_k, прижимает к активным границам и округляет один раз
func buildCoefficients(p *Problem, x []float64, entries map[models.UnifiedKey]*models.CatalogEntry, params models.Params) map[models.UnifiedKey]models.CoefficientEntry {
	lo := decimal.NewFromFloat(params.MinCoeff)
	hi := decimal.NewFromFloat(params.MaxCoeff)

	coeffs := make(map[models.UnifiedKey]models.CoefficientEntry, len(p.Keys))
	for k, key := range p.Keys {
		entry := entries[key]
		coef := decimal.NewFromFloat(x[p.CoeffIndex(k)]).Round(CoefficientPlaces)
		if coef.LessThan(lo) {
			coef = lo
		}
		if coef.GreaterThan(hi) {
			coef = hi
		}

		coeffs[key] = models.CoefficientEntry{
			Key:         key,
			EntryID:     entry.ID,
			EntryName:   entry.Name,
			Unit:        entry.Unit,
			BasePrice:   entry.BasePrice,
			Coefficient: coef,
			WorkPrice:   entry.BasePrice.Mul(coef).Round(PricePlaces),
			Matched:     true,
		}
	}
	return coeffs
}
