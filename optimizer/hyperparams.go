package optimizer

import (
	"bidcoef/models"
)

// Hyperparameters возвращает границы коэффициентов и штраф λ для итерации.
// previousGapPercent = |разрыв| / прогноз * 100 предыдущей итерации,
// nil если предыдущей итерации нет.
//
//	итерация 1                 -> [0.70, 1.30], λ=500
//	итерация 2                 -> [0.75, 1.25], λ=100
//	итерация 3+, разрыв < 0.5% -> [0.80, 1.20], λ=400
//	итерация 3+, разрыв < 1.0% -> [0.80, 1.20], λ=150
//	итерация 3+, иначе         -> [0.75, 1.25], λ=80
func Hyperparameters(iteration int, previousGapPercent *float64) models.Params {
	switch {
	case iteration <= 1:
		return models.Params{MinCoeff: 0.70, MaxCoeff: 1.30, Lambda: 500}
	case iteration == 2:
		return models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 100}
	case previousGapPercent == nil:
		return models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 80}
	case *previousGapPercent < 0.5:
		return models.Params{MinCoeff: 0.80, MaxCoeff: 1.20, Lambda: 400}
	case *previousGapPercent < 1.0:
		return models.Params{MinCoeff: 0.80, MaxCoeff: 1.20, Lambda: 150}
	default:
		return models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 80}
	}
}

// GapPercent считает относительный разрыв итерации в процентах
func GapPercent(prev *models.IterationResult) *float64 {
	if prev == nil || prev.Totals.Forecast.IsZero() {
		return nil
	}
	pct, _ := prev.Totals.Gap.Abs().Div(prev.Totals.Forecast.Abs()).Mul(hundred).Float64()
	return &pct
}
