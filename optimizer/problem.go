package optimizer

import (
	"fmt"

	"bidcoef/models"
)

// Constraint линейное ограничение в плотной форме
type Constraint struct {
	Name   string
	Coeffs []float64
	RHS    float64
}

// Problem линейная задача максимизации Objective·x при
// Equalities (=) и Inequalities (<=), x >= 0.
//
// Переменные: [c_1..c_K, d+_1..d+_K, d-_1..d-_K].
type Problem struct {
	Keys         []models.UnifiedKey
	NumVars      int
	Objective    []float64
	Equalities   []Constraint
	Inequalities []Constraint
	// StageRows коды этапов, для которых построены бюджетные ограничения
	StageRows []string
}

// StageConstraint вклад ключей в стоимость этапа: quantity × basePrice по ключу
type StageConstraint struct {
	StageCode string
	Budget    float64
	Values    map[models.UnifiedKey]float64
}

// CoeffIndex индекс переменной c_k
func (p *Problem) CoeffIndex(k int) int { return k }

// PlusIndex индекс переменной d+_k
func (p *Problem) PlusIndex(k int) int { return len(p.Keys) + k }

// MinusIndex индекс переменной d-_k
func (p *Problem) MinusIndex(k int) int { return 2*len(p.Keys) + k }

// BuildProblem строит задачу:
//
//	max  Σ v_k c_k − λ Σ (d+_k + d-_k)
//	     c_k − d+_k + d-_k = 1
//	     Σ v_{s,k} c_k <= F_s   для каждого этапа с прогнозом
//	     minCoeff <= c_k <= maxCoeff
//
// keys задают порядок переменных, values[k] = Σ quantity × basePrice по всем позициям ключа.
func BuildProblem(keys []models.UnifiedKey, values map[models.UnifiedKey]float64, stages []StageConstraint, params models.Params) *Problem {
	n := len(keys)
	p := &Problem{
		Keys:      keys,
		NumVars:   3 * n,
		Objective: make([]float64, 3*n),
	}

	index := make(map[models.UnifiedKey]int, n)
	for k, key := range keys {
		index[key] = k
		p.Objective[p.CoeffIndex(k)] = values[key]
		p.Objective[p.PlusIndex(k)] = -params.Lambda
		p.Objective[p.MinusIndex(k)] = -params.Lambda

		row := make([]float64, p.NumVars)
		row[p.CoeffIndex(k)] = 1
		row[p.PlusIndex(k)] = -1
		row[p.MinusIndex(k)] = 1
		p.Equalities = append(p.Equalities, Constraint{
			Name:   fmt.Sprintf("l1[%s]", key),
			Coeffs: row,
			RHS:    1,
		})
	}

	for _, stage := range stages {
		row := make([]float64, p.NumVars)
		used := false
		for key, v := range stage.Values {
			k, ok := index[key]
			if !ok {
				continue
			}
			row[p.CoeffIndex(k)] += v
			used = true
		}
		if !used {
			continue
		}
		p.Inequalities = append(p.Inequalities, Constraint{
			Name:   fmt.Sprintf("budget[%s]", stage.StageCode),
			Coeffs: row,
			RHS:    stage.Budget,
		})
		p.StageRows = append(p.StageRows, stage.StageCode)
	}

	for k, key := range keys {
		upper := make([]float64, p.NumVars)
		upper[p.CoeffIndex(k)] = 1
		lower := make([]float64, p.NumVars)
		lower[p.CoeffIndex(k)] = -1
		p.Inequalities = append(p.Inequalities,
			Constraint{Name: fmt.Sprintf("max[%s]", key), Coeffs: upper, RHS: params.MaxCoeff},
			Constraint{Name: fmt.Sprintf("min[%s]", key), Coeffs: lower, RHS: -params.MinCoeff},
		)
	}

	return p
}
