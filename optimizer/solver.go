package optimizer

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// SolverStatus статус решения LP
type SolverStatus string

const (
	StatusOptimal    SolverStatus = "OPTIMAL"
	StatusFeasible   SolverStatus = "FEASIBLE"
	StatusInfeasible SolverStatus = "INFEASIBLE"
	StatusUnbounded  SolverStatus = "UNBOUNDED"
	StatusAbnormal   SolverStatus = "ABNORMAL"
	StatusNotSolved  SolverStatus = "NOT_SOLVED"
	StatusTimeout    SolverStatus = "TIMEOUT"
)

// Success true для OPTIMAL и FEASIBLE
func (s SolverStatus) Success() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Solution решение LP: значения исходных переменных и значение целевой функции (max)
type Solution struct {
	Status    SolverStatus
	X         []float64
	Objective float64
	Err       error
}

// Solver внешний решатель непрерывной LP
type Solver interface {
	Solve(ctx context.Context, p *Problem) Solution
}

// SimplexSolver решатель на симплекс-методе gonum
type SimplexSolver struct {
	Tolerance float64
}

// NewSimplexSolver создает решатель с заданной точностью
func NewSimplexSolver(tolerance float64) *SimplexSolver {
	if tolerance <= 0 {
		tolerance = 1e-9
	}
	return &SimplexSolver{Tolerance: tolerance}
}

type simplexOutcome struct {
	optF float64
	x    []float64
	err  error
}

// Solve приводит задачу к стандартной форме (standardForm) и решает lp.Simplex.
// Сам симплекс не прерывается; по истечении ctx возвращается TIMEOUT,
// а вычисление завершается в фоне.
func (s *SimplexSolver) Solve(ctx context.Context, p *Problem) Solution {
	if p == nil || p.NumVars == 0 || len(p.Equalities) == 0 {
		return Solution{Status: StatusNotSolved, Err: errors.New("empty problem")}
	}

	c, a, b := standardForm(p)

	done := make(chan simplexOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- simplexOutcome{err: fmt.Errorf("simplex panic: %v", r)}
			}
		}()

		optF, x, err := lp.Simplex(c, a, b, s.Tolerance, nil)
		done <- simplexOutcome{optF: optF, x: x, err: err}
	}()

	select {
	case <-ctx.Done():
		return Solution{Status: StatusTimeout, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return Solution{Status: simplexStatus(out.err), Err: out.err}
		}
		return Solution{
			Status:    StatusOptimal,
			X:         out.x[:p.NumVars],
			Objective: -out.optF,
		}
	}
}

// standardForm строит min c·x, A·x = b, x >= 0 для lp.Simplex.
// Исходные переменные неотрицательны и идут первыми, за ними по одной
// дополнительной переменной на каждое неравенство. Строки с отрицательной
// правой частью умножаются на −1.
func standardForm(p *Problem) ([]float64, *mat.Dense, []float64) {
	slacks := len(p.Inequalities)
	cols := p.NumVars + slacks
	rows := len(p.Equalities) + slacks

	// gonum минимизирует, поэтому целевая функция берется с обратным знаком
	c := make([]float64, cols)
	for i, v := range p.Objective {
		c[i] = -v
	}

	data := make([]float64, rows*cols)
	b := make([]float64, rows)
	put := func(r int, con Constraint, slack int) {
		sign := 1.0
		if con.RHS < 0 {
			sign = -1
		}
		row := data[r*cols : (r+1)*cols]
		for j, v := range con.Coeffs {
			row[j] = sign * v
		}
		if slack >= 0 {
			row[p.NumVars+slack] = sign
		}
		b[r] = sign * con.RHS
	}

	for i, con := range p.Equalities {
		put(i, con, -1)
	}
	for i, con := range p.Inequalities {
		put(len(p.Equalities)+i, con, i)
	}

	return c, mat.NewDense(rows, cols, data), b
}

func simplexStatus(err error) SolverStatus {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusAbnormal
	}
}
