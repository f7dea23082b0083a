package optimizer

import (
	"testing"

	"github.com/shopspring/decimal"

	"bidcoef/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestHyperparameters(t *testing.T) {
	tests := []struct {
		name      string
		iteration int
		gap       *float64
		expected  models.Params
	}{
		{"Первая итерация", 1, nil, models.Params{MinCoeff: 0.70, MaxCoeff: 1.30, Lambda: 500}},
		{"Первая итерация игнорирует разрыв", 1, floatPtr(0.1), models.Params{MinCoeff: 0.70, MaxCoeff: 1.30, Lambda: 500}},
		{"Вторая итерация", 2, floatPtr(5), models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 100}},
		{"Малый разрыв", 3, floatPtr(0.3), models.Params{MinCoeff: 0.80, MaxCoeff: 1.20, Lambda: 400}},
		{"Разрыв меньше процента", 4, floatPtr(0.5), models.Params{MinCoeff: 0.80, MaxCoeff: 1.20, Lambda: 150}},
		{"Разрыв почти процент", 3, floatPtr(0.99), models.Params{MinCoeff: 0.80, MaxCoeff: 1.20, Lambda: 150}},
		{"Большой разрыв", 7, floatPtr(1.0), models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 80}},
		{"Нет предыдущей итерации", 3, nil, models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hyperparameters(tt.iteration, tt.gap)
			if got != tt.expected {
				t.Errorf("Hyperparameters(%d, %v) = %+v, want %+v", tt.iteration, tt.gap, got, tt.expected)
			}
		})
	}
}

func TestGapPercent(t *testing.T) {
	if GapPercent(nil) != nil {
		t.Error("nil previous iteration must give nil gap")
	}

	zero := &models.IterationResult{Totals: models.NewTotals(decimal.Zero, decimal.NewFromInt(10))}
	if GapPercent(zero) != nil {
		t.Error("zero forecast must give nil gap")
	}

	over := &models.IterationResult{Totals: models.NewTotals(decimal.NewFromInt(1000), decimal.NewFromInt(1004))}
	got := GapPercent(over)
	if got == nil || *got != 0.4 {
		t.Errorf("GapPercent = %v, want 0.4", got)
	}
}
