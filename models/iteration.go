package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params гиперпараметры одной итерации оптимизации
type Params struct {
	MinCoeff float64 `json:"min_coeff"`
	MaxCoeff float64 `json:"max_coeff"`
	Lambda   float64 `json:"lambda"`
}

// CoefficientEntry коэффициент для одного унифицированного ключа.
// WorkPrice округляется один раз при сборке результата и дальше не пересчитывается.
type CoefficientEntry struct {
	Key         UnifiedKey      `json:"key"`
	EntryID     string          `json:"entry_id,omitempty"`
	EntryName   string          `json:"entry_name,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Coefficient decimal.Decimal `json:"coefficient"`
	WorkPrice   decimal.Decimal `json:"work_price"`
	Matched     bool            `json:"matched"`
}

// ItemResult расчет по одной позиции
type ItemResult struct {
	ItemID      string          `json:"item_id"`
	Key         UnifiedKey      `json:"key"`
	Name        string          `json:"name"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Coefficient decimal.Decimal `json:"coefficient"`
	WorkPrice   decimal.Decimal `json:"work_price"`
	Value       decimal.Decimal `json:"value"`
}

// StageBreakdown итог по этапу
type StageBreakdown struct {
	StageCode   string          `json:"stage_code"`
	StageName   string          `json:"stage_name"`
	HasForecast bool            `json:"has_forecast"`
	Forecast    decimal.Decimal `json:"forecast"`
	Proposed    decimal.Decimal `json:"proposed"`
	Gap         decimal.Decimal `json:"gap"`
	OK          bool            `json:"ok"`
	Items       []ItemResult    `json:"items,omitempty"`
}

// Totals агрегированные суммы
type Totals struct {
	Forecast decimal.Decimal `json:"forecast"`
	Proposed decimal.Decimal `json:"proposed"`
	Gap      decimal.Decimal `json:"gap"`
	OK       bool            `json:"ok"`
}

// FileBreakdown итог по файлу с разбивкой по этапам
type FileBreakdown struct {
	FileID   string           `json:"file_id"`
	FileName string           `json:"file_name"`
	Stages   []StageBreakdown `json:"stages"`
	Totals   Totals           `json:"totals"`
}

// IterationResult неизменяемый снимок одной итерации оптимизации
type IterationResult struct {
	ID             string                          `json:"id"`
	Project        string                          `json:"project"`
	Number         int                             `json:"number"`
	CreatedAt      time.Time                       `json:"created_at"`
	Params         Params                          `json:"params"`
	Coefficients   map[UnifiedKey]CoefficientEntry `json:"coefficients"`
	Files          []FileBreakdown                 `json:"files"`
	Stages         []StageBreakdown                `json:"stages"`
	Totals         Totals                          `json:"totals"`
	SolverStatus   string                          `json:"solver_status"`
	SolveDuration  time.Duration                   `json:"solve_duration"`
	ObjectiveValue float64                         `json:"objective_value"`
	Warnings       []string                        `json:"warnings,omitempty"`
}

// NewTotals считает разрыв и признак соблюдения бюджета
func NewTotals(forecast, proposed decimal.Decimal) Totals {
	gap := forecast.Sub(proposed)
	return Totals{
		Forecast: forecast,
		Proposed: proposed,
		Gap:      gap,
		OK:       !gap.IsNegative(),
	}
}
