package optimizer

import (
	"sort"

	"github.com/shopspring/decimal"

	"bidcoef/models"
)

// CoefficientDelta изменение коэффициента ключа между двумя итерациями
type CoefficientDelta struct {
	Key          models.UnifiedKey `json:"key"`
	Before       decimal.Decimal   `json:"before"`
	After        decimal.Decimal   `json:"after"`
	BeforePrice  decimal.Decimal   `json:"before_price"`
	AfterPrice   decimal.Decimal   `json:"after_price"`
	Change       decimal.Decimal   `json:"change"`
	OnlyInBefore bool              `json:"only_in_before,omitempty"`
	OnlyInAfter  bool              `json:"only_in_after,omitempty"`
}

// Compare сравнивает коэффициенты двух итераций; ключи упорядочены лексикографически
func Compare(before, after *models.IterationResult) []CoefficientDelta {
	keys := make(map[models.UnifiedKey]bool)
	if before != nil {
		for k := range before.Coefficients {
			keys[k] = true
		}
	}
	if after != nil {
		for k := range after.Coefficients {
			keys[k] = true
		}
	}

	ordered := make([]models.UnifiedKey, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	deltas := make([]CoefficientDelta, 0, len(ordered))
	for _, k := range ordered {
		d := CoefficientDelta{Key: k}
		b, inBefore := lookupCoefficient(before, k)
		a, inAfter := lookupCoefficient(after, k)
		d.Before, d.BeforePrice = b.Coefficient, b.WorkPrice
		d.After, d.AfterPrice = a.Coefficient, a.WorkPrice
		d.OnlyInBefore = inBefore && !inAfter
		d.OnlyInAfter = inAfter && !inBefore
		d.Change = d.After.Sub(d.Before)
		deltas = append(deltas, d)
	}
	return deltas
}

func lookupCoefficient(iter *models.IterationResult, key models.UnifiedKey) (models.CoefficientEntry, bool) {
	zero := models.CoefficientEntry{Coefficient: decimal.Zero, WorkPrice: decimal.Zero}
	if iter == nil {
		return zero, false
	}
	ce, ok := iter.Coefficients[key]
	if !ok {
		return zero, false
	}
	return ce, true
}
