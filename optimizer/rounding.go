package optimizer

import (
	"sort"

	"github.com/shopspring/decimal"

	"bidcoef/models"
)

var priceStep = decimal.New(1, -PricePlaces)

// fitRoundedBudgets понижает коэффициенты, если после округления цен работ
// стоимость этапа с прогнозом превысила бюджет. На каждом шаге снижается ключ
// с наибольшей стоимостью в этапе, не ниже MinCoeff. Возвращает измененные ключи.
func fitRoundedBudgets(coeffs map[models.UnifiedKey]models.CoefficientEntry, in lpInput, forecasts models.Forecasts, params models.Params) []models.UnifiedKey {
	lo := decimal.NewFromFloat(params.MinCoeff)
	lowered := make(map[models.UnifiedKey]bool)

	for _, sc := range in.stages {
		quantities := in.quantities[sc.StageCode]
		budget := forecasts[sc.StageCode].Budget

		for {
			over := stageCost(coeffs, quantities).Sub(budget)
			if !over.IsPositive() {
				break
			}
			key, ok := largestReducible(coeffs, quantities, lo)
			if !ok {
				// дальше снижать некуда, остается предупреждение
				break
			}

			ce := coeffs[key]
			step := over.Div(quantities[key]).RoundCeil(PricePlaces)
			if step.LessThan(priceStep) {
				step = priceStep
			}
			coef := ce.WorkPrice.Sub(step).Div(ce.BasePrice).RoundFloor(CoefficientPlaces)
			if coef.LessThan(lo) {
				coef = lo
			}
			ce.Coefficient = coef
			ce.WorkPrice = ce.BasePrice.Mul(coef).Round(PricePlaces)
			coeffs[key] = ce
			lowered[key] = true
		}
	}

	keys := make([]models.UnifiedKey, 0, len(lowered))
	for key := range lowered {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func stageCost(coeffs map[models.UnifiedKey]models.CoefficientEntry, quantities map[models.UnifiedKey]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for key, qty := range quantities {
		total = total.Add(qty.Mul(coeffs[key].WorkPrice))
	}
	return total
}

// largestReducible ключ этапа с наибольшей стоимостью, коэффициент которого выше lo
func largestReducible(coeffs map[models.UnifiedKey]models.CoefficientEntry, quantities map[models.UnifiedKey]decimal.Decimal, lo decimal.Decimal) (models.UnifiedKey, bool) {
	var (
		best     models.UnifiedKey
		bestCost decimal.Decimal
		found    bool
	)
	for key, qty := range quantities {
		ce, ok := coeffs[key]
		if !ok || !qty.IsPositive() || !ce.BasePrice.IsPositive() || !ce.Coefficient.GreaterThan(lo) {
			continue
		}
		cost := qty.Mul(ce.WorkPrice)
		if !found || cost.GreaterThan(bestCost) || (cost.Equal(bestCost) && key < best) {
			best, bestCost, found = key, cost, true
		}
	}
	return best, found
}
