package optimizer

import (
	"github.com/shopspring/decimal"

	"bidcoef/matching"
	"bidcoef/models"
)

// assemble пересчитывает позиции, этапы, файлы и общие итоги.
// Цена работы берется из CoefficientEntry без повторного округления.
func assemble(iter *models.IterationResult, result *matching.MatchResult, forecasts models.Forecasts) {
	globalIdx := make(map[string]int)

	for _, doc := range result.Documents {
		file := models.FileBreakdown{FileID: doc.ID, FileName: doc.FileName}
		fileIdx := make(map[string]int)

		for _, item := range doc.Items {
			ir := itemResult(item, result, iter.Coefficients)

			idx, ok := fileIdx[item.StageCode]
			if !ok {
				idx = len(file.Stages)
				fileIdx[item.StageCode] = idx
				file.Stages = append(file.Stages, newStage(item.StageCode, forecasts))
			}
			stage := &file.Stages[idx]
			stage.Items = append(stage.Items, ir)
			stage.Proposed = stage.Proposed.Add(ir.Value)
		}

		fileForecast := decimal.Zero
		fileProposed := decimal.Zero
		for i := range file.Stages {
			s := &file.Stages[i]
			finishStage(s)
			fileForecast = fileForecast.Add(s.Forecast)
			fileProposed = fileProposed.Add(s.Proposed)

			gi, ok := globalIdx[s.StageCode]
			if !ok {
				gi = len(iter.Stages)
				globalIdx[s.StageCode] = gi
				iter.Stages = append(iter.Stages, newStage(s.StageCode, forecasts))
			}
			iter.Stages[gi].Proposed = iter.Stages[gi].Proposed.Add(s.Proposed)
		}
		file.Totals = models.NewTotals(fileForecast, fileProposed)
		iter.Files = append(iter.Files, file)
	}

	overallForecast := decimal.Zero
	overallProposed := decimal.Zero
	for i := range iter.Stages {
		s := &iter.Stages[i]
		finishStage(s)
		overallForecast = overallForecast.Add(s.Forecast)
		overallProposed = overallProposed.Add(s.Proposed)
	}
	iter.Totals = models.NewTotals(overallForecast, overallProposed)
}

func itemResult(item models.WorkItem, result *matching.MatchResult, coeffs map[models.UnifiedKey]models.CoefficientEntry) models.ItemResult {
	ir := models.ItemResult{
		ItemID:      item.ID,
		Name:        item.Name,
		Unit:        item.Unit,
		Quantity:    item.Quantity,
		Coefficient: decimal.Zero,
		WorkPrice:   decimal.Zero,
		Value:       decimal.Zero,
	}

	a, ok := result.Assignment(item.ID)
	if !ok {
		return ir
	}
	ir.Key = a.Key

	ce, ok := coeffs[a.Key]
	if !ok || !ce.Matched {
		return ir
	}
	ir.Coefficient = ce.Coefficient
	ir.WorkPrice = ce.WorkPrice
	ir.Value = item.Quantity.Mul(ce.WorkPrice)
	return ir
}

func newStage(code string, forecasts models.Forecasts) models.StageBreakdown {
	s := models.StageBreakdown{
		StageCode: code,
		Forecast:  decimal.Zero,
		Proposed:  decimal.Zero,
	}
	if f, ok := forecasts[code]; ok {
		s.StageName = f.StageName
		s.HasForecast = true
		s.Forecast = f.Budget
	}
	return s
}

// finishStage разрыв = прогноз − предложение; этап без прогноза не считается соблюденным
func finishStage(s *models.StageBreakdown) {
	s.Gap = s.Forecast.Sub(s.Proposed)
	s.OK = s.HasForecast && !s.Gap.IsNegative()
}
