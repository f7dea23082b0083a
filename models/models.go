package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source происхождение строки: файл, лист, номер строки
type Source struct {
	FileID string `json:"file_id"`
	Sheet  string `json:"sheet,omitempty"`
	Row    int    `json:"row,omitempty"`
}

// WorkItem позиция КСС (количественно-стоимостной сметки)
// Неизменяема после разбора, принадлежит документу
type WorkItem struct {
	ID        string          `json:"id"`
	StageCode string          `json:"stage_code"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Quantity  decimal.Decimal `json:"quantity"`
	Source    Source          `json:"source"`
}

// Document разобранный документ с позициями
type Document struct {
	ID       string     `json:"id"`
	FileName string     `json:"file_name"`
	Items    []WorkItem `json:"items"`
}

// CatalogEntry позиция ценового справочника
type CatalogEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	BasePrice decimal.Decimal `json:"base_price"`
	Aliases   []string        `json:"aliases,omitempty"`
	Source    Source          `json:"source"`
}

// UnifiedKey нормализованная пара "наименование|единица"
type UnifiedKey string

// MatchAssignment результат сопоставления позиции со справочником.
// Entry == nil означает, что позиция не сопоставлена.
type MatchAssignment struct {
	ItemID string        `json:"item_id"`
	Key    UnifiedKey    `json:"key"`
	Entry  *CatalogEntry `json:"entry,omitempty"`
	Score  float64       `json:"score"`
	Manual bool          `json:"manual"`
}

// Matched возвращает true если позиция сопоставлена
func (a MatchAssignment) Matched() bool {
	return a.Entry != nil
}

// StageForecast прогнозный бюджет этапа
type StageForecast struct {
	StageCode string          `json:"stage_code"`
	StageName string          `json:"stage_name"`
	Budget    decimal.Decimal `json:"budget"`
}

// Forecasts прогнозы по коду этапа
type Forecasts map[string]StageForecast

// NewForecasts собирает карту прогнозов из списка. Повторный код этапа
// перезаписывает предыдущий (ручной повторный ввод).
func NewForecasts(list []StageForecast) Forecasts {
	f := make(Forecasts, len(list))
	for _, sf := range list {
		f[sf.StageCode] = sf
	}
	return f
}

// EnsureIDs проставляет UUID документам и позициям без идентификатора
func EnsureIDs(docs []Document) {
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		for j := range docs[i].Items {
			item := &docs[i].Items[j]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.Source.FileID == "" {
				item.Source.FileID = docs[i].ID
			}
		}
	}
}
