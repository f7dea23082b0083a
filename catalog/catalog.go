package catalog

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidcoef/models"
	"bidcoef/normalization"
)

// Duplicate отброшенная повторная позиция справочника
type Duplicate struct {
	Key      models.UnifiedKey   `json:"key"`
	Kept     models.CatalogEntry `json:"kept"`
	Rejected models.CatalogEntry `json:"rejected"`
}

// Catalog ценовой справочник сессии. После создания не изменяется.
type Catalog struct {
	entries    []models.CatalogEntry
	byKey      map[models.UnifiedKey]int
	units      *normalization.UnitTable
	duplicates []Duplicate
}

// New строит справочник из позиций в порядке поступления.
// При совпадении нормализованной пары (наименование, единица) побеждает первая
// позиция, остальные только логируются как предупреждение.
func New(entries []models.CatalogEntry, units *normalization.UnitTable, logger *zap.Logger) *Catalog {
	if units == nil {
		units = normalization.DefaultUnits
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Catalog{
		entries: make([]models.CatalogEntry, 0, len(entries)),
		byKey:   make(map[models.UnifiedKey]int, len(entries)),
		units:   units,
	}

	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.Aliases = append([]string(nil), e.Aliases...)

		key := units.UnifiedKey(e.Name, e.Unit)
		if idx, exists := c.byKey[key]; exists {
			kept := c.entries[idx]
			logger.Warn("duplicate catalog entry ignored",
				zap.String("key", string(key)),
				zap.String("kept_id", kept.ID),
				zap.String("kept_file", kept.Source.FileID),
				zap.String("rejected_id", e.ID),
				zap.String("rejected_file", e.Source.FileID),
			)
			c.duplicates = append(c.duplicates, Duplicate{Key: key, Kept: kept, Rejected: e})
			continue
		}

		c.byKey[key] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	logger.Info("catalog loaded",
		zap.Int("entries", len(c.entries)),
		zap.Int("duplicates", len(c.duplicates)),
	)

	return c
}

// Entries возвращает позиции в стабильном порядке поступления.
// Возвращаемый срез нельзя изменять.
func (c *Catalog) Entries() []models.CatalogEntry {
	return c.entries
}

// Entry возвращает указатель на позицию справочника по индексу
func (c *Catalog) Entry(i int) *models.CatalogEntry {
	return &c.entries[i]
}

// Len количество уникальных позиций
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup ищет позицию по унифицированному ключу
func (c *Catalog) Lookup(key models.UnifiedKey) (*models.CatalogEntry, bool) {
	idx, ok := c.byKey[key]
	if !ok {
		return nil, false
	}
	return &c.entries[idx], true
}

// FindByID ищет позицию по идентификатору
func (c *Catalog) FindByID(id string) (*models.CatalogEntry, bool) {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return &c.entries[i], true
		}
	}
	return nil, false
}

// Duplicates отброшенные дубликаты в порядке обнаружения
func (c *Catalog) Duplicates() []Duplicate {
	return c.duplicates
}

// Units таблица единиц, с которой построен справочник
func (c *Catalog) Units() *normalization.UnitTable {
	return c.units
}
