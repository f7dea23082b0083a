package normalization

import (
	"strings"

	"bidcoef/models"
)

// UnitTable таблица синонимов единиц измерения: синоним -> каноническая форма.
// Ключи хранятся в нижнем регистре без пробелов по краям.
type UnitTable struct {
	aliases map[string]string
}

// defaultUnitAliases встроенные синонимы (болгарские КСС и латиница)
var defaultUnitAliases = map[string][]string{
	"м3":    {"м3", "м³", "куб.м", "куб. м", "кубм", "m3", "m³", "cbm"},
	"м2":    {"м2", "м²", "кв.м", "кв. м", "квм", "m2", "m²", "sqm"},
	"м":     {"м", "м.", "м.л.", "л.м.", "лм", "m", "lm"},
	"бр":    {"бр", "бр.", "брой", "броя", "pcs", "pc", "шт", "шт."},
	"кг":    {"кг", "кг.", "kg"},
	"т":     {"т", "т.", "тон", "тона", "t"},
	"л":     {"л", "л.", "литър", "литра", "l"},
	"компл": {"компл", "компл.", "к-т", "комплект", "set"},
	"ч.ч":   {"ч.ч", "ч.ч.", "човекочас", "човекочаса", "ч/ч"},
	"км":    {"км", "km"},
}

// DefaultUnits встроенная таблица единиц
var DefaultUnits = newDefaultUnitTable()

func newDefaultUnitTable() *UnitTable {
	t := &UnitTable{aliases: make(map[string]string)}
	for canonical, aliases := range defaultUnitAliases {
		t.aliases[unitLookupKey(canonical)] = canonical
		for _, alias := range aliases {
			t.aliases[unitLookupKey(alias)] = canonical
		}
	}
	return t
}

// WithAliases возвращает новую таблицу, дополненную синонимами alias -> canonical.
// Исходная таблица не изменяется.
func (t *UnitTable) WithAliases(extra map[string]string) *UnitTable {
	merged := &UnitTable{aliases: make(map[string]string, len(t.aliases)+len(extra))}
	for k, v := range t.aliases {
		merged.aliases[k] = v
	}
	for alias, canonical := range extra {
		canonical = unitLookupKey(canonical)
		if c, ok := t.aliases[canonical]; ok {
			canonical = c
		}
		merged.aliases[unitLookupKey(alias)] = canonical
		merged.aliases[canonical] = canonical
	}
	return merged
}

// Normalize возвращает каноническую форму единицы.
// Неизвестная единица возвращается как есть (без пробелов по краям, в нижнем регистре).
func (t *UnitTable) Normalize(u string) string {
	key := unitLookupKey(u)
	if canonical, ok := t.aliases[key]; ok {
		return canonical
	}
	return key
}

// Equivalent сравнивает единицы по канонической форме
func (t *UnitTable) Equivalent(u1, u2 string) bool {
	return strings.EqualFold(t.Normalize(u1), t.Normalize(u2))
}

// UnifiedKey строит ключ "наименование|единица"
func (t *UnitTable) UnifiedKey(name, unit string) models.UnifiedKey {
	return models.UnifiedKey(NormalizeText(name) + KeySeparator + t.Normalize(unit))
}

// NormalizeUnit нормализует единицу по встроенной таблице
func NormalizeUnit(u string) string {
	return DefaultUnits.Normalize(u)
}

// UnitsEquivalent сравнивает единицы по встроенной таблице
func UnitsEquivalent(u1, u2 string) bool {
	return DefaultUnits.Equivalent(u1, u2)
}

func unitLookupKey(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}
