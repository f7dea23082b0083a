package normalization

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"bidcoef/models"
)

// KeySeparator разделитель наименования и единицы в унифицированном ключе
const KeySeparator = "|"

// punctuation удаляет все, кроме букв, цифр и пробельных символов
var punctuation = runes.Predicate(func(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
})

// NormalizeText приводит наименование к сравнимому виду:
// NFC, без пунктуации, нижний регистр, одиночные пробелы.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	t := transform.Chain(norm.NFC, runes.Remove(punctuation), runes.Map(unicode.ToLower))
	normalized, _, err := transform.String(t, s)
	if err != nil {
		normalized = strings.ToLower(s)
	}

	return strings.Join(strings.Fields(normalized), " ")
}

// TokenSort нормализует строку и сортирует слова лексикографически
func TokenSort(s string) string {
	tokens := strings.Fields(NormalizeText(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// UnifiedKeyFor строит ключ единообразия по встроенной таблице единиц
func UnifiedKeyFor(name, unit string) models.UnifiedKey {
	return DefaultUnits.UnifiedKey(name, unit)
}

// SplitKey разбирает ключ обратно на наименование и единицу
func SplitKey(key models.UnifiedKey) (name, unit string) {
	s := string(key)
	idx := strings.LastIndex(s, KeySeparator)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+len(KeySeparator):]
}
