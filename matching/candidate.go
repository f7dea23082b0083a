package matching

import (
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"bidcoef/catalog"
	"bidcoef/models"
	"bidcoef/normalization"
)

const (
	// DefaultMatchThreshold минимальная схожесть для автоматического сопоставления
	DefaultMatchThreshold = 0.6
	// DefaultSuggestionLimit количество подсказок для несопоставленного ключа
	DefaultSuggestionLimit = 5
)

// Candidate кандидат из справочника с оценкой схожести
type Candidate struct {
	Entry *models.CatalogEntry `json:"entry"`
	Index int                  `json:"index"`
	Score float64              `json:"score"`
}

// FindCandidates возвращает до topN кандидатов со схожестью не ниже threshold.
// Позиции с неэквивалентной единицей измерения исключаются полностью.
// При равной оценке сохраняется порядок справочника.
func FindCandidates(item models.WorkItem, cat *catalog.Catalog, topN int, threshold float64) []Candidate {
	return rankCandidates(item, cat, topN, threshold, true)
}

// RankCandidates то же ранжирование без порога отсечения
func RankCandidates(item models.WorkItem, cat *catalog.Catalog, topN int) []Candidate {
	return rankCandidates(item, cat, topN, 0, false)
}

func rankCandidates(item models.WorkItem, cat *catalog.Catalog, topN int, threshold float64, cutoff bool) []Candidate {
	units := cat.Units()
	name := normalization.NormalizeText(item.Name)
	sortedName := normalization.TokenSort(item.Name)

	candidates := make([]Candidate, 0)
	for i, e := range cat.Entries() {
		if !units.Equivalent(item.Unit, e.Unit) {
			continue
		}

		score := entryScore(name, sortedName, e)
		if cutoff && score < threshold {
			continue
		}
		candidates = append(candidates, Candidate{Entry: cat.Entry(i), Index: i, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if topN > 0 && len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates
}

// entryScore максимум из схожести с наименованием, с синонимами и по отсортированным словам
func entryScore(name, sortedName string, e models.CatalogEntry) float64 {
	score := LevSim(name, normalization.NormalizeText(e.Name))
	for _, alias := range e.Aliases {
		if s := LevSim(name, normalization.NormalizeText(alias)); s > score {
			score = s
		}
	}
	if s := LevSim(sortedName, normalization.TokenSort(e.Name)); s > score {
		score = s
	}
	return score
}

// LevSim схожесть по Левенштейну: 1 - distance/max(len(a), len(b)).
// Длины считаются в рунах.
func LevSim(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1.0
	}
	if la == 0 || lb == 0 {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(distance)/float64(max(la, lb))
}

// TokenSortSim схожесть без учета порядка слов
func TokenSortSim(a, b string) float64 {
	return LevSim(normalization.TokenSort(a), normalization.TokenSort(b))
}
