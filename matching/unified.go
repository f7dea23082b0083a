package matching

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bidcoef/catalog"
	"bidcoef/models"
)

var (
	// ErrItemNotFound позиция отсутствует в результате сопоставления
	ErrItemNotFound = errors.New("work item not found in match result")
	// ErrNilEntry для ручного сопоставления не передана позиция справочника
	ErrNilEntry = errors.New("catalog entry is required")
	// ErrNilResult не передан результат сопоставления
	ErrNilResult = errors.New("match result is required")
	// ErrDuplicateItemID идентификатор позиции повторяется в документах
	ErrDuplicateItemID = errors.New("duplicate work item id")
)

// UnmatchedItem позиция без подходящего кандидата. Ключ сохраняется
// для последующего ручного сопоставления.
type UnmatchedItem struct {
	ItemID     string            `json:"item_id"`
	DocumentID string            `json:"document_id"`
	FileName   string            `json:"file_name"`
	StageCode  string            `json:"stage_code"`
	Name       string            `json:"name"`
	Unit       string            `json:"unit"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Key        models.UnifiedKey `json:"key"`
}

// MatchStatistics статистика прогона сопоставления
type MatchStatistics struct {
	TotalItems     int     `json:"total_items"`
	MatchedItems   int     `json:"matched_items"`
	UnmatchedItems int     `json:"unmatched_items"`
	UniqueKeys     int     `json:"unique_keys"`
	MatchedKeys    int     `json:"matched_keys"`
	ManualKeys     int     `json:"manual_keys"`
	AverageScore   float64 `json:"average_score"`
}

// MatchResult результат сопоставления всех документов
type MatchResult struct {
	SessionID   string                                      `json:"session_id"`
	Documents   []models.Document                           `json:"-"`
	Assignments []models.MatchAssignment                    `json:"assignments"`
	ByKey       map[models.UnifiedKey]models.MatchAssignment `json:"by_key"`
	Unmatched   []UnmatchedItem                             `json:"unmatched"`
	Stats       MatchStatistics                             `json:"stats"`

	index map[string]int
}

// Assignment возвращает сопоставление позиции по ID
func (r *MatchResult) Assignment(itemID string) (models.MatchAssignment, bool) {
	idx, ok := r.indexOf(itemID)
	if !ok {
		return models.MatchAssignment{}, false
	}
	return r.Assignments[idx], true
}

func (r *MatchResult) indexOf(itemID string) (int, bool) {
	if r.index == nil || len(r.index) != len(r.Assignments) {
		r.reindex()
	}
	idx, ok := r.index[itemID]
	return idx, ok
}

func (r *MatchResult) reindex() {
	r.index = make(map[string]int, len(r.Assignments))
	for i, a := range r.Assignments {
		r.index[a.ItemID] = i
	}
}

// UnmatchedSuggestion подсказки для одного несопоставленного ключа
type UnmatchedSuggestion struct {
	Key           models.UnifiedKey `json:"key"`
	Name          string            `json:"name"`
	Unit          string            `json:"unit"`
	Occurrences   int               `json:"occurrences"`
	TotalQuantity decimal.Decimal   `json:"total_quantity"`
	Candidates    []Candidate       `json:"candidates"`
}

// Session сессия сопоставления. Хранит каноническое сопоставление по ключу
// в пределах одного прогона; каждый вызов выполняется целиком под блокировкой.
type Session struct {
	mu sync.Mutex

	id              string
	threshold       float64
	suggestionLimit int
	logger          *zap.Logger

	resolved map[models.UnifiedKey]models.MatchAssignment
	failed   map[models.UnifiedKey]bool
}

// Option настройка сессии
type Option func(*Session)

// WithThreshold задает порог автоматического сопоставления
func WithThreshold(threshold float64) Option {
	return func(s *Session) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithSuggestionLimit задает количество подсказок
func WithSuggestionLimit(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.suggestionLimit = limit
		}
	}
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession создает новую сессию сопоставления
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:              uuid.NewString(),
		threshold:       DefaultMatchThreshold,
		suggestionLimit: DefaultSuggestionLimit,
		logger:          zap.NewNop(),
		resolved:        make(map[models.UnifiedKey]models.MatchAssignment),
		failed:          make(map[models.UnifiedKey]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID идентификатор сессии
func (s *Session) ID() string {
	return s.id
}

// MatchAll сопоставляет все позиции всех документов со справочником.
// Первое вхождение ключа определяет сопоставление, остальные вхождения
// переиспользуют его без повторной оценки. Идентификаторы позиций должны
// быть уникальны во всех документах, иначе возвращается ErrDuplicateItemID
// и состояние сессии не меняется.
func (s *Session) MatchAll(docs []models.Document, cat *catalog.Catalog) (*MatchResult, error) {
	if err := checkItemIDs(docs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	startTime := time.Now()
	s.resolved = make(map[models.UnifiedKey]models.MatchAssignment)
	s.failed = make(map[models.UnifiedKey]bool)

	units := cat.Units()
	result := &MatchResult{
		SessionID:   s.id,
		Documents:   docs,
		Assignments: make([]models.MatchAssignment, 0),
		ByKey:       make(map[models.UnifiedKey]models.MatchAssignment),
		Unmatched:   make([]UnmatchedItem, 0),
	}

	for _, doc := range docs {
		for _, item := range doc.Items {
			key := units.UnifiedKey(item.Name, item.Unit)

			assignment, ok := s.resolved[key]
			if !ok && !s.failed[key] {
				candidates := FindCandidates(item, cat, 1, s.threshold)
				if len(candidates) > 0 {
					assignment = models.MatchAssignment{
						Key:   key,
						Entry: candidates[0].Entry,
						Score: candidates[0].Score,
					}
					s.resolved[key] = assignment
					ok = true
				} else {
					s.failed[key] = true
				}
			}

			if ok {
				assignment.ItemID = item.ID
				result.Assignments = append(result.Assignments, assignment)
				continue
			}

			result.Assignments = append(result.Assignments, models.MatchAssignment{ItemID: item.ID, Key: key})
			result.Unmatched = append(result.Unmatched, newUnmatchedItem(doc, item, key))
		}
	}

	for key, a := range s.resolved {
		result.ByKey[key] = a
	}
	result.reindex()
	result.Stats = computeStats(result)

	s.logger.Info("match completed",
		zap.Int("total_items", result.Stats.TotalItems),
		zap.Int("matched_items", result.Stats.MatchedItems),
		zap.Int("unmatched_items", result.Stats.UnmatchedItems),
		zap.Int("unique_keys", result.Stats.UniqueKeys),
		zap.Float64("average_score", result.Stats.AverageScore),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	return result, nil
}

// checkItemIDs проверяет уникальность идентификаторов позиций
func checkItemIDs(docs []models.Document) error {
	seen := make(map[string]string)
	for _, doc := range docs {
		for _, item := range doc.Items {
			if first, ok := seen[item.ID]; ok {
				return fmt.Errorf("item %q in documents %s and %s: %w", item.ID, first, doc.ID, ErrDuplicateItemID)
			}
			seen[item.ID] = doc.ID
		}
	}
	return nil
}

// OverrideMatch вручную назначает позицию справочника ключу позиции itemID.
// Замена действует на все позиции с тем же ключом во всех документах,
// включая ранее сопоставленные автоматически.
func (s *Session) OverrideMatch(itemID string, entry *models.CatalogEntry, result *MatchResult) error {
	if result == nil {
		return ErrNilResult
	}
	if entry == nil {
		return ErrNilEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := result.indexOf(itemID)
	if !ok {
		return fmt.Errorf("override %s: %w", itemID, ErrItemNotFound)
	}

	key := result.Assignments[idx].Key
	canonical := models.MatchAssignment{
		Key:    key,
		Entry:  entry,
		Score:  1.0,
		Manual: true,
	}

	s.resolved[key] = canonical
	delete(s.failed, key)
	if result.ByKey == nil {
		result.ByKey = make(map[models.UnifiedKey]models.MatchAssignment)
	}
	result.ByKey[key] = canonical

	updated := 0
	for i := range result.Assignments {
		if result.Assignments[i].Key != key {
			continue
		}
		a := canonical
		a.ItemID = result.Assignments[i].ItemID
		result.Assignments[i] = a
		updated++
	}

	remaining := result.Unmatched[:0]
	for _, u := range result.Unmatched {
		if u.Key != key {
			remaining = append(remaining, u)
		}
	}
	result.Unmatched = remaining
	result.Stats = computeStats(result)

	s.logger.Info("manual match applied",
		zap.String("key", string(key)),
		zap.String("entry_id", entry.ID),
		zap.String("entry_name", entry.Name),
		zap.Int("items_updated", updated),
	)

	return nil
}

// GetUnmatchedCandidates возвращает подсказки по каждому несопоставленному ключу
// без порога отсечения. Ключи упорядочены по числу вхождений по убыванию.
func (s *Session) GetUnmatchedCandidates(result *MatchResult, cat *catalog.Catalog) []UnmatchedSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result == nil {
		return nil
	}

	occurrences := make(map[models.UnifiedKey]int)
	for _, a := range result.Assignments {
		occurrences[a.Key]++
	}

	byKey := make(map[models.UnifiedKey]int)
	suggestions := make([]UnmatchedSuggestion, 0)
	for _, u := range result.Unmatched {
		if idx, seen := byKey[u.Key]; seen {
			suggestions[idx].TotalQuantity = suggestions[idx].TotalQuantity.Add(u.Quantity)
			continue
		}

		item := models.WorkItem{ID: u.ItemID, Name: u.Name, Unit: u.Unit}
		byKey[u.Key] = len(suggestions)
		suggestions = append(suggestions, UnmatchedSuggestion{
			Key:           u.Key,
			Name:          u.Name,
			Unit:          u.Unit,
			Occurrences:   occurrences[u.Key],
			TotalQuantity: u.Quantity,
			Candidates:    RankCandidates(item, cat, s.suggestionLimit),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Occurrences > suggestions[j].Occurrences
	})

	return suggestions
}

func newUnmatchedItem(doc models.Document, item models.WorkItem, key models.UnifiedKey) UnmatchedItem {
	return UnmatchedItem{
		ItemID:     item.ID,
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		StageCode:  item.StageCode,
		Name:       item.Name,
		Unit:       item.Unit,
		Quantity:   item.Quantity,
		Key:        key,
	}
}

// computeStats пересчитывает статистику по текущим сопоставлениям
func computeStats(r *MatchResult) MatchStatistics {
	stats := MatchStatistics{TotalItems: len(r.Assignments)}
	keys := make(map[models.UnifiedKey]bool)
	scoreSum := 0.0

	for _, a := range r.Assignments {
		keys[a.Key] = true
		if a.Matched() {
			stats.MatchedItems++
			scoreSum += a.Score
		}
	}

	stats.UnmatchedItems = stats.TotalItems - stats.MatchedItems
	stats.UniqueKeys = len(keys)
	for key := range keys {
		if a, ok := r.ByKey[key]; ok && a.Matched() {
			stats.MatchedKeys++
			if a.Manual {
				stats.ManualKeys++
			}
		}
	}
	if stats.MatchedItems > 0 {
		stats.AverageScore = scoreSum / float64(stats.MatchedItems)
	}
	return stats
}
