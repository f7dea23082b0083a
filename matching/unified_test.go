package matching

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidcoef/catalog"
	"bidcoef/models"
)

func matchAll(t *testing.T, s *Session, docs []models.Document, cat *catalog.Catalog) *MatchResult {
	t.Helper()
	result, err := s.MatchAll(docs, cat)
	require.NoError(t, err)
	return result
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func twoDocuments() []models.Document {
	return []models.Document{
		{
			ID:       "doc-a",
			FileName: "КСС_етап1.xlsx",
			Items: []models.WorkItem{
				workItem("a1", "S1", "Изкопни работи", "м3", 10),
				workItem("a2", "S1", "Кофраж на колони", "м2", 20),
				workItem("a3", "S1", "Монтаж на соларни панели", "бр", 4),
			},
		},
		{
			ID:       "doc-b",
			FileName: "КСС_етап2.xlsx",
			Items: []models.WorkItem{
				workItem("b1", "S2", "ИЗКОПНИ РАБОТИ.", "куб.м", 5),
				workItem("b2", "S2", "изкопни  работи", "м3", 7),
				workItem("b3", "S2", "Монтаж на соларни панели", "бр", 2),
			},
		},
	}
}

func testCatalogEntries() []models.CatalogEntry {
	return []models.CatalogEntry{
		catEntry("Изкопни работи", "м3", 50),
		catEntry("Изкопни работи ръчно", "м3", 80),
		catEntry("Кофраж колони", "м2", 30),
		catEntry("Бетон B25", "м3", 180),
	}
}

func TestMatchAllConsistentAcrossDocuments(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()

	result := matchAll(t, s, twoDocuments(), cat)

	require.Len(t, result.Assignments, 6)
	a1, ok := result.Assignment("a1")
	require.True(t, ok)
	require.True(t, a1.Matched())
	assert.Equal(t, "Изкопни работи", a1.Entry.Name)

	for _, id := range []string{"b1", "b2"} {
		b, ok := result.Assignment(id)
		require.True(t, ok)
		assert.Equal(t, a1.Key, b.Key)
		assert.Same(t, a1.Entry, b.Entry)
		assert.Equal(t, a1.Score, b.Score)
		assert.Equal(t, a1.Manual, b.Manual)
	}

	assert.Equal(t, 4, result.Stats.MatchedItems)
	assert.Equal(t, 2, result.Stats.UnmatchedItems)
	assert.Equal(t, 3, result.Stats.UniqueKeys)
	assert.Equal(t, 2, result.Stats.MatchedKeys)
	assert.Len(t, result.ByKey, 2)
}

func TestMatchAllUnmatchedIsData(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()

	result := matchAll(t, s, twoDocuments(), cat)

	require.Len(t, result.Unmatched, 2)
	for _, u := range result.Unmatched {
		assert.Equal(t, models.UnifiedKey("монтаж на соларни панели|бр"), u.Key)
	}
	a3, _ := result.Assignment("a3")
	assert.False(t, a3.Matched())
	assert.Equal(t, 0.0, a3.Score)
	_, inByKey := result.ByKey[a3.Key]
	assert.False(t, inByKey)
}

func TestMatchAllIdempotent(t *testing.T) {
	entries := testCatalogEntries()
	for i := range entries {
		entries[i].ID = string(rune('a' + i))
	}

	r1 := matchAll(t, NewSession(), twoDocuments(), newCatalog(entries...))
	r2 := matchAll(t, NewSession(), twoDocuments(), newCatalog(entries...))

	opts := cmp.Options{
		decimalComparer,
		cmpopts.IgnoreUnexported(MatchResult{}),
		cmpopts.IgnoreFields(MatchResult{}, "SessionID"),
	}
	if diff := cmp.Diff(r1, r2, opts); diff != "" {
		t.Errorf("MatchAll is not idempotent (-first +second):\n%s", diff)
	}
}

func TestMatchAllResetsPreviousRun(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()

	first := matchAll(t, s, twoDocuments(), cat)
	a1, _ := first.Assignment("a1")
	require.NoError(t, s.OverrideMatch("a1", cat.Entry(1), first))

	second := matchAll(t, s, twoDocuments(), cat)
	again, _ := second.Assignment("a1")
	assert.False(t, again.Manual)
	assert.Same(t, a1.Entry, again.Entry)
}

func TestOverrideMatchPropagatesToKey(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()
	result := matchAll(t, s, twoDocuments(), cat)

	chosen := cat.Entry(1)
	require.NoError(t, s.OverrideMatch("b2", chosen, result))

	for _, id := range []string{"a1", "b1", "b2"} {
		a, ok := result.Assignment(id)
		require.True(t, ok)
		assert.Same(t, chosen, a.Entry, id)
		assert.Equal(t, 1.0, a.Score, id)
		assert.True(t, a.Manual, id)
	}

	other, _ := result.Assignment("a2")
	assert.False(t, other.Manual)

	canonical := result.ByKey[models.UnifiedKey("изкопни работи|м3")]
	assert.Same(t, chosen, canonical.Entry)
	assert.Equal(t, 1, result.Stats.ManualKeys)
}

func TestOverrideMatchResolvesUnmatchedKey(t *testing.T) {
	cat := newCatalog(append(testCatalogEntries(), catEntry("Фотоволтаична инсталация", "бр", 400))...)
	s := NewSession()
	result := matchAll(t, s, twoDocuments(), cat)
	require.Len(t, result.Unmatched, 2)

	panel, ok := cat.Lookup("фотоволтаична инсталация|бр")
	require.True(t, ok)
	require.NoError(t, s.OverrideMatch("a3", panel, result))

	assert.Empty(t, result.Unmatched)
	b3, _ := result.Assignment("b3")
	assert.True(t, b3.Manual)
	assert.Same(t, panel, b3.Entry)
	assert.Equal(t, 6, result.Stats.MatchedItems)
	assert.Equal(t, 0, result.Stats.UnmatchedItems)
}

func TestOverrideMatchErrors(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()
	result := matchAll(t, s, twoDocuments(), cat)

	assert.ErrorIs(t, s.OverrideMatch("missing", cat.Entry(0), result), ErrItemNotFound)
	assert.ErrorIs(t, s.OverrideMatch("a1", nil, result), ErrNilEntry)
	assert.ErrorIs(t, s.OverrideMatch("a1", cat.Entry(0), nil), ErrNilResult)
}

func TestGetUnmatchedCandidates(t *testing.T) {
	cat := newCatalog(
		catEntry("Изкопни работи", "м3", 50),
		catEntry("Монтаж врати", "бр", 90),
		catEntry("Монтаж прозорци", "бр", 120),
	)
	docs := []models.Document{
		{ID: "d1", Items: []models.WorkItem{
			workItem("1", "S1", "Демонтаж на стара ограда", "м", 30),
			workItem("2", "S1", "Монтаж на соларни панели", "бр", 4),
		}},
		{ID: "d2", Items: []models.WorkItem{
			workItem("3", "S2", "Монтаж на соларни панели", "бр", 2),
			workItem("4", "S2", "Монтаж на соларни панели.", "бр", 1),
		}},
	}

	s := NewSession(WithSuggestionLimit(5))
	result := matchAll(t, s, docs, cat)
	require.Len(t, result.Unmatched, 4)

	suggestions := s.GetUnmatchedCandidates(result, cat)
	require.Len(t, suggestions, 2)

	top := suggestions[0]
	assert.Equal(t, models.UnifiedKey("монтаж на соларни панели|бр"), top.Key)
	assert.Equal(t, 3, top.Occurrences)
	assert.True(t, top.TotalQuantity.Equal(decimal.NewFromInt(7)))
	require.Len(t, top.Candidates, 2)
	for _, c := range top.Candidates {
		assert.Less(t, c.Score, DefaultMatchThreshold)
		assert.Equal(t, "бр", c.Entry.Unit)
	}

	assert.Equal(t, 1, suggestions[1].Occurrences)
	assert.Empty(t, suggestions[1].Candidates)
}

func TestSessionConcurrentCallsSerialize(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()

	var wg sync.WaitGroup
	results := make([]*MatchResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.MatchAll(twoDocuments(), cat)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 4, r.Stats.MatchedItems)
		assert.Len(t, r.ByKey, 2)
	}
}

func TestMatchAllRejectsDuplicateItemIDs(t *testing.T) {
	cat := newCatalog(testCatalogEntries()...)
	s := NewSession()
	previous := matchAll(t, s, twoDocuments(), cat)

	// номера строк повторяются в разных файлах
	docs := []models.Document{
		{ID: "d1", Items: []models.WorkItem{workItem("1", "S1", "Изкопни работи", "м3", 10)}},
		{ID: "d2", Items: []models.WorkItem{workItem("1", "S1", "Бетон B25", "м3", 2)}},
	}

	result, err := s.MatchAll(docs, cat)
	assert.ErrorIs(t, err, ErrDuplicateItemID)
	assert.Nil(t, result)

	// сессия сохраняет состояние предыдущего прогона
	require.NoError(t, s.OverrideMatch("a1", cat.Entry(1), previous))
	b1, _ := previous.Assignment("b1")
	assert.True(t, b1.Manual)
}
