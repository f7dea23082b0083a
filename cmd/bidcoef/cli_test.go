package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bidcoef/config"
	"bidcoef/database"
	"bidcoef/matching"
	"bidcoef/models"
)

const testBundle = `{
  "project": "sofia-office",
  "documents": [
    {"id": "d1", "file_name": "etap1.xlsx", "items": [
      {"id": "i1", "stage_code": "S1", "name": "Бетон B25", "unit": "м3", "quantity": "20"},
      {"id": "i2", "stage_code": "S1", "name": "Фотоволтаична инсталация", "unit": "бр", "quantity": "2"}
    ]},
    {"id": "d2", "file_name": "etap2.xlsx", "items": [
      {"id": "i3", "stage_code": "S1", "name": "бетон  B25", "unit": "куб.м", "quantity": "1"}
    ]}
  ],
  "catalog": [
    {"id": "e1", "name": "Бетон B25", "unit": "м3", "base_price": "50"},
    {"id": "e2", "name": "Монтаж на соларни панели", "unit": "бр", "base_price": "300"}
  ],
  "forecasts": [
    {"stage_code": "S1", "stage_name": "Груб строеж", "budget": "2000"}
  ]
}`

func setupCLI(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(dir, "history.db")
	t.Cleanup(func() {
		itemID, entryID = "", ""
		iterationNumber, dryRun, compare = 0, false, false
	})

	path := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(path, []byte(testBundle), 0o644))
	return path
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return &out, fn(cmd, args)
}

func TestMatchAndSuggest(t *testing.T) {
	bundle := setupCLI(t)

	out, err := run(t, runMatch, bundle)
	require.NoError(t, err)

	var result matching.MatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 3, result.Stats.TotalItems)
	assert.Equal(t, 1, result.Stats.UnmatchedItems)
	assert.Equal(t, 2, result.Stats.UniqueKeys)

	out, err = run(t, runSuggest, bundle)
	require.NoError(t, err)

	var suggestions []matching.UnmatchedSuggestion
	require.NoError(t, json.Unmarshal(out.Bytes(), &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.UnifiedKey("фотоволтаична инсталация|бр"), suggestions[0].Key)
	require.NotEmpty(t, suggestions[0].Candidates)
	assert.Equal(t, "e2", suggestions[0].Candidates[0].Entry.ID)
}

func TestCandidates(t *testing.T) {
	bundle := setupCLI(t)
	itemID = "i3"

	out, err := run(t, runCandidates, bundle)
	require.NoError(t, err)

	var candidates []matching.Candidate
	require.NoError(t, json.Unmarshal(out.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "e1", candidates[0].Entry.ID)

	itemID = "missing"
	_, err = run(t, runCandidates, bundle)
	assert.ErrorIs(t, err, matching.ErrItemNotFound)
}

func TestOverridePersistsInBundle(t *testing.T) {
	bundle := setupCLI(t)
	itemID, entryID = "i2", "e2"

	out, err := run(t, runOverride, bundle)
	require.NoError(t, err)

	var stats matching.MatchStatistics
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, 0, stats.UnmatchedItems)
	assert.Equal(t, 1, stats.ManualKeys)

	b, err := loadBundle(bundle)
	require.NoError(t, err)
	assert.Equal(t, []ManualOverride{{ItemID: "i2", EntryID: "e2"}}, b.Overrides)

	// override применяется при повторной загрузке
	out, err = run(t, runMatch, bundle)
	require.NoError(t, err)
	var result matching.MatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Empty(t, result.Unmatched)

	entryID = "missing"
	_, err = run(t, runOverride, bundle)
	assert.ErrorIs(t, err, errEntryNotFound)
}

func TestOptimizeRecordsHistory(t *testing.T) {
	bundle := setupCLI(t)
	itemID, entryID = "i2", "e2"
	_, err := run(t, runOverride, bundle)
	require.NoError(t, err)

	out, err := run(t, runOptimize, bundle)
	require.NoError(t, err)

	var first []optimizeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &first))
	require.Len(t, first, 1)
	require.Empty(t, first[0].Error)
	assert.Equal(t, 1, first[0].Iteration.Number)
	assert.Equal(t, "sofia-office", first[0].Iteration.Project)
	assert.True(t, first[0].Iteration.Totals.Proposed.LessThanOrEqual(decimal.NewFromInt(2000)))

	compare = true
	out, err = run(t, runOptimize, bundle)
	require.NoError(t, err)

	var second []optimizeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &second))
	assert.Equal(t, 2, second[0].Iteration.Number)
	assert.Equal(t, models.Params{MinCoeff: 0.75, MaxCoeff: 1.25, Lambda: 100}, second[0].Iteration.Params)
	assert.Len(t, second[0].Changes, 2)

	out, err = run(t, runHistoryList, "sofia-office")
	require.NoError(t, err)
	var list []database.IterationSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[1].Number)

	out, err = run(t, runHistoryShow, "sofia-office", "1")
	require.NoError(t, err)
	var shown models.IterationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, first[0].Iteration.ID, shown.ID)

	_, err = run(t, runHistoryShow, "sofia-office", "7")
	assert.ErrorIs(t, err, database.ErrIterationNotFound)
}

func TestOptimizeDryRunAndFailure(t *testing.T) {
	bundle := setupCLI(t)
	dryRun = true

	_, err := run(t, runOptimize, bundle)
	require.NoError(t, err)

	out, err := run(t, runHistoryList)
	require.NoError(t, err)
	assert.JSONEq(t, "null", out.String(), "dry run must not record history")

	b, err := loadBundle(bundle)
	require.NoError(t, err)
	b.Project = "tight-budget"
	b.Forecasts[0].Budget = decimal.NewFromInt(100)
	tight := filepath.Join(filepath.Dir(bundle), "tight.json")
	require.NoError(t, saveBundle(tight, b))

	out, err = run(t, runOptimize, bundle, tight)
	require.Error(t, err)

	var outputs []optimizeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &outputs))
	require.Len(t, outputs, 2)
	assert.Empty(t, outputs[0].Error)
	assert.NotEmpty(t, outputs[1].Error)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	l, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}
