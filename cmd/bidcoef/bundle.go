package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidcoef/catalog"
	"bidcoef/matching"
	"bidcoef/models"
	"bidcoef/normalization"
)

// Bundle входные данные одного проекта
type Bundle struct {
	Project   string                 `json:"project"`
	Documents []models.Document      `json:"documents"`
	Catalog   []models.CatalogEntry  `json:"catalog"`
	Forecasts []models.StageForecast `json:"forecasts"`
	Overrides []ManualOverride       `json:"overrides,omitempty"`
}

// ManualOverride ручное сопоставление, повторяемое при каждой загрузке
type ManualOverride struct {
	ItemID  string `json:"item_id"`
	EntryID string `json:"entry_id"`
}

func loadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", path, err)
	}
	if b.Project == "" {
		return nil, fmt.Errorf("bundle %s: project is required", path)
	}

	models.EnsureIDs(b.Documents)
	for i := range b.Catalog {
		if b.Catalog[i].ID == "" {
			b.Catalog[i].ID = uuid.NewString()
		}
	}
	return &b, nil
}

// saveBundle записывает бандл через временный файл
func saveBundle(path string, b *Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bundle-*.json")
	if err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save bundle: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// workspace справочник, сессия и результат сопоставления одного бандла
type workspace struct {
	bundle  *Bundle
	catalog *catalog.Catalog
	session *matching.Session
	result  *matching.MatchResult
}

func prepare(b *Bundle) (*workspace, error) {
	units := normalization.DefaultUnits.WithAliases(cfg.UnitAliases)
	cat := catalog.New(b.Catalog, units, logger.With(zap.String("project", b.Project)))

	session := matching.NewSession(
		matching.WithThreshold(cfg.MatchThreshold),
		matching.WithSuggestionLimit(cfg.SuggestionLimit),
		matching.WithLogger(logger.With(zap.String("project", b.Project))),
	)
	result, err := session.MatchAll(b.Documents, cat)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", b.Project, err)
	}

	for _, o := range b.Overrides {
		if err := applyOverride(session, cat, result, o); err != nil {
			return nil, err
		}
	}

	return &workspace{bundle: b, catalog: cat, session: session, result: result}, nil
}

var errEntryNotFound = errors.New("catalog entry not found")

func applyOverride(session *matching.Session, cat *catalog.Catalog, result *matching.MatchResult, o ManualOverride) error {
	entry, ok := cat.FindByID(o.EntryID)
	if !ok {
		return fmt.Errorf("override %s -> %s: %w", o.ItemID, o.EntryID, errEntryNotFound)
	}
	return session.OverrideMatch(o.ItemID, entry, result)
}

func findItem(docs []models.Document, id string) (models.WorkItem, bool) {
	for _, doc := range docs {
		for _, item := range doc.Items {
			if item.ID == id {
				return item, true
			}
		}
	}
	return models.WorkItem{}, false
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
