package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bidcoef/matching"
)

var (
	itemID  string
	entryID string
)

var matchCmd = &cobra.Command{
	Use:   "match [bundle]",
	Short: "Match every work item against the catalog",
	Long: `Resolves each unified key (normalized name + unit) once and applies the
result to every item sharing the key. Manual overrides stored in the bundle
are replayed after automatic matching.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

var suggestCmd = &cobra.Command{
	Use:   "suggest [bundle]",
	Short: "List candidates for unmatched keys, most frequent first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSuggest,
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates [bundle]",
	Short: "Show the top catalog candidates for one work item",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidates,
}

var overrideCmd = &cobra.Command{
	Use:   "override [bundle]",
	Short: "Manually assign a catalog entry to an item's unified key",
	Long: `Assigns the catalog entry to every item that shares the unified key of
--item and records the override in the bundle file.

Example:
  bidcoef override project.json --item 7f1c... --entry 0b9e...`,
	Args: cobra.ExactArgs(1),
	RunE: runOverride,
}

func runMatch(cmd *cobra.Command, args []string) error {
	b, err := loadBundle(args[0])
	if err != nil {
		return err
	}
	ws, err := prepare(b)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), ws.result)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	b, err := loadBundle(args[0])
	if err != nil {
		return err
	}
	ws, err := prepare(b)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), ws.session.GetUnmatchedCandidates(ws.result, ws.catalog))
}

func runCandidates(cmd *cobra.Command, args []string) error {
	b, err := loadBundle(args[0])
	if err != nil {
		return err
	}
	item, ok := findItem(b.Documents, itemID)
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, matching.ErrItemNotFound)
	}
	ws, err := prepare(b)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), matching.FindCandidates(item, ws.catalog, cfg.TopN, cfg.MatchThreshold))
}

func runOverride(cmd *cobra.Command, args []string) error {
	path := args[0]
	b, err := loadBundle(path)
	if err != nil {
		return err
	}
	ws, err := prepare(b)
	if err != nil {
		return err
	}

	o := ManualOverride{ItemID: itemID, EntryID: entryID}
	if err := applyOverride(ws.session, ws.catalog, ws.result, o); err != nil {
		return err
	}

	b.Overrides = append(b.Overrides, o)
	if err := saveBundle(path, b); err != nil {
		return err
	}
	logger.Info("override recorded",
		zap.String("project", b.Project),
		zap.String("item_id", itemID),
		zap.String("entry_id", entryID),
	)

	return writeJSON(cmd.OutOrStdout(), ws.result.Stats)
}
