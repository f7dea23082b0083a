package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded iterations",
}

var historyListCmd = &cobra.Command{
	Use:   "list [project]",
	Short: "List iterations of a project, or all projects with history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [project] [number]",
	Short: "Show a recorded iteration without re-solving",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryShow,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		projects, err := db.Projects()
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), projects)
	}

	list, err := db.ListIterations(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), list)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	number, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid iteration number %q: %w", args[1], err)
	}

	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	iter, err := db.GetIteration(args[0], number)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), iter)
}
