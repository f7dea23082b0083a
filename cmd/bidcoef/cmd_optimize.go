package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bidcoef/database"
	"bidcoef/models"
	"bidcoef/optimizer"
)

var (
	iterationNumber int
	dryRun          bool
	compare         bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [bundle...]",
	Short: "Solve coefficients for one or more projects and record the iteration",
	Long: `Builds the coefficient LP from the matched items and stage forecasts,
solves it and appends the result to the iteration history. Hyperparameters
follow the iteration number and the gap of the previous iteration.

Several bundles are optimized in parallel; a failing project does not stop
the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOptimize,
}

// optimizeOutput результат одного проекта
type optimizeOutput struct {
	Project   string                       `json:"project"`
	Iteration *models.IterationResult      `json:"iteration,omitempty"`
	Changes   []optimizer.CoefficientDelta `json:"changes,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

func runOptimize(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	jobs := make([]optimizer.Job, 0, len(args))
	for _, path := range args {
		b, err := loadBundle(path)
		if err != nil {
			return err
		}
		ws, err := prepare(b)
		if err != nil {
			return err
		}

		number, previous, err := nextIteration(db, b.Project, iterationNumber)
		if err != nil {
			return err
		}
		jobs = append(jobs, optimizer.Job{
			Project:   b.Project,
			Match:     ws.result,
			Forecasts: models.NewForecasts(b.Forecasts),
			Iteration: number,
			Previous:  previous,
		})
	}

	opt := optimizer.New(
		optimizer.WithSolver(optimizer.NewSimplexSolver(cfg.SolverTolerance)),
		optimizer.WithTimeout(cfg.SolverTimeout),
		optimizer.WithLogger(logger),
	)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := opt.OptimizeBatch(ctx, jobs)
	if err != nil {
		return err
	}

	failed := 0
	outputs := make([]optimizeOutput, 0, len(results))
	for i, r := range results {
		out := optimizeOutput{Project: r.Project}
		if r.Err != nil {
			failed++
			out.Error = r.Err.Error()
			outputs = append(outputs, out)
			continue
		}

		if !dryRun {
			if err := db.AppendIteration(r.Result); err != nil {
				return err
			}
		}
		out.Iteration = r.Result
		if compare {
			out.Changes = optimizer.Compare(jobs[i].Previous, r.Result)
		}
		outputs = append(outputs, out)
	}

	if err := writeJSON(cmd.OutOrStdout(), outputs); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d projects failed", failed, len(results))
	}
	return nil
}

// nextIteration возвращает номер итерации и предыдущую итерацию для выбора
// гиперпараметров. requested == 0 означает следующую после последней в истории.
func nextIteration(db *database.DB, project string, requested int) (int, *models.IterationResult, error) {
	if requested == 0 {
		latest, err := db.LatestIteration(project)
		if errors.Is(err, database.ErrIterationNotFound) {
			return 1, nil, nil
		}
		if err != nil {
			return 0, nil, err
		}
		return latest.Number + 1, latest, nil
	}

	if requested < 1 {
		return 0, nil, fmt.Errorf("iteration must be >= 1, got %d", requested)
	}
	if requested == 1 {
		return 1, nil, nil
	}
	previous, err := db.GetIteration(project, requested-1)
	if errors.Is(err, database.ErrIterationNotFound) {
		logger.Warn("previous iteration not in history",
			zap.String("project", project),
			zap.Int("iteration", requested),
		)
		return requested, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return requested, previous, nil
}
