package optimizer

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bidcoef/matching"
	"bidcoef/models"
)

// Job независимая задача оптимизации одного проекта
type Job struct {
	Project   string
	Match     *matching.MatchResult
	Forecasts models.Forecasts
	Iteration int
	Previous  *models.IterationResult
}

// JobResult результат задачи; ошибка одного проекта не влияет на остальные
type JobResult struct {
	Project string
	Result  *models.IterationResult
	Err     error
}

// OptimizeBatch параллельно оптимизирует независимые проекты.
// Ошибка возвращается только при отмене ctx.
func (o *Optimizer) OptimizeBatch(ctx context.Context, jobs []Job) ([]JobResult, error) {
	results := make([]JobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := o.Optimize(gctx, job.Match, job.Forecasts, job.Iteration, job.Previous)
			if res != nil {
				res.Project = job.Project
			}
			results[i] = JobResult{Project: job.Project, Result: res, Err: err}
			if err != nil {
				o.logger.Warn("project optimization failed",
					zap.String("project", job.Project),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
