// Package scheduler runs crawl tasks with bounded concurrency, rotates
// identities across them, and assembles the per-run result.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/identity"
	"github.com/ksaito/jobharvest/internal/metrics"
	"github.com/ksaito/jobharvest/internal/pipeline"
	"github.com/ksaito/jobharvest/internal/progress"
)

// PageFetcher is the fetch state machine as the scheduler sees it.
type PageFetcher interface {
	FetchPage(ctx context.Context, sess browser.Session, site adapter.Site, url string, page int) harvest.PageOutcome
	FetchDetail(ctx context.Context, sess browser.Session, site adapter.Site, url string) (harvest.DetailFields, error)
}

// Options tune one engine instance.
type Options struct {
	Concurrency       int
	MaxPages          int
	Stagger           time.Duration
	FetchDetails      bool
	DetailConcurrency int
	// Topic is where run summaries are published, empty disables publishing.
	Topic string
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 5
	}
	if o.DetailConcurrency <= 0 {
		o.DetailConcurrency = 3
	}
	return o
}

// Deps are the engine's collaborators. Store and Publisher may be nil.
type Deps struct {
	Sites     map[string]adapter.Site
	Rendered  browser.Factory
	Static    browser.Factory
	Fetcher   PageFetcher
	Pool      *identity.Pool
	Limiter   *HostLimiter
	Store     harvest.RecordStore
	Publisher harvest.Publisher
	Reporter  progress.Reporter
	Rules     pipeline.Rules
	Clock     harvest.Clock
	Logger    *zap.Logger
}

// Engine fans crawl tasks out over a bounded worker pool.
type Engine struct {
	deps Deps
	opts Options

	stopping atomic.Bool
	sleep    func(context.Context, time.Duration) error
	jitter   func() time.Duration
}

// New builds an Engine.
func New(deps Deps, opts Options) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Reporter == nil {
		deps.Reporter = progress.Nop{}
	}
	if deps.Limiter == nil {
		deps.Limiter = NewHostLimiter(1, 1)
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	return &Engine{
		deps:  deps,
		opts:  opts.withDefaults(),
		sleep: sleepCtx,
		jitter: func() time.Duration {
			return 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
		},
	}
}

// Cancel asks running tasks to stop after their current page. Unlike a
// context cancellation nothing in flight is abandoned, so results collected
// so far still land in the run result.
func (e *Engine) Cancel() {
	e.stopping.Store(true)
}

// Run executes the tasks and post-processes their records into a RunResult.
// The returned error only reflects infrastructure failures, per-task
// failures live in the task results.
func (e *Engine) Run(ctx context.Context, tasks []harvest.CrawlTask) (harvest.RunResult, error) {
	run := harvest.RunResult{
		RunID:   uuid.NewString(),
		Started: e.deps.Clock.Now(),
	}
	logger := e.deps.Logger.With(zap.String("run_id", run.RunID))
	logger.Info("run starting", zap.Int("tasks", len(tasks)), zap.Int("concurrency", e.opts.Concurrency))

	results := make([]harvest.TaskResult, len(tasks))
	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, task harvest.CrawlTask) {
			defer wg.Done()

			// Staggered start spreads the initial burst of navigations.
			delay := time.Duration(idx)*e.opts.Stagger + e.jitter()
			if err := e.sleep(ctx, delay); err != nil {
				results[idx] = harvest.TaskResult{Task: task, Status: harvest.TaskStatusFailed, Err: err}
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = harvest.TaskResult{Task: task, Status: harvest.TaskStatusFailed, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			metrics.ActiveTasks.Inc()
			defer metrics.ActiveTasks.Dec()

			results[idx] = e.runTask(ctx, logger, task)
			e.deps.Reporter.Report(progress.Event{
				Stage:   progress.StageTask,
				Source:  task.Source,
				Keyword: task.Keyword,
				Area:    task.Area,
				Current: idx + 1,
				Total:   len(tasks),
				Note:    string(results[idx].Status),
			})
		}(i, task)
	}
	wg.Wait()

	run.Tasks = results
	var all []harvest.JobRecord
	for _, res := range results {
		all = append(all, res.Records...)
	}
	run.RawCount = len(all)

	filtered := pipeline.Filter(all, e.deps.Rules)
	run.FinalCount = len(filtered.Kept)
	logger.Info("pipeline finished", zap.String("summary", filtered.Summary()))
	e.deps.Reporter.Report(progress.Event{Stage: progress.StagePipeline, Note: filtered.Summary()})

	if e.deps.Store != nil {
		e.persist(ctx, logger, filtered, &run)
	}

	run.Finished = e.deps.Clock.Now()
	e.publishRun(ctx, logger, run)
	e.deps.Reporter.Report(progress.Event{Stage: progress.StageRun, Note: run.RunID})
	logger.Info("run finished",
		zap.Int("raw", run.RawCount),
		zap.Int("final", run.FinalCount),
		zap.Int("new", run.NewCount),
		zap.Int("saved", run.SavedCount),
		zap.Duration("elapsed", run.Finished.Sub(run.Started)))
	return run, nil
}

// persist writes kept and excluded records, counting how many were new.
// Excluded records are saved too, the audit trail is worth more than the
// table space.
func (e *Engine) persist(ctx context.Context, logger *zap.Logger, filtered pipeline.FilterResult, run *harvest.RunResult) {
	save := func(rec harvest.JobRecord) {
		key := rec.DedupKey()
		if key == "" {
			// Without a key the store cannot upsert it, and Exists would
			// misreport it as new.
			logger.Warn("record has no dedup key, not persisted",
				zap.String("source", rec.Source), zap.String("title", rec.Title))
			return
		}
		seen, err := e.deps.Store.Exists(ctx, rec.Source, key)
		if err != nil {
			logger.Warn("seen check failed", zap.String("url", rec.PageURL), zap.Error(err))
		} else if !seen {
			run.NewCount++
		}
		if err := e.deps.Store.Save(ctx, rec); err != nil {
			logger.Warn("save failed", zap.String("url", rec.PageURL), zap.Error(err))
			return
		}
		run.SavedCount++
	}
	for _, rec := range filtered.Kept {
		save(rec)
	}
	for _, rec := range filtered.Excluded {
		save(rec)
	}
}

func (e *Engine) publishRun(ctx context.Context, logger *zap.Logger, run harvest.RunResult) {
	if e.deps.Publisher == nil || e.opts.Topic == "" {
		return
	}
	if _, err := e.deps.Publisher.Publish(ctx, e.opts.Topic, run); err != nil {
		logger.Warn("run publish failed", zap.Error(err))
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
