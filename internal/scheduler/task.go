package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ksaito/jobharvest/internal/adapter"
	"github.com/ksaito/jobharvest/internal/browser"
	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/progress"
)

// runTask crawls one (source, keyword, area) unit. Each task gets its own
// identity and browser session, nothing is shared with concurrent tasks.
func (e *Engine) runTask(ctx context.Context, logger *zap.Logger, task harvest.CrawlTask) harvest.TaskResult {
	res := harvest.TaskResult{Task: task}
	site, ok := e.deps.Sites[task.Source]
	if !ok {
		res.Status = harvest.TaskStatusFailed
		res.Err = fmt.Errorf("unknown source %q", task.Source)
		return res
	}
	logger = logger.With(
		zap.String("source", task.Source),
		zap.String("keyword", task.Keyword),
		zap.String("area", task.Area))

	id := e.deps.Pool.Next()
	sess, err := e.factoryFor(site).NewSession(ctx, id)
	if err != nil {
		res.Status = harvest.TaskStatusFailed
		res.Err = fmt.Errorf("open session: %w", err)
		return res
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	maxPages := task.MaxPages
	if maxPages <= 0 {
		maxPages = e.opts.MaxPages
	}

	// A keyword that maps to category codes becomes several independent
	// page-sequences whose results are concatenated.
	sequences := site.Categories(task.Keyword)
	if len(sequences) == 0 {
		sequences = []string{""}
	}

	blocked := false
	for _, category := range sequences {
		if blocked || e.stopping.Load() || ctx.Err() != nil {
			break
		}
		blocked = e.runSequence(ctx, logger, site, sess, task, category, maxPages, &res)
	}

	if (task.FetchDetails || e.opts.FetchDetails) && len(res.Records) > 0 && ctx.Err() == nil {
		e.enrichDetails(ctx, logger, site, id, res.Records)
	}

	now := e.deps.Clock.Now()
	for i := range res.Records {
		res.Records[i].Keyword = task.Keyword
		res.Records[i].Area = task.Area
		res.Records[i].FetchedAt = now
		if res.Records[i].NormalizedPhone == "" && res.Records[i].Phone != "" {
			res.Records[i].NormalizedPhone = harvest.NormalizePhone(res.Records[i].Phone)
		}
	}

	res.Status = deriveStatus(res, blocked)
	logger.Info("task finished",
		zap.String("status", string(res.Status)),
		zap.Int("records", len(res.Records)),
		zap.Int("pages", res.PagesFetched),
		zap.Int("failed_pages", res.PagesFailed))
	return res
}

// runSequence paginates one category sequence. The bool result reports a
// hard block, which terminates the whole task.
func (e *Engine) runSequence(ctx context.Context, logger *zap.Logger, site adapter.Site, sess browser.Session, task harvest.CrawlTask, category string, maxPages int, res *harvest.TaskResult) bool {
	for page := 1; page <= maxPages; page++ {
		if e.stopping.Load() || ctx.Err() != nil {
			return false
		}
		url := site.BuildSearchURL(task.Keyword, task.Area, page, category)
		if err := e.deps.Limiter.Wait(ctx, url); err != nil {
			return false
		}

		out := e.deps.Fetcher.FetchPage(ctx, sess, site, url, page)
		res.PromoSkipped += out.PromoSkipped
		res.CardErrors += out.CardErrors

		switch out.Kind {
		case harvest.PageCards:
			res.PagesFetched++
			res.Records = append(res.Records, out.Records...)
			e.deps.Reporter.Report(progress.Event{
				Stage:   progress.StagePage,
				Source:  task.Source,
				Keyword: task.Keyword,
				Area:    task.Area,
				Current: page,
				Total:   maxPages,
			})
			if !out.MoreAvailable {
				return false
			}
		case harvest.PageNoResults:
			// Legitimate empty page: nothing here, but nothing failed
			// either.
			return false
		case harvest.PageNotFound:
			// Paginating past the end looks like a missing page on some
			// sources.
			if page == 1 {
				logger.Warn("first page not found", zap.String("url", url))
				res.PagesFailed++
			}
			return false
		case harvest.PageBlocked:
			res.PagesFailed++
			if res.Err == nil {
				res.Err = out.Err
			}
			logger.Warn("source blocked the session", zap.String("url", url), zap.Error(out.Err))
			return true
		case harvest.PageTransient:
			res.PagesFailed++
			if res.Err == nil {
				res.Err = out.Err
			}
			logger.Warn("page failed after retries", zap.String("url", url), zap.Error(out.Err))
			return false
		}
	}
	return false
}

// enrichDetails fetches detail pages for the task's records. Records sharing
// a dedup key are fetched once and all receive the fields; keys already in
// the store are skipped entirely, their details were collected on an earlier
// run.
func (e *Engine) enrichDetails(ctx context.Context, logger *zap.Logger, site adapter.Site, id harvest.Identity, records []harvest.JobRecord) {
	byKey := make(map[string][]int)
	var order []string
	for i := range records {
		key := records[i].DedupKey()
		if key == "" {
			continue
		}
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], i)
	}
	if len(order) == 0 {
		return
	}

	workers := e.opts.DetailConcurrency
	if workers > len(order) {
		workers = len(order)
	}
	keys := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := e.factoryFor(site).NewSession(ctx, id)
			if err != nil {
				logger.Warn("detail session failed", zap.Error(err))
				for range keys {
					// drain so the feeder does not block
				}
				return
			}
			defer sess.Close() //nolint:errcheck // session teardown
			for key := range keys {
				e.fetchDetailForKey(ctx, logger, site, sess, records, byKey[key])
			}
		}()
	}
	for _, key := range order {
		if ctx.Err() != nil || e.stopping.Load() {
			break
		}
		keys <- key
	}
	close(keys)
	wg.Wait()
}

// fetchDetailForKey enriches every record index sharing one dedup key. Index
// sets for different keys are disjoint, workers never write the same record.
func (e *Engine) fetchDetailForKey(ctx context.Context, logger *zap.Logger, site adapter.Site, sess browser.Session, records []harvest.JobRecord, idxs []int) {
	first := &records[idxs[0]]
	if e.deps.Store != nil {
		seen, err := e.deps.Store.Exists(ctx, first.Source, first.DedupKey())
		if err != nil {
			logger.Warn("seen check failed", zap.String("url", first.PageURL), zap.Error(err))
		} else if seen {
			return
		}
	}
	if err := e.deps.Limiter.Wait(ctx, first.PageURL); err != nil {
		return
	}
	fields, err := e.deps.Fetcher.FetchDetail(ctx, sess, site, first.PageURL)
	if err != nil {
		logger.Warn("detail fetch failed", zap.String("url", first.PageURL), zap.Error(err))
		return
	}
	for _, i := range idxs {
		records[i].Merge(fields)
	}
	e.deps.Reporter.Report(progress.Event{
		Stage:  progress.StageDetail,
		Source: first.Source,
		Note:   first.DedupKey(),
	})
}

func (e *Engine) factoryFor(site adapter.Site) browser.Factory {
	if site.Render() {
		return e.deps.Rendered
	}
	return e.deps.Static
}

// deriveStatus classifies a finished task. Any page failure degrades the
// task to partial, a task that fetched nothing and failed at least once is
// failed outright.
func deriveStatus(res harvest.TaskResult, blocked bool) harvest.TaskStatus {
	switch {
	case res.PagesFetched == 0 && res.PagesFailed > 0:
		return harvest.TaskStatusFailed
	case res.Err != nil && res.PagesFetched == 0 && res.PagesFailed == 0:
		return harvest.TaskStatusFailed
	case blocked || res.PagesFailed > 0:
		return harvest.TaskStatusPartial
	default:
		return harvest.TaskStatusSucceeded
	}
}
