// Package harvest drives the two-phase extraction workflow: enumerate agent
// identifiers from the paginated listing endpoint, then fetch and stream one
// detail record per identifier. Work is dispatched in fixed-size concurrent
// batches with per-item retry; partial failure never aborts a phase.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentharvest/pkg/config"
	"agentharvest/pkg/directory"
	"agentharvest/pkg/logger"
	"agentharvest/pkg/output"
	"agentharvest/pkg/retry"
)

// Fetcher is the single-attempt, cache-aware fetch operation the harvester
// drives. Retry policy lives here, not in the fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string, ttlSeconds int) ([]byte, error)
}

// Summary describes the outcome of a run
type Summary struct {
	RunID          string
	TotalAgents    int
	PageCount      int
	IDsCollected   int
	RecordsWritten int
	FailureCount   int
	FirstErrors    []string
	Duration       time.Duration
}

// Harvester orchestrates both phases
type Harvester struct {
	fetcher Fetcher
	out     *output.Writer
	cfg     *config.Config
	errs    *ErrorLog
	log     logger.Logger
	runID   string
}

// New creates a harvester writing finished records to out
func New(cfg *config.Config, fetcher Fetcher, out *output.Writer) *Harvester {
	runID := uuid.NewString()
	return &Harvester{
		fetcher: fetcher,
		out:     out,
		cfg:     cfg,
		errs:    NewErrorLog(),
		log:     logger.GetLogger().WithField("run_id", runID),
		runID:   runID,
	}
}

// Errors exposes the run's error log
func (h *Harvester) Errors() *ErrorLog {
	return h.errs
}

// Run executes both phases, closes the output stream, and returns the run
// summary. Only the initial page-0 fetch is fatal; all later failures are
// logged and skipped.
func (h *Harvester) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	ids, totalAgents, pageCount, err := h.collectIDs(ctx)
	if err != nil {
		return nil, err
	}

	h.log.InfoWithFields("enumeration complete", map[string]interface{}{
		"total_agents": totalAgents,
		"page_count":   pageCount,
		"ids":          len(ids),
	})

	h.fetchDetails(ctx, ids)

	if err := h.out.Close(); err != nil {
		h.log.WithError(err).Warn("failed to close output file")
	}

	summary := &Summary{
		RunID:          h.runID,
		TotalAgents:    totalAgents,
		PageCount:      pageCount,
		IDsCollected:   len(ids),
		RecordsWritten: h.out.Written(),
		FailureCount:   h.errs.Len(),
		FirstErrors:    h.errs.First(5),
		Duration:       time.Since(start),
	}

	h.log.InfoWithFields("run complete", map[string]interface{}{
		"records_written": summary.RecordsWritten,
		"failures":        summary.FailureCount,
		"duration":        summary.Duration.String(),
	})
	return summary, nil
}

// collectIDs is phase 1: page 0 directly to learn the total, then the
// remaining pages in batches.
func (h *Harvester) collectIDs(ctx context.Context) ([]string, int, int, error) {
	pageSize := h.cfg.Harvest.PageSize

	body, err := h.fetchWithRetry(ctx, directory.ListURL(h.cfg.Directory.BaseURL, 0, pageSize))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to fetch first listing page: %w", err)
	}
	first, err := directory.ParseList(body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to parse first listing page: %w", err)
	}

	totalAgents := first.TotalAgents
	pageCount := (totalAgents + pageSize - 1) / pageSize
	ids := first.AgentIDs()

	h.log.InfoWithFields("starting enumeration", map[string]interface{}{
		"total_agents": totalAgents,
		"page_count":   pageCount,
		"page_size":    pageSize,
	})

	// Remaining pages [1, pageCount) in strictly sequential batches
	pages := make([]int, 0)
	for page := 1; page < pageCount; page++ {
		pages = append(pages, page)
	}

	for batchStart := 0; batchStart < len(pages); batchStart += h.cfg.Harvest.BatchSize {
		batch := pages[batchStart:min(batchStart+h.cfg.Harvest.BatchSize, len(pages))]

		results := runBatch(batch, func(page int) []string {
			return h.fetchPage(ctx, page, pageSize)
		})
		for _, pageIDs := range results {
			ids = append(ids, pageIDs...)
		}

		h.sleepBetweenBatches(ctx, batchStart+h.cfg.Harvest.BatchSize < len(pages))
	}

	return ids, totalAgents, pageCount, nil
}

// fetchPage fetches one listing page with the per-item retry budget. A page
// that exhausts its budget contributes zero items and one error log entry.
func (h *Harvester) fetchPage(ctx context.Context, page, pageSize int) []string {
	url := directory.ListURL(h.cfg.Directory.BaseURL, page, pageSize)

	body, err := h.fetchWithRetry(ctx, url)
	if err != nil {
		h.errs.Addf("listing page %d failed after %d attempts: %v", page, h.cfg.Harvest.MaxRetries, err)
		logger.LogItemFailure("enumeration", fmt.Sprintf("page %d", page), h.cfg.Harvest.MaxRetries, err)
		return nil
	}

	data, err := directory.ParseList(body)
	if err != nil {
		h.errs.Addf("listing page %d unparseable: %v", page, err)
		return nil
	}
	return data.AgentIDs()
}

// fetchDetails is phase 2: every collected identifier, batched like phase 1,
// each success streamed to the output at batch settlement.
func (h *Harvester) fetchDetails(ctx context.Context, ids []string) {
	h.log.InfoWithFields("starting detail fetch", map[string]interface{}{
		"ids": len(ids),
	})

	for batchStart := 0; batchStart < len(ids); batchStart += h.cfg.Harvest.BatchSize {
		batch := ids[batchStart:min(batchStart+h.cfg.Harvest.BatchSize, len(ids))]

		// Records arrive in completion order, not input order
		records := runBatch(batch, func(id string) []byte {
			return h.fetchDetail(ctx, id)
		})
		for _, record := range records {
			if record == nil {
				continue // failed item, already logged
			}
			if err := h.out.Write(record); err != nil {
				h.errs.Addf("failed to write record: %v", err)
			}
		}

		h.sleepBetweenBatches(ctx, batchStart+h.cfg.Harvest.BatchSize < len(ids))
	}
}

// fetchDetail fetches one agent's detail document with the per-item retry
// budget, returning nil on permanent failure.
func (h *Harvester) fetchDetail(ctx context.Context, id string) []byte {
	url := directory.DetailURL(h.cfg.Directory.BaseURL, id)

	body, err := h.fetchWithRetry(ctx, url)
	if err != nil {
		h.errs.Addf("detail for agent %s failed after %d attempts: %v", id, h.cfg.Harvest.MaxRetries, err)
		logger.LogItemFailure("detail", id, h.cfg.Harvest.MaxRetries, err)
		return nil
	}

	record, err := directory.MergeDetail(id, body)
	if err != nil {
		h.errs.Addf("detail for agent %s unparseable: %v", id, err)
		return nil
	}
	return record
}

// fetchWithRetry runs one logical fetch under the flat-delay retry budget.
// The delay is deliberately constant: it does not grow with attempts.
func (h *Harvester) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	return retry.DoWithResult(func() ([]byte, error) {
		return h.fetcher.Fetch(ctx, url, h.sessionHeaders(), h.cfg.Harvest.CacheTTLSecs)
	}, &retry.Config{
		MaxAttempts: h.cfg.Harvest.MaxRetries,
		Backoff:     &retry.ConstantBackoff{Delay: h.cfg.Harvest.RetryDelay},
		RetryIf: func(err error) bool {
			// Every failure is retried up to the budget except run cancellation
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		Context: ctx,
		Logger:  h.log,
	})
}

// sessionHeaders returns the caller headers carried on every request; the
// session cookie keeps cache fingerprints session-aware.
func (h *Harvester) sessionHeaders() map[string]string {
	if h.cfg.Directory.SessionCookie == "" {
		return nil
	}
	return map[string]string{"Cookie": h.cfg.Directory.SessionCookie}
}

// sleepBetweenBatches applies the inter-batch politeness pause
func (h *Harvester) sleepBetweenBatches(ctx context.Context, moreWork bool) {
	if !moreWork {
		return
	}
	_ = retry.Wait(ctx, h.cfg.Harvest.BatchDelay)
}

// runBatch launches one goroutine per item, all before any is awaited, and
// collects every result regardless of individual outcome. Results are
// returned in completion order.
func runBatch[T, R any](items []T, worker func(T) R) []R {
	resultCh := make(chan R, len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			resultCh <- worker(item)
		}(item)
	}
	wg.Wait()
	close(resultCh)

	results := make([]R, 0, len(items))
	for r := range resultCh {
		results = append(results, r)
	}
	return results
}
