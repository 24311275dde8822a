package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

const (
	defaultRetention     = 30 * 24 * time.Hour
	defaultStageTimeout  = 2 * time.Minute
	defaultEnrichWorkers = 3
	defaultRetryBudget   = 3
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sources  []ports.Source
	Sinks    []ports.Sink
	Enricher ports.Enricher
	Store    ports.ItemStore
	Logger   *slog.Logger

	Retention     time.Duration
	StageTimeout  time.Duration
	EnrichWorkers int
	RetryBudget   int
}

// Failure records one (collaborator, error) pair surfaced during a pass.
type Failure struct {
	Collaborator string
	Err          error
}

// Report aggregates the per-stage counters of one pass. Deduped counts items
// dropped at deduplication; Published counts successful (item, sink)
// deliveries.
type Report struct {
	Polled    int
	Deduped   int
	Enriched  int
	Persisted int
	Published int
	Pruned    int64
	Failures  []Failure
}

// Pipeline drives one aggregation pass: poll all sources, deduplicate against
// the store, enrich, persist, deliver to all sinks, prune old records.
type Pipeline struct {
	sources  []ports.Source
	sinks    []ports.Sink
	enricher ports.Enricher
	store    ports.ItemStore
	logger   *slog.Logger

	retention     time.Duration
	stageTimeout  time.Duration
	enrichWorkers int
	retryBudget   int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:       deps.Sources,
		sinks:         deps.Sinks,
		enricher:      deps.Enricher,
		store:         deps.Store,
		logger:        deps.Logger,
		retention:     deps.Retention,
		stageTimeout:  deps.StageTimeout,
		enrichWorkers: deps.EnrichWorkers,
		retryBudget:   deps.RetryBudget,
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.retention <= 0 {
		p.retention = defaultRetention
	}
	if p.stageTimeout <= 0 {
		p.stageTimeout = defaultStageTimeout
	}
	if p.enrichWorkers <= 0 {
		p.enrichWorkers = defaultEnrichWorkers
	}
	if p.retryBudget <= 0 {
		p.retryBudget = defaultRetryBudget
	}

	return p
}

// Run executes one full pass. The pass always runs to completion: failures of
// individual sources, items and sinks are recorded in the report and the
// affected unit is excluded, never the whole batch.
func (p *Pipeline) Run(ctx context.Context) Report {
	var report Report

	collected := p.pollAll(ctx, &report)
	report.Polled = len(collected)

	fresh := p.dedupe(ctx, collected, &report)
	report.Deduped = len(collected) - len(fresh)

	enriched := p.enrichAll(ctx, fresh, &report)
	report.Enriched = len(enriched)

	persisted := p.persistAll(ctx, enriched, &report)
	report.Persisted = len(persisted)

	report.Published = p.publishAll(ctx, persisted, &report)

	p.pruneStore(ctx, &report)

	p.logger.Info("pass complete",
		"polled", report.Polled,
		"deduped", report.Deduped,
		"enriched", report.Enriched,
		"persisted", report.Persisted,
		"published", report.Published,
		"pruned", report.Pruned,
		"failures", len(report.Failures))

	return report
}

// pollAll fans out one goroutine per source and collects every produced item.
// A failing source is excluded from the pass without affecting the others.
func (p *Pipeline) pollAll(ctx context.Context, report *Report) []domain.Item {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	var (
		mu    sync.Mutex
		items []domain.Item
		wg    sync.WaitGroup
	)

	for _, src := range p.sources {
		wg.Add(1)
		go func(src ports.Source) {
			defer wg.Done()

			batch, err := src.Poll(stageCtx)
			if err != nil {
				p.logger.Warn("source poll failed", "source", src.Name(), "error", err)
				mu.Lock()
				report.Failures = append(report.Failures, Failure{
					Collaborator: src.Name(),
					Err:          &domain.SourceError{Source: src.Name(), Err: err},
				})
				mu.Unlock()
				return
			}

			now := time.Now().UTC()
			mu.Lock()
			for _, item := range batch {
				if item.ID == "" {
					item.ID = domain.Identity(item.Link, item.Title)
				}
				if item.CreatedAt.IsZero() {
					item.CreatedAt = now
				}
				items = append(items, item)
			}
			mu.Unlock()
		}(src)
	}

	wg.Wait()
	return items
}

// dedupe drops items already present in the seen-set. Equal identities within
// one pass collapse to the first occurrence. A failing membership lookup
// treats the item as unseen: a duplicate delivery is preferable to silently
// losing the item.
func (p *Pipeline) dedupe(ctx context.Context, items []domain.Item, report *Report) []domain.Item {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	inPass := make(map[string]struct{}, len(items))
	fresh := make([]domain.Item, 0, len(items))

	for _, item := range items {
		if _, dup := inPass[item.ID]; dup {
			continue
		}
		inPass[item.ID] = struct{}{}

		exists, err := p.store.Exists(stageCtx, item.ID)
		if err != nil {
			p.logger.Warn("seen-set lookup failed, treating item as unseen", "item", item.ID, "error", err)
			report.Failures = append(report.Failures, Failure{
				Collaborator: "store",
				Err:          &domain.StoreError{Op: "exists", Err: err},
			})
			fresh = append(fresh, item)
			continue
		}
		if !exists {
			fresh = append(fresh, item)
		}
	}

	return fresh
}

// enrichAll summarizes surviving items through a bounded worker pool. Items
// whose enrichment fails stay out of this pass; they were never marked seen,
// so the next poll rediscovers them until the retry budget runs out.
func (p *Pipeline) enrichAll(ctx context.Context, items []domain.Item, report *Report) []domain.Item {
	if len(items) == 0 || p.enricher == nil {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	queue := make(chan domain.Item, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	workers := p.enrichWorkers
	if workers > len(items) {
		workers = len(items)
	}

	var (
		mu       sync.Mutex
		enriched []domain.Item
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				out, err := p.enricher.Summarize(stageCtx, item)
				if err == nil && out.Summary == "" {
					err = errEmptySummary
				}
				if err != nil {
					mu.Lock()
					report.Failures = append(report.Failures, Failure{
						Collaborator: "enricher",
						Err:          &domain.EnrichmentError{ItemID: item.ID, Err: err},
					})
					mu.Unlock()
					p.handleEnrichFailure(stageCtx, item, err)
					continue
				}

				mu.Lock()
				enriched = append(enriched, out)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return enriched
}

// handleEnrichFailure tracks the persisted failure counter; once an identity
// exhausts the retry budget it is saved as skipped, which puts it in the
// seen-set and stops further reprocessing.
func (p *Pipeline) handleEnrichFailure(ctx context.Context, item domain.Item, cause error) {
	p.logger.Warn("enrichment failed", "item", item.ID, "error", cause)

	attempts, err := p.store.RecordEnrichFailure(ctx, item.ID)
	if err != nil {
		p.logger.Warn("cannot record enrichment failure", "item", item.ID, "error", err)
		return
	}
	if attempts < p.retryBudget {
		return
	}

	item.Status = domain.StatusSkipped
	if err := p.store.Save(ctx, item); err != nil {
		p.logger.Warn("cannot mark item as skipped", "item", item.ID, "error", err)
		return
	}
	p.logger.Warn("item permanently skipped after repeated enrichment failures",
		"item", item.ID, "attempts", attempts)
}

// persistAll saves enriched items; a failing save excludes only that item
// from publishing.
func (p *Pipeline) persistAll(ctx context.Context, items []domain.Item, report *Report) []domain.Item {
	if len(items) == 0 {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	persisted := make([]domain.Item, 0, len(items))
	for _, item := range items {
		item.Status = domain.StatusSummarized
		if err := p.store.Save(stageCtx, item); err != nil {
			p.logger.Warn("persist failed", "item", item.ID, "error", err)
			report.Failures = append(report.Failures, Failure{
				Collaborator: "store",
				Err:          &domain.StoreError{Op: "save", Err: err},
			})
			continue
		}
		persisted = append(persisted, item)
	}

	return persisted
}

// publishAll fans out delivery per (item, sink) pair; failures never block
// other pairs. Items missing a field a sink needs are withheld entirely.
func (p *Pipeline) publishAll(ctx context.Context, items []domain.Item, report *Report) int {
	if len(items) == 0 || len(p.sinks) == 0 {
		return 0
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		delivered int
		wg        sync.WaitGroup
	)

	for _, item := range items {
		if !item.Deliverable() {
			p.logger.Warn("item is missing fields required for delivery, withholding from sinks", "item", item.ID)
			continue
		}
		for _, sink := range p.sinks {
			wg.Add(1)
			go func(item domain.Item, sink ports.Sink) {
				defer wg.Done()

				if err := sink.Publish(stageCtx, item); err != nil {
					p.logger.Warn("publish failed", "sink", sink.Name(), "item", item.ID, "error", err)
					mu.Lock()
					report.Failures = append(report.Failures, Failure{
						Collaborator: sink.Name(),
						Err:          &domain.SinkError{Sink: sink.Name(), ItemID: item.ID, Err: err},
					})
					mu.Unlock()
					return
				}

				mu.Lock()
				delivered++
				mu.Unlock()
			}(item, sink)
		}
	}

	wg.Wait()
	return delivered
}

// pruneStore removes items past the retention horizon. A prune failure is a
// pass-level warning, never fatal.
func (p *Pipeline) pruneStore(ctx context.Context, report *Report) {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	count, err := p.store.Prune(stageCtx, p.retention)
	if err != nil {
		p.logger.Warn("prune failed", "error", err)
		report.Failures = append(report.Failures, Failure{
			Collaborator: "store",
			Err:          &domain.StoreError{Op: "prune", Err: err},
		})
		return
	}
	report.Pruned = count
}
