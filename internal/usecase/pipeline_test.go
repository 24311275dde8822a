package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/infrastructure/storage"
	"contentmaker/internal/ports"
)

type fakeSource struct {
	name  string
	items []domain.Item
	err   error
	polls int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Poll(ctx context.Context) ([]domain.Item, error) {
	atomic.AddInt32(&f.polls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeEnricher struct {
	summary string
	err     error
	calls   int32
}

func (f *fakeEnricher) Summarize(ctx context.Context, item domain.Item) (domain.Item, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return domain.Item{}, f.err
	}
	return item.WithSummary(f.summary), nil
}

type fakeSink struct {
	name string
	err  error

	mu        sync.Mutex
	delivered []domain.Item
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(ctx context.Context, item domain.Item) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.delivered = append(f.delivered, item)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) deliveries() []domain.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Item, len(f.delivered))
	copy(out, f.delivered)
	return out
}

type flakyStore struct {
	*storage.MemoryStore
	existsErr  error
	saveErrFor string
}

func (s *flakyStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.MemoryStore.Exists(ctx, id)
}

func (s *flakyStore) Save(ctx context.Context, item domain.Item) error {
	if s.saveErrFor != "" && item.ID == s.saveErrFor {
		return fmt.Errorf("save rejected for %s", item.ID)
	}
	return s.MemoryStore.Save(ctx, item)
}

func newsItem(link, title string) domain.Item {
	return domain.Item{
		ID:    domain.Identity(link, title),
		Kind:  domain.KindNews,
		Title: title,
		Link:  link,
	}
}

func TestRunDeliversSingleItemToAllSinks(t *testing.T) {
	t.Parallel()

	item := newsItem("https://x/1", "One")
	store := storage.NewMemoryStore()
	enricher := &fakeEnricher{summary: "S"}
	sinkA := &fakeSink{name: "a"}
	sinkB := &fakeSink{name: "b"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{
			&fakeSource{name: "A", items: []domain.Item{item}},
			&fakeSource{name: "B"},
		},
		Sinks:    []ports.Sink{sinkA, sinkB},
		Enricher: enricher,
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Polled != 1 || report.Deduped != 0 || report.Enriched != 1 || report.Persisted != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Published != 2 {
		t.Fatalf("expected 2 deliveries, got %d", report.Published)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", report.Failures)
	}

	wantID := domain.Identity("https://x/1", "One")
	stored, ok := store.Get(wantID)
	if !ok {
		t.Fatalf("item %s not persisted", wantID)
	}
	if stored.Summary != "S" {
		t.Fatalf("unexpected stored summary: %q", stored.Summary)
	}
	if stored.Status != domain.StatusSummarized {
		t.Fatalf("unexpected stored status: %q", stored.Status)
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("creation timestamp not assigned at ingestion")
	}

	for _, sink := range []*fakeSink{sinkA, sinkB} {
		got := sink.deliveries()
		if len(got) != 1 {
			t.Fatalf("sink %s: expected 1 delivery, got %d", sink.name, len(got))
		}
		if got[0].ID != wantID || got[0].Summary != "S" {
			t.Fatalf("sink %s delivered unexpected item: %+v", sink.name, got[0])
		}
	}
}

func TestRunSecondPassSkipsSeenItems(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "A", items: []domain.Item{newsItem("https://x/1", "One")}}
	store := storage.NewMemoryStore()
	enricher := &fakeEnricher{summary: "S"}
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources:  []ports.Source{src},
		Sinks:    []ports.Sink{sink},
		Enricher: enricher,
		Store:    store,
	})

	p.Run(context.Background())
	second := p.Run(context.Background())

	if second.Polled != 1 || second.Deduped != 1 {
		t.Fatalf("unexpected second pass counts: %+v", second)
	}
	if second.Enriched != 0 || second.Published != 0 {
		t.Fatalf("seen item was reprocessed: %+v", second)
	}
	if calls := atomic.LoadInt32(&enricher.calls); calls != 1 {
		t.Fatalf("expected exactly 1 enrichment call, got %d", calls)
	}
	if got := sink.deliveries(); len(got) != 1 {
		t.Fatalf("expected exactly 1 delivery across passes, got %d", len(got))
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 persisted record, got %d", store.Len())
	}
}

func TestRunCollapsesInPassDuplicates(t *testing.T) {
	t.Parallel()

	item := newsItem("https://x/dup", "Dup")
	store := storage.NewMemoryStore()
	enricher := &fakeEnricher{summary: "S"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{
			&fakeSource{name: "A", items: []domain.Item{item}},
			&fakeSource{name: "B", items: []domain.Item{item}},
		},
		Sinks:    []ports.Sink{&fakeSink{name: "a"}},
		Enricher: enricher,
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Polled != 2 || report.Persisted != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if calls := atomic.LoadInt32(&enricher.calls); calls != 1 {
		t.Fatalf("duplicate identity enriched twice: %d calls", calls)
	}
}

func TestRunFailingSourceDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{
			&fakeSource{name: "broken", err: errors.New("origin unreachable")},
			&fakeSource{name: "ok", items: []domain.Item{newsItem("https://x/2", "Two")}},
		},
		Sinks:    []ports.Sink{sink},
		Enricher: &fakeEnricher{summary: "S"},
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Persisted != 1 || report.Published != 1 {
		t.Fatalf("healthy source was blocked: %+v", report)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	var srcErr *domain.SourceError
	if !errors.As(report.Failures[0].Err, &srcErr) || srcErr.Source != "broken" {
		t.Fatalf("unexpected failure: %v", report.Failures[0].Err)
	}
}

func TestRunFailingSinkDoesNotBlockOtherSinksOrItems(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	broken := &fakeSink{name: "broken", err: errors.New("channel rejected")}
	healthy := &fakeSink{name: "healthy"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{&fakeSource{name: "A", items: []domain.Item{
			newsItem("https://x/1", "One"),
			newsItem("https://x/2", "Two"),
		}}},
		Sinks:    []ports.Sink{broken, healthy},
		Enricher: &fakeEnricher{summary: "S"},
		Store:    store,
	})

	report := p.Run(context.Background())

	if got := healthy.deliveries(); len(got) != 2 {
		t.Fatalf("healthy sink expected 2 deliveries, got %d", len(got))
	}
	if report.Published != 2 {
		t.Fatalf("expected 2 successful deliveries, got %d", report.Published)
	}

	sinkFailures := 0
	for _, f := range report.Failures {
		var se *domain.SinkError
		if errors.As(f.Err, &se) {
			if se.Sink != "broken" {
				t.Fatalf("unexpected failing sink: %s", se.Sink)
			}
			sinkFailures++
		}
	}
	if sinkFailures != 2 {
		t.Fatalf("expected 2 sink failures, got %d", sinkFailures)
	}
}

func TestRunExistsFailureTreatsItemAsUnseen(t *testing.T) {
	t.Parallel()

	store := &flakyStore{
		MemoryStore: storage.NewMemoryStore(),
		existsErr:   errors.New("connection reset"),
	}
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources:  []ports.Source{&fakeSource{name: "A", items: []domain.Item{newsItem("https://x/1", "One")}}},
		Sinks:    []ports.Sink{sink},
		Enricher: &fakeEnricher{summary: "S"},
		Store:    store,
	})

	report := p.Run(context.Background())

	// The item must flow through rather than being silently dropped.
	if report.Published != 1 {
		t.Fatalf("item was dropped on exists failure: %+v", report)
	}

	var storeErr *domain.StoreError
	found := false
	for _, f := range report.Failures {
		if errors.As(f.Err, &storeErr) && storeErr.Op == "exists" {
			found = true
		}
	}
	if !found {
		t.Fatalf("exists failure not reported: %v", report.Failures)
	}
}

func TestRunSaveFailureExcludesItemFromPublishing(t *testing.T) {
	t.Parallel()

	badID := domain.Identity("https://x/bad", "Bad")
	store := &flakyStore{
		MemoryStore: storage.NewMemoryStore(),
		saveErrFor:  badID,
	}
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{&fakeSource{name: "A", items: []domain.Item{
			newsItem("https://x/bad", "Bad"),
			newsItem("https://x/good", "Good"),
		}}},
		Sinks:    []ports.Sink{sink},
		Enricher: &fakeEnricher{summary: "S"},
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Persisted != 1 || report.Published != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	got := sink.deliveries()
	if len(got) != 1 || got[0].ID == badID {
		t.Fatalf("unpersisted item was delivered: %+v", got)
	}
}

func TestRunEnrichFailureRespectsRetryBudget(t *testing.T) {
	t.Parallel()

	src := &fakeSource{name: "A", items: []domain.Item{newsItem("https://x/1", "One")}}
	store := storage.NewMemoryStore()
	enricher := &fakeEnricher{err: errors.New("generation failed")}
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources:     []ports.Source{src},
		Sinks:       []ports.Sink{sink},
		Enricher:    enricher,
		Store:       store,
		RetryBudget: 2,
	})

	id := domain.Identity("https://x/1", "One")

	// First failure: item stays out of the seen-set and is retried.
	p.Run(context.Background())
	if store.Len() != 0 {
		t.Fatal("failed item must not enter the seen-set before the budget")
	}

	// Second failure exhausts the budget: item is saved as skipped.
	p.Run(context.Background())
	stored, ok := store.Get(id)
	if !ok {
		t.Fatal("exhausted item not marked as skipped")
	}
	if stored.Status != domain.StatusSkipped {
		t.Fatalf("unexpected status: %q", stored.Status)
	}

	// Third pass drops the item at deduplication.
	third := p.Run(context.Background())
	if third.Deduped != 1 || third.Enriched != 0 {
		t.Fatalf("skipped item was reprocessed: %+v", third)
	}
	if calls := atomic.LoadInt32(&enricher.calls); calls != 2 {
		t.Fatalf("expected 2 enrichment attempts, got %d", calls)
	}
	if got := sink.deliveries(); len(got) != 0 {
		t.Fatalf("unsummarized item was delivered: %+v", got)
	}
}

func TestRunEmptySummaryIsAnEnrichmentFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources:  []ports.Source{&fakeSource{name: "A", items: []domain.Item{newsItem("https://x/1", "One")}}},
		Sinks:    []ports.Sink{sink},
		Enricher: &fakeEnricher{summary: ""},
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Enriched != 0 || report.Published != 0 {
		t.Fatalf("item without summary passed through: %+v", report)
	}
	var enrichErr *domain.EnrichmentError
	if len(report.Failures) == 0 || !errors.As(report.Failures[0].Err, &enrichErr) {
		t.Fatalf("empty summary not reported as enrichment failure: %v", report.Failures)
	}
}

func TestRunWithholdsIncompleteItemsFromSinks(t *testing.T) {
	t.Parallel()

	untitled := domain.Item{
		ID:   domain.Identity("https://x/untitled", ""),
		Kind: domain.KindNews,
		Link: "https://x/untitled",
	}
	store := storage.NewMemoryStore()
	sink := &fakeSink{name: "a"}

	p := NewPipeline(PipelineDeps{
		Sources: []ports.Source{&fakeSource{name: "A", items: []domain.Item{
			untitled,
			newsItem("https://x/complete", "Complete"),
		}}},
		Sinks:    []ports.Sink{sink},
		Enricher: &fakeEnricher{summary: "S"},
		Store:    store,
	})

	report := p.Run(context.Background())

	if report.Persisted != 2 {
		t.Fatalf("both items should persist: %+v", report)
	}
	if report.Published != 1 {
		t.Fatalf("expected 1 delivery, got %d", report.Published)
	}
	got := sink.deliveries()
	if len(got) != 1 || got[0].Title != "Complete" {
		t.Fatalf("incomplete item reached the sink: %+v", got)
	}
}

func TestRunPrunesItemsPastRetention(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	old := newsItem("https://x/old", "Old")
	old.CreatedAt = time.Now().UTC().Add(-31 * 24 * time.Hour)
	recent := newsItem("https://x/recent", "Recent")
	recent.CreatedAt = time.Now().UTC().Add(-29 * 24 * time.Hour)

	ctx := context.Background()
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := store.Save(ctx, recent); err != nil {
		t.Fatalf("seed recent: %v", err)
	}

	p := NewPipeline(PipelineDeps{
		Store:     store,
		Retention: 30 * 24 * time.Hour,
	})

	report := p.Run(ctx)

	if report.Pruned != 1 {
		t.Fatalf("expected 1 pruned item, got %d", report.Pruned)
	}
	if _, ok := store.Get(old.ID); ok {
		t.Fatal("item past the horizon was retained")
	}
	if _, ok := store.Get(recent.ID); !ok {
		t.Fatal("item within the horizon was deleted")
	}
}
