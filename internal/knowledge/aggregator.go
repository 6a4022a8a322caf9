package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/common/observability"
)

const DefaultDeadline = 25 * time.Second

// Aggregation is the outcome of one Aggregate call. Results are in priority
// order, one per fetcher.
type Aggregation struct {
	ID      string
	Text    string
	Results []SourceResult
}

// SourcesUsed lists the ids of the sources that contributed text.
func (a Aggregation) SourcesUsed() []string {
	var ids []string
	for _, r := range a.Results {
		if r.IsOK() {
			ids = append(ids, r.SourceID)
		}
	}
	return ids
}

// Aggregator runs fetchers concurrently and joins their successes in the
// order the fetchers were given.
type Aggregator struct {
	fetchers []Fetcher
	deadline time.Duration
	logger   Logger
	obs      *observability.Observability
}

type AggregatorOption func(*Aggregator)

func WithDeadline(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.deadline = d
		}
	}
}

func WithLogger(l Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithObservability(o *observability.Observability) AggregatorOption {
	return func(a *Aggregator) { a.obs = o }
}

func NewAggregator(fetchers []Fetcher, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		fetchers: fetchers,
		deadline: DefaultDeadline,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate fetches every source for name. ok is false when no source
// produced text. It returns no later than the configured deadline.
func (a *Aggregator) Aggregate(ctx context.Context, name string) (Aggregation, bool) {
	start := time.Now()
	agg := Aggregation{ID: uuid.NewString()}

	ctx, span := a.obs.Tracer().Start(ctx, "knowledge.aggregate", trace.WithAttributes(
		attribute.String("medicine.name", name),
		attribute.String("aggregation.id", agg.ID),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	var (
		mu     sync.Mutex
		slots  = make([]SourceResult, len(a.fetchers))
		filled = make([]bool, len(a.fetchers))
		g      errgroup.Group
	)
	for i, f := range a.fetchers {
		g.Go(func() error {
			r := a.safeFetch(ctx, f, name)
			mu.Lock()
			slots[i] = r
			filled[i] = true
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	late := ReasonTimeout
	if errors.Is(ctx.Err(), context.Canceled) {
		late = ReasonCanceled
	}

	mu.Lock()
	agg.Results = make([]SourceResult, len(slots))
	for i := range slots {
		if filled[i] {
			agg.Results[i] = slots[i]
		} else {
			agg.Results[i] = Failed(a.fetchers[i].ID(), late)
		}
	}
	mu.Unlock()

	var texts []string
	for _, r := range agg.Results {
		metrics.FetcherResults.WithLabelValues(r.SourceID, string(r.Status)).Inc()
		a.logger.Info("Source fetched", map[string]interface{}{
			"aggregation_id": agg.ID,
			"source":         r.SourceID,
			"status":         r.Status,
			"reason":         r.Reason,
		})
		if r.IsOK() {
			texts = append(texts, r.Text)
		}
	}
	agg.Text = strings.Join(texts, " ")

	elapsed := time.Since(start)
	a.obs.RecordAggregation(ctx, elapsed, len(texts))
	span.SetAttributes(attribute.Int("aggregation.successes", len(texts)))

	a.logger.Info("Aggregation finished", map[string]interface{}{
		"aggregation_id": agg.ID,
		"medicine":       name,
		"successes":      len(texts),
		"sources":        len(agg.Results),
		"duration_ms":    elapsed.Milliseconds(),
	})

	return agg, len(texts) > 0
}

func (a *Aggregator) safeFetch(ctx context.Context, f Fetcher, name string) (r SourceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Warn("Fetcher panicked", map[string]interface{}{
				"source": f.ID(),
				"panic":  fmt.Sprint(rec),
			})
			r = Failed(f.ID(), ReasonPanic)
		}
	}()
	return f.Fetch(ctx, name)
}
