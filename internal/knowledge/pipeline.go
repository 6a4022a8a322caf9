package knowledge

import (
	"medkit-workers/internal/common/config"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/observability"
)

// DefaultSources returns the fetchers in priority order: drugs.com first,
// then rxnav. cache may be nil.
func DefaultSources(cfg *config.Config, getter Getter, cache IdentifierCache) []Fetcher {
	return []Fetcher{
		NewDrugsComChain(cfg.APIs.DrugsCom.BaseURL, getter),
		NewRxNavFetcher(cfg.APIs.RxNav.BaseURL, getter, cache),
	}
}

// NewPipeline wires the describer the way the worker manager and the CLI use it.
func NewPipeline(cfg *config.Config, getter Getter, gen llm.Generator, cache IdentifierCache, obs *observability.Observability, log Logger) *Describer {
	agg := NewAggregator(
		DefaultSources(cfg, getter, cache),
		WithDeadline(config.GetDuration(cfg.Aggregation.Deadline)),
		WithLogger(log),
		WithObservability(obs),
	)
	return NewDescriber(agg, NewSummarizer(gen, obs), gen, log)
}
