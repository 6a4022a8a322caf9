package knowledge

import "context"

// FallbackChain tries its members in order and stops at the first OK result.
// It occupies a single aggregation slot.
type FallbackChain struct {
	id      string
	members []Fetcher
}

func NewFallbackChain(id string, members ...Fetcher) *FallbackChain {
	return &FallbackChain{id: id, members: members}
}

func (c *FallbackChain) ID() string { return c.id }

// Fetch returns the first OK result. When none succeeds it returns the last
// member's result, re-labelled with the chain id.
func (c *FallbackChain) Fetch(ctx context.Context, name string) SourceResult {
	last := Empty(c.id, ReasonNoRegion)
	for _, m := range c.members {
		if ctx.Err() != nil {
			return Failed(c.id, ReasonTimeout)
		}
		r := m.Fetch(ctx, name)
		if r.IsOK() {
			r.SourceID = c.id
			return r
		}
		last = r
	}
	last.SourceID = c.id
	return last
}
