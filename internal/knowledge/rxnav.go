package knowledge

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const RxNavSourceID = "rxnav"

// Logger is what the fetchers, cache and aggregator log through. A nil
// Logger passed to a constructor is replaced by a no-op.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, map[string]interface{}) {}
func (nopLogger) Warn(string, map[string]interface{}) {}

// IdentifierCache remembers name to rxcui resolutions.
type IdentifierCache interface {
	Get(ctx context.Context, name string) (string, bool)
	Put(ctx context.Context, name, rxcui string)
}

// KV is the part of the redis client the identifier cache needs.
type KV interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisIdentifierCache stores identifiers under medkit:rxcui:<lower name>.
// Redis errors are logged and treated as misses.
type RedisIdentifierCache struct {
	kv     KV
	ttl    time.Duration
	logger Logger
}

func NewRedisIdentifierCache(kv KV, ttl time.Duration, log Logger) *RedisIdentifierCache {
	if log == nil {
		log = nopLogger{}
	}
	return &RedisIdentifierCache{kv: kv, ttl: ttl, logger: log}
}

func identifierKey(name string) string {
	return "medkit:rxcui:" + strings.ToLower(strings.TrimSpace(name))
}

func (c *RedisIdentifierCache) Get(ctx context.Context, name string) (string, bool) {
	val, ok, err := c.kv.Lookup(ctx, identifierKey(name))
	if err != nil {
		c.logger.Warn("Identifier cache lookup failed", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		return "", false
	}
	return val, ok
}

func (c *RedisIdentifierCache) Put(ctx context.Context, name, rxcui string) {
	if err := c.kv.Store(ctx, identifierKey(name), rxcui, c.ttl); err != nil {
		c.logger.Warn("Identifier cache store failed", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
	}
}

// RxNavFetcher resolves the rxcui for a name and lists its drug classes.
type RxNavFetcher struct {
	baseURL string
	getter  Getter
	cache   IdentifierCache
}

func NewRxNavFetcher(baseURL string, getter Getter, cache IdentifierCache) *RxNavFetcher {
	return &RxNavFetcher{baseURL: strings.TrimRight(baseURL, "/"), getter: getter, cache: cache}
}

func (f *RxNavFetcher) ID() string { return RxNavSourceID }

type rxcuiResponse struct {
	IDGroup struct {
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

// classResponse accepts both the nested shape the API returns today and the
// flat list older responses used.
type classResponse struct {
	RxClassMinConceptList json.RawMessage `json:"rxclassMinConceptList"`
}

type nestedClassList struct {
	RxClassMinConcept []struct {
		RxClassMinConceptItem struct {
			ClassName string `json:"className"`
		} `json:"rxclassMinConceptItem"`
	} `json:"rxclassMinConcept"`
}

type flatClassEntry struct {
	ClassName string `json:"className"`
}

func (f *RxNavFetcher) Fetch(ctx context.Context, name string) SourceResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return Empty(f.ID(), ReasonNoIdentifier)
	}

	rxcui, res, ok := f.resolve(ctx, name)
	if !ok {
		return res
	}

	u := f.baseURL + "/REST/rxclass/class/byRxcui.json?rxcui=" + url.QueryEscape(rxcui)
	resp, err := f.getter.Fetch(ctx, u)
	if err != nil {
		return failureFromError(f.ID(), err)
	}

	classes, err := decodeClassNames(resp.Body)
	if err != nil {
		return Failed(f.ID(), ReasonDecode)
	}
	if len(classes) == 0 {
		return Empty(f.ID(), ReasonNoClasses)
	}
	return OK(f.ID(), name+" belongs to: "+strings.Join(classes, ", ")+".")
}

func (f *RxNavFetcher) resolve(ctx context.Context, name string) (string, SourceResult, bool) {
	if f.cache != nil {
		if id, ok := f.cache.Get(ctx, name); ok && id != "" {
			return id, SourceResult{}, true
		}
	}

	resp, err := f.getter.Fetch(ctx, f.baseURL+"/REST/rxcui.json?name="+url.QueryEscape(name))
	if err != nil {
		return "", failureFromError(f.ID(), err), false
	}

	var ids rxcuiResponse
	if err := json.Unmarshal(resp.Body, &ids); err != nil {
		return "", Failed(f.ID(), ReasonDecode), false
	}
	if len(ids.IDGroup.RxNormID) == 0 || ids.IDGroup.RxNormID[0] == "" {
		return "", Empty(f.ID(), ReasonNoIdentifier), false
	}

	id := ids.IDGroup.RxNormID[0]
	if f.cache != nil {
		f.cache.Put(ctx, name, id)
	}
	return id, SourceResult{}, true
}

// decodeClassNames returns distinct class names in first-seen order.
func decodeClassNames(body []byte) ([]string, error) {
	var resp classResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	var names []string
	raw := resp.RxClassMinConceptList
	switch {
	case len(raw) == 0 || string(raw) == "null":
	case raw[0] == '[':
		var flat []flatClassEntry
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, err
		}
		for _, e := range flat {
			names = append(names, e.ClassName)
		}
	default:
		var nested nestedClassList
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, err
		}
		for _, c := range nested.RxClassMinConcept {
			names = append(names, c.RxClassMinConceptItem.ClassName)
		}
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
