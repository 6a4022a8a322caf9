package knowledge

import (
	"context"
	"net/url"
	"strings"
)

const (
	DrugsComSourceID = "drugs.com"

	deepLinkSelector = "div.contentBox"
	searchSelector   = "div.ddc-media-list"
)

// DeepLinkFetcher reads the monograph page at <base>/<slug>.html.
type DeepLinkFetcher struct {
	baseURL string
	getter  Getter
}

func NewDeepLinkFetcher(baseURL string, getter Getter) *DeepLinkFetcher {
	return &DeepLinkFetcher{baseURL: strings.TrimRight(baseURL, "/"), getter: getter}
}

func (f *DeepLinkFetcher) ID() string { return DrugsComSourceID }

func (f *DeepLinkFetcher) Fetch(ctx context.Context, name string) SourceResult {
	slug := Slug(name)
	if slug == "" {
		return Empty(f.ID(), ReasonNoRegion)
	}
	return scrape(ctx, f.getter, f.ID(), f.baseURL+"/"+slug+".html", deepLinkSelector)
}

// SearchFetcher reads the site search results page.
type SearchFetcher struct {
	baseURL string
	getter  Getter
}

func NewSearchFetcher(baseURL string, getter Getter) *SearchFetcher {
	return &SearchFetcher{baseURL: strings.TrimRight(baseURL, "/"), getter: getter}
}

func (f *SearchFetcher) ID() string { return DrugsComSourceID }

func (f *SearchFetcher) Fetch(ctx context.Context, name string) SourceResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return Empty(f.ID(), ReasonNoRegion)
	}
	u := f.baseURL + "/search.php?searchterm=" + url.QueryEscape(name)
	return scrape(ctx, f.getter, f.ID(), u, searchSelector)
}

// Slug lower-cases name, joins words with '-' and escapes the result for a path.
func Slug(name string) string {
	words := strings.Fields(strings.ToLower(name))
	return url.PathEscape(strings.Join(words, "-"))
}

func scrape(ctx context.Context, getter Getter, sourceID, pageURL, selector string) SourceResult {
	resp, err := getter.Fetch(ctx, pageURL)
	if err != nil {
		return failureFromError(sourceID, err)
	}

	text, found, err := regionText(resp.Body, selector)
	if err != nil {
		return Failed(sourceID, ReasonDecode)
	}
	if !found {
		return Empty(sourceID, ReasonNoRegion)
	}
	return OK(sourceID, text)
}

// NewDrugsComChain is the deep link with the site search as fallback.
func NewDrugsComChain(baseURL string, getter Getter) *FallbackChain {
	return NewFallbackChain(DrugsComSourceID,
		NewDeepLinkFetcher(baseURL, getter),
		NewSearchFetcher(baseURL, getter),
	)
}
