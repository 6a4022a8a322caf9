// Package knowledge gathers what public sources say about a medicine and
// turns it into one consumer-friendly description.
package knowledge

import (
	"context"
	"errors"
	"strings"

	httpx "medkit-workers/internal/common/http"
)

// Status tags the outcome of one source fetch.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Reason explains an Empty or Failed result.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTransport    Reason = "transport"
	ReasonDecode       Reason = "decode"
	ReasonTimeout      Reason = "timeout"
	ReasonCanceled     Reason = "canceled"
	ReasonPanic        Reason = "panic"
	ReasonNoRegion     Reason = "no_region"
	ReasonNoIdentifier Reason = "no_identifier"
	ReasonNoClasses    Reason = "no_classes"
)

// SourceResult is what one fetcher produced. Text is set only when Status is OK.
type SourceResult struct {
	SourceID string `json:"sourceId"`
	Text     string `json:"-"`
	Status   Status `json:"status"`
	Reason   Reason `json:"reason,omitempty"`
}

// OK builds a successful result. Blank text is reported as Empty.
func OK(sourceID, text string) SourceResult {
	text = strings.TrimSpace(text)
	if text == "" {
		return Empty(sourceID, ReasonNoRegion)
	}
	return SourceResult{SourceID: sourceID, Text: text, Status: StatusOK}
}

func Empty(sourceID string, reason Reason) SourceResult {
	return SourceResult{SourceID: sourceID, Status: StatusEmpty, Reason: reason}
}

func Failed(sourceID string, reason Reason) SourceResult {
	return SourceResult{SourceID: sourceID, Status: StatusFailed, Reason: reason}
}

func (r SourceResult) IsOK() bool { return r.Status == StatusOK }

// Fetcher reads one source. Implementations never return errors or panic;
// every problem is folded into the result status.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, name string) SourceResult
}

// Getter is the part of the shared transport fetchers use.
type Getter interface {
	Fetch(ctx context.Context, url string) (*httpx.Response, error)
}

// failureFromError maps a transport error to a result.
func failureFromError(sourceID string, err error) SourceResult {
	if te, ok := httpx.AsTransportError(err); ok && te.Kind == httpx.KindCanceled {
		if errors.Is(te.Err, context.DeadlineExceeded) {
			return Failed(sourceID, ReasonTimeout)
		}
		return Failed(sourceID, ReasonCanceled)
	}
	return Failed(sourceID, ReasonTransport)
}
