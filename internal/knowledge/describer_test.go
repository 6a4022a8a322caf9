package knowledge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit-workers/internal/common/llm"
)

// fakeGenerator replays completions in order and repeats the last one.
type fakeGenerator struct {
	mu          sync.Mutex
	completions []llm.Completion
	prompts     []string
	opts        []llm.Options
}

func (f *fakeGenerator) Generate(ctx context.Context, opts llm.Options, parts ...llm.Part) llm.Completion {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range parts {
		f.prompts = append(f.prompts, p.Text)
	}
	f.opts = append(f.opts, opts)
	if len(f.completions) == 0 {
		return llm.Completion{Failure: llm.FailureTransport}
	}
	c := f.completions[0]
	if len(f.completions) > 1 {
		f.completions = f.completions[1:]
	}
	return c
}

func (f *fakeGenerator) Chat(ctx context.Context, opts llm.Options, history []llm.Message, parts ...llm.Part) llm.Completion {
	return f.Generate(ctx, opts, parts...)
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opts)
}

func newDescriber(gen llm.Generator, fetchers ...Fetcher) *Describer {
	return NewDescriber(NewAggregator(fetchers), NewSummarizer(gen, nil), gen, nil)
}

func okSources() []Fetcher {
	return []Fetcher{
		stubFetcher{id: "drugs.com", result: OK("drugs.com", "Paracetamol is used to treat mild pain.")},
		stubFetcher{id: "rxnav", result: OK("rxnav", "Paracetamol belongs to: Analgesic.")},
	}
}

func TestSummarizer_PromptAndOptions(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{{Text: "short summary"}}}

	s := NewSummarizer(gen, nil).Summarize(context.Background(), "AGGREGATED")
	require.True(t, s.OK())
	assert.Equal(t, "short summary", s.Text)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "200-300 words")
	assert.Contains(t, gen.prompts[0], "Medicine Information:\nAGGREGATED")
	assert.Equal(t, llm.SummaryOptions(), gen.opts[0])
}

func TestSummarizer_WithPrompt(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{{Text: "ok"}}}
	base := NewSummarizer(gen, nil)

	base.WithPrompt("Brief: %s").Summarize(context.Background(), "text")
	assert.Equal(t, "Brief: text", gen.prompts[0])
	assert.Equal(t, SummaryPrompt, base.prompt)
}

func TestSummarizer_Failure(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{{Failure: llm.FailureNoCandidates}}}
	s := NewSummarizer(gen, nil).Summarize(context.Background(), "text")
	assert.False(t, s.OK())
	assert.Equal(t, llm.FailureNoCandidates, s.Failure)
}

func TestDescriber_TotalFailureIsCanned(t *testing.T) {
	gen := &fakeGenerator{}
	d := newDescriber(gen,
		stubFetcher{id: "drugs.com", result: Failed("drugs.com", ReasonTransport)},
		stubFetcher{id: "rxnav", result: Empty("rxnav", ReasonNoIdentifier)},
	)

	desc := d.Describe(context.Background(), "Unknownium")
	assert.Equal(t, KindCanned, desc.Kind)
	assert.Contains(t, desc.Text, "Unknownium")
	assert.Equal(t, "Unknownium - Please consult a healthcare professional for detailed information about this medication.", desc.Text)
	assert.Equal(t, 0, gen.calls())
}

func TestDescriber_BlankName(t *testing.T) {
	d := newDescriber(&fakeGenerator{}, okSources()...)
	desc := d.Describe(context.Background(), "   ")
	assert.Equal(t, KindCanned, desc.Kind)
	assert.Equal(t, "This medicine - Please consult a healthcare professional for detailed information about this medication.", desc.Text)
}

func TestDescriber_SummaryReplacesRawText(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{{Text: "Paracetamol relieves pain and fever."}}}
	d := newDescriber(gen, okSources()...)

	desc := d.Describe(context.Background(), "Paracetamol")
	assert.Equal(t, KindSummary, desc.Kind)
	assert.Equal(t, "Paracetamol relieves pain and fever.", desc.Text)
	assert.NotEqual(t, "Paracetamol is used to treat mild pain. Paracetamol belongs to: Analgesic.", desc.Text)
	assert.Equal(t, []string{"drugs.com", "rxnav"}, desc.SourcesUsed)
}

func TestDescriber_SummaryFailureReturnsRawText(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{{Failure: llm.FailureTransport}}}
	d := newDescriber(gen, okSources()...)

	desc := d.Describe(context.Background(), "Paracetamol")
	assert.Equal(t, KindRaw, desc.Kind)
	assert.Equal(t, "Paracetamol is used to treat mild pain. Paracetamol belongs to: Analgesic.", desc.Text)
}

func TestDescriber_Structured(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{
		{Text: "A summary."},
		{Text: "```json\n{\"summary\": \"Pain reliever\", \"uses\": [\"headache\"], \"dosage\": \"500mg\"}\n```"},
	}}
	d := newDescriber(gen, okSources()...)

	desc, structured := d.DescribeStructured(context.Background(), "Paracetamol")
	assert.Equal(t, "A summary.", desc.Text)
	assert.Equal(t, "Pain reliever", structured["summary"])
	assert.Equal(t, []interface{}{"headache"}, structured["uses"])
	assert.Equal(t, llm.ExtractionOptions(), gen.opts[1])
}

func TestDescriber_StructuredFallsBackToDescription(t *testing.T) {
	gen := &fakeGenerator{completions: []llm.Completion{
		{Text: "A summary."},
		{Text: "I cannot produce JSON today"},
	}}
	d := newDescriber(gen, okSources()...)

	desc, structured := d.DescribeStructured(context.Background(), "Paracetamol")
	assert.Equal(t, map[string]interface{}{"summary": desc.Text}, structured)
}

func TestDescriber_StructuredOnTotalFailure(t *testing.T) {
	gen := &fakeGenerator{}
	d := newDescriber(gen, stubFetcher{id: "a", result: Failed("a", ReasonTimeout)})

	desc, structured := d.DescribeStructured(context.Background(), "Ibuprofen")
	assert.Equal(t, KindCanned, desc.Kind)
	assert.Equal(t, desc.Text, structured["summary"])
	assert.Equal(t, 0, gen.calls())
}
