package knowledge

import (
	"context"
	"fmt"
	"time"

	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/observability"
)

// SummaryPrompt is the default summarization template. %s receives the
// aggregated source text.
const SummaryPrompt = `Summarize the following information about a medicine.
Include key details such as:
- What the medicine is used for
- How it works
- Common side effects
- Important warnings or precautions
- Dosage information (if available)

Keep the summary concise but informative, around 200-300 words.

Medicine Information:
%s`

// Summary is the tagged outcome of one summarization.
type Summary struct {
	Text    string
	Failure llm.Failure
}

func (s Summary) OK() bool { return s.Failure == llm.FailureNone && s.Text != "" }

type Summarizer struct {
	llm    llm.Generator
	prompt string
	opts   llm.Options
	obs    *observability.Observability
}

func NewSummarizer(gen llm.Generator, obs *observability.Observability) *Summarizer {
	return &Summarizer{llm: gen, prompt: SummaryPrompt, opts: llm.SummaryOptions(), obs: obs}
}

// WithPrompt returns a copy using a different template.
func (s *Summarizer) WithPrompt(prompt string) *Summarizer {
	c := *s
	c.prompt = prompt
	return &c
}

func (s *Summarizer) Summarize(ctx context.Context, aggregated string) Summary {
	start := time.Now()
	c := s.llm.Generate(ctx, s.opts, llm.Text(fmt.Sprintf(s.prompt, aggregated)))

	var out Summary
	switch {
	case !c.OK():
		out = Summary{Failure: c.Failure}
	case c.Text == "":
		out = Summary{Failure: llm.FailureNoText}
	default:
		out = Summary{Text: c.Text}
	}

	s.obs.RecordSummary(ctx, time.Since(start), out.OK())
	return out
}
