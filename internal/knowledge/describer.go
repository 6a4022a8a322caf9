package knowledge

import (
	"context"
	"fmt"
	"strings"

	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/common/validation"
	"medkit-workers/internal/normalize"
)

// Kind records how a description was produced.
type Kind string

const (
	KindSummary Kind = "summary"
	KindRaw     Kind = "raw"
	KindCanned  Kind = "canned"
)

const unnamedMedicine = "This medicine"

// Description is never empty.
type Description struct {
	Name        string
	Text        string
	Kind        Kind
	SourcesUsed []string
}

const structuredPrompt = `Using only the medicine information below, respond with a JSON object with
the keys "summary" (string), "uses" (array of strings), "side_effects" (array of strings),
"warnings" (array of strings) and "dosage" (string). Do not add any other text.

Medicine Information:
%s`

var structuredSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["summary"],
	"properties": {
		"summary": {"type": "string", "minLength": 1},
		"uses": {"type": "array", "items": {"type": "string"}},
		"side_effects": {"type": "array", "items": {"type": "string"}},
		"warnings": {"type": "array", "items": {"type": "string"}},
		"dosage": {"type": "string"}
	}
}`)

// CannedDescription is returned when no source produced anything.
func CannedDescription(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = unnamedMedicine
	}
	return name + " - Please consult a healthcare professional for detailed information about this medication."
}

// Describer turns a medicine name into a consumer description.
type Describer struct {
	aggregator *Aggregator
	summarizer *Summarizer
	llm        llm.Generator
	logger     Logger
}

func NewDescriber(aggregator *Aggregator, summarizer *Summarizer, gen llm.Generator, log Logger) *Describer {
	if log == nil {
		log = nopLogger{}
	}
	return &Describer{aggregator: aggregator, summarizer: summarizer, llm: gen, logger: log}
}

// Describe aggregates sources and summarizes them. A failed summary yields the
// raw aggregated text; a failed aggregation yields the canned message.
func (d *Describer) Describe(ctx context.Context, name string) Description {
	desc, _, _ := d.describe(ctx, name)
	return desc
}

// DescribeStructured is Describe plus a JSON breakdown of the same sources.
// The breakdown falls back to {"summary": <description text>}.
func (d *Describer) DescribeStructured(ctx context.Context, name string) (Description, map[string]interface{}) {
	desc, agg, ok := d.describe(ctx, name)
	fallback := func() map[string]interface{} {
		return map[string]interface{}{"summary": desc.Text}
	}
	if !ok {
		return desc, fallback()
	}

	c := d.llm.Generate(ctx, llm.ExtractionOptions(), llm.Text(fmt.Sprintf(structuredPrompt, agg.Text)))
	if !c.OK() {
		d.logger.Warn("Structured description failed", map[string]interface{}{
			"medicine": desc.Name,
			"failure":  c.Failure,
		})
		return desc, fallback()
	}

	structured, parsed := normalize.ExtractJSONWithSchema(c.Text, structuredSchema, fallback)
	if !parsed {
		d.logger.Warn("Structured description was not valid JSON", map[string]interface{}{
			"medicine": desc.Name,
		})
	}
	return desc, structured
}

func (d *Describer) describe(ctx context.Context, name string) (Description, Aggregation, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		metrics.DescriptionOutcomes.WithLabelValues(string(KindCanned)).Inc()
		return Description{Name: unnamedMedicine, Text: CannedDescription(""), Kind: KindCanned}, Aggregation{}, false
	}

	agg, ok := d.aggregator.Aggregate(ctx, name)
	if !ok {
		metrics.DescriptionOutcomes.WithLabelValues(string(KindCanned)).Inc()
		d.logger.Warn("No knowledge source succeeded", map[string]interface{}{
			"aggregation_id": agg.ID,
			"medicine":       name,
		})
		return Description{Name: name, Text: CannedDescription(name), Kind: KindCanned}, agg, false
	}

	desc := Description{Name: name, SourcesUsed: agg.SourcesUsed()}
	s := d.summarizer.Summarize(ctx, agg.Text)
	if s.OK() {
		desc.Text, desc.Kind = s.Text, KindSummary
	} else {
		d.logger.Warn("Summary failed, using raw source text", map[string]interface{}{
			"aggregation_id": agg.ID,
			"failure":        s.Failure,
		})
		desc.Text, desc.Kind = agg.Text, KindRaw
	}
	metrics.DescriptionOutcomes.WithLabelValues(string(desc.Kind)).Inc()
	return desc, agg, true
}
