package llm

// Options are per-task generation parameters. Presets are returned by value
// so callers can derive variants without affecting other tasks.
type Options struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

// WithTemperature returns a copy of o with a different temperature.
func (o Options) WithTemperature(t float64) Options {
	o.Temperature = t
	return o
}

// WithMaxOutputTokens returns a copy of o with a different token cap.
func (o Options) WithMaxOutputTokens(n int) Options {
	o.MaxOutputTokens = n
	return o
}

// ConversationOptions is used for chat replies and health advice.
func ConversationOptions() Options {
	return Options{Temperature: 0.7, TopP: 0.95, TopK: 40, MaxOutputTokens: 2048}
}

// SummaryOptions is used for medicine summaries.
func SummaryOptions() Options {
	return Options{Temperature: 0.4, TopP: 0.9, TopK: 40, MaxOutputTokens: 1024}
}

// ExtractionOptions is used when the reply must be parsed as JSON.
func ExtractionOptions() Options {
	return Options{Temperature: 0.3, TopP: 0.8, TopK: 20, MaxOutputTokens: 1024}
}

// ClassificationOptions is used for single-label answers.
func ClassificationOptions() Options {
	return Options{Temperature: 0.0, TopP: 1, TopK: 1, MaxOutputTokens: 16}
}
