// internal/workers/ai-conversation/suggest-ayurvedic/handler_test.go
package suggestayurvedic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
)

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: make(map[string]interface{})}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, l.mergeFields(fields))
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	return &TestLogger{t: l.t, fields: l.mergeFields(fields)}
}

func (l *TestLogger) mergeFields(fields map[string]interface{}) map[string]interface{} {
	all := make(map[string]interface{})
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	return all
}

type stubGenerator struct {
	reply  llm.Completion
	prompt string
	calls  int
}

func (s *stubGenerator) Generate(ctx context.Context, opts llm.Options, parts ...llm.Part) llm.Completion {
	s.calls++
	if len(parts) > 0 {
		s.prompt = parts[0].Text
	}
	return s.reply
}

func (s *stubGenerator) Chat(ctx context.Context, opts llm.Options, history []llm.Message, parts ...llm.Part) llm.Completion {
	return s.Generate(ctx, opts, parts...)
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, MaxPrescriptionLen: 100}
}

func TestHandler_Execute_Suggests(t *testing.T) {
	gen := &stubGenerator{reply: llm.Completion{Text: "Paracetamol: Giloy for fever."}}
	handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Prescription: "  Paracetamol 500mg twice daily  "})
	require.NoError(t, err)

	assert.Equal(t, &Output{AyurvedicAlternatives: "Paracetamol: Giloy for fever."}, output)
	assert.Contains(t, gen.prompt, "Prescription:\nParacetamol 500mg twice daily\n")
}

func TestHandler_Execute_ModelFailureUsesFallback(t *testing.T) {
	gen := &stubGenerator{reply: llm.Completion{Failure: llm.FailureNoCandidates}}
	handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Prescription: "Cetirizine 10mg"})
	require.NoError(t, err)

	assert.True(t, output.UsedFallback)
	assert.Equal(t, unavailable, output.AyurvedicAlternatives)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name         string
		prescription string
	}{
		{name: "empty", prescription: ""},
		{name: "whitespace", prescription: " \n\t"},
		{name: "too long", prescription: strings.Repeat("x", 101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &stubGenerator{}
			handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

			output, err := handler.Execute(context.Background(), &Input{Prescription: tt.prescription})

			assert.Nil(t, output)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.Normalize(err).Code)
			assert.Zero(t, gen.calls)
		})
	}
}
