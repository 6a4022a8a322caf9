// internal/workers/ai-conversation/health-advice/handler_test.go
package healthadvice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/normalize"
)

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t      *testing.T
	fields map[string]interface{}
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{t: t, fields: map[string]interface{}{}}
}

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v %v", msg, l.fields, fields)
}

func (l *TestLogger) With(fields map[string]interface{}) Logger {
	merged := map[string]interface{}{}
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{t: l.t, fields: merged}
}

// stubGenerator records the last chat call.
type stubGenerator struct {
	reply   llm.Completion
	opts    llm.Options
	history []llm.Message
	prompt  string
}

func (s *stubGenerator) Generate(ctx context.Context, opts llm.Options, parts ...llm.Part) llm.Completion {
	return s.Chat(ctx, opts, nil, parts...)
}

func (s *stubGenerator) Chat(ctx context.Context, opts llm.Options, history []llm.Message, parts ...llm.Part) llm.Completion {
	s.opts = opts
	s.history = history
	if len(parts) > 0 {
		s.prompt = parts[0].Text
	}
	return s.reply
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, MaxHistory: 2}
}

func TestHandler_Execute_FormatsCitations(t *testing.T) {
	gen := &stubGenerator{reply: llm.Completion{
		Text: "Rest and fluids help [Source: NHS (https://www.nhs.uk/flu)]. See a doctor if it lasts a week.",
	}}
	handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Message: "I have the flu"})
	require.NoError(t, err)

	assert.Equal(t,
		`Rest and fluids help [<a href="https://www.nhs.uk/flu" target="_blank">NHS</a>]. See a doctor if it lasts a week.`,
		output.Response)
	assert.Equal(t, []normalize.Citation{{Title: "NHS", URL: "https://www.nhs.uk/flu"}}, output.Citations)
	assert.False(t, output.Fallback)
	assert.Equal(t, llm.ConversationOptions(), gen.opts)
	assert.Contains(t, gen.prompt, "Current user input: I have the flu")
}

func TestHandler_Execute_TherapistMode(t *testing.T) {
	gen := &stubGenerator{reply: llm.Completion{Text: "That sounds hard. Tell me more."}}
	handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		Message: "I feel anxious",
		Mode:    "Therapist",
		History: []Turn{
			{Role: "user", Text: "first"},
			{Role: "assistant", Text: "second"},
			{Role: "user", Text: "   "},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "That sounds hard. Tell me more.", output.Response)
	assert.Empty(t, output.Citations)
	assert.Equal(t, 0.3, gen.opts.Temperature)
	assert.Contains(t, gen.prompt, "User: I feel anxious")

	// MaxHistory keeps the last two turns; the blank one is dropped.
	require.Len(t, gen.history, 1)
	assert.Equal(t, llm.RoleModel, gen.history[0].Role)
}

func TestHandler_Execute_ModelFailureFallsBack(t *testing.T) {
	gen := &stubGenerator{reply: llm.Completion{Failure: llm.FailureNoCandidates}}
	handler := NewHandler(createTestConfig(), gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{Message: "headache"})
	require.NoError(t, err)
	assert.Equal(t, FallbackResponse, output.Response)
	assert.True(t, output.Fallback)
	assert.NotNil(t, output.Citations)
}

func TestHandler_Execute_InvalidInput(t *testing.T) {
	handler := NewHandler(createTestConfig(), &stubGenerator{}, NewTestLogger(t))

	tests := []struct {
		name  string
		input *Input
	}{
		{name: "empty message", input: &Input{Message: "  "}},
		{name: "unknown mode", input: &Input{Message: "hi", Mode: "astrology"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.Normalize(err).Code)
		})
	}
}
