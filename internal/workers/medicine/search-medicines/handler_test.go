// internal/workers/medicine/search-medicines/handler_test.go
package searchmedicines

import (
	"context"
	"database/sql"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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
	reply llm.Completion
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, opts llm.Options, parts ...llm.Part) llm.Completion {
	s.calls++
	return s.reply
}

func (s *stubGenerator) Chat(ctx context.Context, opts llm.Options, history []llm.Message, parts ...llm.Part) llm.Completion {
	return s.Generate(ctx, opts, parts...)
}

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second, QueryTimeout: time.Second, MaxResults: 100}
}

var medicineColumns = []string{"id", "name", "quantity", "expiry_date", "description"}

func TestHandler_Execute_UsesModelKeywords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gen := &stubGenerator{reply: llm.Completion{
		Text: "```json\n{\"name_keywords\": [\"Paracetamol\", \"c++\"], \"description_keywords\": [\"fever\"]}\n```",
	}}

	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(medicineColumns).
		AddRow(int64(7), "Paracetamol", 20, expiry, "Pain and fever relief").
		AddRow(int64(9), "Calpol", 1, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(searchQuery)).
		WithArgs("user-1", `paracetamol|c\+\+`, "fever", 100).
		WillReturnRows(rows)

	handler := NewHandler(createTestConfig(), db, gen, NewTestLogger(t))
	output, err := handler.Execute(context.Background(), &Input{UserID: "user-1", Query: "something for fever"})
	require.NoError(t, err)

	assert.False(t, output.UsedFallback)
	assert.Equal(t, []string{"paracetamol", "c++"}, output.Interpretation.NameKeywords)
	require.Len(t, output.Medicines, 2)
	assert.Equal(t, Medicine{ID: 7, Name: "Paracetamol", Quantity: 20, ExpiryDate: "2027-03-01", Description: "Pain and fever relief"}, output.Medicines[0])
	assert.Equal(t, "", output.Medicines[1].ExpiryDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_FallsBackToQueryWords(t *testing.T) {
	tests := []struct {
		name  string
		reply llm.Completion
	}{
		{name: "not json", reply: llm.Completion{Text: "no json here"}},
		{name: "wrong shape", reply: llm.Completion{Text: `{"name_keywords": "aspirin"}`}},
		{name: "model failure", reply: llm.Completion{Failure: llm.FailureTransport}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta(searchQuery)).
				WithArgs("user-1", "headache|pills", "headache|pills", 100).
				WillReturnRows(sqlmock.NewRows(medicineColumns))

			handler := NewHandler(createTestConfig(), db, &stubGenerator{reply: tt.reply}, NewTestLogger(t))
			output, err := handler.Execute(context.Background(), &Input{UserID: "user-1", Query: "Headache pills"})
			require.NoError(t, err)

			assert.True(t, output.UsedFallback)
			assert.Equal(t, []string{"headache", "pills"}, output.Interpretation.NameKeywords)
			assert.Equal(t, []string{"headache", "pills"}, output.Interpretation.DescriptionKeywords)
			assert.Equal(t, []Medicine{}, output.Medicines)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_EmptyKeywordListUsesOther(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gen := &stubGenerator{reply: llm.Completion{Text: `{"name_keywords": [], "description_keywords": ["cough"]}`}}
	mock.ExpectQuery(regexp.QuoteMeta(searchQuery)).
		WithArgs("u", "cough", "cough", 100).
		WillReturnRows(sqlmock.NewRows(medicineColumns))

	handler := NewHandler(createTestConfig(), db, gen, NewTestLogger(t))
	_, err = handler.Execute(context.Background(), &Input{UserID: "u", Query: "cough"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_NoKeywordsSkipsQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gen := &stubGenerator{reply: llm.Completion{Text: `{"name_keywords": [], "description_keywords": []}`}}
	handler := NewHandler(createTestConfig(), db, gen, NewTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{UserID: "u", Query: "?"})
	require.NoError(t, err)
	assert.Empty(t, output.Medicines)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(searchQuery)).
		WillReturnError(stderrors.New("connection reset by peer"))

	handler := NewHandler(createTestConfig(), db, &stubGenerator{reply: llm.Completion{Text: "x"}}, NewTestLogger(t))
	output, err := handler.Execute(context.Background(), &Input{UserID: "u", Query: "aspirin"})

	assert.Nil(t, output)
	require.Error(t, err)
	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeDatabaseQueryFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_ConnectionLost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(searchQuery)).WillReturnError(sql.ErrConnDone)

	handler := NewHandler(createTestConfig(), db, &stubGenerator{reply: llm.Completion{Text: "x"}}, NewTestLogger(t))
	_, err = handler.Execute(context.Background(), &Input{UserID: "u", Query: "aspirin"})

	require.Error(t, err)
	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeDatabaseConnectionFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_MissingFields(t *testing.T) {
	gen := &stubGenerator{}
	handler := NewHandler(createTestConfig(), nil, gen, NewTestLogger(t))

	for _, in := range []*Input{{Query: "aspirin"}, {UserID: "u"}, {UserID: " ", Query: " "}} {
		_, err := handler.Execute(context.Background(), in)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.Normalize(err).Code)
	}
	assert.Equal(t, 0, gen.calls)
}

func TestKeywordPattern(t *testing.T) {
	assert.Equal(t, "", keywordPattern(nil))
	assert.Equal(t, `a|b\.c`, keywordPattern([]string{"a", " ", "b.c"}))
}
