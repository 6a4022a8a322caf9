package searchmedicines

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/database"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/common/validation"
	"medkit-workers/internal/normalize"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "search-medicines"

const interpretPrompt = `Interpret the following search query for a medicine inventory:
"%s"

Provide a JSON response with the following structure:
{
    "name_keywords": ["list", "of", "keywords"],
    "description_keywords": ["list", "of", "keywords"]
}

The name_keywords should be specific medicine names or types,
while description_keywords should be symptoms or conditions.`

const searchQuery = `SELECT id, name, quantity, expiry_date, description
FROM medicines
WHERE user_id = $1 AND (LOWER(name) ~ $2 OR LOWER(COALESCE(description, '')) ~ $3)
ORDER BY name
LIMIT $4`

var interpretationSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["name_keywords", "description_keywords"],
	"properties": {
		"name_keywords": {"type": "array", "items": {"type": "string"}},
		"description_keywords": {"type": "array", "items": {"type": "string"}}
	}
}`)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Handler struct {
	config *Config
	db     database.Querier
	llm    llm.Generator
	errors *errors.ErrorHandler
	logger Logger
}

func NewHandler(config *Config, db database.Querier, gen llm.Generator, log Logger) *Handler {
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		db:     db,
		llm:    gen,
		errors: errors.NewErrorHandler(l),
		logger: l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	timer := metrics.StartJob(TaskType)
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, timer, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, timer, err)
		return
	}

	h.completeJob(client, job, output)
	timer.Done("")
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	userID := strings.TrimSpace(input.UserID)
	query := strings.TrimSpace(input.Query)
	if userID == "" || query == "" {
		return nil, errors.NewInvalidInputError("userId and query are required")
	}

	interp, usedFallback := h.interpret(ctx, query)

	namePattern := keywordPattern(interp.NameKeywords)
	descPattern := keywordPattern(interp.DescriptionKeywords)
	if namePattern == "" {
		namePattern = descPattern
	}
	if descPattern == "" {
		descPattern = namePattern
	}

	output := &Output{
		Medicines:      []Medicine{},
		Interpretation: interp,
		UsedFallback:   usedFallback,
	}
	if namePattern == "" {
		return output, nil
	}

	medicines, err := h.search(ctx, userID, namePattern, descPattern)
	if err != nil {
		return nil, err
	}
	output.Medicines = medicines

	h.logger.Info("medicines searched", map[string]interface{}{
		"userId":       userID,
		"matches":      len(medicines),
		"usedFallback": usedFallback,
	})
	return output, nil
}

// interpret asks the model for keywords and falls back to the query's own words.
func (h *Handler) interpret(ctx context.Context, query string) (Interpretation, bool) {
	fallback := normalize.KeywordFallback(query)

	var fields map[string]interface{}
	parsed := false
	c := h.llm.Generate(ctx, llm.ExtractionOptions(), llm.Text(fmt.Sprintf(interpretPrompt, query)))
	if c.OK() {
		fields, parsed = normalize.ExtractJSONWithSchema(c.Text, interpretationSchema, fallback)
	} else {
		h.logger.Warn("query interpretation failed", map[string]interface{}{
			"failure": c.Failure,
		})
		fields = fallback()
	}

	return Interpretation{
		NameKeywords:        lowerAll(normalize.StringSlice(fields, "name_keywords")),
		DescriptionKeywords: lowerAll(normalize.StringSlice(fields, "description_keywords")),
	}, !parsed
}

func (h *Handler) search(ctx context.Context, userID, namePattern, descPattern string) ([]Medicine, error) {
	qctx, cancel := context.WithTimeout(ctx, h.config.QueryTimeout)
	defer cancel()

	rows, err := h.db.QueryContext(qctx, searchQuery, userID, namePattern, descPattern, h.config.MaxResults)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewQueryTimeoutError(TaskType)
		}
		if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, sql.ErrConnDone) {
			return nil, errors.NewDatabaseConnectionFailedError(err)
		}
		return nil, errors.NewDatabaseQueryFailedError(TaskType, err)
	}
	defer rows.Close()

	medicines := []Medicine{}
	for rows.Next() {
		var (
			m           Medicine
			expiry      sql.NullTime
			description sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Quantity, &expiry, &description); err != nil {
			return nil, errors.NewDatabaseQueryFailedError(TaskType, err)
		}
		if expiry.Valid {
			m.ExpiryDate = expiry.Time.Format("2006-01-02")
		}
		m.Description = description.String
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError(TaskType, err)
	}
	return medicines, nil
}

// keywordPattern builds a case-insensitive alternation with every keyword
// matched literally. Blank keywords are skipped.
func keywordPattern(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(k))
	}
	return strings.Join(parts, "|")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	err = camunda.SendWithRetry(context.Background(), camunda.DefaultRetryConfig, "complete-job", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, timer *metrics.JobTimer, err error) {
	timer.Done(string(errors.Normalize(err).Code))
	h.errors.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// Interpret exposes the keyword step without touching the database.
// The bool reports whether the query's own words were used.
func (h *Handler) Interpret(ctx context.Context, query string) (Interpretation, bool) {
	return h.interpret(ctx, query)
}
