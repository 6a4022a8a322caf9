package interpretprescription

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/database"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "interpret-prescription"

const (
	unreadableImage  = "Unable to extract text from the image."
	uninterpretable  = "Unable to interpret the prescription content."
	comparisonFailed = "Unable to compare medicines with inventory."
	unknownExpiry    = "unknown"
	defaultMimeType  = "image/jpeg"
)

const extractPrompt = `Extract all text from this prescription image exactly as written.
Keep medicine names, dosages, frequencies and durations on separate lines.
Return only the extracted text.`

const interpretPrompt = `Analyze this prescription text and provide a detailed interpretation:
%s

Please provide:
1. Patient Name (if available)
2. Date of Prescription (if available)
3. Medications prescribed with:
   - Name of medication
   - Dosage
   - Frequency
   - Duration
4. Special instructions (if any)
5. Doctor's name (if available)

Format the response in a clear, structured way.`

const comparePrompt = `Compare these prescribed medicines with the patient's inventory:

Prescription interpretation:
%s

Current inventory:
%s

Please list:
1. Which prescribed medicines are available in the inventory
2. Which prescribed medicines are not available and need to be obtained
Format the response clearly with "Available:" and "Not Available:" sections.`

const inventoryQuery = `SELECT name, quantity, expiry_date
FROM medicines
WHERE user_id = $1
ORDER BY name`

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
	if userID == "" {
		return nil, errors.NewInvalidInputError("userId is required")
	}
	data := strings.TrimSpace(input.ImageBase64)
	if data == "" {
		return nil, errors.NewInvalidInputError("imageBase64 is required")
	}
	if h.config.MaxImageBytes > 0 && len(data)/4*3 > h.config.MaxImageBytes {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("image exceeds %d bytes", h.config.MaxImageBytes))
	}
	mimeType := input.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	inventory, err := h.inventory(ctx, userID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		PrescriptionInterpretation: Interpretation{Warnings: []string{}},
		Inventory:                  inventory,
	}

	interpretation, ok := h.interpret(ctx, mimeType, data)
	output.PrescriptionInterpretation.Interpretation = interpretation
	if !ok {
		output.InventoryComparison = comparisonFailed
		output.UsedFallback = true
		return output, nil
	}

	c := h.llm.Generate(ctx, llm.SummaryOptions(),
		llm.Text(fmt.Sprintf(comparePrompt, interpretation, InventoryText(inventory))))
	if !c.OK() {
		h.logger.Warn("inventory comparison failed", map[string]interface{}{
			"failure": c.Failure,
		})
		output.InventoryComparison = comparisonFailed
		output.UsedFallback = true
		return output, nil
	}
	output.InventoryComparison = c.Text

	h.logger.Info("prescription interpreted", map[string]interface{}{
		"userId":    userID,
		"inventory": len(inventory),
	})
	return output, nil
}

// interpret reads the image text first, then asks for a structured reading of
// it. The bool is false when either step fell back to a canned message.
func (h *Handler) interpret(ctx context.Context, mimeType, data string) (string, bool) {
	extracted := h.llm.Generate(ctx, llm.ExtractionOptions(),
		llm.Image(mimeType, data),
		llm.Text(extractPrompt),
	)
	if !extracted.OK() {
		h.logger.Warn("prescription text extraction failed", map[string]interface{}{
			"failure": extracted.Failure,
		})
		return unreadableImage, false
	}

	c := h.llm.Generate(ctx, llm.SummaryOptions(), llm.Text(fmt.Sprintf(interpretPrompt, extracted.Text)))
	if !c.OK() {
		h.logger.Warn("prescription interpretation failed", map[string]interface{}{
			"failure": c.Failure,
		})
		return uninterpretable, false
	}
	return c.Text, true
}

func (h *Handler) inventory(ctx context.Context, userID string) ([]InventoryItem, error) {
	qctx, cancel := context.WithTimeout(ctx, h.config.QueryTimeout)
	defer cancel()

	rows, err := h.db.QueryContext(qctx, inventoryQuery, userID)
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

	items := []InventoryItem{}
	for rows.Next() {
		var (
			item   InventoryItem
			expiry sql.NullTime
		)
		if err := rows.Scan(&item.Name, &item.Quantity, &expiry); err != nil {
			return nil, errors.NewDatabaseQueryFailedError(TaskType, err)
		}
		if expiry.Valid {
			item.ExpiryDate = expiry.Time.Format("2006-01-02")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError(TaskType, err)
	}
	return items, nil
}

// InventoryText renders one "name (Quantity: n, Expires: date)" line per item.
func InventoryText(items []InventoryItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		expiry := it.ExpiryDate
		if expiry == "" {
			expiry = unknownExpiry
		}
		lines = append(lines, fmt.Sprintf("%s (Quantity: %d, Expires: %s)", it.Name, it.Quantity, expiry))
	}
	return strings.Join(lines, "\n")
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
