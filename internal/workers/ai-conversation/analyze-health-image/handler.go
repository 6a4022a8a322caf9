package analyzehealthimage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/common/validation"
	"medkit-workers/internal/normalize"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "analyze-health-image"

const (
	unclearImageAnalysis       = "Unable to analyze the image. Please ensure the image is clear and try again."
	unclearImageRecommendation = "Please try uploading a clearer image"
	consultRecommendation      = "Please consult with a healthcare professional"
	urgencyUnknown             = "unknown"
)

const analysisPrompt = `Analyze this medical image with the following context/description:
%s

Provide:
1. A comprehensive analysis considering both the image and the provided context
2. Potential conditions or issues identified
3. Recommended immediate actions
4. Urgency level (low/medium/high)
5. Whether immediate medical attention is needed

Format the response as JSON with the following structure:
{
    "analysis": "detailed analysis of the condition",
    "recommendations": ["list", "of", "recommendations"],
    "urgency": "low/medium/high",
    "seek_medical_attention": true/false
}`

var analysisSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["analysis"],
	"properties": {
		"analysis": {"type": "string"},
		"recommendations": {"type": "array", "items": {"type": "string"}},
		"urgency": {"type": "string"},
		"seek_medical_attention": {"type": "boolean"}
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
	llm    llm.Generator
	errors *errors.ErrorHandler
	logger Logger
}

func NewHandler(config *Config, gen llm.Generator, log Logger) *Handler {
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
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
	data := strings.TrimSpace(input.ImageBase64)
	if data == "" {
		return nil, errors.NewInvalidInputError("imageBase64 is required")
	}
	if h.config.MaxImageBytes > 0 && len(data)/4*3 > h.config.MaxImageBytes {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("image exceeds %d bytes", h.config.MaxImageBytes))
	}
	mimeType := input.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	caption := strings.TrimSpace(input.Caption)
	if caption == "" {
		caption = "No description provided"
	}

	c := h.llm.Generate(ctx, llm.ExtractionOptions(),
		llm.Image(mimeType, data),
		llm.Text(fmt.Sprintf(analysisPrompt, caption)),
	)
	if !c.OK() {
		h.logger.Warn("image analysis failed", map[string]interface{}{
			"failure": c.Failure,
		})
		return &Output{
			Analysis:        unclearImageAnalysis,
			Recommendations: []string{unclearImageRecommendation},
			Urgency:         urgencyUnknown,
		}, nil
	}

	raw := c.Text
	fields, parsed := normalize.ExtractJSONWithSchema(raw, analysisSchema, func() map[string]interface{} {
		return map[string]interface{}{
			"analysis":               raw,
			"recommendations":        []string{consultRecommendation},
			"urgency":                urgencyUnknown,
			"seek_medical_attention": false,
		}
	})

	output := &Output{
		Analysis:        normalize.String(fields, "analysis"),
		Recommendations: normalize.StringSlice(fields, "recommendations"),
		Urgency:         strings.ToLower(normalize.String(fields, "urgency")),
		Parsed:          parsed,
	}
	output.SeekMedicalAttention, _ = fields["seek_medical_attention"].(bool)
	if output.Recommendations == nil {
		output.Recommendations = []string{}
	}
	if output.Urgency == "" {
		output.Urgency = urgencyUnknown
	}

	h.logger.Info("image analysed", map[string]interface{}{
		"parsed":  parsed,
		"urgency": output.Urgency,
	})
	return output, nil
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
