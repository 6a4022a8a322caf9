package parseuserintent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/normalize"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "parse-user-intent"
)

const intentPrompt = `Analyze the following user input and determine which feature they want to access.
Features available:
- inventory (for medicine inventory management)
- prescription (for prescription analysis)
- family-group (for family group management)
- therapist (for AI therapy sessions)
- diagnosis (for symptom diagnosis)

Return only one of these exact feature names based on the user's intent.

User input: %s`

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
	l := log.With(map[string]interface{}{
		"taskType": TaskType,
	})
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

// execute never fails on the model side: any generation problem yields
// the unknown intent.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	text := strings.TrimSpace(input.Input)
	if text == "" {
		return nil, errors.NewInvalidInputError("input is required")
	}

	c := h.llm.Generate(ctx, llm.ClassificationOptions(), llm.Text(fmt.Sprintf(intentPrompt, text)))
	if !c.OK() {
		h.logger.Warn("intent generation failed", map[string]interface{}{
			"failure": c.Failure,
		})
		return &Output{Intent: string(normalize.IntentUnknown)}, nil
	}

	intent := normalize.ClassifyIntent(c.Text)
	h.logger.Info("intent parsed", map[string]interface{}{
		"intent": intent,
	})
	return &Output{Intent: string(intent)}, nil
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
