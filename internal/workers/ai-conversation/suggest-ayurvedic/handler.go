package suggestayurvedic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "suggest-ayurvedic"

const unavailable = "Unable to suggest Ayurvedic alternatives. Please try again later."

const suggestPrompt = `As an Ayurvedic expert, analyze the following prescription and suggest Ayurvedic alternatives for each medicine.
Consider the primary function of each medication and provide suitable Ayurvedic remedies or herbs that serve a similar purpose.

Prescription:
%s

For each medicine in the prescription:
1. Identify the medicine and its primary function.
2. Suggest one or more Ayurvedic alternatives that serve a similar purpose.
3. Briefly explain how the Ayurvedic alternative works and any relevant usage instructions.

Present the information in a clear, list format for each medicine.

Note: These suggestions are for informational purposes only and should not replace professional medical advice.
Always consult with a qualified Ayurvedic practitioner before making any changes to a prescribed treatment plan.`

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
	prescription := strings.TrimSpace(input.Prescription)
	if prescription == "" {
		return nil, errors.NewInvalidInputError("prescription is required")
	}
	if h.config.MaxPrescriptionLen > 0 && len(prescription) > h.config.MaxPrescriptionLen {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("prescription exceeds %d characters", h.config.MaxPrescriptionLen))
	}

	c := h.llm.Generate(ctx, llm.ConversationOptions(), llm.Text(fmt.Sprintf(suggestPrompt, prescription)))
	if !c.OK() {
		h.logger.Warn("ayurvedic suggestion failed", map[string]interface{}{
			"failure": c.Failure,
		})
		return &Output{AyurvedicAlternatives: unavailable, UsedFallback: true}, nil
	}

	return &Output{AyurvedicAlternatives: c.Text}, nil
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
