package describemedicine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medkit-workers/internal/common/camunda"
	"medkit-workers/internal/common/errors"
	"medkit-workers/internal/common/metrics"
	"medkit-workers/internal/knowledge"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "describe-medicine"

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Describer is satisfied by *knowledge.Describer.
type Describer interface {
	Describe(ctx context.Context, name string) knowledge.Description
	DescribeStructured(ctx context.Context, name string) (knowledge.Description, map[string]interface{})
}

type Handler struct {
	config    *Config
	describer Describer
	errors    *errors.ErrorHandler
	logger    Logger
}

func NewHandler(config *Config, describer Describer, log Logger) *Handler {
	l := log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		describer: describer,
		errors:    errors.NewErrorHandler(l),
		logger:    l,
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
		err = errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
		timer.Done(string(errors.ErrCodeInvalidInput))
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		timer.Done(string(errors.Normalize(err).Code))
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
	timer.Done("")
}

// execute always produces a description; blank names get the generic one.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format != "" && format != "text" && format != FormatStructured {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unsupported format %q", input.Format))
	}

	var (
		desc       knowledge.Description
		structured map[string]interface{}
	)
	if format == FormatStructured {
		desc, structured = h.describer.DescribeStructured(ctx, input.MedicineName)
	} else {
		desc = h.describer.Describe(ctx, input.MedicineName)
	}

	sources := desc.SourcesUsed
	if sources == nil {
		sources = []string{}
	}

	h.logger.Info("medicine described", map[string]interface{}{
		"medicine": desc.Name,
		"kind":     desc.Kind,
		"sources":  sources,
	})

	return &Output{
		Description: desc.Text,
		Kind:        string(desc.Kind),
		Structured:  structured,
		SourcesUsed: sources,
	}, nil
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
