package healthadvice

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

const TaskType = "health-advice"

// FallbackResponse is returned when the model produced nothing usable.
const FallbackResponse = "I'm sorry, I couldn't generate health advice at the moment. Please try again later."

const healthPrompt = `You are an AI health advisor. Follow this conversation flow:
1. If this is the first message, ask about specific symptoms
2. Based on symptoms, ask relevant follow-up questions about:
- Duration
- Severity
- Associated symptoms
- Triggers or relieving factors
3. After gathering sufficient information, provide:
- Potential conditions
- Recommendations
- Whether immediate medical attention is needed

Current user input: %s

Respond in a conversational yet professional tone. Include follow-up questions when needed.
Format the response as a medical conversation, maintaining context of previous symptoms mentioned.

For each piece of advice, include a citation in the form [Source: <title> (<url>)] pointing to a reputable medical source.`

const therapistPrompt = `You are an AI-based mental health therapist. Your role is to provide supportive, empathetic responses to users seeking help with mental health issues. Always maintain a professional and caring tone. If a user expresses thoughts of self-harm or suicide, advise them to seek immediate professional help and provide resources like suicide prevention hotlines. Remember that you're not a replacement for a human therapist, but a supportive tool to help users explore their thoughts and feelings.

User: %s`

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
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, errors.NewInvalidInputError("message is required")
	}

	mode := strings.ToLower(strings.TrimSpace(input.Mode))
	if mode == "" {
		mode = ModeHealth
	}

	var (
		prompt string
		opts   llm.Options
	)
	switch mode {
	case ModeHealth:
		prompt, opts = fmt.Sprintf(healthPrompt, message), llm.ConversationOptions()
	case ModeTherapist:
		prompt, opts = fmt.Sprintf(therapistPrompt, message), llm.ConversationOptions().WithTemperature(0.3)
	default:
		return nil, errors.NewInvalidInputError(fmt.Sprintf("unsupported mode %q", input.Mode))
	}

	c := h.llm.Chat(ctx, opts, h.history(input.History), llm.Text(prompt))
	if !c.OK() {
		h.logger.Warn("advice generation failed", map[string]interface{}{
			"mode":    mode,
			"failure": c.Failure,
		})
		return &Output{Response: FallbackResponse, Citations: []normalize.Citation{}, Fallback: true}, nil
	}

	citations := normalize.ExtractCitations(c.Text)
	if citations == nil {
		citations = []normalize.Citation{}
	}

	h.logger.Info("advice generated", map[string]interface{}{
		"mode":      mode,
		"citations": len(citations),
	})

	return &Output{
		Response:  normalize.FormatCitations(c.Text),
		Citations: citations,
	}, nil
}

// history keeps the most recent turns, dropping blanks.
func (h *Handler) history(turns []Turn) []llm.Message {
	if h.config.MaxHistory > 0 && len(turns) > h.config.MaxHistory {
		turns = turns[len(turns)-h.config.MaxHistory:]
	}
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := llm.RoleUser
		if t.Role == "assistant" || t.Role == "model" || t.Role == "therapist" {
			role = llm.RoleModel
		}
		msgs = append(msgs, llm.Message{Role: role, Parts: []llm.Part{llm.Text(text)}})
	}
	return msgs
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
