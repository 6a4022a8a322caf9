// Package llm is the boundary to the hosted generative model. It speaks the
// generateContent REST API over the shared outbound transport.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"medkit-workers/internal/common/config"
	httpx "medkit-workers/internal/common/http"
	"medkit-workers/internal/common/metrics"
)

// Failure tags why a Completion carries no text.
type Failure string

const (
	FailureNone         Failure = ""
	FailureNoCandidates Failure = "no_candidates"
	FailureNoText       Failure = "no_text"
	FailureTransport    Failure = "transport"
)

// Completion is the tagged result of one generation.
type Completion struct {
	Text    string
	Failure Failure
	Err     error
}

func (c Completion) OK() bool { return c.Failure == FailureNone }

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is either text or inline binary data (already base64 encoded).
type Part struct {
	Text     string
	MIMEType string
	Data     string
}

func Text(s string) Part { return Part{Text: s} }

// Image wraps base64 image data. Raw bytes may be passed through ImageBytes.
func Image(mimeType, base64Data string) Part {
	return Part{MIMEType: mimeType, Data: base64Data}
}

func ImageBytes(mimeType string, data []byte) Part {
	return Image(mimeType, base64.StdEncoding.EncodeToString(data))
}

// Message is one turn of a conversation.
type Message struct {
	Role  Role
	Parts []Part
}

// Generator is what the rest of the code depends on.
type Generator interface {
	Generate(ctx context.Context, opts Options, parts ...Part) Completion
	Chat(ctx context.Context, opts Options, history []Message, parts ...Part) Completion
}

// Logger receives one warning per failed generation.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, map[string]interface{}) {}

// Client is constructed once per process and shared.
type Client struct {
	transport *httpx.Transport
	baseURL   string
	apiKey    string
	model     string
	timeout   time.Duration
	logger    Logger
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewClient(cfg ClientConfig, transport *httpx.Transport, log Logger) *Client {
	if log == nil {
		log = nopLogger{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		transport: transport,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		logger:    log,
	}
}

// NewClientFromConfig reads the genai section of cfg.
func NewClientFromConfig(cfg *config.Config, transport *httpx.Transport, log Logger) *Client {
	return NewClient(ClientConfig{
		BaseURL: cfg.APIs.GenAI.BaseURL,
		APIKey:  cfg.APIs.GenAI.APIKey,
		Model:   cfg.APIs.GenAI.Model,
		Timeout: config.GetDuration(cfg.APIs.GenAI.Timeout),
	}, transport, log)
}

// Generate sends a single user turn.
func (c *Client) Generate(ctx context.Context, opts Options, parts ...Part) Completion {
	return c.Chat(ctx, opts, nil, parts...)
}

// Chat sends history followed by a new user turn made of parts.
func (c *Client) Chat(ctx context.Context, opts Options, history []Message, parts ...Part) Completion {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]content, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, toContent(m.Role, m.Parts))
	}
	contents = append(contents, toContent(RoleUser, parts))

	body, err := json.Marshal(generateRequest{
		Contents:         contents,
		GenerationConfig: toGenerationConfig(opts),
		SafetySettings:   defaultSafetySettings,
	})
	if err != nil {
		return c.fail(FailureTransport, fmt.Errorf("encode request: %w", err))
	}

	header := nethttp.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.transport.Do(ctx, &httpx.Request{
		Method: nethttp.MethodPost,
		URL:    c.endpoint(),
		Header:  header,
		Body:    body,
		Timeout: c.timeout,
	})
	if err != nil {
		return c.fail(FailureTransport, err)
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return c.fail(FailureTransport, fmt.Errorf("decode response: %w", err))
	}

	if len(out.Candidates) == 0 {
		reason := ""
		if out.PromptFeedback != nil {
			reason = out.PromptFeedback.BlockReason
		}
		return c.fail(FailureNoCandidates, fmt.Errorf("no candidates (blockReason=%q)", reason))
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return c.fail(FailureNoText, fmt.Errorf("candidate has no text (finishReason=%q)", out.Candidates[0].FinishReason))
	}

	metrics.LLMRequests.WithLabelValues("ok").Inc()
	return Completion{Text: text}
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

func (c *Client) fail(kind Failure, err error) Completion {
	metrics.LLMRequests.WithLabelValues(string(kind)).Inc()
	c.logger.Warn("generation failed", map[string]interface{}{
		"model":   c.model,
		"failure": string(kind),
		"error":   err.Error(),
	})
	return Completion{Failure: kind, Err: err}
}

// Wire format.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

var defaultSafetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
}

func toContent(role Role, parts []Part) content {
	c := content{Role: string(role), Parts: make([]wirePart, 0, len(parts))}
	for _, p := range parts {
		if p.Data != "" {
			c.Parts = append(c.Parts, wirePart{InlineData: &inlineData{MIMEType: p.MIMEType, Data: p.Data}})
			continue
		}
		c.Parts = append(c.Parts, wirePart{Text: p.Text})
	}
	return c
}

func toGenerationConfig(o Options) generationConfig {
	return generationConfig{
		Temperature:     o.Temperature,
		TopP:            o.TopP,
		TopK:            o.TopK,
		MaxOutputTokens: o.MaxOutputTokens,
	}
}
