package main

import (
	"encoding/json"
	"fmt"
	"io"

	"medkit-workers/internal/common/config"
	httpx "medkit-workers/internal/common/http"
	"medkit-workers/internal/common/llm"
	"medkit-workers/internal/common/logger"

	pui "medkit-workers/internal/workers/ai-conversation/parse-user-intent"
	sm "medkit-workers/internal/workers/medicine/search-medicines"
)

// app holds what every subcommand needs.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	transport *httpx.Transport
	genai     *llm.Client
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rootFlags.configPath != "" {
		cfg, err = config.LoadFromFile(rootFlags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Defaults()
	}

	if rootFlags.drugsComURL != "" {
		cfg.APIs.DrugsCom.BaseURL = rootFlags.drugsComURL
	}
	if rootFlags.rxNavURL != "" {
		cfg.APIs.RxNav.BaseURL = rootFlags.rxNavURL
	}
	if rootFlags.genAIURL != "" {
		cfg.APIs.GenAI.BaseURL = rootFlags.genAIURL
	}
	if rootFlags.deadline > 0 {
		cfg.Aggregation.Deadline = int(rootFlags.deadline.Milliseconds())
	}
	return cfg, nil
}

func newApp(stderr io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.APIs.GenAI.APIKey == "" {
		fmt.Fprintln(stderr, "warning: GENAI_API_KEY is not set; model calls will fail and fallbacks will be used")
	}

	log := logger.NewZapAdapter(logger.NewWithOutput(rootFlags.logLevel, "console", "stderr"))
	transport := httpx.NewTransportFromConfig(cfg.Transport, httpx.WithLogger(log))

	return &app{
		cfg:       cfg,
		log:       log,
		transport: transport,
		genai:     llm.NewClientFromConfig(cfg, transport, log),
	}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

type intentLogger struct {
	logger.Logger
}

func (l *intentLogger) With(fields map[string]interface{}) pui.Logger {
	return &intentLogger{l.Logger.With(fields)}
}

type searchLogger struct {
	logger.Logger
}

func (l *searchLogger) With(fields map[string]interface{}) sm.Logger {
	return &searchLogger{l.Logger.With(fields)}
}
