package main

import (
	"context"
	"fmt"

	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/llm"
	"github.com/jonathan/print-estimator/internal/notify"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/parsing"
	"github.com/jonathan/print-estimator/internal/pipeline"
	"github.com/jonathan/print-estimator/internal/pricing"
	"github.com/jonathan/print-estimator/internal/reconcile"
	"github.com/jonathan/print-estimator/internal/schemas"
	"github.com/jonathan/print-estimator/internal/validation"
	"go.uber.org/zap"
)

// app holds the collaborators shared by the commands
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     db.Store
	client    llm.DocumentClient // nil when generative collaborators are off
	model     *pricing.Model
	validator *validation.Validator
	notifier  *notify.Webhook
}

// loadConfig reads --config plus environment overrides and validates the result
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp opens the store and, unless offline, the generative client.
// Without an API key the app runs offline and expects structured JSON input.
func newApp(ctx context.Context, cfg *config.Config, offline bool) (*app, error) {
	logger, err := observability.NewLogger(cfg.Logging, logLevel)
	if err != nil {
		return nil, err
	}
	if err := schemas.CompileAll(); err != nil {
		return nil, err
	}

	store, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		notifier: notify.New(cfg.Timeouts.Webhook, logger),
	}
	a.model = pricing.NewModel(cfg.Rates, logger)
	a.validator = validation.NewValidator(cfg.Rules, a.model)

	if !offline && cfg.GenerativeEnabled() {
		client, err := llm.NewClient(ctx, llm.DefaultConfig().WithAllModels(cfg.LLM.Model), cfg.LLM.APIKey, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		a.client = client
	} else {
		logger.Info("generative collaborators disabled; input must be a JSON specification",
			zap.String("op", "main.newApp"))
	}
	return a, nil
}

// estimator wires the pipeline. The generative collaborators are only set
// when a client exists so the interfaces stay nil otherwise.
func (a *app) estimator(opts ...pipeline.Option) (*pipeline.Estimator, error) {
	deps := pipeline.Deps{
		Store:     a.store,
		Extractor: parsing.StructuredExtractor{},
		Engine:    reconcile.NewEngine(a.model, 0),
		Validator: a.validator,
		Notifier:  a.notifier,
		Logger:    a.logger,
	}
	if a.client != nil {
		deps.Extractor = parsing.NewLLMExtractor(a.client, a.logger)
		deps.Transcriber = parsing.NewDocumentTranscriber(a.client, a.logger)
		deps.Candidates = pricing.NewLLMPricer(a.client, a.logger)
		deps.Advisor = validation.NewLLMAdvisor(a.client, a.logger)
	}

	base := []pipeline.Option{
		pipeline.WithTimeouts(a.cfg.Timeouts),
		pipeline.WithWebhookURL(a.cfg.Webhook.URL),
	}
	return pipeline.New(deps, append(base, opts...)...)
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	a.store.Close()
	_ = a.logger.Sync()
}
