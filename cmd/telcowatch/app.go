package main

import (
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/telcowatch/telcowatch"
	"github.com/telcowatch/telcowatch/artifact"
	"github.com/telcowatch/telcowatch/chat"
	"github.com/telcowatch/telcowatch/config"
	"github.com/telcowatch/telcowatch/enrich"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model/anthropic"
	"github.com/telcowatch/telcowatch/model/openai"
	"github.com/telcowatch/telcowatch/orchestrator"
	"github.com/telcowatch/telcowatch/retry"
	"github.com/telcowatch/telcowatch/search"
	"github.com/telcowatch/telcowatch/store"
)

// app bundles the wired components a command needs.
type app struct {
	cfg        config.Config
	log        logging.Logger
	orch       *orchestrator.Orchestrator
	reports    *store.SQLiteStore
	supervisor *chat.Supervisor
}

// buildApp loads configuration, constructs the external providers and model
// backends, and hands them to telcowatch.New. The caller owns closing the
// report store.
func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	fast := openai.NewModel(func(o *openai.Options) {
		o.Model = cfg.Models.Fast.Model
		o.Temperature = cfg.Models.Fast.Temperature
		o.MaxTokens = cfg.Models.Fast.MaxTokens
		o.APIKey = cfg.Models.Fast.APIKey
		o.BaseURL = cfg.Models.Fast.BaseURL
	})
	deep := anthropic.NewModel(func(o *anthropic.Options) {
		o.Model = anthropicsdk.Model(cfg.Models.Deep.Model)
		o.Temperature = cfg.Models.Deep.Temperature
		o.MaxTokens = cfg.Models.Deep.MaxTokens
		o.APIKey = cfg.Models.Deep.APIKey
	})

	searcher := search.NewClient(func(o *search.Options) {
		o.BaseURL = cfg.Search.BaseURL
		if cfg.Search.APIKey != "" {
			o.APIKey = cfg.Search.APIKey
		}
		o.MaxResults = cfg.Search.MaxResults
		o.Timeout = cfg.Search.Timeout
		o.Logger = log
	})
	enricher := enrich.NewClient(func(o *enrich.Options) {
		o.BaseURL = cfg.Synthesis.BaseURL
		if cfg.Synthesis.APIKey != "" {
			o.APIKey = cfg.Synthesis.APIKey
		}
		o.Model = cfg.Synthesis.Model
		o.Logger = log
	})

	reports, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	artifacts, err := artifact.NewFSStore(cfg.Storage.ArtifactsDir)
	if err != nil {
		reports.Close()
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	tw, err := telcowatch.New(searcher, enricher, fast, deep, reports,
		func(o *telcowatch.Options) {
			o.Streams = cfg.Streams
			o.Retry = retry.Policy{
				MaxAttempts:    cfg.Pipeline.Retry.MaxAttempts,
				BaseDelay:      cfg.Pipeline.Retry.BaseDelay,
				RateLimitDelay: cfg.Pipeline.Retry.RateLimitDelay,
				MaxDelay:       cfg.Pipeline.Retry.MaxDelay,
				Jitter:         cfg.Pipeline.Retry.Jitter,
			}
			o.StageTimeout = cfg.Pipeline.StageTimeout
			o.WindowDays = cfg.Search.WindowDays
			o.MaxConcurrentCandidates = cfg.Pipeline.MaxConcurrentCandidates
			o.MinContentLength = cfg.Pipeline.MinContentLength
			o.MaxContentLength = cfg.Pipeline.MaxContentLength
			o.ChatKeywords = cfg.Chat.StrategicKeywords
			o.ChatLengthThreshold = cfg.Chat.DeepLengthThreshold
			o.ArtifactStore = artifacts
			o.Logger = log
		})
	if err != nil {
		reports.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		orch:       tw.Orchestrator(),
		reports:    reports,
		supervisor: tw.Supervisor(),
	}, nil
}
