package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/accountplan/config"
	"github.com/mohammad-safakhou/accountplan/internal/agent/core"
	"github.com/mohammad-safakhou/accountplan/internal/agent/telemetry"
	"github.com/mohammad-safakhou/accountplan/internal/cache"
	"github.com/mohammad-safakhou/accountplan/provider"
	"github.com/mohammad-safakhou/accountplan/tools/corpus"
	"github.com/mohammad-safakhou/accountplan/tools/web_search"
)

// engine bundles the orchestrator with the pieces the commands need to
// run and tear it down.
type engine struct {
	cfg          *config.Config
	orchestrator *core.Orchestrator
	telemetry    *telemetry.Telemetry
	corpus       *corpus.Corpus
}

// buildEngine wires the whole pipeline from configuration.
func buildEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Writer(), "[ACCOUNTPLAN] ", log.LstdFlags)

	client, err := provider.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	var tel *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tel = telemetry.New()
	}
	gateway := core.NewGateway(client, cfg.LLM, tel)

	var cch cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		cch, err = cache.NewRedisCache(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
	default:
		cch, err = cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("file cache: %w", err)
		}
	}

	cp, err := buildCorpus(cfg.Sources.Corpus, logger)
	if err != nil {
		return nil, err
	}

	webSrc := buildWebSource(cfg.Sources.WebSearch, logger)

	planner := core.NewPlanner(gateway, cfg.Research, cfg.Cache.TTL())
	retriever := core.NewRetriever(core.CorpusSource(cp), webSrc, cch, cfg.Research, cfg.Cache.TTL(), tel)
	synth := core.NewSynthesizer(gateway)
	orch := core.NewOrchestrator(cfg.Research, gateway, planner, retriever, synth, core.NewCritic(), cch, cfg.Cache.TTL(), tel)

	return &engine{cfg: cfg, orchestrator: orch, telemetry: tel, corpus: cp}, nil
}

func buildCorpus(cfg config.CorpusConfig, logger *log.Logger) (*corpus.Corpus, error) {
	if cfg.TextDir == "" {
		return corpus.NewMem()
	}
	cp, err := corpus.New(cfg.TextDir)
	if err != nil {
		// A missing corpus directory degrades to web-only research.
		logger.Printf("corpus unavailable (%v), continuing without it", err)
		return corpus.NewMem()
	}
	return cp, nil
}

func buildWebSource(cfg config.WebSearchConfig, logger *log.Logger) core.SnippetSearcher {
	key := cfg.BraveAPIKey
	if web_search.Provider(cfg.Provider) == web_search.SerperProvider {
		key = cfg.SerperAPIKey
	}
	w, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), key)
	if err != nil {
		if errors.Is(err, web_search.ErrDisabled) {
			logger.Printf("web search not configured, running corpus-only")
		} else {
			logger.Printf("web search unavailable (%v), running corpus-only", err)
		}
		return core.DisabledSource()
	}
	return core.WebSource(w)
}
