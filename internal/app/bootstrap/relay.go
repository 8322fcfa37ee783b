package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/whatsapp-companion/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/whatsapp-companion/internal/config"
	"github.com/wolfman30/whatsapp-companion/internal/conversation"
	"github.com/wolfman30/whatsapp-companion/internal/events"
	"github.com/wolfman30/whatsapp-companion/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

// RelayRuntime is the wired WhatsApp relay plus the resources it owns.
type RelayRuntime struct {
	Adapter *whatsapp.Adapter
	Relay   *conversation.Relay
	Store   *conversation.MemorySessionStore

	closers []func()
}

// Close releases backend clients and connection pools.
func (r *RelayRuntime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildRelay wires the session store, generator, dedupe cache, and WhatsApp
// client into a webhook adapter.
func BuildRelay(ctx context.Context, cfg *appconfig.Config, m *metrics.RelayMetrics, logger *logging.Logger) (*RelayRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	rt := &RelayRuntime{}

	generator, closeGenerator, err := BuildGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeGenerator)

	processed, closeProcessed, err := BuildProcessedStore(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeProcessed)

	client := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID,
		whatsapp.WithAPIVersion(cfg.WhatsAppAPIVersion),
	)
	client.SetAPIBase(cfg.WhatsAppAPIBase)

	rt.Store = conversation.NewMemorySessionStore(
		conversation.WithMaxSenders(cfg.SessionMaxSenders),
		conversation.WithMaxTurns(cfg.SessionMaxTurns),
		conversation.WithEvictionHook(func(sender string) {
			logger.Debug("session evicted", "sender", sender)
		}),
	)

	rt.Relay = conversation.NewRelay(conversation.RelayConfig{
		Store:             rt.Store,
		Generator:         generator,
		Sender:            client,
		Processed:         processed,
		Metrics:           m,
		Logger:            logger,
		Persona:           cfg.PersonaPrompt,
		FallbackReply:     cfg.FallbackReply,
		GenerationTimeout: cfg.GenerationTimeout,
		DeliveryTimeout:   cfg.DeliveryTimeout,
	})

	rt.Adapter = whatsapp.NewAdapter(whatsapp.AdapterConfig{
		VerifyToken: cfg.WhatsAppVerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Handler:     rt.Relay,
		Metrics:     m,
		Logger:      logger,
	})

	logger.Info("whatsapp relay configured",
		"model", cfg.GeminiModel,
		"bedrock_fallback", cfg.BedrockModelID != "",
		"dedupe", cfg.DedupeBackend,
		"signature_check", cfg.WhatsAppAppSecret != "",
		"max_senders", cfg.SessionMaxSenders,
		"max_turns", cfg.SessionMaxTurns,
	)
	return rt, nil
}

// BuildGenerator wires Gemini as the reply backend and, when BEDROCK_MODEL_ID
// is set, Bedrock as a one-shot fallback provider.
func BuildGenerator(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.ReplyGenerator, func(), error) {
	gemini, err := conversation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel,
		conversation.WithGeminiTemperature(cfg.GeminiTemperature),
		conversation.WithGeminiMaxOutputTokens(cfg.GeminiMaxOutputTokens),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	closeGemini := func() {
		if err := gemini.Close(); err != nil {
			logger.Warn("failed to close gemini client", "error", err)
		}
	}

	if strings.TrimSpace(cfg.BedrockModelID) == "" {
		return gemini, closeGemini, nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		closeGemini()
		return nil, nil, err
	}
	bedrock := conversation.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, cfg.GeminiMaxOutputTokens)
	logger.Info("bedrock fallback enabled", "model", cfg.BedrockModelID, "region", cfg.AWSRegion)
	return conversation.NewFallbackGenerator(gemini, bedrock, logger), closeGemini, nil
}

// BuildProcessedStore returns the idempotency cache selected by DEDUPE_BACKEND,
// or nil when deduplication is disabled.
func BuildProcessedStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.ProcessedStore, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.DedupeBackend)) {
	case "", appconfig.DedupeNone:
		return nil, noop, nil
	case appconfig.DedupeMemory:
		return events.NewMemoryProcessedStore(cfg.DedupeTTL), noop, nil
	case appconfig.DedupeRedis:
		client, err := BuildRedisClient(ctx, cfg, logger, true)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis dedupe requires REDIS_ADDR")
		}
		return events.NewRedisProcessedStore(client, cfg.DedupeTTL), func() { _ = client.Close() }, nil
	case appconfig.DedupePostgres:
		pool, err := BuildPostgresPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if pool == nil {
			return nil, nil, fmt.Errorf("bootstrap: postgres dedupe requires DATABASE_URL")
		}
		store := events.NewPostgresProcessedStore(pool, cfg.DedupeTTL)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown dedupe backend %q", cfg.DedupeBackend)
	}
}
