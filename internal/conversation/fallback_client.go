package conversation

import (
	"context"

	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

// FallbackGenerator wraps a primary generator with a second provider.
// Each provider gets exactly one attempt.
type FallbackGenerator struct {
	primary  ReplyGenerator
	fallback ReplyGenerator
	logger   *logging.Logger
}

// NewFallbackGenerator creates a fallback-enabled generator.
// If fallback is nil, only the primary provider is used.
func NewFallbackGenerator(primary, fallback ReplyGenerator, logger *logging.Logger) *FallbackGenerator {
	if primary == nil {
		panic("conversation: primary generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackGenerator{primary: primary, fallback: fallback, logger: logger}
}

func (g *FallbackGenerator) Provider() string {
	return providerName(g.primary)
}

func (g *FallbackGenerator) GenerateReply(ctx context.Context, history []Turn, message, persona string) (string, error) {
	reply, err := g.primary.GenerateReply(ctx, history, message, persona)
	if err == nil {
		return reply, nil
	}

	g.logger.Warn("primary generator failed, attempting fallback",
		"provider", providerName(g.primary),
		"error", err,
		"fallback_available", g.fallback != nil,
	)
	if g.fallback == nil || ctx.Err() != nil {
		return "", err
	}

	reply, fallbackErr := g.fallback.GenerateReply(ctx, history, message, persona)
	if fallbackErr != nil {
		g.logger.Error("fallback generator also failed",
			"primary_error", err,
			"fallback_error", fallbackErr,
		)
		return "", fallbackErr
	}

	g.logger.Info("fallback generator succeeded after primary failure", "provider", providerName(g.fallback))
	return reply, nil
}

// providerName returns the generator's provider label, if it has one.
func providerName(g ReplyGenerator) string {
	if p, ok := g.(interface{ Provider() string }); ok {
		return p.Provider()
	}
	return "custom"
}
