package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-companion/internal/events"
	"github.com/wolfman30/whatsapp-companion/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReplySender delivers a reply to the messaging platform.
type ReplySender interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// Outcome describes how one inbound message was handled.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeFallback  Outcome = "fallback"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePanic     Outcome = "panic"
)

// Result reports what happened to one inbound message.
type Result struct {
	Outcome       Outcome
	Reply         string
	Delivered     bool
	GenerationErr error
	DeliveryErr   error
}

// RelayConfig wires a Relay. Store, Generator and Sender are required.
type RelayConfig struct {
	Store             SessionStore
	Generator         ReplyGenerator
	Sender            ReplySender
	Processed         events.ProcessedStore
	Metrics           *metrics.RelayMetrics
	Logger            *logging.Logger
	Persona           string
	FallbackReply     string
	GenerationTimeout time.Duration
	DeliveryTimeout   time.Duration
}

// Relay turns one inbound text message into a recorded exchange and a
// delivered reply. Messages from the same sender are processed one at a time.
type Relay struct {
	store             SessionStore
	generator         ReplyGenerator
	sender            ReplySender
	processed         events.ProcessedStore
	metrics           *metrics.RelayMetrics
	logger            *logging.Logger
	tracer            trace.Tracer
	locks             *keyedMutex
	persona           string
	fallbackReply     string
	generationTimeout time.Duration
	deliveryTimeout   time.Duration
}

const defaultFallbackReply = "Sorry, I'm having trouble replying right now. Please try again in a little while."

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Store == nil {
		panic("conversation: session store cannot be nil")
	}
	if cfg.Generator == nil {
		panic("conversation: reply generator cannot be nil")
	}
	if cfg.Sender == nil {
		panic("conversation: reply sender cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	fallback := strings.TrimSpace(cfg.FallbackReply)
	if fallback == "" {
		fallback = defaultFallbackReply
	}
	return &Relay{
		store:             cfg.Store,
		generator:         cfg.Generator,
		sender:            cfg.Sender,
		processed:         cfg.Processed,
		metrics:           cfg.Metrics,
		logger:            logger,
		tracer:            otel.Tracer("whatsapp-companion.internal.conversation.relay"),
		locks:             newKeyedMutex(),
		persona:           cfg.Persona,
		fallbackReply:     fallback,
		generationTimeout: cfg.GenerationTimeout,
		deliveryTimeout:   cfg.DeliveryTimeout,
	}
}

// HandleMessage records the user turn, generates a reply (or the fallback),
// records the assistant turn on success, and delivers the reply. It never
// panics and never returns an error: failures are contained in the Result.
func (r *Relay) HandleMessage(ctx context.Context, msg InboundMessage) (res Result) {
	ctx, span := r.tracer.Start(ctx, "relay.handle_message", trace.WithAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
	))
	defer span.End()

	logger := r.logger.With("sender", msg.From, "message_id", msg.ID)
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("conversation: panic handling message: %v", rec)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			logger.Error("recovered panic while handling message", "panic", fmt.Sprint(rec))
			res = Result{Outcome: OutcomePanic}
		}
		r.metrics.ObserveInbound(messageType(msg), string(res.Outcome))
	}()

	if strings.TrimSpace(msg.From) == "" || strings.TrimSpace(msg.Text) == "" {
		return Result{Outcome: OutcomeSkipped}
	}

	if r.processed != nil && msg.ID != "" {
		isNew, err := r.processed.MarkProcessed(ctx, events.ProviderWhatsApp, msg.ID)
		switch {
		case err != nil:
			logger.Warn("dedupe check failed; processing message anyway", "error", err)
		case !isNew:
			logger.Info("skipping already processed message")
			return Result{Outcome: OutcomeDuplicate}
		}
	}

	unlock := r.locks.Lock(msg.From)
	defer unlock()

	prior := r.store.History(msg.From)
	r.store.Append(msg.From, UserTurn(msg.Text))

	reply, genErr := r.generate(ctx, prior, msg.Text)
	if genErr != nil {
		res.Outcome = OutcomeFallback
		res.GenerationErr = genErr
		reply = r.fallbackReply
		attrs := []any{"error", genErr}
		var ge *GenerationError
		if errors.As(genErr, &ge) {
			attrs = append(attrs, "provider", ge.Provider, "category", string(ge.Category), "status_code", ge.StatusCode)
		}
		logger.Error("reply generation failed; sending fallback", attrs...)
	} else {
		res.Outcome = OutcomeReplied
		r.store.Append(msg.From, AssistantTurn(reply))
	}
	res.Reply = reply
	r.metrics.SetActiveSessions(r.store.Len())

	if err := r.deliver(ctx, OutboundReply{To: msg.From, Body: reply}); err != nil {
		res.DeliveryErr = err
		logger.Error("failed to deliver reply", "error", err)
	} else {
		res.Delivered = true
	}
	return res
}

func (r *Relay) generate(ctx context.Context, history []Turn, message string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "relay.generate")
	defer span.End()

	if r.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.generationTimeout)
		defer cancel()
	}

	provider := providerName(r.generator)
	start := time.Now()
	reply, err := r.generator.GenerateReply(ctx, history, message, r.persona)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = malformedResponse(provider, errors.New("empty reply"))
	}
	if err != nil {
		genErr := newGenerationError(provider, err)
		r.metrics.ObserveGeneration(genErr.Provider, string(genErr.Category), time.Since(start).Seconds())
		span.RecordError(genErr)
		span.SetStatus(codes.Error, string(genErr.Category))
		return "", genErr
	}
	r.metrics.ObserveGeneration(provider, "", time.Since(start).Seconds())
	return strings.TrimSpace(reply), nil
}

func (r *Relay) deliver(ctx context.Context, reply OutboundReply) error {
	ctx, span := r.tracer.Start(ctx, "relay.deliver")
	defer span.End()

	if r.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deliveryTimeout)
		defer cancel()
	}

	err := r.sender.SendReply(ctx, reply)
	r.metrics.ObserveDelivery(err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	return err
}

func messageType(msg InboundMessage) string {
	if msg.Type == "" {
		return "text"
	}
	return msg.Type
}
