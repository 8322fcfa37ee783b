package whatsapp

import (
	"context"
	"net/http"

	"github.com/wolfman30/whatsapp-companion/internal/conversation"
	"github.com/wolfman30/whatsapp-companion/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

// MessageHandler processes one inbound text message. *conversation.Relay implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg conversation.InboundMessage) conversation.Result
}

// AdapterConfig holds dependencies for the WhatsApp adapter.
type AdapterConfig struct {
	VerifyToken string
	AppSecret   string
	Handler     MessageHandler
	Metrics     *metrics.RelayMetrics
	Logger      *logging.Logger
}

// Adapter is the WhatsApp channel adapter. It feeds inbound webhook messages
// into the conversation relay; replies go out through the relay's sender.
type Adapter struct {
	webhook *WebhookHandler
	handler MessageHandler
	metrics *metrics.RelayMetrics
	logger  *logging.Logger
}

// NewAdapter creates a new WhatsApp adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Handler == nil {
		panic("whatsapp: message handler cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	a := &Adapter{
		handler: cfg.Handler,
		metrics: cfg.Metrics,
		logger:  logger,
	}
	a.webhook = NewWebhookHandler(cfg.VerifyToken, cfg.AppSecret, a.handleMessage)
	a.webhook.SetLogger(logger)
	a.webhook.SetMetrics(cfg.Metrics)
	a.webhook.SetSkipHandler(a.handleSkip)
	return a
}

// HandleVerification handles GET /webhook (Meta challenge).
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhook (inbound messages).
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

func (a *Adapter) handleMessage(ctx context.Context, msg conversation.InboundMessage) {
	res := a.handler.HandleMessage(ctx, msg)
	a.logger.Info("whatsapp: inbound message handled",
		"message_id", msg.ID,
		"sender", msg.From,
		"outcome", string(res.Outcome),
		"delivered", res.Delivered,
	)
}

func (a *Adapter) handleSkip(msg SkippedMessage) {
	a.metrics.ObserveInbound(msg.Type, string(conversation.OutcomeSkipped))
}
