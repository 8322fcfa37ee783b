package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-companion/internal/conversation"
	"github.com/wolfman30/whatsapp-companion/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBytes = 1 << 20
)

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   func(ctx context.Context, msg conversation.InboundMessage)
	onSkip      func(msg SkippedMessage)
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
}

// NewWebhookHandler creates a new webhook handler.
// onMessage is called once per inbound text message, in payload order.
// When appSecret is empty, signatures are not checked.
func NewWebhookHandler(verifyToken, appSecret string, onMessage func(context.Context, conversation.InboundMessage)) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
		logger:      logging.Default(),
	}
}

// SetLogger replaces the default logger.
func (h *WebhookHandler) SetLogger(logger *logging.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// SetMetrics enables webhook latency metrics.
func (h *WebhookHandler) SetMetrics(m *metrics.RelayMetrics) {
	h.metrics = m
}

// SetSkipHandler registers a callback for acknowledged messages that are not relayed.
func (h *WebhookHandler) SetSkipHandler(fn func(SkippedMessage)) {
	h.onSkip = fn
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if mode == "subscribe" && h.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1 {
		h.logger.Info("whatsapp: webhook verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("whatsapp: webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events. Messages are processed before the
// response is written; the request is acknowledged with 200 whenever the body
// parses, whatever happened to individual messages.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		h.metrics.ObserveWebhookLatency(status, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		status = http.StatusInternalServerError
		h.logger.Error("whatsapp: failed to read webhook body", "error", err)
		http.Error(w, "Internal Server Error", status)
		return
	}

	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get(signatureHeader)) {
		status = http.StatusUnauthorized
		h.logger.Warn("whatsapp: webhook signature mismatch")
		http.Error(w, "Unauthorized", status)
		return
	}

	event, err := ParseWebhookBody(body)
	if err != nil {
		status = http.StatusInternalServerError
		h.logger.Error("whatsapp: failed to parse webhook payload", "error", err)
		http.Error(w, "Internal Server Error", status)
		return
	}

	messages, skipped := ParseWebhookEvent(event)
	for _, s := range skipped {
		h.logger.Debug("whatsapp: skipping inbound message", "message_id", s.ID, "type", s.Type, "reason", s.Reason)
		if h.onSkip != nil {
			h.onSkip(s)
		}
	}

	// The platform may hang up early; a reply that was already generated should still go out.
	ctx := context.WithoutCancel(r.Context())
	for _, msg := range messages {
		h.dispatch(ctx, msg)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) dispatch(ctx context.Context, msg conversation.InboundMessage) {
	if h.onMessage == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("whatsapp: recovered panic while handling message",
				"message_id", msg.ID,
				"panic", fmt.Sprint(rec),
			)
		}
	}()
	h.onMessage(ctx, msg)
}

// ParseWebhookBody decodes a webhook payload. Anything that is not a JSON
// object with the expected field types is a *ParseError.
func ParseWebhookBody(body []byte) (WebhookEvent, error) {
	var event WebhookEvent
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return event, &ParseError{Err: errors.New("payload is not a JSON object")}
	}
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return event, &ParseError{Err: err}
	}
	return event, nil
}

// ParseWebhookEvent extracts relayable text messages from a webhook event.
// Non-text messages and messages with an empty body are returned as skipped;
// status notifications and non-message fields are ignored.
func ParseWebhookEvent(event WebhookEvent) ([]conversation.InboundMessage, []SkippedMessage) {
	var messages []conversation.InboundMessage
	var skipped []SkippedMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil {
					skipped = append(skipped, SkippedMessage{ID: m.ID, From: m.From, Type: typeLabel(m.Type), Reason: "unsupported type"})
					continue
				}
				if strings.TrimSpace(m.Text.Body) == "" {
					skipped = append(skipped, SkippedMessage{ID: m.ID, From: m.From, Type: m.Type, Reason: "empty body"})
					continue
				}
				if m.From == "" {
					skipped = append(skipped, SkippedMessage{ID: m.ID, Type: m.Type, Reason: "missing sender"})
					continue
				}
				messages = append(messages, conversation.InboundMessage{
					ID:            m.ID,
					From:          m.From,
					Text:          m.Text.Body,
					Type:          m.Type,
					PhoneNumberID: change.Value.Metadata.PhoneNumberID,
					Timestamp:     parseTimestamp(m.Timestamp),
				})
			}
		}
	}

	return messages, skipped
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	got, err := hex.DecodeString(signature[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

func parseTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func typeLabel(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
