package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-companion/internal/conversation"
)

const (
	defaultAPIBase     = "https://graph.facebook.com"
	defaultAPIVersion  = "v18.0"
	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// Client sends messages via the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	apiBase       string
	apiVersion    string
	httpClient    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIVersion overrides the Graph API version segment, e.g. "v19.0".
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		if v := strings.Trim(version, "/ "); v != "" {
			c.apiVersion = v
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a Cloud API client that sends from phoneNumberID.
func NewClient(accessToken, phoneNumberID string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		apiBase:       defaultAPIBase,
		apiVersion:    defaultAPIVersion,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	if base = strings.TrimRight(base, "/"); base != "" {
		c.apiBase = base
	}
}

// SendText sends a plain text message to recipient (an E.164 number without "+").
func (c *Client) SendText(ctx context.Context, recipient, body string) (*SendResponse, error) {
	req := SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               recipient,
		Type:             "text",
		Text:             SendText{PreviewURL: false, Body: body},
	}
	return c.send(ctx, req)
}

// SendReply implements conversation.ReplySender.
func (c *Client) SendReply(ctx context.Context, reply conversation.OutboundReply) error {
	_, err := c.SendText(ctx, reply.To, reply.Body)
	return err
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.apiBase, c.apiVersion, c.phoneNumberID)
}

func (c *Client) send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &DeliveryError{Message: "marshal send request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, &DeliveryError{Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &DeliveryError{Message: "send message", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	var sendResp SendResponse
	decodeErr := json.Unmarshal(respBody, &sendResp)

	if sendResp.Error != nil {
		return &sendResp, &DeliveryError{
			StatusCode: resp.StatusCode,
			Code:       sendResp.Error.Code,
			Subcode:    sendResp.Error.ErrorSubcode,
			Type:       sendResp.Error.Type,
			Message:    sendResp.Error.Message,
			FBTraceID:  sendResp.Error.FBTraceID,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    "unexpected status",
			Err:        errors.New(truncate(string(respBody), 256)),
		}
	}
	if decodeErr != nil {
		return nil, &DeliveryError{StatusCode: resp.StatusCode, Message: "unmarshal response", Err: decodeErr}
	}
	return &sendResp, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
