package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/whatsapp-companion/internal/conversation"
)

func TestSendText(t *testing.T) {
	var received SendRequest
	var path, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatal(err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResponse{
			MessagingProduct: "whatsapp",
			Contacts:         []SendContact{{Input: "15551234567", WaID: "15551234567"}},
			Messages:         []SentMessage{{ID: "wamid.out.1"}},
		})
	}))
	defer server.Close()

	client := NewClient("test_token", "1098765432")
	client.SetAPIBase(server.URL + "/")

	resp, err := client.SendText(context.Background(), "15551234567", "Hello from Sunny")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "wamid.out.1", resp.Messages[0].ID)

	assert.Equal(t, "/v18.0/1098765432/messages", path)
	assert.Equal(t, "Bearer test_token", auth)
	assert.Equal(t, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               "15551234567",
		Type:             "text",
		Text:             SendText{PreviewURL: false, Body: "Hello from Sunny"},
	}, received)
}

func TestSendText_WireFormat(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.x"}]}`))
	}))
	defer server.Close()

	client := NewClient("token", "42", WithAPIVersion("v19.0"))
	client.SetAPIBase(server.URL)

	_, err := client.SendText(context.Background(), "15550001111", "hi")
	require.NoError(t, err)

	text, ok := raw["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, text["preview_url"])
	assert.Equal(t, "hi", text["body"])
	assert.Equal(t, "individual", raw["recipient_type"])
}

func TestSendText_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Error validating access token","type":"OAuthException","code":190,"error_subcode":463,"fbtrace_id":"AbCdEf"}}`))
	}))
	defer server.Close()

	client := NewClient("expired", "42")
	client.SetAPIBase(server.URL)

	_, err := client.SendText(context.Background(), "15550001111", "hi")

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, http.StatusUnauthorized, delivery.StatusCode)
	assert.Equal(t, 190, delivery.Code)
	assert.Equal(t, 463, delivery.Subcode)
	assert.Equal(t, "OAuthException", delivery.Type)
	assert.Equal(t, "AbCdEf", delivery.FBTraceID)
	assert.Contains(t, err.Error(), "status 401, code 190")
}

func TestSendText_UnexpectedStatusWithoutErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("token", "42")
	client.SetAPIBase(server.URL)

	_, err := client.SendText(context.Background(), "15550001111", "hi")

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, http.StatusBadGateway, delivery.StatusCode)
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestSendText_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient("token", "42")
	client.SetAPIBase(url)

	_, err := client.SendText(context.Background(), "15550001111", "hi")

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Zero(t, delivery.StatusCode)
	assert.NotNil(t, errors.Unwrap(delivery))
}

func TestSendText_RespectsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := NewClient("token", "42")
	client.SetAPIBase(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.SendText(ctx, "15550001111", "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendReply(t *testing.T) {
	var received SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.y"}]}`))
	}))
	defer server.Close()

	client := NewClient("token", "42")
	client.SetAPIBase(server.URL)

	var sender conversation.ReplySender = client
	require.NoError(t, sender.SendReply(context.Background(), conversation.OutboundReply{To: "15550001111", Body: "hey"}))
	assert.Equal(t, "15550001111", received.To)
	assert.Equal(t, "hey", received.Text.Body)
}
