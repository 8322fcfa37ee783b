// Package main runs end-to-end scenarios against a running companion server.
//
// It starts a fake Graph API that captures outbound sends, posts WhatsApp
// webhook payloads to the server, and checks the replies that come back.
// Start the server with WHATSAPP_API_BASE pointing at the fake Graph API:
//
//	WHATSAPP_API_BASE=http://localhost:9911 go run ./cmd/api
//
// Usage:
//
//	API_BASE_URL=http://localhost:3000 WHATSAPP_VERIFY_TOKEN=... go run scripts/e2e/run_e2e.go [scenario-name]
//
// Set WHATSAPP_APP_SECRET to the server's value when signature checks are enabled.
package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/whatsapp-companion/internal/channels/whatsapp"
)

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

const (
	defaultGraphAddr = ":9911"
	phoneNumberID    = "E2E_PHONE_NUMBER_ID"
	maxWait          = 45 * time.Second
	pollInterval     = 250 * time.Millisecond
)

var (
	apiBase     string
	verifyToken string
	appSecret   string
	graph       = &fakeGraph{}
)

// ---------------------------------------------------------------------------
// Scenario definition
// ---------------------------------------------------------------------------

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

// ---------------------------------------------------------------------------
// Fake Graph API
// ---------------------------------------------------------------------------

type fakeGraph struct {
	mu   sync.Mutex
	sent []whatsapp.SendRequest
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req whatsapp.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"bad json","code":100}}`, http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.sent = append(g.sent, req)
	n := len(g.sent)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(whatsapp.SendResponse{
		MessagingProduct: "whatsapp",
		Contacts:         []whatsapp.SendContact{{Input: req.To, WaID: req.To}},
		Messages:         []whatsapp.SentMessage{{ID: fmt.Sprintf("wamid.e2e.out.%d", n)}},
	})
}

// repliesTo returns the bodies sent to recipient so far.
func (g *fakeGraph) repliesTo(recipient string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, s := range g.sent {
		if s.To == recipient {
			out = append(out, s.Text.Body)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var (
	senderMu  sync.Mutex
	senderSeq = time.Now().Unix() % 100000 * 100
)

// newSender returns a phone number unique to this run so sessions from earlier
// runs do not leak in.
func newSender() string {
	senderMu.Lock()
	defer senderMu.Unlock()
	senderSeq++
	return fmt.Sprintf("1555%07d", senderSeq%10000000)
}

func textPayload(from, text string) []byte {
	ts := time.Now().UnixNano()
	payload := map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []interface{}{map[string]interface{}{
			"id": "E2E_WABA",
			"changes": []interface{}{map[string]interface{}{
				"field": "messages",
				"value": map[string]interface{}{
					"messaging_product": "whatsapp",
					"metadata":          map[string]string{"phone_number_id": phoneNumberID},
					"contacts":          []interface{}{map[string]interface{}{"wa_id": from, "profile": map[string]string{"name": "E2E"}}},
					"messages": []interface{}{map[string]interface{}{
						"from":      from,
						"id":        fmt.Sprintf("wamid.e2e.%d", ts),
						"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
						"type":      "text",
						"text":      map[string]string{"body": text},
					}},
				},
			}},
		}},
	}
	body, _ := json.Marshal(payload)
	return body
}

func postWebhook(body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, apiBase+"/webhook", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if appSecret != "" {
		mac := hmac.New(sha256.New, []byte(appSecret))
		mac.Write(body)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func sendText(from, text string) (int, error) {
	return postWebhook(textPayload(from, text))
}

// waitForReplies waits until recipient has received at least minCount replies.
func waitForReplies(recipient string, minCount int) ([]string, error) {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if replies := graph.repliesTo(recipient); len(replies) >= minCount {
			return replies, nil
		}
		time.Sleep(pollInterval)
	}
	return nil, fmt.Errorf("timed out waiting for %d replies to %s after %s", minCount, recipient, maxWait)
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioVerification(t *T) {
	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", verifyToken)
	q.Set("hub.challenge", "e2e-challenge")
	resp, err := http.Get(apiBase + "/webhook?" + q.Encode())
	if err != nil {
		t.fatalf("verification request: %v", err)
		return
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	t.check("valid token returns 200", resp.StatusCode == http.StatusOK)
	t.check("challenge echoed verbatim", string(body) == "e2e-challenge")

	q.Set("hub.verify_token", verifyToken+"-wrong")
	resp, err = http.Get(apiBase + "/webhook?" + q.Encode())
	if err != nil {
		t.fatalf("verification request: %v", err)
		return
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	t.check("wrong token returns 403", resp.StatusCode == http.StatusForbidden)
	t.check("challenge not leaked", !strings.Contains(string(body), "e2e-challenge"))

	resp, err = http.Get(apiBase + "/webhook?hub.challenge=x")
	if err != nil {
		t.fatalf("verification request: %v", err)
		return
	}
	resp.Body.Close()
	t.check("missing params returns 400", resp.StatusCode == http.StatusBadRequest)
}

func scenarioGreeting(t *T) {
	from := newSender()
	status, err := sendText(from, "hi! how are you today?")
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("webhook acknowledged with 200", status == http.StatusOK)

	replies, err := waitForReplies(from, 1)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	fmt.Printf("    reply: %q\n", replies[0])
	t.check("reply is not empty", strings.TrimSpace(replies[0]) != "")
}

func scenarioMemory(t *T) {
	from := newSender()
	if _, err := sendText(from, "hello, my name is Priyanka"); err != nil {
		t.fatalf("send: %v", err)
		return
	}
	if _, err := waitForReplies(from, 1); err != nil {
		t.fatalf("%v", err)
		return
	}
	if _, err := sendText(from, "what's my name?"); err != nil {
		t.fatalf("send: %v", err)
		return
	}
	replies, err := waitForReplies(from, 2)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	fmt.Printf("    reply: %q\n", replies[1])
	t.check("second reply recalls the name", containsAny(replies[1], "Priyanka"))
}

func scenarioNonText(t *T) {
	from := newSender()
	body := []byte(fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"E2E_WABA","changes":[{"field":"messages","value":{
	  "messaging_product":"whatsapp","metadata":{"phone_number_id":%q},
	  "messages":[{"from":%q,"id":"wamid.e2e.img","timestamp":"%d","type":"image","image":{"id":"media-1"}}]}}]}]}`,
		phoneNumberID, from, time.Now().Unix()))
	status, err := postWebhook(body)
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("image acknowledged with 200", status == http.StatusOK)
	time.Sleep(2 * time.Second)
	t.check("no reply sent for image", len(graph.repliesTo(from)) == 0)
}

func scenarioStatusUpdate(t *T) {
	body := []byte(fmt.Sprintf(`{"object":"whatsapp_business_account","entry":[{"id":"E2E_WABA","changes":[{"field":"messages","value":{
	  "messaging_product":"whatsapp","metadata":{"phone_number_id":%q},
	  "statuses":[{"id":"wamid.e2e.out.1","status":"delivered","timestamp":"%d","recipient_id":"15550000000"}]}}]}]}`,
		phoneNumberID, time.Now().Unix()))
	status, err := postWebhook(body)
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("status update acknowledged with 200", status == http.StatusOK)
}

func scenarioMalformed(t *T) {
	status, err := postWebhook([]byte(`{"entry": [`))
	if err != nil {
		t.fatalf("send: %v", err)
		return
	}
	t.check("malformed payload returns 500", status == http.StatusInternalServerError)
}

func scenarioConcurrentSenders(t *T) {
	senders := []string{newSender(), newSender(), newSender()}
	var wg sync.WaitGroup
	for _, from := range senders {
		wg.Add(1)
		go func(from string) {
			defer wg.Done()
			_, _ = sendText(from, "quick check-in, reply with one short sentence please")
		}(from)
	}
	wg.Wait()

	for _, from := range senders {
		replies, err := waitForReplies(from, 1)
		t.check(fmt.Sprintf("sender %s got exactly one reply", from), err == nil && len(replies) == 1)
	}
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	verifyToken = os.Getenv("WHATSAPP_VERIFY_TOKEN")
	appSecret = os.Getenv("WHATSAPP_APP_SECRET")
	if apiBase == "" || verifyToken == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and WHATSAPP_VERIFY_TOKEN required")
		os.Exit(1)
	}

	graphAddr := os.Getenv("GRAPH_LISTEN_ADDR")
	if graphAddr == "" {
		graphAddr = defaultGraphAddr
	}
	graphSrv := &http.Server{Addr: graphAddr, Handler: graph, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := graphSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "ERROR: fake graph api: %v\n", err)
			os.Exit(1)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = graphSrv.Shutdown(ctx)
	}()

	scenarios := []scenario{
		{"verification", scenarioVerification},
		{"greeting", scenarioGreeting},
		{"memory", scenarioMemory},
		{"non-text", scenarioNonText},
		{"status-update", scenarioStatusUpdate},
		{"malformed", scenarioMalformed},
		{"concurrent-senders", scenarioConcurrentSenders},
	}

	// Filter by name if argument provided
	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed := 0
	totalFailed := 0
	scenarioResults := make([]string, 0)

	for _, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}

		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name}
		s.Fn(t)

		totalPassed += t.passed
		totalFailed += t.failed

		status := "PASS"
		if t.failed > 0 {
			status = "FAIL"
		}
		scenarioResults = append(scenarioResults, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range scenarioResults {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)

	if totalFailed > 0 {
		fmt.Println("\nSOME SCENARIOS FAILED")
		os.Exit(1)
	}
	fmt.Println("\nALL SCENARIOS PASSED")
}
