// Command chat talks to the configured reply backend from a terminal, using the
// same relay, session store, and persona as the webhook server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/wolfman30/whatsapp-companion/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-companion/internal/config"
	"github.com/wolfman30/whatsapp-companion/internal/conversation"
	"github.com/wolfman30/whatsapp-companion/pkg/logging"
)

const consoleSender = "console"

// printer prints replies instead of sending them to WhatsApp.
type printer struct {
	w io.Writer
}

func (p printer) SendReply(_ context.Context, reply conversation.OutboundReply) error {
	_, err := fmt.Fprintf(p.w, "companion> %s\n", reply.Body)
	return err
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	generator, closeGenerator, err := bootstrap.BuildGenerator(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build generator: %v", err)
	}
	defer closeGenerator()

	relay := conversation.NewRelay(conversation.RelayConfig{
		Store:             conversation.NewMemorySessionStore(conversation.WithMaxTurns(cfg.SessionMaxTurns)),
		Generator:         generator,
		Sender:            printer{w: os.Stdout},
		Logger:            logger,
		Persona:           cfg.PersonaPrompt,
		FallbackReply:     cfg.FallbackReply,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	fmt.Println("Type a message and press enter. Ctrl-D to quit.")
	if err := chat(ctx, relay, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("chat: %v", err)
	}
}

func chat(ctx context.Context, relay *conversation.Relay, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	turn := 0
	fmt.Fprint(out, "you> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text != "" {
			turn++
			res := relay.HandleMessage(ctx, conversation.InboundMessage{
				ID:   fmt.Sprintf("console-%d", turn),
				From: consoleSender,
				Text: text,
				Type: "text",
			})
			if res.GenerationErr != nil {
				fmt.Fprintf(out, "(generation failed: %v)\n", res.GenerationErr)
			}
		}
		fmt.Fprint(out, "you> ")
	}
	return scanner.Err()
}
