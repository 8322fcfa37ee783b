package events

import "context"

// ProviderWhatsApp is the provider key used for WhatsApp Cloud API message ids.
const ProviderWhatsApp = "whatsapp"

// ProcessedStore records webhook events that were already handled.
type ProcessedStore interface {
	// MarkProcessed records the event id for the provider. It returns false
	// if the id was already recorded (and has not expired).
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

func processedKey(provider, eventID string) string {
	return "processed_event:" + provider + ":" + eventID
}
