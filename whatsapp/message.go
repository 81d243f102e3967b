// Package whatsapp speaks the Meta Graph API: outbound text and template
// messages, inbound payload types, and media download. The resend guard in
// reliable.go layers delivery retries on top of the raw client.
package whatsapp

// InboundMessage is one message plucked from a webhook delivery.
type InboundMessage struct {
	From      string // sender phone number, digits only
	Type      string // text, image, audio, video, document, sticker, ...
	Text      string // body for text messages
	MediaID   string // Graph media id for media messages
	Timestamp int64  // unix seconds as reported by the platform
}

// SessionKey returns the conversation key for this message. One WhatsApp
// number maps to one dialogue.
func (m *InboundMessage) SessionKey() string {
	return m.From
}

// IsMedia reports whether the message carries a downloadable attachment.
func (m *InboundMessage) IsMedia() bool {
	switch m.Type {
	case "image", "audio", "video", "document", "sticker":
		return true
	}
	return false
}
