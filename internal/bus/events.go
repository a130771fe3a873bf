package bus

import (
	"time"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/emotion"
)

type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	Attachment string // base64 image payload
	Timestamp  time.Time
	Metadata   map[string]any
}

// UserKey is the vault codename an inbound message belongs to.
func (m *InboundMessage) UserKey() string {
	return m.Channel + ":" + m.SenderID
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Image    string // base64 image payload
	IsError  bool
	Emotion  emotion.Emotion
	Metadata map[string]any
}
