package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Tier selects which remote model configuration backs the conversation.
type Tier string

const (
	TierCore Tier = "core"
	TierPro  Tier = "pro"
)

// Toggle returns the other tier.
func (t Tier) Toggle() Tier {
	if t == TierPro {
		return TierCore
	}
	return TierPro
}

// NormalizeTier maps unknown or legacy tier values to core.
func NormalizeTier(s string) Tier {
	if Tier(s) == TierPro {
		return TierPro
	}
	return TierCore
}

// Message is one transcript entry. Role and Text are immutable after
// creation; Image may be stripped when old entries are archived.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Image   string `json:"image,omitempty"` // base64 payload
	IsError bool   `json:"isError,omitempty"`
}

// Session is the in-memory transcript plus the active tier.
type Session struct {
	Messages    []Message `json:"messages"`
	Tier        Tier      `json:"tier"`
	LastUpdated int64     `json:"lastUpdated"` // epoch millis
}

// NewMessageID returns a transcript-unique identifier. A random suffix
// guards against two messages created in the same millisecond.
func NewMessageID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

const (
	// WelcomeText seeds an empty vault.
	WelcomeText = "System stable. Vault storage active. I'm ready."
	// WipeText replaces the transcript after a confirmed wipe.
	WipeText = "Vault cleared. Fresh session started."
	// BackendFailureText is appended when the backend call fails.
	BackendFailureText = "Connection interrupted. I'm still here, though."
)

// WelcomeID marks the synthesized welcome entry so the persistence
// trigger can recognize a session that never had real interaction.
const WelcomeID = "welcome"

// WelcomeMessage returns the synthetic entry that seeds an empty vault.
func WelcomeMessage() Message {
	return Message{ID: WelcomeID, Role: RoleModel, Text: WelcomeText}
}
