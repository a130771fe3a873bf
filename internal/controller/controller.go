// Package controller runs the send/receive state machine over a single
// user transcript, persisting every mutation through the vault.
package controller

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/brain"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/chat"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/emotion"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/vault"
)

// ErrBusy rejects an operation while a backend response is pending.
var ErrBusy = errors.New("still awaiting a response")

// ErrEmptyMessage rejects a send with no text and no attachment.
var ErrEmptyMessage = errors.New("empty message")

// Controller owns one user's in-memory transcript. It is the only
// writer of that user's vault record.
type Controller struct {
	user string
	v    *vault.Vault
	svc  brain.Service

	mu        sync.Mutex
	messages  []chat.Message
	tier      chat.Tier
	affect    emotion.Emotion
	awaiting  bool
	lastSaved time.Time
}

// Initialize loads the user's vault record (or synthesizes a welcome
// message on a miss) and reseeds the backend session. Backend failure
// here is non-fatal; the first send will surface it.
func Initialize(ctx context.Context, user string, v *vault.Vault, svc brain.Service) *Controller {
	c := &Controller{
		user:   user,
		v:      v,
		svc:    svc,
		tier:   chat.TierCore,
		affect: emotion.Neutral,
	}

	if session, ok := v.Load(user); ok && len(session.Messages) > 0 {
		log.Printf("[controller] loaded %d messages for %s", len(session.Messages), user)
		c.messages = session.Messages
		c.tier = session.Tier
		c.lastSaved = time.UnixMilli(session.LastUpdated)
	} else {
		c.messages = []chat.Message{chat.WelcomeMessage()}
	}

	if err := svc.StartSession(ctx, c.tier, c.messages); err != nil {
		log.Printf("[controller] start session warning: %v", err)
	}
	return c
}

// Send appends the user message, calls the backend with the
// pre-mutation history snapshot, and appends the reply (or a fixed
// error entry on failure). The returned message is the appended model
// entry. Re-entrant sends are rejected with ErrBusy.
func (c *Controller) Send(ctx context.Context, text, attachment string, generative bool) (chat.Message, error) {
	c.mu.Lock()
	if c.awaiting {
		c.mu.Unlock()
		return chat.Message{}, ErrBusy
	}
	if strings.TrimSpace(text) == "" && attachment == "" {
		c.mu.Unlock()
		return chat.Message{}, ErrEmptyMessage
	}

	snapshot := slices.Clone(c.messages)
	userMsg := chat.Message{
		ID:    chat.NewMessageID(),
		Role:  chat.RoleUser,
		Text:  text,
		Image: attachment,
	}
	c.messages = append(c.messages, userMsg)
	c.awaiting = true
	c.affect = emotion.Neutral
	tier := c.tier
	c.mu.Unlock()

	// Cleared on every exit path, panics included.
	defer func() {
		c.mu.Lock()
		c.awaiting = false
		c.mu.Unlock()
	}()

	c.persist()

	reply, err := c.svc.SendMessage(ctx, brain.Request{
		Text:       text,
		Tier:       tier,
		History:    snapshot,
		Attachment: attachment,
		Generative: generative,
	})

	var msg chat.Message
	c.mu.Lock()
	if err != nil {
		log.Printf("[controller] backend error for %s: %v", c.user, err)
		msg = chat.Message{
			ID:      chat.NewMessageID(),
			Role:    chat.RoleModel,
			Text:    chat.BackendFailureText,
			IsError: true,
		}
		c.affect = emotion.Neutral
	} else {
		msg = chat.Message{
			ID:    chat.NewMessageID(),
			Role:  chat.RoleModel,
			Text:  reply.Text,
			Image: reply.Image,
		}
		c.affect = emotion.Classify(reply.Text)
	}
	c.messages = append(c.messages, msg)
	c.awaiting = false
	c.mu.Unlock()

	c.persist()
	return msg, nil
}

// ToggleTier flips core/pro and rebuilds the backend context with the
// full current transcript. Rejected while a response is pending so the
// rebuilt context cannot race the in-flight reply.
func (c *Controller) ToggleTier(ctx context.Context) (chat.Tier, error) {
	c.mu.Lock()
	if c.awaiting {
		c.mu.Unlock()
		return c.tier, ErrBusy
	}
	c.tier = c.tier.Toggle()
	tier := c.tier
	history := slices.Clone(c.messages)
	c.mu.Unlock()

	c.persist()

	if err := c.svc.StartSession(ctx, tier, history); err != nil {
		return tier, err
	}
	return tier, nil
}

// Wipe clears the vault and resets the transcript to a single fresh
// message, then reseeds the backend with only that message. A wipe
// without confirmation is a no-op.
func (c *Controller) Wipe(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return nil
	}

	c.mu.Lock()
	if c.awaiting {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.v.Clear(c.user); err != nil {
		log.Printf("[controller] clear warning: %v", err)
	}
	reset := chat.Message{
		ID:   chat.NewMessageID(),
		Role: chat.RoleModel,
		Text: chat.WipeText,
	}
	c.messages = []chat.Message{reset}
	c.affect = emotion.Neutral
	tier := c.tier
	c.mu.Unlock()

	c.persist()

	if err := c.svc.StartSession(ctx, tier, []chat.Message{reset}); err != nil {
		return err
	}
	return nil
}

// EditImage asks the backend for a visual edit at the current tier.
// brain.ErrNoVisualEdit means the model declined, not that transport
// failed.
func (c *Controller) EditImage(ctx context.Context, image, prompt string) (string, error) {
	c.mu.Lock()
	tier := c.tier
	c.mu.Unlock()
	return c.svc.EditImage(ctx, image, prompt, tier)
}

// persist saves the transcript unless it is still just the synthesized
// welcome message; sessions with no real interaction leave no record.
func (c *Controller) persist() {
	c.mu.Lock()
	msgs := slices.Clone(c.messages)
	tier := c.tier
	c.mu.Unlock()

	if len(msgs) == 1 && msgs[0].ID == chat.WelcomeID {
		return
	}

	if err := c.v.Save(c.user, msgs, tier); err != nil {
		log.Printf("[controller] save warning for %s: %v", c.user, err)
		return
	}

	c.mu.Lock()
	c.lastSaved = time.Now()
	c.mu.Unlock()
}

// CloseService releases the backend session.
func (c *Controller) CloseService() {
	c.svc.Close()
}

func (c *Controller) User() string { return c.user }

func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

func (c *Controller) Tier() chat.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

func (c *Controller) Emotion() emotion.Emotion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affect
}

func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

func (c *Controller) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}
