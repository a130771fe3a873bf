package brain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/google/uuid"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/chat"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/config"
)

// Runtime interface for the agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

// runtimeAdapter wraps api.Runtime to implement Runtime interface
type runtimeAdapter struct {
	rt *api.Runtime
}

func (r *runtimeAdapter) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeAdapter) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime bound to one tier's model.
type RuntimeFactory func(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error)

// DefaultRuntimeFactory creates the default agentsdk-go runtime.
func DefaultRuntimeFactory(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error) {
	modelName := cfg.Tiers.Core.ChatModel
	if tier == chat.TierPro {
		modelName = cfg.Tiers.Pro.ChatModel
	}

	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "openai":
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default: // "anthropic" or empty
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: modelName,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}

	rt, err := api.New(context.Background(), api.Options{
		ProjectRoot:  cfg.Agent.Workspace,
		ModelFactory: provider,
		SystemPrompt: sysPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeAdapter{rt: rt}, nil
}

// AgentService implements Service over agentsdk-go. Every StartSession
// tears down the active runtime and builds one for the requested
// tier's model; the given history is replayed into the first exchange
// of the fresh remote session.
type AgentService struct {
	cfg       *config.Config
	sysPrompt string
	factory   RuntimeFactory

	mu        sync.Mutex
	runtime   Runtime
	sessionID string
	preface   string // rendered history, consumed by the next exchange
}

func NewAgentService(cfg *config.Config, sysPrompt string) *AgentService {
	return NewAgentServiceWithFactory(cfg, sysPrompt, DefaultRuntimeFactory)
}

// NewAgentServiceWithFactory allows runtime injection for testing.
func NewAgentServiceWithFactory(cfg *config.Config, sysPrompt string, factory RuntimeFactory) *AgentService {
	return &AgentService{cfg: cfg, sysPrompt: sysPrompt, factory: factory}
}

func (s *AgentService) StartSession(ctx context.Context, tier chat.Tier, history []chat.Message) error {
	rt, err := s.factory(s.cfg, tier, s.sysPrompt)
	if err != nil {
		return fmt.Errorf("start %s session: %w", tier, err)
	}

	s.mu.Lock()
	old := s.runtime
	s.runtime = rt
	s.sessionID = "eve-" + uuid.NewString()
	s.preface = renderHistory(history)
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Printf("[brain] session started, tier=%s history=%d", tier, len(history))
	return nil
}

func (s *AgentService) SendMessage(ctx context.Context, req Request) (Reply, error) {
	s.mu.Lock()
	rt := s.runtime
	sessionID := s.sessionID
	preface := s.preface
	s.preface = ""
	s.mu.Unlock()

	if rt == nil {
		return Reply{}, fmt.Errorf("no active session")
	}

	prompt := req.Text
	if req.Generative {
		prompt = "[Image Evolution mode] " + prompt
	}
	if preface != "" {
		prompt = preface + "\n\n" + prompt
	}

	blocks := attachmentBlocks(req.Attachment)
	if len(blocks) > 0 && strings.TrimSpace(prompt) != "" {
		// agentsdk-go drops Prompt when ContentBlocks exist; merge the
		// text into the block list so both reach the API.
		blocks = append([]model.ContentBlock{{Type: model.ContentBlockText, Text: prompt}}, blocks...)
		prompt = ""
	}

	resp, err := rt.Run(ctx, api.Request{
		Prompt:        prompt,
		ContentBlocks: blocks,
		SessionID:     sessionID,
	})
	if err != nil {
		// The preface was never delivered; keep it for the retry.
		s.mu.Lock()
		if s.preface == "" {
			s.preface = preface
		}
		s.mu.Unlock()
		return Reply{}, fmt.Errorf("send message: %w", err)
	}
	if resp == nil || resp.Result == nil {
		return Reply{}, nil
	}
	return Reply{Text: resp.Result.Output}, nil
}

func (s *AgentService) EditImage(ctx context.Context, image, prompt string, tier chat.Tier) (string, error) {
	s.mu.Lock()
	rt := s.runtime
	sessionID := s.sessionID
	s.mu.Unlock()

	if rt == nil {
		return "", fmt.Errorf("no active session")
	}

	blocks := attachmentBlocks(image)
	blocks = append([]model.ContentBlock{{Type: model.ContentBlockText, Text: "Edit this image: " + prompt}}, blocks...)

	if _, err := rt.Run(ctx, api.Request{
		ContentBlocks: blocks,
		SessionID:     sessionID,
	}); err != nil {
		return "", fmt.Errorf("edit image: %w", err)
	}
	// The runtime only surfaces text output; a text answer means the
	// model analyzed the image instead of returning an edit.
	return "", ErrNoVisualEdit
}

func (s *AgentService) Close() {
	s.mu.Lock()
	rt := s.runtime
	s.runtime = nil
	s.mu.Unlock()
	if rt != nil {
		rt.Close()
	}
}

func attachmentBlocks(attachment string) []model.ContentBlock {
	if attachment == "" {
		return nil
	}

	mediaType := "image/jpeg"
	if data, err := base64.StdEncoding.DecodeString(attachment); err == nil {
		if detected := http.DetectContentType(data); detected != "application/octet-stream" {
			mediaType = detected
		}
	}

	return []model.ContentBlock{{
		Type:      model.ContentBlockImage,
		MediaType: mediaType,
		Data:      attachment,
	}}
}

// renderHistory flattens a transcript into a context-rebuild preamble
// for a fresh remote session.
func renderHistory(history []chat.Message) string {
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("[Conversation so far]\n")
	for _, msg := range history {
		if msg.IsError {
			continue
		}
		speaker := "User"
		if msg.Role == chat.RoleModel {
			speaker = "Eve"
		}
		sb.WriteString(speaker)
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		if msg.Image != "" {
			sb.WriteString(" [image]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("[End of history. Continue the conversation naturally.]")
	return sb.String()
}
