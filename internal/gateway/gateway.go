package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/backup"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/brain"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/bus"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/channel"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/config"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/controller"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/vault"
)

// ServiceFactory creates one backend session per user controller.
type ServiceFactory func(cfg *config.Config, sysPrompt string) brain.Service

// Options for creating a Gateway
type Options struct {
	ServiceFactory ServiceFactory
	Store          vault.Store    // overrides the configured store
	SignalChan     chan os.Signal // for testing signal handling
}

// DefaultServiceFactory creates the default agentsdk-go backed service.
func DefaultServiceFactory(cfg *config.Config, sysPrompt string) brain.Service {
	return brain.NewAgentService(cfg, sysPrompt)
}

type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	vault      *vault.Vault
	closeStore func() error
	channels   *channel.ChannelManager
	backup     *backup.Service
	sysPrompt  string
	svcFactory ServiceFactory

	controllers map[string]*controller.Controller
	signalChan  chan os.Signal // for testing
}

// New creates a Gateway with default options
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:         cfg,
		controllers: make(map[string]*controller.Controller),
	}

	// Message bus
	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	// Vault storage
	store := opts.Store
	g.closeStore = func() error { return nil }
	if store == nil {
		path := cfg.Vault.Path
		if path == "" {
			path = filepath.Join(config.ConfigDir(), "data", "vault.db")
		}
		var err error
		store, g.closeStore, err = vault.OpenStore(cfg.Vault.Driver, path, cfg.Vault.MaxRecordBytes)
		if err != nil {
			return nil, fmt.Errorf("open vault store: %w", err)
		}
	}
	g.vault = vault.New(store)

	// Backend session factory (allows injection for testing)
	g.svcFactory = opts.ServiceFactory
	if g.svcFactory == nil {
		g.svcFactory = DefaultServiceFactory
	}
	g.sysPrompt = g.buildSystemPrompt()

	// Signal channel for testing
	g.signalChan = opts.SignalChan

	// Vault backup
	g.backup = backup.NewService(g.vault, cfg.Vault.BackupSchedule)

	// Channels
	chMgr, err := channel.NewChannelManager(cfg.Channels, cfg.Gateway, g.bus)
	if err != nil {
		g.closeAll()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	return g, nil
}

func (g *Gateway) buildSystemPrompt() string {
	var sb strings.Builder

	if data, err := os.ReadFile(filepath.Join(g.cfg.Agent.Workspace, "AGENTS.md")); err == nil {
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	if data, err := os.ReadFile(filepath.Join(g.cfg.Agent.Workspace, "SOUL.md")); err == nil {
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// controllerFor returns the user's controller, initializing it (and its
// backend session) on first contact.
func (g *Gateway) controllerFor(ctx context.Context, user string) *controller.Controller {
	if c, ok := g.controllers[user]; ok {
		return c
	}

	svc := g.svcFactory(g.cfg, g.sysPrompt)
	c := controller.Initialize(ctx, user, g.vault, svc)
	g.controllers[user] = c
	g.backup.Track(user)
	return c
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if g.cfg.Vault.BackupEnabled {
		if err := g.backup.Start(); err != nil {
			log.Printf("[gateway] backup start warning: %v", err)
		}
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))
			g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	c := g.controllerFor(ctx, msg.UserKey())

	out := bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID}

	switch strings.TrimSpace(msg.Content) {
	case "/wipe":
		if err := c.Wipe(ctx, true); err != nil {
			out.Content = "Can't wipe right now: " + err.Error()
		} else {
			out.Content = c.Messages()[0].Text
		}
	case "/tier":
		tier, err := c.ToggleTier(ctx)
		if err != nil && err != controller.ErrBusy {
			log.Printf("[gateway] tier rebuild warning for %s: %v", msg.UserKey(), err)
		}
		if err == controller.ErrBusy {
			out.Content = "Hold on, I'm still replying. Try again in a moment."
		} else {
			out.Content = fmt.Sprintf("Tier switched to %s.", tier)
		}
	default:
		reply, err := c.Send(ctx, msg.Content, msg.Attachment, false)
		if err == controller.ErrBusy || err == controller.ErrEmptyMessage {
			return
		}
		if err != nil {
			log.Printf("[gateway] send error for %s: %v", msg.UserKey(), err)
			return
		}
		out.Content = reply.Text
		out.Image = reply.Image
		out.IsError = reply.IsError
		out.Emotion = c.Emotion()
	}

	if out.Content == "" && out.Image == "" {
		return
	}
	g.bus.Outbound <- out
}

func (g *Gateway) Shutdown() error {
	g.closeAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}

func (g *Gateway) closeAll() {
	if g.backup != nil {
		g.backup.Stop()
	}
	if g.channels != nil {
		_ = g.channels.StopAll()
	}
	for _, c := range g.controllers {
		c.CloseService()
	}
	if g.closeStore != nil {
		if err := g.closeStore(); err != nil {
			log.Printf("[gateway] close vault store warning: %v", err)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
