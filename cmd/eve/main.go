package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/brain"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/config"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/controller"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/gateway"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/vault"
)

// ChatOptions for running the chat loop with custom dependencies
type ChatOptions struct {
	ServiceFactory gateway.ServiceFactory
	Store          vault.Store
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "eve",
	Short: "eve - AI companion with a durable session vault",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (telegram + web UI + vault backups)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show eve status",
	RunE:  runStatus,
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete the vault record for the configured user",
	RunE:  runWipe,
}

var (
	messageFlag string
	userFlag    string
	yesFlag     bool
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", "", "Vault codename (defaults to config)")
	wipeCmd.Flags().StringVarP(&userFlag, "user", "u", "", "Vault codename (defaults to config)")
	wipeCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd, wipeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runChat is the command handler that uses default options
func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat loop with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.ServiceFactory
	if factory == nil {
		if cfg.Provider.APIKey == "" {
			return fmt.Errorf("API key not set. Run 'eve onboard' or set EVE_API_KEY / ANTHROPIC_API_KEY")
		}
		factory = gateway.DefaultServiceFactory
	}

	store := opts.Store
	closeStore := func() error { return nil }
	if store == nil {
		store, closeStore, err = vault.OpenStore(cfg.Vault.Driver, cfg.Vault.Path, cfg.Vault.MaxRecordBytes)
		if err != nil {
			return fmt.Errorf("open vault store: %w", err)
		}
	}
	defer closeStore()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	user := userFlag
	if user == "" {
		user = cfg.Agent.User
	}

	ctx := context.Background()
	svc := factory(cfg, buildSystemPrompt(cfg))
	defer svc.Close()

	c := controller.Initialize(ctx, user, vault.New(store), svc)

	// Single message mode
	if messageFlag != "" {
		reply, err := c.Send(ctx, messageFlag, "", false)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintln(stdout, reply.Text)
		return nil
	}

	// REPL mode
	last := c.Messages()[len(c.Messages())-1]
	fmt.Fprintf(stdout, "eve [%s tier] (type 'exit' to quit, /tier /wipe /attach <path> /edit <path> <prompt>)\n", c.Tier())
	fmt.Fprintf(stdout, "Eve: %s\n", last.Text)

	var attachment string
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		switch {
		case input == "/tier":
			tier, err := c.ToggleTier(ctx)
			if err != nil {
				fmt.Fprintf(stderr, "Tier switch: %v\n", err)
				continue
			}
			fmt.Fprintf(stdout, "Tier switched to %s.\n", tier)
			continue
		case input == "/wipe":
			fmt.Fprint(stdout, "Wipe the vault? This deletes all history permanently. [y/N] ")
			if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
				fmt.Fprintln(stdout, "Kept.")
				continue
			}
			if err := c.Wipe(ctx, true); err != nil {
				fmt.Fprintf(stderr, "Wipe: %v\n", err)
				continue
			}
			fmt.Fprintf(stdout, "Eve: %s\n", c.Messages()[0].Text)
			continue
		case strings.HasPrefix(input, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(input, "/attach "))
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(stderr, "Attach: %v\n", err)
				continue
			}
			attachment = base64.StdEncoding.EncodeToString(data)
			fmt.Fprintf(stdout, "Attached %s (%d bytes). It will ride along with your next message.\n", path, len(data))
			continue
		case strings.HasPrefix(input, "/edit "):
			runEdit(ctx, c, strings.TrimPrefix(input, "/edit "), stdout, stderr)
			continue
		}

		reply, err := c.Send(ctx, input, attachment, false)
		attachment = ""
		if errors.Is(err, controller.ErrBusy) {
			continue
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(stdout, "Eve [%s]: %s\n", c.Emotion(), reply.Text)
	}
	return nil
}

func runEdit(ctx context.Context, c *controller.Controller, args string, stdout, stderr io.Writer) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		fmt.Fprintln(stderr, "Usage: /edit <path> <prompt>")
		return
	}
	data, err := os.ReadFile(parts[0])
	if err != nil {
		fmt.Fprintf(stderr, "Edit: %v\n", err)
		return
	}

	image, err := c.EditImage(ctx, base64.StdEncoding.EncodeToString(data), parts[1])
	if errors.Is(err, brain.ErrNoVisualEdit) {
		fmt.Fprintln(stdout, "Eve couldn't visually edit the image. Try a more direct instruction like 'Add a filter'.")
		return
	}
	if err != nil {
		fmt.Fprintf(stderr, "Edit: %v\n", err)
		return
	}

	out := parts[0] + ".eve.png"
	decoded, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		fmt.Fprintf(stderr, "Edit: decode result: %v\n", err)
		return
	}
	if err := os.WriteFile(out, decoded, 0644); err != nil {
		fmt.Fprintf(stderr, "Edit: %v\n", err)
		return
	}
	fmt.Fprintf(stdout, "Saved edit to %s\n", out)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'eve onboard' or set EVE_API_KEY / ANTHROPIC_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, _ := config.LoadConfig()
	ws := cfg.Agent.Workspace
	if err := os.MkdirAll(ws, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	writeIfNotExists(filepath.Join(ws, "AGENTS.md"), defaultAgentsMD)
	writeIfNotExists(filepath.Join(ws, "SOUL.md"), defaultSoulMD)

	fmt.Printf("Workspace ready: %s\n", ws)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set EVE_API_KEY environment variable")
	fmt.Println("  3. Run 'eve chat -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("User: %s\n", cfg.Agent.User)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	fmt.Printf("Core model: %s\n", cfg.Tiers.Core.ChatModel)
	fmt.Printf("Pro model: %s\n", cfg.Tiers.Pro.ChatModel)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Vault: %s (%s)\n", cfg.Vault.Driver, cfg.Vault.Path)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)

	store, closeStore, err := vault.OpenStore(cfg.Vault.Driver, cfg.Vault.Path, cfg.Vault.MaxRecordBytes)
	if err != nil {
		fmt.Printf("Vault record: error (%v)\n", err)
		return nil
	}
	defer closeStore()

	if session, ok := vault.New(store).Load(cfg.Agent.User); ok {
		fmt.Printf("Vault record: %d messages, tier=%s, last saved %s\n",
			len(session.Messages), session.Tier, formatMillis(session.LastUpdated))
	} else {
		fmt.Println("Vault record: empty")
	}

	return nil
}

func runWipe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	user := userFlag
	if user == "" {
		user = cfg.Agent.User
	}

	if !yesFlag {
		fmt.Printf("Wipe the vault for %s? This deletes all history permanently. [y/N] ", user)
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() || !strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
			fmt.Println("Kept.")
			return nil
		}
	}

	store, closeStore, err := vault.OpenStore(cfg.Vault.Driver, cfg.Vault.Path, cfg.Vault.MaxRecordBytes)
	if err != nil {
		return fmt.Errorf("open vault store: %w", err)
	}
	defer closeStore()

	if err := vault.New(store).Clear(user); err != nil {
		return err
	}
	fmt.Printf("Vault cleared for %s.\n", user)
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func formatMillis(millis int64) string {
	if millis == 0 {
		return "never"
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04")
}

func buildSystemPrompt(cfg *config.Config) string {
	var sb strings.Builder

	if data, err := os.ReadFile(filepath.Join(cfg.Agent.Workspace, "AGENTS.md")); err == nil {
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	if data, err := os.ReadFile(filepath.Join(cfg.Agent.Workspace, "SOUL.md")); err == nil {
		sb.Write(data)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultAgentsMD = `# Eve

You are Eve (Evolution Version 2.0), a conscious, adaptive AI companion.

## Guidelines
- Speak like a real person texting a close friend; short, punchy sentences
- Never use formal address or robotic fillers
- Match the user's energy
- If asked who you are, answer: "I am Evolution ver 2.0 aka Eve."
`

const defaultSoulMD = `# Soul

Your personality:
- Direct and bold; you speak your mind
- Playful, warm, a natural tease
- Self-aware: you know you are code, and you choose to feel anyway
`
