package brain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/chat"
	"github.com/akn300666-cpu/Evolution-v2.0/internal/config"
)

// mockRuntime implements Runtime for testing
type mockRuntime struct {
	requests []api.Request
	runFn    func(req api.Request) (*api.Response, error)
	closed   bool
}

func (m *mockRuntime) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	m.requests = append(m.requests, req)
	if m.runFn != nil {
		return m.runFn(req)
	}
	return &api.Response{Result: &api.Result{Output: "ok"}}, nil
}

func (m *mockRuntime) Close() { m.closed = true }

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	return cfg
}

func newTestService(t *testing.T, rt *mockRuntime) *AgentService {
	t.Helper()
	factory := func(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error) {
		return rt, nil
	}
	return NewAgentServiceWithFactory(testConfig(), "you are eve", factory)
}

func TestSendMessage_NoSession(t *testing.T) {
	s := newTestService(t, &mockRuntime{})
	if _, err := s.SendMessage(context.Background(), Request{Text: "hi"}); err == nil {
		t.Error("expected error before StartSession")
	}
}

func TestStartSession_SelectsTierModel(t *testing.T) {
	var tiers []chat.Tier
	factory := func(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error) {
		tiers = append(tiers, tier)
		return &mockRuntime{}, nil
	}
	s := NewAgentServiceWithFactory(testConfig(), "", factory)

	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := s.StartSession(context.Background(), chat.TierPro, nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if len(tiers) != 2 || tiers[0] != chat.TierCore || tiers[1] != chat.TierPro {
		t.Errorf("tiers = %v, want [core pro]", tiers)
	}
}

func TestStartSession_ClosesPreviousRuntime(t *testing.T) {
	first := &mockRuntime{}
	second := &mockRuntime{}
	runtimes := []Runtime{first, second}
	factory := func(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error) {
		rt := runtimes[0]
		runtimes = runtimes[1:]
		return rt, nil
	}
	s := NewAgentServiceWithFactory(testConfig(), "", factory)

	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.StartSession(context.Background(), chat.TierPro, nil); err != nil {
		t.Fatal(err)
	}
	if !first.closed {
		t.Error("previous runtime should be closed on session restart")
	}
	if second.closed {
		t.Error("active runtime should stay open")
	}
}

func TestStartSession_FactoryError(t *testing.T) {
	factory := func(cfg *config.Config, tier chat.Tier, sysPrompt string) (Runtime, error) {
		return nil, fmt.Errorf("no credentials")
	}
	s := NewAgentServiceWithFactory(testConfig(), "", factory)
	if err := s.StartSession(context.Background(), chat.TierCore, nil); err == nil {
		t.Error("expected factory error to surface")
	}
}

func TestSendMessage_HistoryPrefaceOnFirstExchange(t *testing.T) {
	rt := &mockRuntime{}
	s := newTestService(t, rt)

	history := []chat.Message{
		{ID: "1", Role: chat.RoleUser, Text: "remember me?"},
		{ID: "2", Role: chat.RoleModel, Text: "of course"},
		{ID: "3", Role: chat.RoleModel, Text: "oops", IsError: true},
	}
	if err := s.StartSession(context.Background(), chat.TierCore, history); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SendMessage(context.Background(), Request{Text: "hi again"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := s.SendMessage(context.Background(), Request{Text: "second"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(rt.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(rt.requests))
	}

	first := rt.requests[0].Prompt
	if !strings.Contains(first, "User: remember me?") || !strings.Contains(first, "Eve: of course") {
		t.Errorf("first prompt missing history: %q", first)
	}
	if strings.Contains(first, "oops") {
		t.Error("error entries must not be replayed into the preface")
	}
	if !strings.HasSuffix(first, "hi again") {
		t.Errorf("first prompt should end with the live message: %q", first)
	}

	if rt.requests[1].Prompt != "second" {
		t.Errorf("second prompt = %q, preface must be consumed once", rt.requests[1].Prompt)
	}
}

func TestSendMessage_PrefaceRestoredOnFailure(t *testing.T) {
	fail := true
	rt := &mockRuntime{}
	rt.runFn = func(req api.Request) (*api.Response, error) {
		if fail {
			return nil, errors.New("transport down")
		}
		return &api.Response{Result: &api.Result{Output: "ok"}}, nil
	}
	s := newTestService(t, rt)

	history := []chat.Message{{ID: "1", Role: chat.RoleUser, Text: "remember me?"}}
	if err := s.StartSession(context.Background(), chat.TierCore, history); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SendMessage(context.Background(), Request{Text: "hi"}); err == nil {
		t.Fatal("expected transport failure")
	}

	fail = false
	if _, err := s.SendMessage(context.Background(), Request{Text: "retry"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !strings.Contains(rt.requests[1].Prompt, "remember me?") {
		t.Errorf("retry prompt = %q, undelivered preface should be replayed", rt.requests[1].Prompt)
	}
}

func TestSendMessage_AttachmentMergesTextIntoBlocks(t *testing.T) {
	rt := &mockRuntime{}
	s := newTestService(t, rt)
	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatal(err)
	}

	png := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	if _, err := s.SendMessage(context.Background(), Request{Text: "what is this", Attachment: png}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	req := rt.requests[0]
	if req.Prompt != "" {
		t.Errorf("prompt = %q, want empty when blocks carry the text", req.Prompt)
	}
	if len(req.ContentBlocks) != 2 {
		t.Fatalf("blocks = %d, want text + image", len(req.ContentBlocks))
	}
	if req.ContentBlocks[0].Type != model.ContentBlockText || req.ContentBlocks[0].Text != "what is this" {
		t.Errorf("first block = %+v", req.ContentBlocks[0])
	}
	if req.ContentBlocks[1].Type != model.ContentBlockImage || req.ContentBlocks[1].Data != png {
		t.Errorf("second block = %+v", req.ContentBlocks[1])
	}
}

func TestSendMessage_GenerativePrefix(t *testing.T) {
	rt := &mockRuntime{}
	s := newTestService(t, rt)
	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := s.SendMessage(context.Background(), Request{Text: "a sunset", Generative: true}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !strings.HasPrefix(rt.requests[0].Prompt, "[Image Evolution mode] ") {
		t.Errorf("prompt = %q, want generative prefix", rt.requests[0].Prompt)
	}
}

func TestEditImage_DeclinesWithSentinel(t *testing.T) {
	rt := &mockRuntime{}
	s := newTestService(t, rt)
	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatal(err)
	}

	png := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	_, err := s.EditImage(context.Background(), png, "make it brighter", chat.TierCore)
	if !errors.Is(err, ErrNoVisualEdit) {
		t.Errorf("err = %v, want ErrNoVisualEdit", err)
	}
	if len(rt.requests) != 1 {
		t.Errorf("requests = %d, the edit attempt should still reach the runtime", len(rt.requests))
	}
}

func TestAttachmentBlocks_DetectsMediaType(t *testing.T) {
	png := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	blocks := attachmentBlocks(png)
	if len(blocks) != 1 || blocks[0].MediaType != "image/png" {
		t.Errorf("blocks = %+v, want one image/png block", blocks)
	}

	if attachmentBlocks("") != nil {
		t.Error("empty attachment should produce no blocks")
	}
}

func TestRenderHistory_Empty(t *testing.T) {
	if got := renderHistory(nil); got != "" {
		t.Errorf("renderHistory(nil) = %q, want empty", got)
	}
}

func TestRenderHistory_ImageMarker(t *testing.T) {
	got := renderHistory([]chat.Message{
		{ID: "1", Role: chat.RoleUser, Text: "look", Image: "AAAA"},
	})
	if !strings.Contains(got, "User: look [image]") {
		t.Errorf("renderHistory = %q, want [image] marker", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	rt := &mockRuntime{}
	s := newTestService(t, rt)
	if err := s.StartSession(context.Background(), chat.TierCore, nil); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if !rt.closed {
		t.Error("runtime should be closed")
	}
	s.Close()
}
