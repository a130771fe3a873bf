// Package brain is the boundary to the remote conversational backend.
package brain

import (
	"context"
	"errors"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/chat"
)

// ErrNoVisualEdit signals the model declined or could not perform a
// visual edit. Distinct from a transport failure.
var ErrNoVisualEdit = errors.New("model declined visual edit")

// Request is one user exchange sent to the backend.
type Request struct {
	Text       string
	Tier       chat.Tier
	History    []chat.Message // pre-mutation transcript snapshot
	Attachment string         // base64 image payload, optional
	Generative bool           // image-evolution mode
}

// Reply is what the backend produced for one exchange.
type Reply struct {
	Text  string
	Image string // base64, empty when the reply is text-only
}

// Service is the conversational backend as the controller sees it.
// StartSession reseeds remote state and must be called on every tier
// change; the remote session is tier-specific.
type Service interface {
	StartSession(ctx context.Context, tier chat.Tier, history []chat.Message) error
	SendMessage(ctx context.Context, req Request) (Reply, error)
	EditImage(ctx context.Context, image, prompt string, tier chat.Tier) (string, error)
	Close()
}
