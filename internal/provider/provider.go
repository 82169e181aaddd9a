package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnconfigured is returned by adapters whose upstream credential is
// absent. The gateway maps it to 503 with a remediation hint.
var ErrUnconfigured = errors.New("provider credential not configured")

// AdapterError wraps any upstream HTTP failure, credential-missing condition
// or timeout with the provider family that produced it.
type AdapterError struct {
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

type Params struct {
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResult struct {
	ID       string
	Text     string
	Model    string
	Provider string
	Usage    Usage
}

type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// ChatProvider is the normalized contract every chat upstream implements.
type ChatProvider interface {
	Name() string
	Chat(ctx context.Context, model string, messages []Message, params Params) (*ChatResult, error)
}

// StreamingChatProvider is implemented by upstreams with native incremental
// output. Everyone else gets a synthesized stream from the dispatcher.
type StreamingChatProvider interface {
	ChatProvider
	ChatStream(ctx context.Context, model string, messages []Message, params Params) (<-chan *Chunk, error)
}

// MediaInput carries the normalized media-generation request payload.
type MediaInput struct {
	Prompt   string
	Image    string // base64 or URL, for image-to-X models
	Width    int
	Height   int
	N        int
	Duration int // seconds, video models
}

type MediaResult struct {
	// Outputs holds the generated artifacts as raw bytes, one per output.
	Outputs  [][]byte
	Model    string
	Provider string
	// Format is the artifact file extension ("png", "glb", "mp4").
	Format string
}

// MediaProvider generates images, 3D models or video.
type MediaProvider interface {
	Name() string
	Generate(ctx context.Context, model string, input MediaInput) (*MediaResult, error)
}

// RawProvider exposes non-chat inference tasks (embeddings, transcription)
// that return provider-shaped JSON rather than the chat contract.
type RawProvider interface {
	Name() string
	Infer(ctx context.Context, model string, payload []byte) ([]byte, error)
}
