package agentcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innovatehubph/inno-ai-gateway/internal/provider"
)

const runTimeout = 180 * time.Second

// AgentCLIProvider shells out to the local agent binary as the chat
// fallback of last resort. Only the final user message is forwarded; the
// agent keeps its own session history keyed by session ID.
type AgentCLIProvider struct {
	binary string
	// run is swapped in tests to avoid spawning a real process.
	run func(ctx context.Context, binary string, args []string) ([]byte, error)
}

type agentResponse struct {
	Reply  string `json:"reply"`
	Result struct {
		Payloads []struct {
			Text string `json:"text"`
		} `json:"payloads"`
		Meta struct {
			AgentMeta struct {
				Usage struct {
					Input  int `json:"input"`
					Output int `json:"output"`
					Total  int `json:"total"`
				} `json:"usage"`
			} `json:"agentMeta"`
		} `json:"meta"`
	} `json:"result"`
}

func New(binary string) *AgentCLIProvider {
	if binary == "" {
		binary = "openclaw"
	}
	return &AgentCLIProvider{
		binary: binary,
		run:    runCommand,
	}
}

func (p *AgentCLIProvider) Name() string {
	return "agentcli"
}

func runCommand(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && stdout.Len() == 0 {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %s", binary, strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	if stdout.Len() > 0 {
		return stdout.Bytes(), nil
	}
	return stderr.Bytes(), nil
}

func (p *AgentCLIProvider) Chat(ctx context.Context, model string, messages []provider.Message, params provider.Params) (*provider.ChatResult, error) {
	var prompt string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			prompt = messages[i].Content
			break
		}
	}

	requestID := uuid.New().String()
	sessionID := fmt.Sprintf("api-%s", requestID[:8])

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	output, err := p.run(ctx, p.binary, []string{
		"agent",
		"--session-id", sessionID,
		"--message", prompt,
		"--json",
	})
	if err != nil {
		return nil, &provider.AdapterError{Provider: p.Name(), Err: err}
	}

	text := string(output)
	var usage provider.Usage

	var parsed agentResponse
	if jsonErr := json.Unmarshal(output, &parsed); jsonErr == nil {
		if len(parsed.Result.Payloads) > 0 && parsed.Result.Payloads[0].Text != "" {
			text = parsed.Result.Payloads[0].Text
		} else if parsed.Reply != "" {
			text = parsed.Reply
		}
		u := parsed.Result.Meta.AgentMeta.Usage
		usage = provider.Usage{
			PromptTokens:     u.Input,
			CompletionTokens: u.Output,
			TotalTokens:      u.Total,
		}
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return &provider.ChatResult{
		ID:       requestID,
		Text:     strings.TrimSpace(text),
		Model:    model,
		Provider: p.Name(),
		Usage:    usage,
	}, nil
}
