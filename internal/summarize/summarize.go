// Package summarize compresses raw assistant output into short
// conversational replies using the OpenRouter API, with deterministic
// fallbacks when the endpoint is unavailable.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sjoeboo/commander/internal/filter"
	"github.com/sjoeboo/commander/internal/logging"
)

// DefaultModel is used when OPENROUTER_MODEL is unset.
const DefaultModel = "anthropic/claude-sonnet-4"

// openRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// fallbackTailLines bounds the cleaned-output fallback for final summaries.
const fallbackTailLines = 20

// requestTimeout bounds a summarization call.
const requestTimeout = 30 * time.Second

// screenTimeout bounds the screen interpretation call; /status should not hang.
const screenTimeout = 10 * time.Second

// screenContentCap limits how much scrollback goes into an interpretation prompt.
const screenContentCap = 3000

// ErrUnavailable means no API key is configured.
var ErrUnavailable = errors.New("summarizer unavailable: OPENROUTER_API_KEY not set")

const systemPrompt = `You are a response summarizer for Commander, an AI orchestration tool.
Your job is to take raw output from a coding assistant and summarize it conversationally.

Rules:
- Be concise but informative (2-4 sentences for simple responses, more for complex ones)
- Focus on what was DONE or LEARNED, not the process
- Skip UI noise, file listings, and verbose tool output
- If code was written, summarize what it does
- If a question was answered, give the key answer
- Use natural language, not bullet points unless listing multiple items
- Never mention the underlying tool by name`

const incrementalSystemPrompt = `You summarize in-progress output from a coding assistant.
Describe in 2-3 sentences what the assistant has been doing so far.
Be brief; this is a progress digest, not a final answer.`

const screenInterpretPrompt = `You are analyzing a coding assistant session screen.
The session is currently idle/waiting for user input.
Analyze the screen and tell me in ONE sentence what the assistant is asking or waiting for.

Rules:
- If the assistant asked a question, quote it briefly (truncate if over 50 chars)
- If the assistant completed a task, summarize what was done in past tense
- If the assistant is showing an error, mention the error briefly
- Be concise - respond with ONLY the interpretation, no preamble
- Start with an appropriate prefix like "Asking:", "Ready after:", "Waiting for:", "Error:"
- Never mention "the screen shows" or similar meta-language`

// Summarizer calls the OpenRouter endpoint. A zero API key produces an
// unavailable summarizer whose methods return fallback text.
type Summarizer struct {
	client *openai.Client
	model  string
	log    interface {
		Warn(msg string, args ...any)
	}
}

// New builds a Summarizer from the environment. modelOverride, when
// non-empty, wins over OPENROUTER_MODEL.
func New(modelOverride string) *Summarizer {
	s := &Summarizer{
		model: resolveModel(modelOverride),
		log:   logging.ForComponent(logging.CompSummarizer),
	}
	key := os.Getenv("OPENROUTER_API_KEY")
	if key == "" {
		return s
	}
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = openRouterBaseURL
	s.client = openai.NewClientWithConfig(cfg)
	return s
}

func resolveModel(override string) string {
	if override != "" {
		return override
	}
	if m := os.Getenv("OPENROUTER_MODEL"); m != "" {
		return m
	}
	return DefaultModel
}

// Available reports whether the LLM endpoint can be used.
func (s *Summarizer) Available() bool {
	return s.client != nil
}

// Model returns the configured model name.
func (s *Summarizer) Model() string {
	return s.model
}

func (s *Summarizer) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if s.client == nil {
		return "", ErrUnavailable
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion content")
	}
	return content, nil
}

// SummarizeFinal compresses a (query, raw output) pair into a short reply.
// Never returns an error to the caller: on any failure the cleaned raw
// output, truncated to its last lines, is returned instead.
func (s *Summarizer) SummarizeFinal(ctx context.Context, query, raw string) string {
	userPrompt := fmt.Sprintf(
		"User asked: %s\n\nRaw response:\n%s\n\nProvide a conversational summary:",
		query, raw,
	)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := s.complete(ctx, systemPrompt, userPrompt, 500)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			s.log.Warn("summarize_failed", "error", err)
		}
		return FallbackFinal(raw)
	}
	return out
}

// SummarizeIncremental produces a mid-collection digest headed by the
// incremental banner. Falls back to a static progress line.
func (s *Summarizer) SummarizeIncremental(ctx context.Context, raw string, lineCount int) string {
	headline := IncrementalHeadline(lineCount)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := s.complete(ctx, incrementalSystemPrompt, raw, 150)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			s.log.Warn("incremental_summarize_failed", "error", err)
		}
		return headline + FallbackIncrementalBody(lineCount)
	}
	return headline + out
}

// InterpretScreen asks the LLM what the assistant is waiting for, given a
// captured screen. Returns "" when the LLM is unavailable or fails; /status
// degrades to the raw preview.
func (s *Summarizer) InterpretScreen(ctx context.Context, screen string, ready bool) string {
	if s.client == nil {
		return ""
	}

	stateHint := "The session is NOT ready - the assistant is still processing."
	if ready {
		stateHint = "The session IS ready for input (showing prompt)."
	}
	if len(screen) > screenContentCap {
		screen = screen[:screenContentCap]
	}
	userPrompt := fmt.Sprintf("%s\n\nScreen content:\n```\n%s\n```", stateHint, screen)

	ctx, cancel := context.WithTimeout(ctx, screenTimeout)
	defer cancel()

	out, err := s.complete(ctx, screenInterpretPrompt, userPrompt, 100)
	if err != nil {
		s.log.Warn("screen_interpret_failed", "error", err)
		return ""
	}
	return out
}

// IncrementalHeadline is the banner line for incremental summaries.
func IncrementalHeadline(lineCount int) string {
	return fmt.Sprintf("📊 Incremental Summary (%d lines):\n", lineCount)
}

// FallbackFinal is the deterministic final-summary fallback.
func FallbackFinal(raw string) string {
	return filter.TruncateTail(filter.CleanResponse(raw), fallbackTailLines)
}

// FallbackIncrementalBody is the deterministic incremental fallback body.
func FallbackIncrementalBody(lineCount int) string {
	return fmt.Sprintf("Collecting output... %d lines captured so far.", lineCount)
}
