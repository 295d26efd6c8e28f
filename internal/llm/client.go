// Package llm wraps the OpenAI API for the three calls this system
// makes: Whisper transcription, JSON-mode record extraction, and plain
// reply generation.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client             *openai.Client
	extractionModel    string
	transcriptionModel string
	logger             *slog.Logger
}

// Config holds what the client needs to talk to OpenAI or a
// compatible endpoint. BaseURL is optional and mainly for tests.
type Config struct {
	APIKey             string
	BaseURL            string
	ExtractionModel    string
	TranscriptionModel string
}

func New(cfg Config, logger *slog.Logger) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &Client{
		client:             openai.NewClientWithConfig(clientConfig),
		extractionModel:    cfg.ExtractionModel,
		transcriptionModel: cfg.TranscriptionModel,
		logger:             logger,
	}
}

// CompleteOptions tune a single chat completion call.
type CompleteOptions struct {
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Complete sends a system+user prompt pair and returns the text of the
// first choice.
func (c *Client) Complete(ctx context.Context, system, user string, opts CompleteOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.extractionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	c.logger.Debug("completion finished",
		"model", c.extractionModel,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return resp.Choices[0].Message.Content, nil
}

// Transcription is the result of a Whisper call.
type Transcription struct {
	Text     string
	Language string
	Duration float64
}

// Transcribe sends raw audio bytes to Whisper. languageHint may be
// empty; Whisper then detects the language itself.
func (c *Client) Transcribe(ctx context.Context, audio []byte, languageHint string) (*Transcription, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcriptionModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "audio.ogg",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: languageHint,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription: %w", err)
	}

	c.logger.Info("audio transcribed", "chars", len(resp.Text), "language", resp.Language)

	return &Transcription{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}
