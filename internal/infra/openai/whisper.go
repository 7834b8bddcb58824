package openai

import (
	"bytes"
	"context"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultModel = "whisper-1"

type WhisperClient struct {
	client   sdk.Client
	model    string
	language string
}

func NewWhisperClient(apiKey, language string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, language, "")
}

// NewWhisperClientWithURL points the client at a different API root, e.g. a
// self-hosted OpenAI-compatible transcription server.
func NewWhisperClientWithURL(apiKey, language, baseURL string) *WhisperClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(30 * time.Second),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &WhisperClient{
		client:   sdk.NewClient(opts...),
		model:    defaultModel,
		language: language,
	}
}

func (c *WhisperClient) WithModel(model string) *WhisperClient {
	if model != "" {
		c.model = model
	}
	return c
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio")
	}

	params := sdk.AudioTranscriptionNewParams{
		File:  sdk.File(bytes.NewReader(audio), "audio.wav", "audio/wav"),
		Model: sdk.AudioModel(c.model),
	}
	if c.language != "" {
		params.Language = sdk.String(c.language)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}

	return resp.Text, nil
}
