package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrorAnswer is returned by Ask in place of an answer when the upstream call fails.
const ErrorAnswer = "⚠ API Error"

// DefaultModel is the model used when none is configured.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = "You are a plant care assistant. Answer only questions related to plants, " +
	"gardening, and plant care. If a question is not related to plants, politely refuse. " +
	"Always answer in English and use emojis."

var errNoAnswer = errors.New("response has no answer content")

// Chatter is the part of Client the assistant needs.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Assistant answers plant care questions through a chat completion backend.
type Assistant struct {
	chat   Chatter
	model  string
	logger *slog.Logger
}

// NewAssistant creates an Assistant. An empty model selects DefaultModel.
func NewAssistant(c Chatter, model string) *Assistant {
	if model == "" {
		model = DefaultModel
	}
	return &Assistant{chat: c, model: model, logger: slog.Default()}
}

// Ask returns the answer to text. It never fails: any upstream problem is
// logged and reported as ErrorAnswer.
func (a *Assistant) Ask(ctx context.Context, text string) string {
	answer, err := a.answer(ctx, text)
	if err != nil {
		a.logger.Warn("completion failed", "model", a.model, "error", err)
		return ErrorAnswer
	}
	return answer
}

func (a *Assistant) answer(ctx context.Context, text string) (string, error) {
	resp, err := a.chat.Chat(ctx, ChatRequest{
		Model: a.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", errNoAnswer
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errNoAnswer
	}
	return content, nil
}
