package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

const ChatModel = "gemini-3-pro-preview"

// ChatTurn is one farmer message plus the conversation so far.
type ChatTurn struct {
	History  []entities.ChatMessage
	Message  string
	Language entities.Language
}

// BuildChatRequest keeps prior turns as history and sends the new message as
// the current user part. Empty history turns are skipped.
func BuildChatRequest(turn ChatTurn) (entities.Envelope, error) {
	message := strings.TrimSpace(turn.Message)
	if message == "" {
		return entities.Envelope{}, ErrEmptyMessage
	}

	history := make([]entities.ChatMessage, 0, len(turn.History))
	for i, m := range turn.History {
		if m.Role != entities.RoleUser && m.Role != entities.RoleModel {
			return entities.Envelope{}, fmt.Errorf("history turn %d: %w", i, ErrUnknownChatRole)
		}
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		// Audio is a playback artifact of earlier replies and is never sent back.
		history = append(history, entities.ChatMessage{Role: m.Role, Text: m.Text})
	}

	return entities.Envelope{
		Capability:        entities.CapabilityChat,
		Model:             ChatModel,
		SystemInstruction: joinLines(advisorInstruction, replyIn(turn.Language)),
		History:           history,
		Parts:             []entities.Part{entities.TextPart(message)},
		Options:           entities.GenerationOptions{ThinkingBudget: deepThinkingBudget},
	}, nil
}

// MapChatReply returns the reply text, or the no-data text if the model said nothing.
func MapChatReply(resp entities.GenerateResponse, lang entities.Language) string {
	if reply := strings.TrimSpace(resp.Text); reply != "" {
		return reply
	}
	return entities.NoData(lang)
}

// Chat answers one Kisan Sahayak message.
func (a *Advisor) Chat(ctx context.Context, turn ChatTurn) (entities.ChatMessage, error) {
	envelope, err := BuildChatRequest(turn)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	resp, err := a.generate(ctx, envelope)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	return entities.ChatMessage{Role: entities.RoleModel, Text: MapChatReply(resp, turn.Language)}, nil
}
