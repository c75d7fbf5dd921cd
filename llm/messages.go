package llm

import (
	"context"
	"strings"
)

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CountMessageTokens counts "role: content" per message plus 4 tokens of framing overhead.
func CountMessageTokens(c TokenCounter, messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.CountTokens(string(m.Role) + ": " + m.Content)
		total += 4
	}
	return total
}

// FormatMessagesForPrompt renders messages as a single completion-style prompt.
// Unknown roles are skipped.
func FormatMessagesForPrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case RoleUser:
			parts = append(parts, "Human: "+m.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// CollectStream drains a stream into a single response.
// The first chunk error aborts collection.
func CollectStream(ctx context.Context, ch <-chan StreamChunk) (*ChatResponse, error) {
	resp := &ChatResponse{}
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				resp.Content = sb.String()
				return resp, nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			sb.WriteString(chunk.Delta)
			if chunk.ID != "" {
				resp.ID = chunk.ID
			}
			if chunk.Provider != "" {
				resp.Provider = chunk.Provider
			}
			if chunk.Model != "" {
				resp.Model = chunk.Model
			}
			if chunk.FinishReason != "" {
				resp.FinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				resp.Usage = *chunk.Usage
			}
		}
	}
}
