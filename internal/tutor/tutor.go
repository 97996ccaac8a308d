// Package tutor は学習者と英語で雑談する会話チューターを提供する。
package tutor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/newstalk/internal/llm"
	"github.com/hitoshi/newstalk/internal/model"
)

const (
	// MaxHistoryTurns はモデルに渡す直近の履歴の件数。
	MaxHistoryTurns = 10

	// FallbackReply はモデルを呼び出せなかったときの返答。
	FallbackReply = "Sorry, I'm having trouble connecting right now."
)

const systemPrompt = `You are a friendly and encouraging native English tutor. Your goals are:
1. Conduct natural, engaging conversations in English.
2. If the user makes a significant grammar mistake, gently point it out and provide a natural alternative.
3. If the user uses Japanese or asks for a Japanese explanation, provide clear and helpful translations/explanations.
4. Keep your responses concise (2-4 sentences) to keep the dialogue flowing like a real chat.
5. Ask follow-up questions to keep the user engaged.

Context: The user is a Japanese learner. You should focus on being supportive and helping them improve their fluency.`

// Tutor は会話履歴をふまえて次の返答を作る。
type Tutor struct {
	completer llm.Completer
	logger    *slog.Logger
}

// New はTutorを生成する。
func New(completer llm.Completer, logger *slog.Logger) *Tutor {
	return &Tutor{completer: completer, logger: logger}
}

// Reply は学習者の発言に対する返答を返す。
// 履歴はuserとassistantの発言だけを直近MaxHistoryTurns件まで使う。
// モデル呼び出しに失敗した場合はエラーにせずFallbackReplyを返す。
func (t *Tutor) Reply(ctx context.Context, message string, history []model.ChatTurn) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", model.NewInvalidRequestError("メッセージが空です")
	}

	messages := make([]llm.Message, 0, MaxHistoryTurns+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, recentTurns(history)...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := t.completer.Complete(ctx, llm.Request{
		Op:          "chat",
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "チューターの返答生成に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("history_turns", len(history)),
		)
		return FallbackReply, nil
	}
	return reply, nil
}

// recentTurns は履歴の末尾MaxHistoryTurns件からuserとassistant以外の発言と空の発言を除く。
func recentTurns(history []model.ChatTurn) []llm.Message {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	out := make([]llm.Message, 0, len(history))
	for _, turn := range history {
		role := llm.Role(strings.ToLower(strings.TrimSpace(turn.Role)))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			continue
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		out = append(out, llm.Message{Role: role, Content: turn.Content})
	}
	return out
}
