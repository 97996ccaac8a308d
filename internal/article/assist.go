package article

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newstalk/internal/llm"
)

const (
	// DefaultSummaryLength は要約の目安の文字数。
	DefaultSummaryLength = 200

	// FallbackQuestion は問いかけを生成できなかったときに使う質問。
	FallbackQuestion = "この記事について、あなたの意見を聞かせてください。"
)

const questionPromptTemplate = `あなたは英会話トレーニングのコーチです。
以下の記事を読んだ学習者に対して、思考を促す質問を1つ生成してください。

記事タイトル: %s
記事内容:
%s

質問の条件:
- 日本語で質問してください
- 学習者が英語で答えやすいように、具体的で答えやすい質問にしてください
- 記事の内容を深く理解しているか確認できる質問にしてください
- 個人的な意見や経験を引き出す質問が望ましいです

質問のみを出力してください（説明不要）。`

const summaryPromptTemplate = `以下の記事を%d文字程度で要約してください。
日本語で出力してください。

%s`

// Summarizer は記事本文を日本語で要約する。
type Summarizer struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewSummarizer はSummarizerを生成する。
func NewSummarizer(completer llm.Completer, logger *slog.Logger) *Summarizer {
	return &Summarizer{completer: completer, logger: logger}
}

// Summarize は要約を返す。モデル呼び出しに失敗した場合は本文の先頭を切り詰めて返す。
func (s *Summarizer) Summarize(ctx context.Context, content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}

	req := llm.Prompt("summary", "あなたは要約の専門家です。", fmt.Sprintf(summaryPromptTemplate, maxLength, content))
	req.Temperature = 0.5
	req.MaxTokens = 300

	summary, err := s.completer.Complete(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "要約の生成に失敗したため本文の先頭を使います",
			slog.String("error", err.Error()),
		)
		return truncate(content, DefaultSummaryLength) + "..."
	}
	return summary
}

// QuestionGenerator は記事について学習者に投げかける質問を作る。
type QuestionGenerator struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewQuestionGenerator はQuestionGeneratorを生成する。
func NewQuestionGenerator(completer llm.Completer, logger *slog.Logger) *QuestionGenerator {
	return &QuestionGenerator{completer: completer, logger: logger}
}

// GenerateQuestion は質問を1つ返す。失敗した場合はFallbackQuestion。
func (g *QuestionGenerator) GenerateQuestion(ctx context.Context, content, title string) string {
	req := llm.Prompt("question", "あなたは優秀な英会話コーチです。", fmt.Sprintf(questionPromptTemplate, title, content))
	req.Temperature = 0.7
	req.MaxTokens = 200

	question, err := g.completer.Complete(ctx, req)
	if err != nil {
		g.logger.WarnContext(ctx, "質問の生成に失敗したため既定の質問を使います",
			slog.String("error", err.Error()),
		)
		return FallbackQuestion
	}
	return question
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
