// Package feedback は発話の文字起こしから文単位の修正提案を生成する。
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/newstalk/internal/llm"
	"github.com/hitoshi/newstalk/internal/model"
)

const systemPrompt = "You are a professional English coach. Output only raw JSON."

const userPromptTemplate = `あなたは日本人の英語学習者を指導するフィードバック専門のコーチです。

以下は音声認識（STT）で得られた未修正の発話テキストです。
日本人の名前や日本語の固有名詞は、響きの近い英語に誤認識されていることがあります
（例: 「代田（Shirota）」が "She wrote a" になる）。文脈から意図を推測してから解析してください。

【発話テキスト】
%s

【指示】
1. 発話を一文ずつに分け、文ごとに文法・語彙・表現・音声認識の誤りを確認してください。
2. 改善点のある文だけを出力してください。少しでも不自然な点があれば指摘してください。
3. 人名などの誤認識を直した場合は、reasonに「音声認識の誤り（人名と思われる）」と書いてください。
4. reasonは日本語で、どの語をどう直したか、なぜそのほうが自然かを短く具体的に説明してください。
5. categoryは Grammar / Vocabulary / Expression / Pronunciation のいずれかにしてください。

【出力形式】
{"feedback": [{"original_sentence": "...", "corrected_sentence": "...", "category": "Grammar", "reason": "..."}]}

JSONのみを出力してください。`

// wrapperKeys はモデルが配列をオブジェクトで包んで返した場合に探すキー。先頭ほど優先。
var wrapperKeys = []string{"feedback", "feedback_items", "sentences", "items"}

// DegradeRecorder は解析の縮退とカテゴリ別件数を記録する。metrics.MetricsCollectorの部分集合。
type DegradeRecorder interface {
	RecordFeedbackCategory(category string)
	RecordFeedbackDegraded(reason string)
}

// Analyzer は言語モデルを使って文字起こしを解析する。
type Analyzer struct {
	completer llm.Completer
	logger    *slog.Logger
	recorder  DegradeRecorder
}

// NewAnalyzer はAnalyzerを生成する。recorderはnilでもよい。
func NewAnalyzer(completer llm.Completer, logger *slog.Logger, recorder DegradeRecorder) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{completer: completer, logger: logger, recorder: recorder}
}

// Analyze は文字起こしを解析し、修正が必要な文ごとのFeedbackItemを返す。
// 改善点がない場合もモデル呼び出しや解析に失敗した場合も空のスライスを返し、エラーは返さない。
// 返却する項目のStatusはNew。
func (a *Analyzer) Analyze(ctx context.Context, transcript string) []model.FeedbackItem {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return []model.FeedbackItem{}
	}

	req := llm.Prompt("feedback", systemPrompt, fmt.Sprintf(userPromptTemplate, transcript))
	req.JSON = true
	req.Temperature = 0.3

	content, err := a.completer.Complete(ctx, req)
	if err != nil {
		a.degrade(ctx, "model_error", slog.String("error", err.Error()))
		return []model.FeedbackItem{}
	}

	decoded := decode(content)
	if !decoded.Recognized {
		a.degrade(ctx, "unrecognized_output", slog.Int("response_length", len(content)))
		return []model.FeedbackItem{}
	}

	items := a.normalize(ctx, decoded.Items)
	if a.recorder != nil {
		for _, item := range items {
			a.recorder.RecordFeedbackCategory(string(item.Category))
		}
	}
	return items
}

func (a *Analyzer) degrade(ctx context.Context, reason string, attrs ...slog.Attr) {
	all := append([]slog.Attr{slog.String("reason", reason)}, attrs...)
	a.logger.LogAttrs(ctx, slog.LevelWarn, "フィードバック解析に失敗したため空の結果を返します", all...)
	if a.recorder != nil {
		a.recorder.RecordFeedbackDegraded(reason)
	}
}

// normalize は必須項目の欠けた項目と未知のカテゴリの項目を除外する。
func (a *Analyzer) normalize(ctx context.Context, raw []rawItem) []model.FeedbackItem {
	items := make([]model.FeedbackItem, 0, len(raw))
	for _, r := range raw {
		original := strings.TrimSpace(r.OriginalSentence)
		corrected := strings.TrimSpace(r.CorrectedSentence)
		if original == "" || corrected == "" {
			a.logger.DebugContext(ctx, "必須項目のないフィードバックを除外しました")
			continue
		}
		category, ok := model.ParseFeedbackCategory(r.Category)
		if !ok {
			a.logger.WarnContext(ctx, "未知のカテゴリのフィードバックを除外しました",
				slog.String("category", r.Category),
			)
			continue
		}
		items = append(items, model.FeedbackItem{
			OriginalSentence:  original,
			CorrectedSentence: corrected,
			Category:          category,
			Reason:            strings.TrimSpace(r.Reason),
			Status:            model.FeedbackStatusNew,
		})
	}
	return items
}

// rawItem はモデル出力の1項目。
type rawItem struct {
	OriginalSentence  string `json:"original_sentence"`
	CorrectedSentence string `json:"corrected_sentence"`
	Category          string `json:"category"`
	Reason            string `json:"reason"`
}

// Decoded はモデル出力の解釈結果。Recognizedがfalseの場合は既知のどの形式にも一致しなかった。
type Decoded struct {
	Items      []rawItem
	Recognized bool
}

// decode はトップレベルの配列を最初に試し、次にwrapperKeysの順でオブジェクト内の配列を試す。
func decode(content string) Decoded {
	content = stripCodeFence(content)

	var list []rawItem
	if err := json.Unmarshal([]byte(content), &list); err == nil && list != nil {
		return Decoded{Items: list, Recognized: true}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return Decoded{}
	}
	for _, key := range wrapperKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var wrapped []rawItem
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped != nil {
			return Decoded{Items: wrapped, Recognized: true}
		}
	}
	return Decoded{}
}

// stripCodeFence は ```json ... ``` で囲まれた出力から中身を取り出す。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
