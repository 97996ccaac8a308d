// Package lesson は日本語ニュース記事から難易度別の英語教材を生成する。
package lesson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newstalk/internal/llm"
	"github.com/hitoshi/newstalk/internal/model"
)

const userPromptTemplate = `あなたは英会話教材の作成を専門とする編集者です。
次の日本語ニュースをもとに、読みやすい英語教材を1つ作成してください。

【難易度（最優先）】
- 学習者レベル: %[1]s（1=初心者 / 2=中級 / 3=上級）
- CEFR目安: %[2]s。難しすぎても易しすぎてもいけません。
- 文体: %[3]s

【元記事】
タイトル: %[4]s
本文: %[5]s

【構成】
1. 英語タイトル、日付（%[6]s）、カテゴリー（News / Sports / Technology など）
2. 語彙: %[7]s 各語に word, pronunciation（IPA）, type（n. / v. / adj. など）, definition（平易な英語）, example を付けてください。
3. 記事本文: %[8]s、3〜4段落。CEFR %[2]s に合わせてください。
4. discussion_a: 内容理解を確かめる質問を2〜3問
5. discussion_b: 学習者自身の意見を聞く質問を2〜3問
6. question: 会話を始めるためのメインの質問

【出力形式】
"lessons" キーの配列にレッスンを1つだけ入れたJSONのみを出力してください。
{"lessons": [{"title": "...", "date": "%[6]s", "category": "News", "vocabulary": [{"word": "...", "pronunciation": "/.../", "type": "(n.)", "definition": "...", "example": "..."}], "content": "...", "discussion_a": ["..."], "discussion_b": ["..."], "question": "...", "level": "%[1]s"}]}`

// Generator は言語モデルで英語教材を生成する。
type Generator struct {
	completer llm.Completer
	logger    *slog.Logger
	now       func() time.Time
}

// NewGenerator はGeneratorを生成する。
func NewGenerator(completer llm.Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{completer: completer, logger: logger, now: time.Now}
}

// Generate は記事本文とタイトルからlevelに合わせた教材を生成する。
// 通常は1件だが、モデルが複数返した場合はすべて返す。
// モデル呼び出しや出力の解釈に失敗した場合は空のスライスを返す（エラーにはしない）。
// levelが1〜3以外の場合のみエラーを返す。
func (g *Generator) Generate(ctx context.Context, sourceText, sourceTitle string, level Level) ([]model.Lesson, error) {
	c, err := level.Constraints()
	if err != nil {
		return nil, err
	}

	date := g.now().Format("Posted January 02, 2006")
	system := fmt.Sprintf("You are a professional English education content creator. "+
		"Create one lesson strictly for learner level %s (CEFR %s). Follow constraints exactly. "+
		"Output valid JSON with 'lessons' key containing a single lesson. The lesson.level MUST be '%s'.",
		level, c.CEFR, level)
	user := fmt.Sprintf(userPromptTemplate, level.String(), c.CEFR, c.Style, sourceTitle, sourceText, date, c.Vocab, c.ArticleWords)

	req := llm.Prompt("lesson", system, user)
	req.JSON = true
	req.Temperature = 0.7
	req.MaxTokens = 2500

	content, err := g.completer.Complete(ctx, req)
	if err != nil {
		g.logger.WarnContext(ctx, "教材生成のモデル呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("level", int(level)),
		)
		return []model.Lesson{}, nil
	}

	lessons := decodeLessons(content)
	if len(lessons) == 0 {
		g.logger.WarnContext(ctx, "モデル出力から教材を取り出せませんでした",
			slog.Int("response_length", len(content)),
		)
		return []model.Lesson{}, nil
	}

	for i := range lessons {
		finalize(&lessons[i], sourceTitle, level)
	}
	return lessons, nil
}

// finalize はモデルの返したlevelを要求レベルで上書きし、元記事タイトルと既定の質問を補う。
func finalize(l *model.Lesson, sourceTitle string, level Level) {
	l.Level = level.String()
	l.JapaneseTitle = sourceTitle
	if l.Question == "" && len(l.DiscussionA) > 0 {
		l.Question = l.DiscussionA[0]
	}
}

// rawLesson はモデル出力の1レッスン。levelは数値で返ることもあるため型を問わず受け取って捨てる。
type rawLesson struct {
	model.Lesson
	Level json.RawMessage `json:"level"`
}

// decodeLessons は "lessons" 配列を優先し、なければ "title" を持つ単一オブジェクトを1件として扱う。
// 個々のレッスンが解釈できない場合はそのレッスンだけ除外する。
func decodeLessons(content string) []model.Lesson {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return nil
	}

	var candidates []json.RawMessage
	if raw, ok := obj["lessons"]; ok {
		if err := json.Unmarshal(raw, &candidates); err != nil {
			candidates = nil
		}
	}
	if len(candidates) == 0 {
		if _, ok := obj["title"]; ok {
			candidates = []json.RawMessage{json.RawMessage(content)}
		}
	}

	lessons := make([]model.Lesson, 0, len(candidates))
	for _, c := range candidates {
		var r rawLesson
		if err := json.Unmarshal(c, &r); err != nil {
			continue
		}
		lessons = append(lessons, r.Lesson)
	}
	return lessons
}
