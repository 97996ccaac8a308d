package lesson

import (
	"fmt"
	"strconv"
)

// Level は学習者の難易度。1=初心者、2=中級、3=上級。
type Level int

const (
	Level1 Level = 1
	Level2 Level = 2
	Level3 Level = 3
)

// DefaultLevel はレベル未指定時に使う難易度。
const DefaultLevel = Level2

// Constraints はレベルごとの教材生成条件。
type Constraints struct {
	CEFR         string
	ArticleWords string
	Style        string
	Vocab        string
}

// ParseLevel は"1"〜"3"を解釈する。空文字列はDefaultLevelを返す。
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return DefaultLevel, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", s)
	}
	l := Level(n)
	if !l.Valid() {
		return 0, fmt.Errorf("invalid level %d", n)
	}
	return l, nil
}

// Valid はレベルが1〜3のいずれかであるかを返す。
func (l Level) Valid() bool {
	_, err := l.Constraints()
	return err == nil
}

func (l Level) String() string {
	return strconv.Itoa(int(l))
}

// Constraints はレベルに対応する生成条件を返す。未定義のレベルはエラー。
func (l Level) Constraints() (Constraints, error) {
	switch l {
	case Level1:
		return Constraints{
			CEFR:         "A1-A2",
			ArticleWords: "150-200 words",
			Style: "Use very short sentences (8-12 words average). Prefer present simple. " +
				"Avoid idioms, phrasal verbs, and rare words. Avoid abstract nouns. " +
				"Use very common verbs (get, make, go, have, take, want, need). " +
				"Do NOT use advanced linking words like: however, therefore, moreover, consequently.",
			Vocab: "5-7 easy, high-frequency words (A1-A2). Keep definitions very simple.",
		}, nil
	case Level2:
		return Constraints{
			CEFR:         "B1-B2",
			ArticleWords: "200-260 words",
			Style:        "Use clear sentences. Avoid overly complex clauses. Use common collocations. Keep it readable.",
			Vocab:        "5-7 useful words (B1-B2). Definitions should be clear and learner-friendly.",
		}, nil
	case Level3:
		return Constraints{
			CEFR:         "B2-C1",
			ArticleWords: "260-320 words",
			Style:        "Use natural but not overly academic English. Use a mix of sentence structures, but keep it comprehensible.",
			Vocab:        "5-7 advanced but practical words (B2-C1). Definitions should be precise but understandable.",
		}, nil
	default:
		return Constraints{}, fmt.Errorf("no constraints for level %d", int(l))
	}
}
