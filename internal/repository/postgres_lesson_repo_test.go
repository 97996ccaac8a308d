package repository

import (
	"reflect"
	"strings"
	"testing"

	"github.com/hitoshi/newstalk/internal/model"
)

// PostgresLessonRepoはLessonRepositoryインターフェースを満たすことを検証
func TestPostgresLessonRepo_ImplementsInterface(t *testing.T) {
	var _ LessonRepository = (*PostgresLessonRepo)(nil)
}

func TestNewPostgresLessonRepo_Initializes(t *testing.T) {
	repo := NewPostgresLessonRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
	if repo.now == nil {
		t.Fatal("expected clock to be set")
	}
}

// 語彙5件を含むレッスンが保存用JSONを経由して同一内容に復元されることを検証
func TestLessonDocument_RoundTrip(t *testing.T) {
	lesson := &model.Lesson{
		Title:    "Cherry Blossoms Bloom Early",
		Date:     "Posted March 20, 2026",
		Category: "News",
		Vocabulary: []model.VocabularyItem{
			{Word: "bloom", Pronunciation: "/bluːm/", Type: "(v.)", Definition: "to open as flowers", Example: "The flowers bloom in spring."},
			{Word: "forecast", Pronunciation: "/ˈfɔːrkæst/", Type: "(n.)", Definition: "a prediction", Example: "The forecast says rain."},
			{Word: "season", Pronunciation: "/ˈsiːzn/", Type: "(n.)", Definition: "a part of the year", Example: "Spring is my favorite season."},
			{Word: "crowd", Pronunciation: "/kraʊd/", Type: "(n.)", Definition: "many people together", Example: "A crowd gathered in the park."},
			{Word: "celebrate", Pronunciation: "/ˈselɪbreɪt/", Type: "(v.)", Definition: "to enjoy a special day", Example: "We celebrate together."},
		},
		Content:       "Cherry blossoms started to bloom in Tokyo this week.",
		DiscussionA:   []string{"When did the blossoms bloom?", "Where did people gather?"},
		DiscussionB:   []string{"Do you like spring?"},
		Question:      "When did the blossoms bloom?",
		Level:         "1",
		JapaneseTitle: "桜が早く開花",
	}

	doc, err := encodeLessonDocument(lesson)
	if err != nil {
		t.Fatalf("encodeLessonDocument returned error: %v", err)
	}

	got, err := decodeLessonDocument(doc)
	if err != nil {
		t.Fatalf("decodeLessonDocument returned error: %v", err)
	}

	if !reflect.DeepEqual(got, *lesson) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, *lesson)
	}
	if len(got.Vocabulary) != 5 {
		t.Errorf("vocabulary count = %d, want 5", len(got.Vocabulary))
	}
}

// nilスライスは空配列として保存されることを検証
func TestEncodeLessonDocument_NilSlicesBecomeEmptyArrays(t *testing.T) {
	doc, err := encodeLessonDocument(&model.Lesson{Title: "t", Level: "2"})
	if err != nil {
		t.Fatalf("encodeLessonDocument returned error: %v", err)
	}

	s := string(doc)
	for _, key := range []string{`"vocabulary":[]`, `"discussion_a":[]`, `"discussion_b":[]`} {
		if !strings.Contains(s, key) {
			t.Errorf("document %s does not contain %s", s, key)
		}
	}
}

func TestDecodeLessonDocument_InvalidJSON(t *testing.T) {
	if _, err := decodeLessonDocument([]byte("{not json")); err == nil {
		t.Error("expected error for invalid document")
	}
}
