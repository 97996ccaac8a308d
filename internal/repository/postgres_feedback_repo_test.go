package repository

import (
	"testing"

	"github.com/hitoshi/newstalk/internal/model"
)

func TestPostgresFeedbackRepo_ImplementsInterface(t *testing.T) {
	var _ FeedbackRepository = (*PostgresFeedbackRepo)(nil)
}

func TestPostgresAccountRepo_ImplementsInterface(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
}

func TestPostgresConversationLogRepo_ImplementsInterface(t *testing.T) {
	var _ ConversationLogRepository = (*PostgresConversationLogRepo)(nil)
}

func TestPostgresAppFeedbackRepo_ImplementsInterface(t *testing.T) {
	var _ AppFeedbackRepository = (*PostgresAppFeedbackRepo)(nil)
}

// 空のスライスではDBにアクセスしないことを検証（db=nilでもパニックしない）
func TestPostgresFeedbackRepo_CreateBatch_EmptyIsNoop(t *testing.T) {
	repo := NewPostgresFeedbackRepo(nil)
	if err := repo.CreateBatch(t.Context(), "u@example.com", "s1", nil); err != nil {
		t.Fatalf("CreateBatch(nil) returned error: %v", err)
	}
}

// 列配列への展開で件数が揃い、未設定の状態がNewになることを検証
func TestNewFeedbackColumns(t *testing.T) {
	items := []model.FeedbackItem{
		{OriginalSentence: "I go yesterday.", CorrectedSentence: "I went yesterday.", Category: model.CategoryGrammar, Reason: "過去形"},
		{OriginalSentence: "It is very delicious.", CorrectedSentence: "It is delicious.", Category: model.CategoryExpression, Status: model.FeedbackStatusReviewed},
	}

	cols := newFeedbackColumns(items)

	for name, n := range map[string]int{
		"ids":        len(cols.ids),
		"originals":  len(cols.originals),
		"corrected":  len(cols.corrected),
		"categories": len(cols.categories),
		"reasons":    len(cols.reasons),
		"statuses":   len(cols.statuses),
	} {
		if n != len(items) {
			t.Errorf("len(%s) = %d, want %d", name, n, len(items))
		}
	}
	if cols.statuses[0] != string(model.FeedbackStatusNew) {
		t.Errorf("statuses[0] = %q, want New", cols.statuses[0])
	}
	if cols.statuses[1] != string(model.FeedbackStatusReviewed) {
		t.Errorf("statuses[1] = %q, want Reviewed", cols.statuses[1])
	}
	if cols.categories[0] != "Grammar" {
		t.Errorf("categories[0] = %q, want Grammar", cols.categories[0])
	}
	if cols.ids[0] == cols.ids[1] {
		t.Error("ids should be unique")
	}
}
