package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type execCall struct {
	query string
	args  []any
}

// mockExecutor はクエリごとの結果を順に返す。
type mockExecutor struct {
	calls   []execCall
	results []int64
	errAt   int // このインデックスの呼び出しでerrを返す。-1なら返さない
	err     error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	idx := len(m.calls)
	m.calls = append(m.calls, execCall{query: query, args: args})
	if idx == m.errAt {
		return nil, m.err
	}
	var n int64
	if idx < len(m.results) {
		n = m.results[idx]
	}
	return &fakeResult{rowsAffected: n}, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("ログのパースに失敗: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestNewCleanupJob_RetentionDays(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative uses default", -1, DefaultRetentionDays},
		{"zero disables", 0, 0},
		{"custom", 30, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewCleanupJob(&mockExecutor{errAt: -1}, tt.in, slog.Default())
			if job.RetentionDays != tt.want {
				t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, tt.want)
			}
		})
	}
}

func TestCleanupJob_Run_ScrubsTranscriptsAndPurgesAppFeedback(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{results: []int64{4, 2}, errAt: -1}
	job := NewCleanupJob(mock, 90, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(mock.calls) != 2 {
		t.Fatalf("ExecContext calls = %d, want 2", len(mock.calls))
	}
	if !strings.Contains(mock.calls[0].query, "UPDATE conversation_logs SET transcript = ''") {
		t.Errorf("first query = %q", mock.calls[0].query)
	}
	if !strings.Contains(mock.calls[1].query, "DELETE FROM app_feedback") {
		t.Errorf("second query = %q", mock.calls[1].query)
	}
	for i, c := range mock.calls {
		if len(c.args) != 1 || c.args[0] != "90 days" {
			t.Errorf("call %d args = %v, want [90 days]", i, c.args)
		}
	}

	entry := lastLogEntry(t, &buf)
	if entry["scrubbed_transcripts"] != float64(4) {
		t.Errorf("scrubbed_transcripts = %v, want 4", entry["scrubbed_transcripts"])
	}
	if entry["deleted_app_feedback"] != float64(2) {
		t.Errorf("deleted_app_feedback = %v, want 2", entry["deleted_app_feedback"])
	}
	if entry["retention_days"] != float64(90) {
		t.Errorf("retention_days = %v, want 90", entry["retention_days"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestCleanupJob_Run_DisabledDoesNothing(t *testing.T) {
	mock := &mockExecutor{errAt: -1}
	job := NewCleanupJob(mock, 0, slog.Default())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("ExecContext should not be called when disabled, got %d calls", len(mock.calls))
	}
}

func TestCleanupJob_Run_StopsOnFirstFailure(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	mock := &mockExecutor{errAt: 0, err: dbErr}
	job := NewCleanupJob(mock, 180, newTestLogger(&buf))

	err := job.Run(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want wrapping %v", err, dbErr)
	}
	if len(mock.calls) != 1 {
		t.Errorf("ExecContext calls = %d, want 1", len(mock.calls))
	}
	entry := lastLogEntry(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestCleanupJob_Run_AppFeedbackFailure(t *testing.T) {
	dbErr := errors.New("timeout")
	mock := &mockExecutor{errAt: 1, err: dbErr}
	job := NewCleanupJob(mock, 180, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	if err := job.Run(context.Background()); !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want wrapping %v", err, dbErr)
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	mock := &mockExecutor{errAt: -1}
	job := NewCleanupJob(mock, 30, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return after cancel")
	}
}
