package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"testprep/internal/db"
)

func newTestDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sampleInput(topic, subtopic, difficulty string) Input {
	return Input{
		Topic:         topic,
		Subtopic:      subtopic,
		Text:          "Which ruler issued the rock edicts of the Mauryan empire?",
		Options:       []string{"Ashoka", "Chandragupta", "Bindusara", "Harsha"},
		CorrectAnswer: 0,
		Difficulty:    difficulty,
		Explanation:   "Ashoka issued the rock edicts after the Kalinga war.",
		Tags:          []string{"mauryan"},
	}
}

func TestCreateAndGet(t *testing.T) {
	svc := NewService(newTestDB(t, "question_create"))

	created, err := svc.Create(context.Background(), sampleInput("History", "Ancient", DifficultyEasy))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Topic != "History" || got.Subtopic != "Ancient" || len(got.Options) != 4 {
		t.Fatalf("unexpected question: %+v", got)
	}
	if got.Options[0] != "Ashoka" || got.CorrectAnswer != 0 {
		t.Fatalf("options not round-tripped: %+v", got.Options)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newTestDB(t, "question_validate"))

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"empty topic", func(in *Input) { in.Topic = "" }},
		{"short question", func(in *Input) { in.Text = "too short" }},
		{"three options", func(in *Input) { in.Options = in.Options[:3] }},
		{"blank option", func(in *Input) { in.Options[2] = "   " }},
		{"answer out of range", func(in *Input) { in.CorrectAnswer = 4 }},
		{"bad difficulty", func(in *Input) { in.Difficulty = "extreme" }},
		{"pyq year too old", func(in *Input) { y := 1900; in.PYQYear = &y }},
	}
	for _, tc := range cases {
		in := sampleInput("History", "Ancient", DifficultyEasy)
		tc.mutate(&in)
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	svc := NewService(newTestDB(t, "question_missing"))
	if _, err := svc.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc := NewService(newTestDB(t, "question_update"))
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput("History", "Ancient", DifficultyEasy))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	in := sampleInput("Geography", "Rivers", DifficultyHard)
	updated, err := svc.Update(ctx, created.ID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Topic != "Geography" || updated.Difficulty != DifficultyHard {
		t.Fatalf("update not applied: %+v", updated)
	}

	if _, err := svc.Update(ctx, "no-such-id", in); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound on update, got %v", err)
	}

	if err := svc.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, created.ID); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound on second delete, got %v", err)
	}
}

func TestCountMatchingAndFind(t *testing.T) {
	svc := NewService(newTestDB(t, "question_count"))
	ctx := context.Background()

	seed := []struct {
		topic, subtopic, difficulty string
	}{
		{"History", "Ancient", DifficultyEasy},
		{"History", "Ancient", DifficultyMedium},
		{"History", "Modern", DifficultyEasy},
		{"Geography", "Rivers", DifficultyHard},
	}
	for _, s := range seed {
		if _, err := svc.Create(ctx, sampleInput(s.topic, s.subtopic, s.difficulty)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := svc.CountMatching(ctx, Filter{Topics: []string{"History"}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 History questions, got %d", n)
	}

	n, err = svc.CountMatching(ctx, Filter{Topics: []string{"History"}, Subtopics: []string{"Ancient"}, Difficulty: DifficultyEasy})
	if err != nil {
		t.Fatalf("count filtered: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 filtered question, got %d", n)
	}

	items, err := svc.Find(ctx, Filter{Topics: []string{"Geography"}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(items) != 1 || items[0].Difficulty != DifficultyHard {
		t.Fatalf("unexpected find result: %+v", items)
	}
}

func TestTopicsDiscovery(t *testing.T) {
	svc := NewService(newTestDB(t, "question_topics"))
	ctx := context.Background()

	for _, s := range []struct{ topic, subtopic string }{
		{"History", "Ancient"},
		{"History", "Modern"},
		{"Geography", "Rivers"},
	} {
		if _, err := svc.Create(ctx, sampleInput(s.topic, s.subtopic, DifficultyEasy)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	topics, byTopic, err := svc.Topics(ctx)
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if len(topics) != 2 || topics[0] != "Geography" || topics[1] != "History" {
		t.Fatalf("unexpected topics: %v", topics)
	}
	if len(byTopic["History"]) != 2 {
		t.Fatalf("expected 2 History subtopics, got %v", byTopic["History"])
	}
}

func TestBulkImportPartialFailure(t *testing.T) {
	svc := NewService(newTestDB(t, "question_bulk"))

	good := sampleInput("History", "Ancient", DifficultyEasy)
	bad := sampleInput("History", "Ancient", DifficultyEasy)
	bad.CorrectAnswer = 9

	report, err := svc.BulkImport(context.Background(), []Input{good, bad})
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if report.TotalRows != 2 || report.SuccessRows != 1 || report.FailedRows != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].Row != 2 {
		t.Fatalf("expected row 2 error, got %+v", report.Errors)
	}
}
