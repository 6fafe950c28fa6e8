package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"testprep/internal/question"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTestNotFound = errors.New("test not found")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Test is a completed attempt. Questions are the snapshots taken at
// submission, so a record stays reviewable after the bank changes.
type Test struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"user_id"`
	QuestionIDs         []string            `json:"question_ids"`
	Questions           []question.Question `json:"questions"`
	Answers             []*int              `json:"answers"`
	Marked              []bool              `json:"marked_for_review"`
	Score               int                 `json:"score"`
	TotalQuestions      int                 `json:"total_questions"`
	CorrectAnswers      int                 `json:"correct_answers"`
	IncorrectAnswers    int                 `json:"incorrect_answers"`
	UnansweredQuestions int                 `json:"unanswered_questions"`
	Percentage          float64             `json:"percentage"`
	TimeTaken           int                 `json:"time_taken"`
	TimeExtensions      int                 `json:"time_extensions"`
	StartedAt           int64               `json:"started_at"`
	SubmittedAt         int64               `json:"submitted_at"`
	TopicWise           json.RawMessage     `json:"topic_performance"`
	DifficultyWise      json.RawMessage     `json:"difficulty_performance"`
}

// Summary is the lightweight history row; it omits snapshots and answers.
type Summary struct {
	ID                  string  `json:"id"`
	Score               int     `json:"score"`
	TotalQuestions      int     `json:"total_questions"`
	CorrectAnswers      int     `json:"correct_answers"`
	IncorrectAnswers    int     `json:"incorrect_answers"`
	UnansweredQuestions int     `json:"unanswered_questions"`
	Percentage          float64 `json:"percentage"`
	TimeTaken           int     `json:"time_taken"`
	StartedAt           int64   `json:"started_at"`
	SubmittedAt         int64   `json:"submitted_at"`
}

type UserSummary struct {
	TestsTaken         int     `json:"tests_taken"`
	QuestionsAttempted int     `json:"questions_attempted"`
	TotalCorrect       int     `json:"total_correct"`
	AveragePercentage  float64 `json:"average_percentage"`
	BestPercentage     float64 `json:"best_percentage"`
	TotalTimeTaken     int     `json:"total_time_taken"`
}

func (s *Service) GetTest(ctx context.Context, id string) (*Test, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, question_ids_json, question_snapshots_json,
			answers_json, marked_json, score, total_questions,
			correct_answers, incorrect_answers, unanswered_questions,
			percentage, time_taken, time_extensions, started_at, submitted_at,
			topic_performance_json, difficulty_performance_json
		FROM tests
		WHERE id = $1
	`, id)

	var t Test
	var idsJSON, snapshotsJSON, answersJSON, markedJSON, topicJSON, diffJSON string
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&idsJSON,
		&snapshotsJSON,
		&answersJSON,
		&markedJSON,
		&t.Score,
		&t.TotalQuestions,
		&t.CorrectAnswers,
		&t.IncorrectAnswers,
		&t.UnansweredQuestions,
		&t.Percentage,
		&t.TimeTaken,
		&t.TimeExtensions,
		&t.StartedAt,
		&t.SubmittedAt,
		&topicJSON,
		&diffJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &t.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question ids: %w", err)
	}
	if err := json.Unmarshal([]byte(snapshotsJSON), &t.Questions); err != nil {
		return nil, fmt.Errorf("decode question snapshots: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &t.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(markedJSON), &t.Marked); err != nil {
		return nil, fmt.Errorf("decode marks: %w", err)
	}
	t.TopicWise = json.RawMessage(topicJSON)
	t.DifficultyWise = json.RawMessage(diffJSON)
	return &t, nil
}

// GetOwner returns the user id a test record belongs to.
func (s *Service) GetOwner(ctx context.Context, id string) (string, error) {
	var userID string
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM tests WHERE id = $1`, id).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTestNotFound
		}
		return "", fmt.Errorf("load test owner: %w", err)
	}
	return userID, nil
}

// History returns a user's submitted tests, newest first, plus the total
// count.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]Summary, int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, 0, ErrInvalidInput
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tests WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tests: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, score, total_questions, correct_answers, incorrect_answers,
			unanswered_questions, percentage, time_taken, started_at, submitted_at
		FROM tests
		WHERE user_id = $1
		ORDER BY submitted_at DESC, id
		LIMIT $2
		OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query test history: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var it Summary
		if err := rows.Scan(
			&it.ID,
			&it.Score,
			&it.TotalQuestions,
			&it.CorrectAnswers,
			&it.IncorrectAnswers,
			&it.UnansweredQuestions,
			&it.Percentage,
			&it.TimeTaken,
			&it.StartedAt,
			&it.SubmittedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan test summary: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate test history: %w", err)
	}
	return out, total, nil
}

// Summarize aggregates a user's entire history. A user with no tests gets a
// zero summary, not an error.
func (s *Service) Summarize(ctx context.Context, userID string) (*UserSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}

	out := &UserSummary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_questions), 0),
			COALESCE(SUM(correct_answers), 0),
			COALESCE(AVG(percentage), 0),
			COALESCE(MAX(percentage), 0),
			COALESCE(SUM(time_taken), 0)
		FROM tests
		WHERE user_id = $1
	`, userID).Scan(
		&out.TestsTaken,
		&out.QuestionsAttempted,
		&out.TotalCorrect,
		&out.AveragePercentage,
		&out.BestPercentage,
		&out.TotalTimeTaken,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize tests: %w", err)
	}
	out.AveragePercentage = round2(out.AveragePercentage)
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
