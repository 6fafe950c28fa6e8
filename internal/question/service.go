package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const questionColumns = `id, topic, subtopic, question, options_json, correct_answer,
	difficulty, explanation, tags_json, pyq_year, created_at, updated_at`

func (s *Service) Create(ctx context.Context, in Input) (*Question, error) {
	if err := ValidateInput(&in); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	now := time.Now().Unix()
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (
			id, topic, subtopic, question, options_json, correct_answer,
			difficulty, explanation, tags_json, pyq_year, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, in.Topic, in.Subtopic, in.Text, string(optionsJSON), in.CorrectAnswer,
		in.Difficulty, in.Explanation, string(tagsJSON), nullIntPtr(in.PYQYear), now, now); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return s.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*Question, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	if err := ValidateInput(&in); err != nil {
		return nil, err
	}

	optionsJSON, err := json.Marshal(in.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET topic = $2,
			subtopic = $3,
			question = $4,
			options_json = $5,
			correct_answer = $6,
			difficulty = $7,
			explanation = $8,
			tags_json = $9,
			pyq_year = $10,
			updated_at = $11
		WHERE id = $1
	`, id, in.Topic, in.Subtopic, in.Text, string(optionsJSON), in.CorrectAnswer,
		in.Difficulty, in.Explanation, string(tagsJSON), nullIntPtr(in.PYQYear), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update question affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrQuestionNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete question affected rows: %w", err)
	}
	if affected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Question, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	return q, nil
}

// GetMany loads the questions for a set of ids, keyed by id. Missing ids are
// simply absent from the result.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]Question, error) {
	out := make(map[string]Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ph := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id IN (`+strings.Join(ph, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out[q.ID] = *q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions by id: %w", err)
	}
	return out, nil
}

// Find returns every question satisfying the filter.
func (s *Service) Find(ctx context.Context, f Filter) ([]Question, error) {
	where, args := filterClause(f)
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

func (s *Service) CountMatching(ctx context.Context, f Filter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}

// List returns a page of questions plus the total matching count.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]Question, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	total, err := s.CountMatching(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	where, args := filterClause(f)
	query := fmt.Sprintf(`SELECT `+questionColumns+` FROM questions%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query questions page: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0, limit)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate questions page: %w", err)
	}
	return items, total, nil
}

// Topics enumerates distinct topics plus the subtopics under each.
func (s *Service) Topics(ctx context.Context) ([]string, map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT topic, subtopic FROM questions ORDER BY topic, subtopic`)
	if err != nil {
		return nil, nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	topics := make([]string, 0)
	byTopic := make(map[string][]string)
	for rows.Next() {
		var topic, subtopic string
		if err := rows.Scan(&topic, &subtopic); err != nil {
			return nil, nil, fmt.Errorf("scan topic row: %w", err)
		}
		if _, ok := byTopic[topic]; !ok {
			topics = append(topics, topic)
		}
		byTopic[topic] = append(byTopic[topic], subtopic)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate topics: %w", err)
	}
	sort.Strings(topics)
	return topics, byTopic, nil
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

// BulkImport inserts each row independently; one bad row never aborts the
// batch. Row numbers in the report are 1-based.
func (s *Service) BulkImport(ctx context.Context, inputs []Input) (*ImportReport, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no rows to import", ErrInvalidInput)
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	for i, in := range inputs {
		report.TotalRows++
		if _, err := s.Create(ctx, in); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: i + 1, Error: err.Error()})
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}

func filterClause(f Filter) (string, []any) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, len(f.Topics)+len(f.Subtopics)+1)

	if len(f.Topics) > 0 {
		ph := make([]string, 0, len(f.Topics))
		for _, t := range f.Topics {
			args = append(args, t)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "topic IN ("+strings.Join(ph, ", ")+")")
	}
	if len(f.Subtopics) > 0 {
		ph := make([]string, 0, len(f.Subtopics))
		for _, st := range f.Subtopics {
			args = append(args, st)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "subtopic IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Difficulty != "" && f.Difficulty != DifficultyMixed {
		args = append(args, f.Difficulty)
		conds = append(conds, fmt.Sprintf("difficulty = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanQuestion(scanner interface{ Scan(dest ...any) error }) (*Question, error) {
	var q Question
	var optionsJSON, tagsJSON string
	var pyqYear sql.NullInt64
	if err := scanner.Scan(
		&q.ID,
		&q.Topic,
		&q.Subtopic,
		&q.Text,
		&optionsJSON,
		&q.CorrectAnswer,
		&q.Difficulty,
		&q.Explanation,
		&tagsJSON,
		&pyqYear,
		&q.CreatedAt,
		&q.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return nil, fmt.Errorf("decode options json: %w", err)
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &q.Tags); err != nil {
			return nil, fmt.Errorf("decode tags json: %w", err)
		}
	}
	if pyqYear.Valid {
		y := int(pyqYear.Int64)
		q.PYQYear = &y
	}
	return &q, nil
}

func nullIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
