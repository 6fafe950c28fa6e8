package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"testprep/internal/db"
	"testprep/internal/question"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyActive  = errors.New("an active session already exists")
	ErrInvalidQuestionIndex  = errors.New("question index out of range")
	ErrExtensionLimitReached = errors.New("time extension limit reached")
	ErrSessionExpired        = errors.New("session has expired")
)

const maxExtensions = 2

type Service struct {
	db            *sql.DB
	driver        db.Driver
	questions     *question.Service
	enforceExpiry bool
	retention     time.Duration
}

type Config struct {
	Driver        db.Driver
	EnforceExpiry bool
	Retention     time.Duration
}

func NewService(conn *sql.DB, questions *question.Service, cfg Config) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Service{
		db:            conn,
		driver:        cfg.Driver,
		questions:     questions,
		enforceExpiry: cfg.EnforceExpiry,
		retention:     cfg.Retention,
	}
}

// TestSession is the mutable state of one in-progress attempt. Answers and
// Marked are parallel to QuestionIDs; a nil answer slot means unanswered.
type TestSession struct {
	ID             string   `json:"id"`
	UserID         string   `json:"user_id"`
	QuestionIDs    []string `json:"question_ids"`
	Answers        []*int   `json:"answers"`
	Marked         []bool   `json:"marked_for_review"`
	RemainingTime  int      `json:"remaining_time"`
	TimeExtensions int      `json:"time_extensions"`
	StartedAt      int64    `json:"started_at"`
	ExpiresAt      int64    `json:"expires_at"`
}

// SessionQuestion is the answer-key-free question view served to an active
// session.
type SessionQuestion struct {
	ID         string   `json:"id"`
	Topic      string   `json:"topic"`
	Subtopic   string   `json:"subtopic"`
	Text       string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
}

type SessionView struct {
	TestSession
	Questions []SessionQuestion `json:"questions"`
}

type ConfigCheck struct {
	AvailableCount  int `json:"available_count"`
	DurationMinutes int `json:"duration_minutes"`
}

type StartResult struct {
	SessionID       string `json:"session_id"`
	QuestionCount   int    `json:"question_count"`
	DurationMinutes int    `json:"duration_minutes"`
}

type ExtendResult struct {
	RemainingTime  int `json:"remaining_time"`
	TimeExtensions int `json:"time_extensions"`
}

type SubmitResult struct {
	TestID         string  `json:"test_id"`
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	Percentage     float64 `json:"percentage"`
}

// DurationMinutes allots 1.2 minutes per question, rounded up.
func DurationMinutes(questionCount int) int {
	return int(math.Ceil(float64(questionCount) * 1.2))
}

// ValidateConfig checks a requested configuration against the question bank
// without creating anything.
func (s *Service) ValidateConfig(ctx context.Context, cfg question.TestConfig) (*ConfigCheck, error) {
	if err := question.ValidateTestConfig(&cfg); err != nil {
		return nil, err
	}
	available, err := s.questions.CountMatching(ctx, cfg.Filter())
	if err != nil {
		return nil, err
	}
	if available < cfg.QuestionCount {
		return nil, fmt.Errorf("%w: only %d questions available, requested %d",
			question.ErrInsufficientQuestions, available, cfg.QuestionCount)
	}
	return &ConfigCheck{
		AvailableCount:  available,
		DurationMinutes: DurationMinutes(cfg.QuestionCount),
	}, nil
}

// Start selects a question set and creates the user's session. The unique
// index on user_id closes the race between concurrent starts; the loser
// surfaces ErrSessionAlreadyActive.
func (s *Service) Start(ctx context.Context, userID string, cfg question.TestConfig) (*StartResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if err := question.ValidateTestConfig(&cfg); err != nil {
		return nil, err
	}

	pool, err := s.questions.Find(ctx, cfg.Filter())
	if err != nil {
		return nil, err
	}
	attempted, err := s.attemptedQuestionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	picked := question.Select(pool, attempted, cfg.Difficulty, cfg.QuestionCount)
	if len(picked) < cfg.QuestionCount {
		return nil, fmt.Errorf("%w: only %d questions available, requested %d",
			question.ErrInsufficientQuestions, len(picked), cfg.QuestionCount)
	}

	ids := make([]string, len(picked))
	for i, q := range picked {
		ids[i] = q.ID
	}
	answers := make([]*int, len(picked))
	marked := make([]bool, len(picked))

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal question ids: %w", err)
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	markedJSON, err := json.Marshal(marked)
	if err != nil {
		return nil, fmt.Errorf("marshal marks: %w", err)
	}

	durationSecs := DurationMinutes(cfg.QuestionCount) * 60
	now := time.Now().Unix()
	id := uuid.NewString()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO test_sessions (
			id, user_id, question_ids_json, answers_json, marked_json,
			remaining_time, time_extensions, started_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`, id, userID, string(idsJSON), string(answersJSON), string(markedJSON),
		durationSecs, now, now+int64(durationSecs)); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSessionAlreadyActive
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &StartResult{
		SessionID:       id,
		QuestionCount:   len(picked),
		DurationMinutes: DurationMinutes(cfg.QuestionCount),
	}, nil
}

// GetActive returns the user's session with resolved questions, or (nil, nil)
// when no session exists. Correct answers and explanations are withheld while
// the attempt is live.
func (s *Service) GetActive(ctx context.Context, userID string) (*SessionView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}

	sess, err := s.loadSession(ctx, s.db, `WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	resolved, err := s.resolveQuestions(ctx, sess.QuestionIDs)
	if err != nil {
		return nil, err
	}
	view := &SessionView{TestSession: *sess, Questions: make([]SessionQuestion, 0, len(resolved))}
	for _, q := range resolved {
		view.Questions = append(view.Questions, SessionQuestion{
			ID:         q.ID,
			Topic:      q.Topic,
			Subtopic:   q.Subtopic,
			Text:       q.Text,
			Options:    q.Options,
			Difficulty: q.Difficulty,
		})
	}
	return view, nil
}

// SaveAnswer overwrites one answer slot. Repeated saves of the same value are
// no-ops; answers cannot be erased once set. The whole answer array is stored
// as one JSON column, so the read-modify-write runs under a row lock; writers
// to different slots serialize instead of clobbering each other.
func (s *Service) SaveAnswer(ctx context.Context, sessionID string, index, answer int) error {
	if answer < 0 || answer > 3 {
		return fmt.Errorf("%w: answer must be between 0 and 3", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, `WHERE id = $1`+s.lockClause(), sessionID)
	if err != nil {
		return err
	}
	if err := s.checkExpiry(sess); err != nil {
		return err
	}
	if index < 0 || index >= len(sess.QuestionIDs) {
		return ErrInvalidQuestionIndex
	}

	sess.Answers[index] = &answer
	answersJSON, err := json.Marshal(sess.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE test_sessions SET answers_json = $2 WHERE id = $1
	`, sess.ID, string(answersJSON)); err != nil {
		return fmt.Errorf("update answers: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit answer tx: %w", err)
	}
	return nil
}

// ToggleMark flips the marked-for-review flag on one question slot, under the
// same row lock as SaveAnswer.
func (s *Service) ToggleMark(ctx context.Context, sessionID string, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, `WHERE id = $1`+s.lockClause(), sessionID)
	if err != nil {
		return err
	}
	if err := s.checkExpiry(sess); err != nil {
		return err
	}
	if index < 0 || index >= len(sess.QuestionIDs) {
		return ErrInvalidQuestionIndex
	}

	sess.Marked[index] = !sess.Marked[index]
	markedJSON, err := json.Marshal(sess.Marked)
	if err != nil {
		return fmt.Errorf("marshal marks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE test_sessions SET marked_json = $2 WHERE id = $1
	`, sess.ID, string(markedJSON)); err != nil {
		return fmt.Errorf("update marks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark tx: %w", err)
	}
	return nil
}

// ExtendTime grants 5 or 10 extra minutes, at most twice per session.
func (s *Service) ExtendTime(ctx context.Context, sessionID string, minutes int) (*ExtendResult, error) {
	if minutes != 5 && minutes != 10 {
		return nil, fmt.Errorf("%w: extension must be 5 or 10 minutes", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin extend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, `WHERE id = $1`+s.lockClause(), sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkExpiry(sess); err != nil {
		return nil, err
	}
	if sess.TimeExtensions >= maxExtensions {
		return nil, ErrExtensionLimitReached
	}

	extraSecs := minutes * 60
	sess.RemainingTime += extraSecs
	sess.TimeExtensions++
	sess.ExpiresAt += int64(extraSecs)

	if _, err := tx.ExecContext(ctx, `
		UPDATE test_sessions
		SET remaining_time = $2,
			time_extensions = $3,
			expires_at = $4
		WHERE id = $1
	`, sess.ID, sess.RemainingTime, sess.TimeExtensions, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("update extension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit extend tx: %w", err)
	}

	return &ExtendResult{
		RemainingTime:  sess.RemainingTime,
		TimeExtensions: sess.TimeExtensions,
	}, nil
}

// Abandon deletes the user's session without producing a test record.
func (s *Service) Abandon(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM test_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session affected rows: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Submit grades the session, persists the immutable test record with question
// snapshots, and deletes the session row. Elapsed time comes from the server
// clock, not the client countdown.
func (s *Service) Submit(ctx context.Context, sessionID string) (*SubmitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sess, err := s.loadSession(ctx, tx, `WHERE id = $1`+s.lockClause(), sessionID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolveQuestions(ctx, sess.QuestionIDs)
	if err != nil {
		return nil, err
	}
	results := Score(sess.Answers, resolved)

	now := time.Now().Unix()
	timeTaken := now - sess.StartedAt
	if timeTaken < 0 {
		timeTaken = 0
	}

	idsJSON, err := json.Marshal(sess.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal question ids: %w", err)
	}
	snapshotsJSON, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("marshal question snapshots: %w", err)
	}
	answersJSON, err := json.Marshal(sess.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	markedJSON, err := json.Marshal(sess.Marked)
	if err != nil {
		return nil, fmt.Errorf("marshal marks: %w", err)
	}
	topicJSON, err := json.Marshal(results.TopicWise)
	if err != nil {
		return nil, fmt.Errorf("marshal topic performance: %w", err)
	}
	diffJSON, err := json.Marshal(results.DifficultyWise)
	if err != nil {
		return nil, fmt.Errorf("marshal difficulty performance: %w", err)
	}

	testID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tests (
			id, user_id, question_ids_json, question_snapshots_json,
			answers_json, marked_json, score, total_questions,
			correct_answers, incorrect_answers, unanswered_questions,
			percentage, time_taken, time_extensions, started_at, submitted_at,
			topic_performance_json, difficulty_performance_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, testID, sess.UserID, string(idsJSON), string(snapshotsJSON),
		string(answersJSON), string(markedJSON), results.Score, results.TotalQuestions,
		results.CorrectAnswers, results.IncorrectAnswers, results.UnansweredQuestions,
		results.Percentage, timeTaken, sess.TimeExtensions, sess.StartedAt, now,
		string(topicJSON), string(diffJSON)); err != nil {
		return nil, fmt.Errorf("insert test: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM test_sessions WHERE id = $1`, sess.ID); err != nil {
		return nil, fmt.Errorf("delete submitted session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit tx: %w", err)
	}

	return &SubmitResult{
		TestID:         testID,
		Score:          results.Score,
		TotalQuestions: results.TotalQuestions,
		Percentage:     results.Percentage,
	}, nil
}

// DeleteStale removes sessions older than the retention window that were
// never submitted or abandoned.
func (s *Service) DeleteStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM test_sessions WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale sessions affected rows: %w", err)
	}
	return n, nil
}

// GetOwner returns the user id owning a session.
func (s *Service) GetOwner(ctx context.Context, sessionID string) (string, error) {
	var userID string
	if err := s.db.QueryRowContext(ctx, `SELECT user_id FROM test_sessions WHERE id = $1`, sessionID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("load session owner: %w", err)
	}
	return userID, nil
}

func (s *Service) attemptedQuestionIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question_ids_json FROM tests WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query attempted questions: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan attempted questions: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("decode attempted questions: %w", err)
		}
		for _, id := range ids {
			out[id] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempted questions: %w", err)
	}
	return out, nil
}

// resolveQuestions loads the full records for ids, preserving order.
func (s *Service) resolveQuestions(ctx context.Context, ids []string) ([]question.Question, error) {
	byID, err := s.questions.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]question.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("resolve session question %s: %w", id, question.ErrQuestionNotFound)
		}
		out = append(out, q)
	}
	return out, nil
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Service) loadSession(ctx context.Context, q queryable, where string, arg any) (*TestSession, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, question_ids_json, answers_json, marked_json,
			remaining_time, time_extensions, started_at, expires_at
		FROM test_sessions
		`+where, arg)

	var sess TestSession
	var idsJSON, answersJSON, markedJSON string
	if err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&idsJSON,
		&answersJSON,
		&markedJSON,
		&sess.RemainingTime,
		&sess.TimeExtensions,
		&sess.StartedAt,
		&sess.ExpiresAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &sess.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question ids: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &sess.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal([]byte(markedJSON), &sess.Marked); err != nil {
		return nil, fmt.Errorf("decode marks: %w", err)
	}
	return &sess, nil
}

// checkExpiry rejects mutations past expires_at only when hard expiry is
// configured; the default keeps the cooperative client-driven deadline.
func (s *Service) checkExpiry(sess *TestSession) error {
	if !s.enforceExpiry {
		return nil
	}
	if time.Now().Unix() > sess.ExpiresAt {
		return ErrSessionExpired
	}
	return nil
}

func (s *Service) lockClause() string {
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
