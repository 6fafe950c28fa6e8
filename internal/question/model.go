package question

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrQuestionNotFound      = errors.New("question not found")
	ErrInsufficientQuestions = errors.New("insufficient questions")
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyMixed  = "mixed"
)

const minPYQYear = 1950

// Question is immutable once served to a test; admin edits only affect
// future selections.
type Question struct {
	ID            string   `json:"id"`
	Topic         string   `json:"topic"`
	Subtopic      string   `json:"subtopic"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Difficulty    string   `json:"difficulty"`
	Explanation   string   `json:"explanation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	PYQYear       *int     `json:"pyq_year,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

type Input struct {
	Topic         string   `json:"topic"`
	Subtopic      string   `json:"subtopic"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Difficulty    string   `json:"difficulty"`
	Explanation   string   `json:"explanation"`
	Tags          []string `json:"tags"`
	PYQYear       *int     `json:"pyq_year"`
}

// Filter narrows the question pool for selection and listing.
type Filter struct {
	Topics     []string
	Subtopics  []string
	Difficulty string
}

// TestConfig is the client-requested shape of a practice test.
type TestConfig struct {
	Topics        []string `json:"topics"`
	Subtopics     []string `json:"subtopics,omitempty"`
	Difficulty    string   `json:"difficulty"`
	QuestionCount int      `json:"question_count"`
}

func (c TestConfig) Filter() Filter {
	f := Filter{Topics: c.Topics, Subtopics: c.Subtopics}
	if c.Difficulty != DifficultyMixed {
		f.Difficulty = c.Difficulty
	}
	return f
}

func normalizeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func ValidateTestConfig(cfg *TestConfig) error {
	cfg.Topics = normalizeStrings(cfg.Topics)
	cfg.Subtopics = normalizeStrings(cfg.Subtopics)
	cfg.Difficulty = strings.TrimSpace(strings.ToLower(cfg.Difficulty))

	if len(cfg.Topics) < 1 || len(cfg.Topics) > 10 {
		return fmt.Errorf("%w: topics must contain between 1 and 10 entries", ErrInvalidInput)
	}
	switch cfg.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyMixed:
	default:
		return fmt.Errorf("%w: difficulty must be easy, medium, hard or mixed", ErrInvalidInput)
	}
	if cfg.QuestionCount < 1 || cfg.QuestionCount > 200 {
		return fmt.Errorf("%w: question_count must be between 1 and 200", ErrInvalidInput)
	}
	return nil
}

func ValidateInput(in *Input) error {
	in.Topic = strings.TrimSpace(in.Topic)
	in.Subtopic = strings.TrimSpace(in.Subtopic)
	in.Text = strings.TrimSpace(in.Text)
	in.Difficulty = strings.TrimSpace(strings.ToLower(in.Difficulty))
	in.Explanation = strings.TrimSpace(in.Explanation)
	in.Tags = normalizeStrings(in.Tags)

	if len(in.Topic) < 1 || len(in.Topic) > 100 {
		return fmt.Errorf("%w: topic must be between 1 and 100 characters", ErrInvalidInput)
	}
	if len(in.Subtopic) < 1 || len(in.Subtopic) > 100 {
		return fmt.Errorf("%w: subtopic must be between 1 and 100 characters", ErrInvalidInput)
	}
	if len(in.Text) < 10 || len(in.Text) > 1000 {
		return fmt.Errorf("%w: question must be between 10 and 1000 characters", ErrInvalidInput)
	}
	if len(in.Options) != 4 {
		return fmt.Errorf("%w: exactly 4 options are required", ErrInvalidInput)
	}
	for i, opt := range in.Options {
		opt = strings.TrimSpace(opt)
		in.Options[i] = opt
		if opt == "" || len(opt) > 500 {
			return fmt.Errorf("%w: options[%d] must be between 1 and 500 characters", ErrInvalidInput, i)
		}
	}
	if in.CorrectAnswer < 0 || in.CorrectAnswer > 3 {
		return fmt.Errorf("%w: correct_answer must be between 0 and 3", ErrInvalidInput)
	}
	switch in.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: difficulty must be easy, medium or hard", ErrInvalidInput)
	}
	if len(in.Explanation) > 2000 {
		return fmt.Errorf("%w: explanation must be at most 2000 characters", ErrInvalidInput)
	}
	if in.PYQYear != nil {
		maxYear := time.Now().Year() + 1
		if *in.PYQYear < minPYQYear || *in.PYQYear > maxYear {
			return fmt.Errorf("%w: pyq_year must be between %d and %d", ErrInvalidInput, minPYQYear, maxYear)
		}
	}
	return nil
}
