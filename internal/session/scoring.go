package session

import (
	"math"

	"testprep/internal/question"
)

type TopicPerformance struct {
	Topic    string  `json:"topic"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

type DifficultyPerformance struct {
	Difficulty string  `json:"difficulty"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Accuracy   float64 `json:"accuracy"`
}

type Results struct {
	Score               int                     `json:"score"`
	TotalQuestions      int                     `json:"total_questions"`
	CorrectAnswers      int                     `json:"correct_answers"`
	IncorrectAnswers    int                     `json:"incorrect_answers"`
	UnansweredQuestions int                     `json:"unanswered_questions"`
	Percentage          float64                 `json:"percentage"`
	TopicWise           []TopicPerformance      `json:"topic_performance"`
	DifficultyWise      []DifficultyPerformance `json:"difficulty_performance"`
}

// Score grades a finished attempt. answers[i] is nil for unanswered slots.
// Breakdown buckets appear in first-encounter order of the question sequence.
func Score(answers []*int, questions []question.Question) Results {
	res := Results{
		TotalQuestions: len(questions),
		TopicWise:      make([]TopicPerformance, 0),
		DifficultyWise: make([]DifficultyPerformance, 0),
	}

	topicIdx := map[string]int{}
	diffIdx := map[string]int{}

	for i, q := range questions {
		var answer *int
		if i < len(answers) {
			answer = answers[i]
		}

		correct := false
		switch {
		case answer == nil:
			res.UnansweredQuestions++
		case *answer == q.CorrectAnswer:
			res.CorrectAnswers++
			correct = true
		default:
			res.IncorrectAnswers++
		}

		ti, ok := topicIdx[q.Topic]
		if !ok {
			ti = len(res.TopicWise)
			topicIdx[q.Topic] = ti
			res.TopicWise = append(res.TopicWise, TopicPerformance{Topic: q.Topic})
		}
		res.TopicWise[ti].Total++
		if correct {
			res.TopicWise[ti].Correct++
		}

		di, ok := diffIdx[q.Difficulty]
		if !ok {
			di = len(res.DifficultyWise)
			diffIdx[q.Difficulty] = di
			res.DifficultyWise = append(res.DifficultyWise, DifficultyPerformance{Difficulty: q.Difficulty})
		}
		res.DifficultyWise[di].Total++
		if correct {
			res.DifficultyWise[di].Correct++
		}
	}

	res.Score = res.CorrectAnswers
	if res.TotalQuestions > 0 {
		res.Percentage = round2(float64(res.CorrectAnswers) / float64(res.TotalQuestions) * 100)
	}
	for i := range res.TopicWise {
		res.TopicWise[i].Accuracy = round2(float64(res.TopicWise[i].Correct) / float64(res.TopicWise[i].Total) * 100)
	}
	for i := range res.DifficultyWise {
		res.DifficultyWise[i].Accuracy = round2(float64(res.DifficultyWise[i].Correct) / float64(res.DifficultyWise[i].Total) * 100)
	}
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
