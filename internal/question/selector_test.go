package question

import (
	"fmt"
	"testing"
)

func makePool(difficulty string, n int) []Question {
	out := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Question{
			ID:         fmt.Sprintf("%s-%d", difficulty, i),
			Topic:      "History",
			Subtopic:   "Ancient",
			Difficulty: difficulty,
		})
	}
	return out
}

func TestMixedSplit(t *testing.T) {
	cases := []struct {
		count int
		want  [3]int
	}{
		{count: 3, want: [3]int{1, 1, 1}},
		{count: 4, want: [3]int{2, 1, 1}},
		{count: 5, want: [3]int{2, 2, 1}},
		{count: 10, want: [3]int{4, 3, 3}},
		{count: 1, want: [3]int{1, 0, 0}},
		{count: 2, want: [3]int{1, 1, 0}},
		{count: 200, want: [3]int{67, 67, 66}},
	}
	for _, tc := range cases {
		got := mixedSplit(tc.count)
		if got != tc.want {
			t.Errorf("mixedSplit(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestSelectSizeAndMembership(t *testing.T) {
	pool := makePool(DifficultyEasy, 30)
	got := Select(pool, nil, DifficultyEasy, 10)
	if len(got) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(got))
	}

	ids := map[string]bool{}
	for _, q := range pool {
		ids[q.ID] = true
	}
	seen := map[string]bool{}
	for _, q := range got {
		if !ids[q.ID] {
			t.Fatalf("selected question %s not in pool", q.ID)
		}
		if seen[q.ID] {
			t.Fatalf("question %s selected twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestSelectNoveltyBias(t *testing.T) {
	fresh := makePool(DifficultyMedium, 10)
	repeat := makePool(DifficultyMedium, 10)
	attempted := map[string]bool{}
	pool := append([]Question{}, fresh...)
	for i, q := range repeat {
		q.ID = fmt.Sprintf("seen-%d", i)
		attempted[q.ID] = true
		pool = append(pool, q)
	}

	got := Select(pool, attempted, DifficultyMedium, 10)
	if len(got) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(got))
	}
	for _, q := range got {
		if attempted[q.ID] {
			t.Fatalf("attempted question %s selected despite sufficient fresh supply", q.ID)
		}
	}
}

func TestSelectMixedBalance(t *testing.T) {
	pool := append(makePool(DifficultyEasy, 20), makePool(DifficultyMedium, 20)...)
	pool = append(pool, makePool(DifficultyHard, 20)...)

	got := Select(pool, nil, DifficultyMixed, 10)
	if len(got) != 10 {
		t.Fatalf("expected 10 questions, got %d", len(got))
	}

	counts := map[string]int{}
	for _, q := range got {
		counts[q.Difficulty]++
	}
	if counts[DifficultyEasy] != 4 || counts[DifficultyMedium] != 3 || counts[DifficultyHard] != 3 {
		t.Fatalf("expected 4/3/3 split, got easy=%d medium=%d hard=%d",
			counts[DifficultyEasy], counts[DifficultyMedium], counts[DifficultyHard])
	}
}

func TestSelectMixedFillsShortBucket(t *testing.T) {
	// No hard questions at all; the shortfall must come from the unused pool.
	pool := append(makePool(DifficultyEasy, 10), makePool(DifficultyMedium, 10)...)

	got := Select(pool, nil, DifficultyMixed, 9)
	if len(got) != 9 {
		t.Fatalf("expected 9 questions, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, q := range got {
		if seen[q.ID] {
			t.Fatalf("question %s selected twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestSelectCountLargerThanPool(t *testing.T) {
	pool := makePool(DifficultyHard, 4)
	got := Select(pool, nil, DifficultyHard, 10)
	if len(got) != 4 {
		t.Fatalf("expected whole pool (4), got %d", len(got))
	}
}
