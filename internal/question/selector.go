package question

import "math/rand"

// Select assembles a practice set of exactly count questions from pool,
// preferring questions the user has never been served. Mixed difficulty splits
// the count into near-equal easy/medium/hard buckets and falls back to the
// unused remainder of the pool when a bucket is under-supplied. The returned
// order is uniformly shuffled.
func Select(pool []Question, attempted map[string]bool, difficulty string, count int) []Question {
	if count <= 0 || len(pool) == 0 {
		return []Question{}
	}
	if count > len(pool) {
		count = len(pool)
	}

	if difficulty != DifficultyMixed {
		picked := pickNoveltyFirst(pool, attempted, count)
		shuffle(picked)
		return picked
	}

	split := mixedSplit(count)
	buckets := [...]string{DifficultyEasy, DifficultyMedium, DifficultyHard}

	picked := make([]Question, 0, count)
	used := make(map[string]bool, count)
	for i, d := range buckets {
		sub := make([]Question, 0)
		for _, q := range pool {
			if q.Difficulty == d {
				sub = append(sub, q)
			}
		}
		for _, q := range pickNoveltyFirst(sub, attempted, split[i]) {
			picked = append(picked, q)
			used[q.ID] = true
		}
	}

	if len(picked) < count {
		rest := make([]Question, 0, len(pool)-len(picked))
		for _, q := range pool {
			if !used[q.ID] {
				rest = append(rest, q)
			}
		}
		shuffle(rest)
		need := count - len(picked)
		if need > len(rest) {
			need = len(rest)
		}
		picked = append(picked, rest[:need]...)
	}

	shuffle(picked)
	return picked
}

// mixedSplit divides count into three buckets: base = count/3, with the
// remainder distributed to the first then second bucket.
func mixedSplit(count int) [3]int {
	base := count / 3
	rem := count % 3
	split := [3]int{base, base, base}
	if rem >= 1 {
		split[0]++
	}
	if rem >= 2 {
		split[1]++
	}
	return split
}

// pickNoveltyFirst shuffles fresh and previously-seen questions independently,
// then takes fresh ones first.
func pickNoveltyFirst(pool []Question, attempted map[string]bool, count int) []Question {
	if count <= 0 {
		return []Question{}
	}

	fresh := make([]Question, 0, len(pool))
	seen := make([]Question, 0)
	for _, q := range pool {
		if attempted[q.ID] {
			seen = append(seen, q)
		} else {
			fresh = append(fresh, q)
		}
	}
	shuffle(fresh)
	shuffle(seen)

	ordered := append(fresh, seen...)
	if count > len(ordered) {
		count = len(ordered)
	}
	out := make([]Question, count)
	copy(out, ordered[:count])
	return out
}

func shuffle(qs []Question) {
	rand.Shuffle(len(qs), func(i, j int) {
		qs[i], qs[j] = qs[j], qs[i]
	})
}
