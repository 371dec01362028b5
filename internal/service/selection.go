package service

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"gamification-engine/internal/model"
)

// PickWeighted performs roulette-wheel selection: draw uniformly in [0, total weight)
// and walk the list subtracting weights until the draw lands inside a span.
// Zero-weight templates can never be drawn.
func PickWeighted(templates []*model.ChallengeTemplate, rng *rand.Rand) (*model.ChallengeTemplate, error) {
	var total int64
	for _, t := range templates {
		if t.Weight > 0 {
			total += t.Weight
		}
	}
	if total <= 0 {
		return nil, ErrInsufficientTemplates
	}

	draw := rng.Int64N(total)
	for _, t := range templates {
		if t.Weight <= 0 {
			continue
		}
		if draw < t.Weight {
			return t, nil
		}
		draw -= t.Weight
	}
	return nil, ErrInsufficientTemplates
}

// dailyRand seeds a generator from the date, difficulty and salt, so every process
// racing to create the same day's set draws the same templates.
func dailyRand(day time.Time, d model.Difficulty, salt string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte(day.Format(time.DateOnly)))
	_, _ = h.Write([]byte(d))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
