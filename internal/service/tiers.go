package service

import "gamification-engine/internal/catalog"

// SelectWordCountRule maps a word count onto the single matching diary rule. The
// highest threshold reached wins; anything below the lowest tier, negative input
// included, maps to the penalty rule.
func SelectWordCountRule(words int64) string {
	for _, tier := range catalog.WordCountTiers {
		if words >= tier.MinWords {
			return tier.RuleID
		}
	}
	return catalog.WordCountPenaltyRule
}
