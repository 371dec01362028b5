package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"gamification-engine/internal/catalog"
	"gamification-engine/internal/model"
)

// Event is a content-producing action reported by a content module.
type Event struct {
	UserID int64
	Action model.Action
	Data   model.ActionData
	Target model.Target
}

// Outcome collects what the three passes over one event produced.
type Outcome struct {
	Credit     *Credit
	CapReached bool
	Unlocked   []model.AchievementDefinition
	Completed  []*model.UserChallengeRecord
}

// Engine runs the ledger, achievement and challenge passes over each event.
type Engine struct {
	points       *PointService
	achievements *AchievementService
	challenges   *ChallengeService
}

// NewEngine creates a new Engine instance.
func NewEngine(points *PointService, achievements *AchievementService, challenges *ChallengeService) *Engine {
	return &Engine{points: points, achievements: achievements, challenges: challenges}
}

// Record fires the three engines in sequence. A capped or disabled rule only skips
// the ledger pass; the achievement and challenge passes still run.
func (e *Engine) Record(ctx context.Context, ev Event) (*Outcome, error) {
	out := &Outcome{}

	if ruleID, ok := ruleFor(ev); ok {
		credit, err := e.points.ApplyRule(ctx, ruleID, ev.UserID, ApplyOptions{Target: ev.Target})
		switch {
		case err == nil:
			out.Credit = credit
		case errors.Is(err, ErrDailyCapReached):
			out.CapReached = true
			log.Warn().Int64("user_id", ev.UserID).Str("rule_id", ruleID).Msg("Daily cap reached, no points awarded")
		case errors.Is(err, ErrRuleDisabled):
			log.Debug().Str("rule_id", ruleID).Msg("Rule disabled, no points awarded")
		default:
			return out, fmt.Errorf("ledger pass: %w", err)
		}
	}

	unlocked, err := e.achievements.Evaluate(ctx, ev.UserID, ev.Action, ev.Data)
	out.Unlocked = unlocked
	if err != nil {
		return out, fmt.Errorf("achievement pass: %w", err)
	}

	completed, err := e.challenges.UpdateProgress(ctx, ev.UserID, ev.Action, ev.Data)
	out.Completed = completed
	if err != nil {
		return out, fmt.Errorf("challenge pass: %w", err)
	}

	if len(completed) > 0 {
		more, err := e.achievements.Evaluate(ctx, ev.UserID, model.ActionChallengeDone, model.ActionData{Count: int64(len(completed))})
		out.Unlocked = append(out.Unlocked, more...)
		if err != nil {
			return out, fmt.Errorf("challenge achievement pass: %w", err)
		}
	}
	return out, nil
}

// ContentDeleted reverses every point a deleted content item earned.
func (e *Engine) ContentDeleted(ctx context.Context, targetType, targetID string) (map[int64]int64, error) {
	return e.points.ReverseForContent(ctx, targetType, targetID)
}

func ruleFor(ev Event) (string, bool) {
	if ev.Action == model.ActionDiaryPublished {
		return SelectWordCountRule(ev.Data.WordCount), true
	}
	return catalog.RuleForAction(ev.Action)
}
