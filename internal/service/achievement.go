package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"gamification-engine/internal/catalog"
	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/lock"
)

// MaxShowcased is how many unlocked achievements a user may pin.
const MaxShowcased = 3

const notifyTimeout = 10 * time.Second

// AchievementStore persists progress and unlocks.
// Unlock must report false for a pair that is already unlocked.
type AchievementStore interface {
	UpsertProgress(ctx context.Context, p *model.AchievementProgress) error
	ListProgress(ctx context.Context, userID int64) ([]*model.AchievementProgress, error)
	Unlock(ctx context.Context, userID int64, code model.AchievementCode, at time.Time) (bool, error)
	ListUnlocked(ctx context.Context, userID int64) (map[model.AchievementCode]*model.UserAchievement, error)
	MarkRewarded(ctx context.Context, userID int64, code model.AchievementCode) error
	SetShowcased(ctx context.Context, userID int64, code model.AchievementCode, on bool) (bool, error)
}

// MetricReader computes metric values from collaborator-owned content.
type MetricReader interface {
	Count(ctx context.Context, userID int64, kinds ...model.ContentKind) (int64, error)
	Sum(ctx context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error)
	Max(ctx context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error)
	ActiveDates(ctx context.Context, userID int64, loc *time.Location, kinds ...model.ContentKind) ([]time.Time, error)
	LoginStreak(ctx context.Context, userID int64) (int64, error)
}

// ChallengeHistory exposes the challenge facts achievements are measured on.
type ChallengeHistory interface {
	PerfectDays(ctx context.Context, userID int64, claimedOnly bool) ([]time.Time, error)
	CountCompleted(ctx context.Context, userID int64) (int64, error)
}

// Rewarder posts one-time rewards for achievements and challenges.
type Rewarder interface {
	GrantOnce(ctx context.Context, userID int64, r Reward) (*Credit, bool, error)
}

// Notifier announces unlocks. Failures are logged and never undo an unlock.
// It is called after the user's lock is released.
type Notifier interface {
	AchievementUnlocked(ctx context.Context, userID int64, def model.AchievementDefinition) error
}

// AchievementService is the achievement progress engine.
type AchievementService struct {
	store      AchievementStore
	metrics    MetricReader
	challenges ChallengeHistory
	rewarder   Rewarder
	notifier   Notifier
	userLock   *lock.UserLock
	cal        Calendar
}

// NewAchievementService creates a new AchievementService instance.
func NewAchievementService(
	store AchievementStore,
	metrics MetricReader,
	challenges ChallengeHistory,
	rewarder Rewarder,
	notifier Notifier,
	userLock *lock.UserLock,
	cal Calendar,
) *AchievementService {
	return &AchievementService{
		store:      store,
		metrics:    metrics,
		challenges: challenges,
		rewarder:   rewarder,
		notifier:   notifier,
		userLock:   userLock,
		cal:        cal,
	}
}

// Evaluate recomputes every achievement the action might affect and unlocks the
// ones whose target is reached. Already-unlocked achievements are skipped, so
// re-evaluating the same action is a no-op. Rewards left unpaid by an earlier
// failure are granted first. A failing achievement does not stop the others;
// their errors are joined. Returns the newly unlocked definitions.
func (s *AchievementService) Evaluate(ctx context.Context, userID int64, action model.Action, data model.ActionData) ([]model.AchievementDefinition, error) {
	codes := catalog.Triggered(action)
	if len(codes) == 0 {
		return nil, nil
	}

	log.Debug().
		Int64("user_id", userID).
		Str("action", string(action)).
		Int64("count", data.Count).
		Int64("word_count", data.WordCount).
		Int64("duration", data.Duration).
		Msg("Evaluating achievements")

	var unlocked, announce []model.AchievementDefinition
	err := s.userLock.WithLock(ctx, userID, func() error {
		have, err := s.store.ListUnlocked(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list unlocks: %w", err)
		}

		var errs []error
		for _, code := range unrewarded(have) {
			def, ok := catalog.Achievement(code)
			if !ok {
				continue
			}
			if err := s.reward(ctx, userID, def); err != nil {
				errs = append(errs, err)
				continue
			}
			announce = append(announce, def)
		}

		for _, code := range codes {
			if _, ok := have[code]; ok {
				continue
			}
			def, ok := catalog.Achievement(code)
			if !ok {
				errs = append(errs, fmt.Errorf("achievement %s: %w", code, ErrAchievementNotFound))
				continue
			}

			value, err := s.metric(ctx, userID, def)
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to compute %s: %w", code, err))
				continue
			}
			created, err := s.advance(ctx, userID, def, value, def.Target)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !created {
				continue
			}
			unlocked = append(unlocked, def)
			if err := s.reward(ctx, userID, def); err != nil {
				errs = append(errs, err)
				continue
			}
			announce = append(announce, def)
		}

		if len(unlocked) == 0 {
			return errors.Join(errs...)
		}
		meta, err := s.checkMeta(ctx, userID)
		if err != nil {
			errs = append(errs, err)
		}
		if meta != nil {
			unlocked = append(unlocked, *meta)
			if err := s.reward(ctx, userID, *meta); err != nil {
				errs = append(errs, err)
			} else {
				announce = append(announce, *meta)
			}
		}
		return errors.Join(errs...)
	})

	s.announce(ctx, userID, announce)
	return unlocked, err
}

// unrewarded lists unlocked codes whose reward has not been granted, in code order.
func unrewarded(have map[model.AchievementCode]*model.UserAchievement) []model.AchievementCode {
	var out []model.AchievementCode
	for code, ua := range have {
		if !ua.Rewarded {
			out = append(out, code)
		}
	}
	slices.Sort(out)
	return out
}

// advance stores progress and unlocks once value reaches target.
func (s *AchievementService) advance(ctx context.Context, userID int64, def model.AchievementDefinition, value, target int64) (bool, error) {
	err := s.store.UpsertProgress(ctx, &model.AchievementProgress{
		UserID:       userID,
		Code:         def.Code,
		CurrentValue: value,
		TargetValue:  target,
		UpdatedAt:    s.cal.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to store progress of %s: %w", def.Code, err)
	}
	if value < target {
		return false, nil
	}
	return s.unlock(ctx, userID, def)
}

// checkMeta unlocks the meta achievement when every other one is unlocked. It never
// recurses further: the meta achievement cannot satisfy itself.
func (s *AchievementService) checkMeta(ctx context.Context, userID int64) (*model.AchievementDefinition, error) {
	have, err := s.store.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	if _, ok := have[catalog.MetaAchievement]; ok {
		return nil, nil
	}

	def, _ := catalog.Achievement(catalog.MetaAchievement)
	created, err := s.advance(ctx, userID, def, countOthers(have), catalog.MetaTarget())
	if err != nil || !created {
		return nil, err
	}
	return &def, nil
}

func countOthers(have map[model.AchievementCode]*model.UserAchievement) int64 {
	var n int64
	for code := range have {
		if code != catalog.MetaAchievement {
			n++
		}
	}
	return n
}

// unlock stores the unlock row. The row is the exactly-once guard: when it
// already exists nothing else happens.
func (s *AchievementService) unlock(ctx context.Context, userID int64, def model.AchievementDefinition) (bool, error) {
	created, err := s.store.Unlock(ctx, userID, def.Code, s.cal.Now())
	if err != nil {
		return false, fmt.Errorf("failed to unlock %s: %w", def.Code, err)
	}
	if !created {
		return false, nil
	}

	log.Info().
		Int64("user_id", userID).
		Str("achievement", string(def.Code)).
		Int64("reward_points", def.RewardPoints).
		Msg("Achievement unlocked")
	return true, nil
}

// reward grants the achievement's points and stars and flags the unlock as
// rewarded. The grant is keyed by the achievement code.
func (s *AchievementService) reward(ctx context.Context, userID int64, def model.AchievementDefinition) error {
	if def.RewardPoints > 0 || def.RewardStars > 0 {
		_, _, err := s.rewarder.GrantOnce(ctx, userID, Reward{
			Points:      def.RewardPoints,
			Stars:       def.RewardStars,
			Target:      model.Target{Type: model.TargetAchievement, ID: string(def.Code)},
			Description: "解锁成就：" + def.Name,
		})
		if err != nil {
			return fmt.Errorf("failed to reward %s: %w", def.Code, err)
		}
	}
	if err := s.store.MarkRewarded(ctx, userID, def.Code); err != nil {
		return fmt.Errorf("failed to mark %s rewarded: %w", def.Code, err)
	}
	return nil
}

// announce runs outside the user's lock, under its own deadline.
func (s *AchievementService) announce(ctx context.Context, userID int64, defs []model.AchievementDefinition) {
	if s.notifier == nil || len(defs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	for _, def := range defs {
		if err := s.notifier.AchievementUnlocked(ctx, userID, def); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Str("achievement", string(def.Code)).Msg("Failed to send unlock notification")
		}
	}
}

func (s *AchievementService) metric(ctx context.Context, userID int64, def model.AchievementDefinition) (int64, error) {
	m := def.Metric
	switch m.Source {
	case model.SourceContent:
		switch def.Condition {
		case model.AchievementCount:
			return s.metrics.Count(ctx, userID, m.Kinds...)
		case model.AchievementTotal:
			return s.metrics.Sum(ctx, userID, m.Field, m.Kinds...)
		case model.AchievementThreshold:
			return s.metrics.Max(ctx, userID, m.Field, m.Kinds...)
		case model.AchievementStreak:
			days, err := s.metrics.ActiveDates(ctx, userID, s.cal.Loc, m.Kinds...)
			if err != nil {
				return 0, err
			}
			return int64(Streak(days)), nil
		}
	case model.SourceLoginStreak:
		return s.metrics.LoginStreak(ctx, userID)
	case model.SourcePerfectChallenge:
		days, err := s.challenges.PerfectDays(ctx, userID, false)
		if err != nil {
			return 0, err
		}
		return int64(Streak(days)), nil
	case model.SourceChallengeCount:
		return s.challenges.CountCompleted(ctx, userID)
	}
	return 0, fmt.Errorf("unsupported metric %s/%s", m.Source, def.Condition)
}

// SetShowcase pins or unpins an unlocked achievement.
func (s *AchievementService) SetShowcase(ctx context.Context, userID int64, code model.AchievementCode, on bool) error {
	if _, ok := catalog.Achievement(code); !ok {
		return ErrAchievementNotFound
	}

	return s.userLock.WithLock(ctx, userID, func() error {
		have, err := s.store.ListUnlocked(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list unlocks: %w", err)
		}
		ua, ok := have[code]
		if !ok {
			return ErrAchievementNotUnlocked
		}
		if ua.Showcased == on {
			return nil
		}

		if on {
			showcased := 0
			for _, u := range have {
				if u.Showcased {
					showcased++
				}
			}
			if showcased >= MaxShowcased {
				return ErrShowcaseLimitReached
			}
		}

		if _, err := s.store.SetShowcased(ctx, userID, code, on); err != nil {
			return err
		}
		return nil
	})
}

// List returns the catalog in display order with the user's state. Hidden
// achievements only appear once unlocked.
func (s *AchievementService) List(ctx context.Context, userID int64) ([]model.AchievementStatus, error) {
	have, err := s.store.ListUnlocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	progress, err := s.store.ListProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	current := make(map[model.AchievementCode]int64, len(progress))
	for _, p := range progress {
		current[p.Code] = p.CurrentValue
	}

	var out []model.AchievementStatus
	for _, def := range catalog.OrderedAchievements() {
		ua, ok := have[def.Code]
		if def.Hidden && !ok {
			continue
		}
		st := model.AchievementStatus{Definition: def, Current: current[def.Code], Unlocked: ok}
		if ok {
			at := ua.UnlockedAt
			st.UnlockedAt = &at
			st.Showcased = ua.Showcased
		}
		out = append(out, st)
	}
	return out, nil
}
