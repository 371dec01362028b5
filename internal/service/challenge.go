package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"gamification-engine/internal/catalog"
	"gamification-engine/internal/config"
	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/lock"
	"gamification-engine/internal/repository"
)

// ChallengeStore persists templates, daily sets and user records.
type ChallengeStore interface {
	ListActiveTemplates(ctx context.Context, d model.Difficulty) ([]*model.ChallengeTemplate, error)
	GetTemplates(ctx context.Context, ids []int64) (map[int64]*model.ChallengeTemplate, error)
	GetSetByDate(ctx context.Context, day time.Time) (*model.DailyChallengeSet, error)
	CreateSet(ctx context.Context, set *model.DailyChallengeSet) (*model.DailyChallengeSet, error)
	CreateRecords(ctx context.Context, records []*model.UserChallengeRecord) (int64, error)
	ListRecords(ctx context.Context, userID, setID int64) ([]*model.UserChallengeRecord, error)
	GetRecord(ctx context.Context, id int64) (*model.UserChallengeRecord, error)
	SaveProgress(ctx context.Context, rec *model.UserChallengeRecord) error
	MarkClaimed(ctx context.Context, id int64, at time.Time) (bool, error)
	UnmarkClaimed(ctx context.Context, id int64) error
	ChallengeHistory
}

// ActiveUsers lists users to fan a new daily set out to.
type ActiveUsers interface {
	ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error)
}

// TodayView is a user's daily challenge page.
type TodayView struct {
	Date       time.Time
	Challenges []model.ChallengeView
	Stats      model.ChallengeStats
}

// ClaimResult is the settlement of one claimed challenge.
type ClaimResult struct {
	Points      int64
	Stars       int64
	StreakBonus int64
	Streak      int
	NewTotal    int64
}

// ChallengeService is the daily challenge scheduler.
type ChallengeService struct {
	store    ChallengeStore
	users    ActiveUsers
	rewarder Rewarder
	userLock *lock.UserLock
	cal      Calendar
	cfg      config.ChallengeConfig
	creating singleflight.Group
}

// NewChallengeService creates a new ChallengeService instance.
func NewChallengeService(
	store ChallengeStore,
	users ActiveUsers,
	rewarder Rewarder,
	userLock *lock.UserLock,
	cal Calendar,
	cfg config.ChallengeConfig,
) *ChallengeService {
	if cfg.FanoutWorkers <= 0 {
		cfg.FanoutWorkers = 1
	}
	return &ChallengeService{
		store:    store,
		users:    users,
		rewarder: rewarder,
		userLock: userLock,
		cal:      cal,
		cfg:      cfg,
	}
}

// GetOrCreateSet returns the set of day, creating it on first access. Concurrent
// creators in this process share one attempt, which does not end with the first
// caller's context. Across processes the unique date key decides, and the loser
// reuses the winner's row.
func (s *ChallengeService) GetOrCreateSet(ctx context.Context, day time.Time) (*model.DailyChallengeSet, error) {
	day = s.cal.DayOf(day)
	v, err, _ := s.creating.Do(day.Format(time.DateOnly), func() (any, error) {
		return s.getOrCreateSet(context.WithoutCancel(ctx), day)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.DailyChallengeSet), nil
}

func (s *ChallengeService) getOrCreateSet(ctx context.Context, day time.Time) (*model.DailyChallengeSet, error) {
	set, err := s.store.GetSetByDate(ctx, day)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, repository.ErrSetNotFound) {
		return nil, fmt.Errorf("failed to get daily set: %w", err)
	}

	draft := &model.DailyChallengeSet{Date: day, CreatedAt: s.cal.Now()}
	for _, d := range model.Difficulties() {
		templates, err := s.store.ListActiveTemplates(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s templates: %w", d, err)
		}
		picked, err := PickWeighted(templates, dailyRand(day, d, s.cfg.SeedSalt))
		if err != nil {
			return nil, fmt.Errorf("difficulty %s: %w", d, err)
		}
		switch d {
		case model.DifficultyEasy:
			draft.EasyTemplateID = picked.ID
		case model.DifficultyMedium:
			draft.MediumTemplateID = picked.ID
		case model.DifficultyHard:
			draft.HardTemplateID = picked.ID
		}
	}

	created, err := s.store.CreateSet(ctx, draft)
	if errors.Is(err, repository.ErrSetExists) {
		log.Debug().Str("day", day.Format(time.DateOnly)).Msg("Daily set created concurrently, reusing it")
		return s.store.GetSetByDate(ctx, day)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("day", day.Format(time.DateOnly)).
		Int64("easy", created.EasyTemplateID).
		Int64("medium", created.MediumTemplateID).
		Int64("hard", created.HardTemplateID).
		Msg("Daily challenge set created")

	if n, err := s.fanOut(ctx, created); err != nil {
		log.Warn().Err(err).Int("users", n).Msg("Daily challenge fan-out incomplete")
	} else {
		log.Info().Int("users", n).Msg("Daily challenge records materialized")
	}
	return created, nil
}

// fanOut materializes the set for every recently active user.
func (s *ChallengeService) fanOut(ctx context.Context, set *model.DailyChallengeSet) (int, error) {
	since := s.cal.DayOf(set.Date).AddDate(0, 0, -s.cfg.ActiveDays)
	userIDs, err := s.users.ActiveUserIDs(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list active users: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, nil
	}
	templates, err := s.templatesOf(ctx, set)
	if err != nil {
		return 0, err
	}

	if s.cfg.FanoutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FanoutTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FanoutWorkers)
	for _, id := range userIDs {
		g.Go(func() error {
			_, err := s.store.CreateRecords(gctx, newRecords(id, set, templates))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return len(userIDs), fmt.Errorf("failed to materialize records: %w", err)
	}
	return len(userIDs), nil
}

// MaterializeUserRecords creates the user's three records for a set. Existing
// records are kept, so calling it again is harmless.
func (s *ChallengeService) MaterializeUserRecords(ctx context.Context, userID int64, set *model.DailyChallengeSet) ([]*model.UserChallengeRecord, error) {
	templates, err := s.templatesOf(ctx, set)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CreateRecords(ctx, newRecords(userID, set, templates)); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, userID, set.ID)
}

func newRecords(userID int64, set *model.DailyChallengeSet, templates map[int64]*model.ChallengeTemplate) []*model.UserChallengeRecord {
	records := make([]*model.UserChallengeRecord, 0, 3)
	for _, d := range model.Difficulties() {
		tpl := templates[set.TemplateID(d)]
		records = append(records, &model.UserChallengeRecord{
			UserID:     userID,
			SetID:      set.ID,
			TemplateID: tpl.ID,
			Difficulty: d,
			Target:     tpl.ConditionValue,
			Status:     model.StatusInProgress,
		})
	}
	return records
}

func (s *ChallengeService) templatesOf(ctx context.Context, set *model.DailyChallengeSet) (map[int64]*model.ChallengeTemplate, error) {
	ids := []int64{set.EasyTemplateID, set.MediumTemplateID, set.HardTemplateID}
	templates, err := s.store.GetTemplates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load set templates: %w", err)
	}
	for _, id := range ids {
		if templates[id] == nil {
			return nil, fmt.Errorf("template %d: %w", id, ErrTemplateNotFound)
		}
	}
	return templates, nil
}

// todayRecords returns the user's records for today's set, materializing them if needed.
func (s *ChallengeService) todayRecords(ctx context.Context, userID int64) (*model.DailyChallengeSet, []*model.UserChallengeRecord, error) {
	set, err := s.GetOrCreateSet(ctx, s.cal.Now())
	if err != nil {
		return nil, nil, err
	}
	records, err := s.store.ListRecords(ctx, userID, set.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(records) < len(model.Difficulties()) {
		records, err = s.MaterializeUserRecords(ctx, userID, set)
		if err != nil {
			return nil, nil, err
		}
	}
	return set, records, nil
}

// NextProgress folds one action into a record's progress.
func NextProgress(cond model.ChallengeCondition, current, target int64, data model.ActionData) int64 {
	switch cond {
	case model.ChallengeWordCount:
		return max(current, data.WordCount)
	case model.ChallengeDuration:
		return current + max(data.Duration, 0)
	case model.ChallengeCount:
		if data.Count <= 0 {
			return current + 1
		}
		return current + data.Count
	case model.ChallengeAction:
		return max(current, target)
	}
	return current
}

// UpdateProgress accumulates an action into the user's in-progress records of today
// whose template type matches it. Records reaching their target become COMPLETED;
// the reward waits for ClaimReward. Returns the records completed by this call.
func (s *ChallengeService) UpdateProgress(ctx context.Context, userID int64, action model.Action, data model.ActionData) ([]*model.UserChallengeRecord, error) {
	set, records, err := s.todayRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	templates, err := s.templatesOf(ctx, set)
	if err != nil {
		return nil, err
	}

	var completed []*model.UserChallengeRecord
	for _, rec := range records {
		if rec.Status != model.StatusInProgress {
			continue
		}
		tpl := templates[rec.TemplateID]
		if tpl == nil || !catalog.Compatible(action, tpl.Type) {
			continue
		}

		next := NextProgress(tpl.ConditionType, rec.Progress, rec.Target, data)
		if next == rec.Progress {
			continue
		}
		rec.Progress = next
		if rec.Progress >= rec.Target {
			now := s.cal.Now()
			rec.Status = model.StatusCompleted
			rec.CompletedAt = &now
		}
		if err := s.store.SaveProgress(ctx, rec); err != nil {
			return completed, err
		}
		if rec.Status == model.StatusCompleted {
			log.Info().Int64("user_id", userID).Int64("record_id", rec.ID).Str("difficulty", string(rec.Difficulty)).Msg("Daily challenge completed")
			completed = append(completed, rec)
		}
	}
	return completed, nil
}

// ClaimReward settles a completed record: the per-difficulty reward, the template's
// stars, and a one-time bonus when the run of fully claimed days reaches a bonus length.
func (s *ChallengeService) ClaimReward(ctx context.Context, userID, recordID int64) (*ClaimResult, error) {
	var result *ClaimResult
	err := s.userLock.WithLock(ctx, userID, func() error {
		rec, err := s.store.GetRecord(ctx, recordID)
		if err != nil {
			if errors.Is(err, repository.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("failed to get challenge record: %w", err)
		}
		switch {
		case rec.UserID != userID:
			return ErrNotOwner
		case rec.Status != model.StatusCompleted:
			return ErrNotCompleted
		case rec.RewardClaimed:
			return ErrAlreadyClaimed
		}

		claimed, err := s.store.MarkClaimed(ctx, rec.ID, s.cal.Now())
		if err != nil {
			return err
		}
		if !claimed {
			return ErrAlreadyClaimed
		}

		result, err = s.settle(ctx, userID, rec)
		if err != nil {
			if uerr := s.store.UnmarkClaimed(ctx, rec.ID); uerr != nil {
				log.Error().Err(uerr).Int64("record_id", rec.ID).Msg("Failed to revert claim after settlement error")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("record_id", recordID).
		Int64("points", result.Points).
		Int64("streak_bonus", result.StreakBonus).
		Msg("Challenge reward claimed")
	return result, nil
}

// settle pays the claimed record. Each grant is keyed by its target, so a claim
// retried after a partial failure only pays what is still missing.
func (s *ChallengeService) settle(ctx context.Context, userID int64, rec *model.UserChallengeRecord) (*ClaimResult, error) {
	templates, err := s.store.GetTemplates(ctx, []int64{rec.TemplateID})
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	tpl := templates[rec.TemplateID]
	if tpl == nil {
		return nil, fmt.Errorf("template %d: %w", rec.TemplateID, ErrTemplateNotFound)
	}

	result := &ClaimResult{Points: s.cfg.Rewards.RewardFor(string(rec.Difficulty)), Stars: tpl.RewardStars}
	if result.Points == 0 {
		result.Points = tpl.RewardPoints
	}
	if result.Points > 0 || result.Stars > 0 {
		credit, _, err := s.rewarder.GrantOnce(ctx, userID, Reward{
			Points:      result.Points,
			Stars:       result.Stars,
			Target:      model.Target{Type: model.TargetChallenge, ID: strconv.FormatInt(rec.ID, 10)},
			Description: "完成每日挑战",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to credit challenge reward: %w", err)
		}
		result.NewTotal = credit.NewTotal
	}

	// only the claim that finishes a day can move the streak
	siblings, err := s.store.ListRecords(ctx, userID, rec.SetID)
	if err != nil {
		return nil, err
	}
	for _, r := range siblings {
		if r.ID != rec.ID && !r.RewardClaimed {
			return result, nil
		}
	}
	if len(siblings) < len(model.Difficulties()) {
		return result, nil
	}

	days, err := s.store.PerfectDays(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compute claim streak: %w", err)
	}
	result.Streak = Streak(days)
	bonus, ok := s.cfg.StreakBonus[result.Streak]
	if !ok || bonus <= 0 {
		return result, nil
	}

	credit, _, err := s.rewarder.GrantOnce(ctx, userID, Reward{
		Points:      bonus,
		Target:      model.Target{Type: model.TargetChallengeBonus, ID: days[0].Format(time.DateOnly)},
		Description: fmt.Sprintf("连续 %d 天完成全部挑战", result.Streak),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit streak bonus: %w", err)
	}
	result.StreakBonus = bonus
	result.NewTotal = credit.NewTotal
	return result, nil
}

// Today returns the user's three challenges of today and summary stats.
func (s *ChallengeService) Today(ctx context.Context, userID int64) (*TodayView, error) {
	set, records, err := s.todayRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	templates, err := s.templatesOf(ctx, set)
	if err != nil {
		return nil, err
	}

	view := &TodayView{Date: set.Date}
	for _, rec := range records {
		view.Challenges = append(view.Challenges, model.ChallengeView{Record: rec, Template: templates[rec.TemplateID]})
		if rec.Status == model.StatusCompleted {
			view.Stats.CompletedToday++
			if !rec.RewardClaimed {
				view.Stats.Claimable++
			}
		}
	}

	if view.Stats.TotalCompleted, err = s.store.CountCompleted(ctx, userID); err != nil {
		return nil, err
	}
	days, err := s.store.PerfectDays(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	view.Stats.CurrentStreak = Streak(days)
	return view, nil
}
