package service

import (
	"context"
	"time"

	"gamification-engine/internal/model"
)

// RankingStore reads leaderboards off the ledger.
type RankingStore interface {
	TopByTotal(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
	TopEarnedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.LeaderboardEntry, error)
}

// RankingService handles leaderboard operations.
type RankingService struct {
	store RankingStore
	cal   Calendar
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(store RankingStore, cal Calendar) *RankingService {
	return &RankingService{store: store, cal: cal}
}

// TopUsers retrieves the top users by total points.
func (s *RankingService) TopUsers(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	return s.store.TopByTotal(ctx, limit)
}

// TopToday retrieves the users who earned the most points today.
func (s *RankingService) TopToday(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	return s.TopOnDay(ctx, s.cal.Now(), limit)
}

// TopOnDay retrieves the users who earned the most points on the local day containing day.
func (s *RankingService) TopOnDay(ctx context.Context, day time.Time, limit int) ([]*model.LeaderboardEntry, error) {
	start := s.cal.DayOf(day)
	return s.store.TopEarnedBetween(ctx, start, start.AddDate(0, 0, 1), limit)
}
