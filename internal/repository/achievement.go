package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gamification-engine/internal/model"
)

// AchievementRepository handles achievement progress and unlock persistence.
type AchievementRepository struct {
	pool *pgxpool.Pool
}

// NewAchievementRepository creates a new AchievementRepository instance.
func NewAchievementRepository(pool *pgxpool.Pool) *AchievementRepository {
	return &AchievementRepository{pool: pool}
}

// UpsertProgress stores the latest computed value for a (user, achievement) pair.
func (r *AchievementRepository) UpsertProgress(ctx context.Context, p *model.AchievementProgress) error {
	const query = `
		INSERT INTO achievement_progress (user_id, code, current_value, target_value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, code)
		DO UPDATE SET current_value = EXCLUDED.current_value,
			target_value = EXCLUDED.target_value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, p.UserID, p.Code, p.CurrentValue, p.TargetValue, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert achievement progress: %w", err)
	}
	return nil
}

// ListProgress returns every progress row of a user.
func (r *AchievementRepository) ListProgress(ctx context.Context, userID int64) ([]*model.AchievementProgress, error) {
	const query = `
		SELECT user_id, code, current_value, target_value, updated_at
		FROM achievement_progress
		WHERE user_id = $1
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement progress: %w", err)
	}
	defer rows.Close()

	var out []*model.AchievementProgress
	for rows.Next() {
		var p model.AchievementProgress
		if err := rows.Scan(&p.UserID, &p.Code, &p.CurrentValue, &p.TargetValue, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement progress: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievement progress: %w", err)
	}
	return out, nil
}

// Unlock records an unlock. The primary key makes it exactly-once: the return value
// is false when the pair was already unlocked.
func (r *AchievementRepository) Unlock(ctx context.Context, userID int64, code model.AchievementCode, at time.Time) (bool, error) {
	const query = `
		INSERT INTO user_achievements (user_id, code, unlocked_at, showcased)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT (user_id, code) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, userID, code, at)
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRewarded records that an unlock's reward has been posted.
func (r *AchievementRepository) MarkRewarded(ctx context.Context, userID int64, code model.AchievementCode) error {
	const query = `
		UPDATE user_achievements
		SET rewarded = TRUE
		WHERE user_id = $1 AND code = $2
	`

	if _, err := r.pool.Exec(ctx, query, userID, code); err != nil {
		return fmt.Errorf("failed to mark reward: %w", err)
	}
	return nil
}

// ListUnlocked returns a user's unlocks keyed by code.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, userID int64) (map[model.AchievementCode]*model.UserAchievement, error) {
	const query = `
		SELECT user_id, code, unlocked_at, showcased, rewarded
		FROM user_achievements
		WHERE user_id = $1
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocks: %w", err)
	}
	defer rows.Close()

	out := make(map[model.AchievementCode]*model.UserAchievement)
	for rows.Next() {
		var ua model.UserAchievement
		if err := rows.Scan(&ua.UserID, &ua.Code, &ua.UnlockedAt, &ua.Showcased, &ua.Rewarded); err != nil {
			return nil, fmt.Errorf("failed to scan unlock: %w", err)
		}
		out[ua.Code] = &ua
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unlocks: %w", err)
	}
	return out, nil
}

// SetShowcased flips the showcase flag of an unlocked achievement.
// Returns false when the user has not unlocked it.
func (r *AchievementRepository) SetShowcased(ctx context.Context, userID int64, code model.AchievementCode, on bool) (bool, error) {
	const query = `
		UPDATE user_achievements
		SET showcased = $3
		WHERE user_id = $1 AND code = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, code, on)
	if err != nil {
		return false, fmt.Errorf("failed to update showcase: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
