package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/db"
)

// ErrSetExists is returned when another writer already created the set for a date.
var ErrSetExists = errors.New("daily challenge set already exists")

// ChallengeRepository handles challenge templates, daily sets and user records.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewChallengeRepository creates a new ChallengeRepository instance.
func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

const templateColumns = `id, title, description, type, difficulty, condition_type, condition_value, reward_points, reward_stars, weight, active`

const setColumns = `id, challenge_date, easy_template_id, medium_template_id, hard_template_id, created_at`

const recordColumns = `id, user_id, set_id, template_id, difficulty, progress, target, status, completed_at, reward_claimed, claimed_at`

func scanTemplate(row pgx.Row) (*model.ChallengeTemplate, error) {
	var t model.ChallengeTemplate
	err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Type,
		&t.Difficulty,
		&t.ConditionType,
		&t.ConditionValue,
		&t.RewardPoints,
		&t.RewardStars,
		&t.Weight,
		&t.Active,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanSet(row pgx.Row) (*model.DailyChallengeSet, error) {
	var s model.DailyChallengeSet
	err := row.Scan(&s.ID, &s.Date, &s.EasyTemplateID, &s.MediumTemplateID, &s.HardTemplateID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanRecord(row pgx.Row) (*model.UserChallengeRecord, error) {
	var r model.UserChallengeRecord
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.SetID,
		&r.TemplateID,
		&r.Difficulty,
		&r.Progress,
		&r.Target,
		&r.Status,
		&r.CompletedAt,
		&r.RewardClaimed,
		&r.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ========== Templates ==========

// SeedTemplate inserts a template unless one with the same title exists.
func (r *ChallengeRepository) SeedTemplate(ctx context.Context, t *model.ChallengeTemplate) (bool, error) {
	const query = `
		INSERT INTO challenge_templates (title, description, type, difficulty, condition_type,
			condition_value, reward_points, reward_stars, weight, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (title) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		t.Title, t.Description, t.Type, t.Difficulty, t.ConditionType,
		t.ConditionValue, t.RewardPoints, t.RewardStars, t.Weight, t.Active,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed template %q: %w", t.Title, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveTemplates returns the active templates of a difficulty ordered by id,
// which fixes the roulette walk order.
func (r *ChallengeRepository) ListActiveTemplates(ctx context.Context, d model.Difficulty) ([]*model.ChallengeTemplate, error) {
	const query = `
		SELECT ` + templateColumns + `
		FROM challenge_templates
		WHERE difficulty = $1 AND active
		ORDER BY id
	`
	return r.queryTemplates(ctx, query, d)
}

// GetTemplates loads templates by id.
func (r *ChallengeRepository) GetTemplates(ctx context.Context, ids []int64) (map[int64]*model.ChallengeTemplate, error) {
	const query = `SELECT ` + templateColumns + ` FROM challenge_templates WHERE id = ANY($1)`

	list, err := r.queryTemplates(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*model.ChallengeTemplate, len(list))
	for _, t := range list {
		out[t.ID] = t
	}
	return out, nil
}

func (r *ChallengeRepository) queryTemplates(ctx context.Context, query string, args ...any) ([]*model.ChallengeTemplate, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	defer rows.Close()

	var out []*model.ChallengeTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return out, nil
}

// ========== Daily Sets ==========

// GetSetByDate returns the set of a calendar day.
// Returns ErrSetNotFound if none was created yet.
func (r *ChallengeRepository) GetSetByDate(ctx context.Context, day time.Time) (*model.DailyChallengeSet, error) {
	const query = `SELECT ` + setColumns + ` FROM daily_challenge_sets WHERE challenge_date = $1::date`

	set, err := scanSet(r.pool.QueryRow(ctx, query, day.Format(dateLayout)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSetNotFound
		}
		return nil, fmt.Errorf("failed to get daily set: %w", err)
	}
	return set, nil
}

// CreateSet inserts the set of a calendar day.
// Returns ErrSetExists when the date key is already taken.
func (r *ChallengeRepository) CreateSet(ctx context.Context, set *model.DailyChallengeSet) (*model.DailyChallengeSet, error) {
	const query = `
		INSERT INTO daily_challenge_sets (challenge_date, easy_template_id, medium_template_id, hard_template_id, created_at)
		VALUES ($1::date, $2, $3, $4, $5)
		RETURNING ` + setColumns

	created, err := scanSet(r.pool.QueryRow(ctx, query,
		set.Date.Format(dateLayout), set.EasyTemplateID, set.MediumTemplateID, set.HardTemplateID, set.CreatedAt,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrSetExists
		}
		return nil, fmt.Errorf("failed to create daily set: %w", err)
	}
	return created, nil
}

// ========== User Records ==========

// CreateRecords inserts records, skipping any (user, set, difficulty) that already exists.
// Returns the number of records created.
func (r *ChallengeRepository) CreateRecords(ctx context.Context, records []*model.UserChallengeRecord) (int64, error) {
	const query = `
		INSERT INTO user_challenges (user_id, set_id, template_id, difficulty, progress, target, status, reward_claimed)
		VALUES ($1, $2, $3, $4, 0, $5, $6, FALSE)
		ON CONFLICT (user_id, set_id, difficulty) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query, rec.UserID, rec.SetID, rec.TemplateID, rec.Difficulty, rec.Target, model.StatusInProgress)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var created int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("failed to create challenge record: %w", err)
		}
		created += tag.RowsAffected()
	}
	return created, nil
}

// ListRecords returns a user's records of a set in difficulty order.
func (r *ChallengeRepository) ListRecords(ctx context.Context, userID, setID int64) ([]*model.UserChallengeRecord, error) {
	const query = `
		SELECT ` + recordColumns + `
		FROM user_challenges
		WHERE user_id = $1 AND set_id = $2
		ORDER BY CASE difficulty WHEN 'EASY' THEN 1 WHEN 'MEDIUM' THEN 2 ELSE 3 END
	`

	rows, err := r.pool.Query(ctx, query, userID, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenge records: %w", err)
	}
	defer rows.Close()

	var out []*model.UserChallengeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenge records: %w", err)
	}
	return out, nil
}

// GetRecord returns a record by id.
// Returns ErrRecordNotFound if it does not exist.
func (r *ChallengeRepository) GetRecord(ctx context.Context, id int64) (*model.UserChallengeRecord, error) {
	const query = `SELECT ` + recordColumns + ` FROM user_challenges WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get challenge record: %w", err)
	}
	return rec, nil
}

// SaveProgress writes new progress to an in-progress record. Completed records are left untouched.
func (r *ChallengeRepository) SaveProgress(ctx context.Context, rec *model.UserChallengeRecord) error {
	const query = `
		UPDATE user_challenges
		SET progress = $2, status = $3, completed_at = $4
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`
	if _, err := r.pool.Exec(ctx, query, rec.ID, rec.Progress, rec.Status, rec.CompletedAt); err != nil {
		return fmt.Errorf("failed to save challenge progress: %w", err)
	}
	return nil
}

// MarkClaimed flags a completed record as claimed. Returns false when it was
// already claimed, so a racing duplicate claim cannot settle twice.
func (r *ChallengeRepository) MarkClaimed(ctx context.Context, id int64, at time.Time) (bool, error) {
	const query = `
		UPDATE user_challenges
		SET reward_claimed = TRUE, claimed_at = $2
		WHERE id = $1 AND status = 'COMPLETED' AND NOT reward_claimed
	`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to claim challenge record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UnmarkClaimed reverts MarkClaimed when settlement failed afterwards.
func (r *ChallengeRepository) UnmarkClaimed(ctx context.Context, id int64) error {
	const query = `UPDATE user_challenges SET reward_claimed = FALSE, claimed_at = NULL WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to unclaim challenge record: %w", err)
	}
	return nil
}

// PerfectDays returns the dates on which the user completed all three difficulties,
// newest first. With claimedOnly the three rewards must also have been claimed.
func (r *ChallengeRepository) PerfectDays(ctx context.Context, userID int64, claimedOnly bool) ([]time.Time, error) {
	const query = `
		SELECT s.challenge_date
		FROM user_challenges uc
		JOIN daily_challenge_sets s ON s.id = uc.set_id
		WHERE uc.user_id = $1
		  AND uc.status = 'COMPLETED'
		  AND (NOT $2 OR uc.reward_claimed)
		GROUP BY s.challenge_date
		HAVING COUNT(DISTINCT uc.difficulty) = 3
		ORDER BY s.challenge_date DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, claimedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to get perfect days: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating days: %w", err)
	}
	return days, nil
}

// CountCompleted returns how many challenges a user has ever completed.
func (r *ChallengeRepository) CountCompleted(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM user_challenges WHERE user_id = $1 AND status = 'COMPLETED'`

	var n int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count completed challenges: %w", err)
	}
	return n, nil
}
