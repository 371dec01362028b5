package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gamification-engine/internal/model"
)

// PointsRepository handles the point ledger and the cached per-user balances.
type PointsRepository struct {
	pool *pgxpool.Pool
}

// NewPointsRepository creates a new PointsRepository instance.
func NewPointsRepository(pool *pgxpool.Pool) *PointsRepository {
	return &PointsRepository{pool: pool}
}

const entryColumns = `id, user_id, rule_id, points, description, target_type, target_id, created_at`

const balanceColumns = `user_id, total, today_points, today_date, stars, updated_at`

func scanEntry(row pgx.Row) (*model.PointLogEntry, error) {
	var e model.PointLogEntry
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.RuleID,
		&e.Points,
		&e.Description,
		&e.TargetType,
		&e.TargetID,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanBalance(row pgx.Row) (*model.UserPoints, error) {
	var b model.UserPoints
	err := row.Scan(
		&b.UserID,
		&b.Total,
		&b.TodayPoints,
		&b.TodayDate,
		&b.Stars,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Append writes the entries and applies each delta to its user's balance in one
// transaction. Positive deltas also count toward the "earned today" counter, which
// restarts when the stored day differs from day.
func (r *PointsRepository) Append(ctx context.Context, day time.Time, entries ...*model.PointLogEntry) ([]*model.Posting, error) {
	const insertEntry = `
		INSERT INTO point_logs (user_id, rule_id, points, description, target_type, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	const applyBalance = `
		INSERT INTO user_points (user_id, total, today_points, today_date, stars, updated_at)
		VALUES ($1, $2, GREATEST($2, 0), $3::date, 0, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			total = user_points.total + EXCLUDED.total,
			today_points = CASE
				WHEN user_points.today_date = EXCLUDED.today_date
				THEN user_points.today_points + EXCLUDED.today_points
				ELSE EXCLUDED.today_points
			END,
			today_date = EXCLUDED.today_date,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + balanceColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	dayKey := day.Format(dateLayout)
	postings := make([]*model.Posting, 0, len(entries))
	for _, e := range entries {
		err := tx.QueryRow(ctx, insertEntry,
			e.UserID, e.RuleID, e.Points, e.Description, e.TargetType, e.TargetID, e.CreatedAt,
		).Scan(&e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to append ledger entry: %w", err)
		}

		balance, err := scanBalance(tx.QueryRow(ctx, applyBalance, e.UserID, e.Points, dayKey, e.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
		postings = append(postings, &model.Posting{Entry: e, Balance: balance})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return postings, nil
}

// rewardPredicate matches the partial unique index uq_point_logs_reward.
const rewardPredicate = `rule_id IS NULL AND points >= 0 AND target_type IN ('achievement', 'challenge', 'challenge_streak')`

// Grant posts a one-time reward. The entry, its points and its stars land in one
// transaction, keyed by (user, target) through the reward index. When the key is
// already taken nothing is written and posted is false; the returned posting then
// carries only the current balance.
func (r *PointsRepository) Grant(ctx context.Context, day time.Time, e *model.PointLogEntry, stars int64) (*model.Posting, bool, error) {
	const insertEntry = `
		INSERT INTO point_logs (user_id, rule_id, points, description, target_type, target_id, created_at)
		VALUES ($1, NULL, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, target_type, target_id) WHERE ` + rewardPredicate + ` DO NOTHING
		RETURNING id
	`
	const applyBalance = `
		INSERT INTO user_points (user_id, total, today_points, today_date, stars, updated_at)
		VALUES ($1, $2, $2, $3::date, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			total = user_points.total + EXCLUDED.total,
			today_points = CASE
				WHEN user_points.today_date = EXCLUDED.today_date
				THEN user_points.today_points + EXCLUDED.today_points
				ELSE EXCLUDED.today_points
			END,
			today_date = EXCLUDED.today_date,
			stars = user_points.stars + EXCLUDED.stars,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + balanceColumns

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx, insertEntry,
		e.UserID, e.Points, e.Description, e.TargetType, e.TargetID, e.CreatedAt,
	).Scan(&e.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		balance, err := r.GetBalance(ctx, e.UserID)
		if err != nil {
			return nil, false, err
		}
		return &model.Posting{Balance: balance}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to append reward entry: %w", err)
	}

	balance, err := scanBalance(tx.QueryRow(ctx, applyBalance, e.UserID, e.Points, day.Format(dateLayout), stars, e.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit reward transaction: %w", err)
	}
	return &model.Posting{Entry: e, Balance: balance}, true, nil
}

// GetBalance returns the cached balance. A user without ledger activity gets a zero balance.
func (r *PointsRepository) GetBalance(ctx context.Context, userID int64) (*model.UserPoints, error) {
	const query = `SELECT ` + balanceColumns + ` FROM user_points WHERE user_id = $1`

	balance, err := scanBalance(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.UserPoints{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SumEntries returns the ledger sum for a user, the source of truth for the balance.
func (r *PointsRepository) SumEntries(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COALESCE(SUM(points), 0) FROM point_logs WHERE user_id = $1`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}

// SumPositiveSince sums the positive entries a rule produced for a user since a point in time.
func (r *PointsRepository) SumPositiveSince(ctx context.Context, userID int64, ruleID string, since time.Time) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(points), 0)
		FROM point_logs
		WHERE user_id = $1 AND rule_id = $2 AND points > 0 AND created_at >= $3
	`

	var sum int64
	if err := r.pool.QueryRow(ctx, query, userID, ruleID, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum rule entries: %w", err)
	}
	return sum, nil
}

// PositiveByTarget sums the positive entries keyed by a content item, per user.
func (r *PointsRepository) PositiveByTarget(ctx context.Context, targetType, targetID string) (map[int64]int64, error) {
	const query = `
		SELECT user_id, SUM(points)
		FROM point_logs
		WHERE target_type = $1 AND target_id = $2 AND points > 0
		GROUP BY user_id
		ORDER BY user_id
	`

	rows, err := r.pool.Query(ctx, query, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum target entries: %w", err)
	}
	defer rows.Close()

	sums := make(map[int64]int64)
	for rows.Next() {
		var userID, sum int64
		if err := rows.Scan(&userID, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan target sum: %w", err)
		}
		sums[userID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating target sums: %w", err)
	}
	return sums, nil
}

// ListEntries returns a user's ledger lines, newest first.
func (r *PointsRepository) ListEntries(ctx context.Context, userID int64, limit int) ([]*model.PointLogEntry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM point_logs
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.PointLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// ResetToday zeroes every "earned today" counter not already on day.
// Returns the number of balances reset.
func (r *PointsRepository) ResetToday(ctx context.Context, day time.Time) (int64, error) {
	const query = `
		UPDATE user_points
		SET today_points = 0, today_date = $1::date, updated_at = NOW()
		WHERE today_date <> $1::date
	`

	tag, err := r.pool.Exec(ctx, query, day.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Mismatches lists every user whose cached total differs from the ledger sum.
func (r *PointsRepository) Mismatches(ctx context.Context) ([]*model.BalanceMismatch, error) {
	const query = `
		SELECT up.user_id, up.total, COALESCE(SUM(pl.points), 0) AS ledger_sum
		FROM user_points up
		LEFT JOIN point_logs pl ON pl.user_id = up.user_id
		GROUP BY up.user_id, up.total
		HAVING up.total <> COALESCE(SUM(pl.points), 0)
		ORDER BY up.user_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile balances: %w", err)
	}
	defer rows.Close()

	var out []*model.BalanceMismatch
	for rows.Next() {
		var m model.BalanceMismatch
		if err := rows.Scan(&m.UserID, &m.Cached, &m.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan mismatch: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mismatches: %w", err)
	}
	return out, nil
}

// ActiveUserIDs returns users with ledger activity since a point in time.
func (r *PointsRepository) ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error) {
	const query = `
		SELECT DISTINCT user_id
		FROM point_logs
		WHERE created_at >= $1
		ORDER BY user_id
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active users: %w", err)
	}
	return ids, nil
}

// TopByTotal retrieves the top N users by cached total.
func (r *PointsRepository) TopByTotal(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, total
		FROM user_points
		ORDER BY total DESC, user_id
		LIMIT $1
	`
	return r.leaderboard(ctx, query, limit)
}

// TopEarnedBetween retrieves the top N users by net points earned in [from, to).
func (r *PointsRepository) TopEarnedBetween(ctx context.Context, from, to time.Time, limit int) ([]*model.LeaderboardEntry, error) {
	const query = `
		SELECT user_id, SUM(points) AS earned
		FROM point_logs
		WHERE created_at >= $2 AND created_at < $3
		GROUP BY user_id
		HAVING SUM(points) > 0
		ORDER BY earned DESC, user_id
		LIMIT $1
	`
	return r.leaderboard(ctx, query, limit, from, to)
}

func (r *PointsRepository) leaderboard(ctx context.Context, query string, limit int, args ...any) ([]*model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, query, append([]any{limit}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Points); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return entries, nil
}
