package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gamification-engine/internal/model"
)

// RuleRepository handles point rule persistence.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository creates a new RuleRepository instance.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

const ruleColumns = `id, category, action, description, condition_type, condition_value, points, daily_cap, enabled`

func scanRule(row pgx.Row) (*model.PointRule, error) {
	var r model.PointRule
	err := row.Scan(
		&r.ID,
		&r.Category,
		&r.Action,
		&r.Description,
		&r.ConditionType,
		&r.ConditionValue,
		&r.Points,
		&r.DailyCap,
		&r.Enabled,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRule retrieves a rule by id.
// Returns ErrRuleNotFound if the rule does not exist.
func (r *RuleRepository) GetRule(ctx context.Context, id string) (*model.PointRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM point_rules WHERE id = $1`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns every rule ordered by id.
func (r *RuleRepository) ListRules(ctx context.Context) ([]*model.PointRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM point_rules ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.PointRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// SeedRule inserts a rule unless one with the same id exists, so admin edits survive reseeding.
// Returns true if the rule was inserted.
func (r *RuleRepository) SeedRule(ctx context.Context, rule *model.PointRule) (bool, error) {
	const query = `
		INSERT INTO point_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		rule.ID, rule.Category, rule.Action, rule.Description, rule.ConditionType,
		rule.ConditionValue, rule.Points, rule.DailyCap, rule.Enabled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed rule %s: %w", rule.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetEnabled toggles a rule.
func (r *RuleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE point_rules SET enabled = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
