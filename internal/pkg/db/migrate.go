package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"point rules", `
		CREATE TABLE IF NOT EXISTS point_rules (
			id VARCHAR(16) PRIMARY KEY,
			category VARCHAR(32) NOT NULL,
			action VARCHAR(32) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			condition_type VARCHAR(16) NOT NULL DEFAULT 'none',
			condition_value BIGINT NOT NULL DEFAULT 0,
			points BIGINT NOT NULL,
			daily_cap BIGINT NOT NULL DEFAULT 0 CHECK (daily_cap >= 0),
			enabled BOOLEAN NOT NULL DEFAULT TRUE
		);
	`},
	{"point logs", `
		CREATE TABLE IF NOT EXISTS point_logs (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			rule_id VARCHAR(16) REFERENCES point_rules(id),
			points BIGINT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			target_type VARCHAR(32),
			target_id VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_point_logs_user_rule_time ON point_logs(user_id, rule_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_point_logs_target ON point_logs(target_type, target_id);
		CREATE INDEX IF NOT EXISTS idx_point_logs_time ON point_logs(created_at DESC);
	`},
	{"user points", `
		CREATE TABLE IF NOT EXISTS user_points (
			user_id BIGINT PRIMARY KEY,
			total BIGINT NOT NULL DEFAULT 0,
			today_points BIGINT NOT NULL DEFAULT 0,
			today_date DATE NOT NULL DEFAULT CURRENT_DATE,
			stars BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_user_points_total ON user_points(total DESC);
	`},
	{"achievements", `
		CREATE TABLE IF NOT EXISTS achievement_progress (
			user_id BIGINT NOT NULL,
			code VARCHAR(32) NOT NULL,
			current_value BIGINT NOT NULL DEFAULT 0,
			target_value BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, code)
		);
		CREATE TABLE IF NOT EXISTS user_achievements (
			user_id BIGINT NOT NULL,
			code VARCHAR(32) NOT NULL,
			unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			showcased BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (user_id, code)
		);
	`},
	{"reward grants", `
		ALTER TABLE user_achievements ADD COLUMN IF NOT EXISTS rewarded BOOLEAN NOT NULL DEFAULT FALSE;
		CREATE UNIQUE INDEX IF NOT EXISTS uq_point_logs_reward ON point_logs(user_id, target_type, target_id)
			WHERE rule_id IS NULL AND points >= 0 AND target_type IN ('achievement', 'challenge', 'challenge_streak');
	`},
	{"challenges", `
		CREATE TABLE IF NOT EXISTS challenge_templates (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(64) NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			type VARCHAR(16) NOT NULL,
			difficulty VARCHAR(16) NOT NULL,
			condition_type VARCHAR(16) NOT NULL,
			condition_value BIGINT NOT NULL,
			reward_points BIGINT NOT NULL DEFAULT 0,
			reward_stars BIGINT NOT NULL DEFAULT 0,
			weight BIGINT NOT NULL DEFAULT 1 CHECK (weight >= 0),
			active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE TABLE IF NOT EXISTS daily_challenge_sets (
			id BIGSERIAL PRIMARY KEY,
			challenge_date DATE NOT NULL UNIQUE,
			easy_template_id BIGINT NOT NULL REFERENCES challenge_templates(id),
			medium_template_id BIGINT NOT NULL REFERENCES challenge_templates(id),
			hard_template_id BIGINT NOT NULL REFERENCES challenge_templates(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS user_challenges (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			set_id BIGINT NOT NULL REFERENCES daily_challenge_sets(id),
			template_id BIGINT NOT NULL REFERENCES challenge_templates(id),
			difficulty VARCHAR(16) NOT NULL,
			progress BIGINT NOT NULL DEFAULT 0,
			target BIGINT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'IN_PROGRESS',
			completed_at TIMESTAMPTZ,
			reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_at TIMESTAMPTZ,
			UNIQUE (user_id, set_id, difficulty)
		);
		CREATE INDEX IF NOT EXISTS idx_user_challenges_user ON user_challenges(user_id, status);
	`},
	{"likes challenge type", `
		UPDATE challenge_templates SET type = 'LIKES' WHERE title = '人气之星' AND type = 'WORK';
	`},
}

// contentMigrations creates the collaborator-owned tables the metric reader queries,
// for deployments and tests where the content modules have not created them yet.
var contentMigrations = []migration{
	{"content tables", `
		CREATE TABLE IF NOT EXISTS diaries (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, word_count BIGINT NOT NULL DEFAULT 0, like_count BIGINT NOT NULL DEFAULT 0, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS works (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, like_count BIGINT NOT NULL DEFAULT 0, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS homeworks (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS reading_logs (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, like_count BIGINT NOT NULL DEFAULT 0, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS books (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, status VARCHAR(16) NOT NULL DEFAULT 'reading', created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS study_records (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, duration BIGINT NOT NULL DEFAULT 0, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS movie_logs (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS music_logs (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS game_records (id BIGSERIAL PRIMARY KEY, user_id BIGINT NOT NULL, created_at TIMESTAMPTZ NOT NULL DEFAULT NOW());
		CREATE TABLE IF NOT EXISTS user_login_stats (user_id BIGINT PRIMARY KEY, consecutive_login_days BIGINT NOT NULL DEFAULT 0, last_login_date DATE);
	`},
}

// Migrate applies the engine schema. With withContent it also creates the
// collaborator content tables if they are missing.
func Migrate(ctx context.Context, db Execer, withContent bool) error {
	log.Info().Msg("Running database migrations...")

	all := migrations
	if withContent {
		all = append(append([]migration{}, migrations...), contentMigrations...)
	}

	for i, m := range all {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
