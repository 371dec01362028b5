package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gamification-engine/internal/model"
)

// ErrUnknownMetric is returned for a content kind or field the reader cannot query.
var ErrUnknownMetric = errors.New("unknown content metric")

// contentSource is a collaborator-owned table and the rows of it that count.
type contentSource struct {
	table  string
	filter string
	fields map[model.ContentField]bool
}

// contentSources is the closed set of tables the reader may touch. Identifiers are
// interpolated from here only, never from caller input.
var contentSources = map[model.ContentKind]contentSource{
	model.ContentDiary:    {table: "diaries", fields: fieldSet(model.FieldWordCount, model.FieldLikes)},
	model.ContentWork:     {table: "works", fields: fieldSet(model.FieldLikes)},
	model.ContentHomework: {table: "homeworks"},
	model.ContentReading:  {table: "reading_logs", fields: fieldSet(model.FieldLikes)},
	model.ContentBook:     {table: "books", filter: "status = 'finished'"},
	model.ContentStudy:    {table: "study_records", fields: fieldSet(model.FieldDuration)},
	model.ContentMovie:    {table: "movie_logs"},
	model.ContentMusic:    {table: "music_logs"},
	model.ContentGame:     {table: "game_records"},
}

func fieldSet(fields ...model.ContentField) map[model.ContentField]bool {
	m := make(map[model.ContentField]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

// ContentMetrics reads achievement metrics from the content modules' tables.
type ContentMetrics struct {
	pool *pgxpool.Pool
}

// NewContentMetrics creates a new ContentMetrics instance.
func NewContentMetrics(pool *pgxpool.Pool) *ContentMetrics {
	return &ContentMetrics{pool: pool}
}

// selectFrom builds "SELECT <expr> FROM <table> WHERE user_id = $1 [AND filter]" per kind.
func selectFrom(kinds []model.ContentKind, field model.ContentField, expr func(col string) string) ([]string, error) {
	if len(kinds) == 0 {
		return nil, ErrUnknownMetric
	}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		src, ok := contentSources[k]
		if !ok {
			return nil, fmt.Errorf("%w: kind %s", ErrUnknownMetric, k)
		}
		if field != "" && !src.fields[field] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMetric, k, field)
		}
		where := "user_id = $1"
		if src.filter != "" {
			where += " AND " + src.filter
		}
		parts = append(parts, fmt.Sprintf("SELECT %s FROM %s WHERE %s", expr(string(field)), src.table, where))
	}
	return parts, nil
}

func (m *ContentMetrics) scalar(ctx context.Context, query string, args ...any) (int64, error) {
	var v int64
	if err := m.pool.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read content metric: %w", err)
	}
	return v, nil
}

// Count returns how many items of the given kinds a user owns.
func (m *ContentMetrics) Count(ctx context.Context, userID int64, kinds ...model.ContentKind) (int64, error) {
	parts, err := selectFrom(kinds, "", func(string) string { return "COUNT(*) AS v" })
	if err != nil {
		return 0, err
	}
	return m.scalar(ctx, "SELECT COALESCE(SUM(v), 0)::bigint FROM ("+strings.Join(parts, " UNION ALL ")+") t", userID)
}

// Sum adds a numeric field across the given kinds.
func (m *ContentMetrics) Sum(ctx context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error) {
	parts, err := selectFrom(kinds, field, func(col string) string { return "COALESCE(SUM(" + col + "), 0) AS v" })
	if err != nil {
		return 0, err
	}
	return m.scalar(ctx, "SELECT COALESCE(SUM(v), 0)::bigint FROM ("+strings.Join(parts, " UNION ALL ")+") t", userID)
}

// Max returns the peak value of a field over single items of the given kinds.
func (m *ContentMetrics) Max(ctx context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error) {
	parts, err := selectFrom(kinds, field, func(col string) string { return "COALESCE(MAX(" + col + "), 0) AS v" })
	if err != nil {
		return 0, err
	}
	return m.scalar(ctx, "SELECT COALESCE(MAX(v), 0)::bigint FROM ("+strings.Join(parts, " UNION ALL ")+") t", userID)
}

// ActiveDates returns the distinct calendar days in loc on which the user created
// items of the given kinds, newest first.
func (m *ContentMetrics) ActiveDates(ctx context.Context, userID int64, loc *time.Location, kinds ...model.ContentKind) ([]time.Time, error) {
	parts, err := selectFrom(kinds, "", func(string) string { return "(created_at AT TIME ZONE $2)::date AS d" })
	if err != nil {
		return nil, err
	}
	query := "SELECT DISTINCT d FROM (" + strings.Join(parts, " UNION ALL ") + ") t ORDER BY d DESC"

	rows, err := m.pool.Query(ctx, query, userID, loc.String())
	if err != nil {
		return nil, fmt.Errorf("failed to read active dates: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan active date: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active dates: %w", err)
	}
	return days, nil
}

// LoginStreak reads the consecutive-login counter maintained by the session module.
func (m *ContentMetrics) LoginStreak(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT consecutive_login_days FROM user_login_stats WHERE user_id = $1`

	var days int64
	err := m.pool.QueryRow(ctx, query, userID).Scan(&days)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read login streak: %w", err)
	}
	return days, nil
}
