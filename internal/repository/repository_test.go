// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gamification-engine/internal/catalog"
	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container with the full schema and returns a pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool, true))
	// migrations are idempotent
	require.NoError(t, db.Migrate(ctx, pool, true))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

var (
	loc   = mustLoadLocation("Asia/Shanghai")
	day1  = time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	noon1 = day1.Add(12 * time.Hour)
)

func mustLoadLocation(name string) *time.Location {
	l, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return l
}

func strPtr(s string) *string { return &s }

func seedRules(t *testing.T, pool *pgxpool.Pool) *RuleRepository {
	t.Helper()
	rules := NewRuleRepository(pool)
	for i := range catalog.PointRules {
		_, err := rules.SeedRule(context.Background(), &catalog.PointRules[i])
		require.NoError(t, err)
	}
	return rules
}

// ============================================================================
// RuleRepository Tests
// ============================================================================

func TestRuleRepository_SeedPreservesEdits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rules := seedRules(t, pool)

	require.NoError(t, rules.SetEnabled(ctx, catalog.RuleComment, false))

	inserted, err := rules.SeedRule(ctx, &catalog.PointRules[0])
	require.NoError(t, err)
	assert.False(t, inserted)

	rule, err := rules.GetRule(ctx, catalog.RuleComment)
	require.NoError(t, err)
	assert.False(t, rule.Enabled)
	assert.Equal(t, int64(10), rule.DailyCap)

	all, err := rules.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(catalog.PointRules))

	_, err = rules.GetRule(ctx, "X999")
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, rules.SetEnabled(ctx, "X999", true), ErrRuleNotFound)
}

// ============================================================================
// PointsRepository Tests
// ============================================================================

func entry(userID, points int64, ruleID *string, at time.Time) *model.PointLogEntry {
	return &model.PointLogEntry{UserID: userID, RuleID: ruleID, Points: points, Description: "test", CreatedAt: at}
}

func TestPointsRepository_AppendKeepsBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedRules(t, pool)
	repo := NewPointsRepository(pool)

	postings, err := repo.Append(ctx, day1, entry(1, 5, strPtr(catalog.RuleDiaryStandard), noon1), entry(1, -2, nil, noon1))
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.NotZero(t, postings[0].Entry.ID)
	assert.Equal(t, int64(5), postings[0].Balance.Total)
	assert.Equal(t, int64(3), postings[1].Balance.Total)
	assert.Equal(t, int64(5), postings[1].Balance.TodayPoints)

	// a new day restarts the counter
	day2 := day1.AddDate(0, 0, 1)
	postings, err = repo.Append(ctx, day2, entry(1, 4, nil, day2.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, int64(7), postings[0].Balance.Total)
	assert.Equal(t, int64(4), postings[0].Balance.TodayPoints)

	sum, err := repo.SumEntries(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum)

	mismatches, err := repo.Mismatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	_, err = pool.Exec(ctx, `UPDATE user_points SET total = 100 WHERE user_id = 1`)
	require.NoError(t, err)
	mismatches, err = repo.Mismatches(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, model.BalanceMismatch{UserID: 1, Cached: 100, LedgerSum: 7}, *mismatches[0])
}

func TestPointsRepository_AppendIsAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPointsRepository(pool)

	// the unknown rule id violates the foreign key on the second entry
	_, err := repo.Append(ctx, day1, entry(1, 5, nil, noon1), entry(1, 5, strPtr("NOPE"), noon1))
	require.Error(t, err)

	sum, err := repo.SumEntries(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, sum)
	b, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, b.Total)
}

func TestPointsRepository_Queries(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedRules(t, pool)
	repo := NewPointsRepository(pool)
	rule := strPtr(catalog.RuleWorkPublish)
	work := func(e *model.PointLogEntry, id string) *model.PointLogEntry {
		e.TargetType, e.TargetID = strPtr("work"), strPtr(id)
		return e
	}

	_, err := repo.Append(ctx, day1,
		work(entry(1, 5, rule, noon1), "1"),
		work(entry(1, 5, rule, noon1.Add(time.Minute)), "1"),
		work(entry(2, 5, rule, noon1), "1"),
		work(entry(1, -1, rule, noon1), "1"),
		work(entry(3, 5, rule, day1.Add(-time.Hour)), "2"),
	)
	require.NoError(t, err)

	earned, err := repo.SumPositiveSince(ctx, 1, catalog.RuleWorkPublish, day1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), earned)
	earned, err = repo.SumPositiveSince(ctx, 3, catalog.RuleWorkPublish, day1)
	require.NoError(t, err)
	assert.Zero(t, earned)

	sums, err := repo.PositiveByTarget(ctx, "work", "1")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 10, 2: 5}, sums)

	entries, err := repo.ListEntries(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt) || entries[0].ID > entries[1].ID)
	assert.Equal(t, catalog.RuleWorkPublish, *entries[0].RuleID)

	ids, err := repo.ActiveUserIDs(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	top, err := repo.TopByTotal(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, model.LeaderboardEntry{UserID: 1, Points: 9}, *top[0])

	top, err = repo.TopEarnedBetween(ctx, day1, day1.AddDate(0, 0, 1), 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].UserID)
	assert.Equal(t, int64(9), top[0].Points)
}

func TestPointsRepository_GrantIsOncePerTarget(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPointsRepository(pool)
	reward := func(points int64, typ, id string) *model.PointLogEntry {
		e := entry(1, points, nil, noon1)
		e.TargetType, e.TargetID = strPtr(typ), strPtr(id)
		return e
	}

	posting, posted, err := repo.Grant(ctx, day1, reward(20, model.TargetChallenge, "7"), 2)
	require.NoError(t, err)
	assert.True(t, posted)
	assert.Positive(t, posting.Entry.ID)
	assert.Equal(t, int64(20), posting.Balance.Total)
	assert.Equal(t, int64(2), posting.Balance.Stars)

	// a retried grant for the same target is absorbed
	posting, posted, err = repo.Grant(ctx, day1, reward(20, model.TargetChallenge, "7"), 2)
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Nil(t, posting.Entry)
	assert.Equal(t, int64(20), posting.Balance.Total)
	assert.Equal(t, int64(2), posting.Balance.Stars)

	// other targets and other users are independent
	_, posted, err = repo.Grant(ctx, day1, reward(5, model.TargetAchievement, string(catalog.FirstDiary)), 1)
	require.NoError(t, err)
	assert.True(t, posted)
	other := reward(20, model.TargetChallenge, "7")
	other.UserID = 2
	_, posted, err = repo.Grant(ctx, day1, other, 0)
	require.NoError(t, err)
	assert.True(t, posted)

	// plain adjustments on a reward target are not constrained
	_, err = repo.Append(ctx, day1, reward(-20, model.TargetChallenge, "7"), reward(-5, model.TargetChallenge, "7"))
	require.NoError(t, err)

	sum, err := repo.SumEntries(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum)
}

func TestPointsRepository_StarsAndReset(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPointsRepository(pool)

	e := entry(1, 0, nil, noon1)
	e.TargetType, e.TargetID = strPtr(model.TargetAchievement), strPtr("STARS_ONLY")
	_, _, err := repo.Grant(ctx, day1, e, 2)
	require.NoError(t, err)
	_, err = repo.Append(ctx, day1, entry(1, 6, nil, noon1))
	require.NoError(t, err)
	e = entry(1, 0, nil, noon1)
	e.TargetType, e.TargetID = strPtr(model.TargetChallenge), strPtr("1")
	_, _, err = repo.Grant(ctx, day1, e, 3)
	require.NoError(t, err)

	b, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Stars)
	assert.Equal(t, int64(6), b.Total)
	assert.Equal(t, int64(6), b.TodayPoints)

	n, err := repo.ResetToday(ctx, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = repo.ResetToday(ctx, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, n)

	b, err = repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, b.TodayPoints)
	assert.Equal(t, int64(6), b.Total)

	missing, err := repo.GetBalance(ctx, 404)
	require.NoError(t, err)
	assert.Zero(t, missing.Total)
}

// ============================================================================
// AchievementRepository Tests
// ============================================================================

func TestAchievementRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewAchievementRepository(pool)

	for _, v := range []int64{1, 4} {
		require.NoError(t, repo.UpsertProgress(ctx, &model.AchievementProgress{
			UserID: 1, Code: catalog.DiaryWriter10, CurrentValue: v, TargetValue: 10, UpdatedAt: noon1,
		}))
	}
	progress, err := repo.ListProgress(ctx, 1)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, int64(4), progress[0].CurrentValue)

	created, err := repo.Unlock(ctx, 1, catalog.FirstDiary, noon1)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.Unlock(ctx, 1, catalog.FirstDiary, noon1.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := repo.SetShowcased(ctx, 1, catalog.FirstDiary, true)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SetShowcased(ctx, 1, catalog.FirstWork, true)
	require.NoError(t, err)
	assert.False(t, ok)

	have, err := repo.ListUnlocked(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, have, catalog.FirstDiary)
	assert.True(t, have[catalog.FirstDiary].Showcased)
	assert.True(t, have[catalog.FirstDiary].UnlockedAt.Equal(noon1))
	assert.False(t, have[catalog.FirstDiary].Rewarded)

	require.NoError(t, repo.MarkRewarded(ctx, 1, catalog.FirstDiary))
	have, err = repo.ListUnlocked(ctx, 1)
	require.NoError(t, err)
	assert.True(t, have[catalog.FirstDiary].Rewarded)
}

// ============================================================================
// ChallengeRepository Tests
// ============================================================================

func seedTemplates(t *testing.T, repo *ChallengeRepository) map[model.Difficulty][]*model.ChallengeTemplate {
	t.Helper()
	ctx := context.Background()
	for i := range catalog.ChallengeTemplates {
		_, err := repo.SeedTemplate(ctx, &catalog.ChallengeTemplates[i])
		require.NoError(t, err)
	}
	inserted, err := repo.SeedTemplate(ctx, &catalog.ChallengeTemplates[0])
	require.NoError(t, err)
	require.False(t, inserted)

	out := make(map[model.Difficulty][]*model.ChallengeTemplate)
	for _, d := range model.Difficulties() {
		list, err := repo.ListActiveTemplates(ctx, d)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		out[d] = list
	}
	return out
}

func TestChallengeRepository_Sets(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewChallengeRepository(pool)
	templates := seedTemplates(t, repo)

	for i := 1; i < len(templates[model.DifficultyEasy]); i++ {
		assert.Less(t, templates[model.DifficultyEasy][i-1].ID, templates[model.DifficultyEasy][i].ID)
	}

	_, err := repo.GetSetByDate(ctx, day1)
	assert.ErrorIs(t, err, ErrSetNotFound)

	draft := &model.DailyChallengeSet{
		Date:             day1,
		EasyTemplateID:   templates[model.DifficultyEasy][0].ID,
		MediumTemplateID: templates[model.DifficultyMedium][0].ID,
		HardTemplateID:   templates[model.DifficultyHard][0].ID,
		CreatedAt:        noon1,
	}
	set, err := repo.CreateSet(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", set.Date.Format(dateLayout))

	_, err = repo.CreateSet(ctx, draft)
	assert.ErrorIs(t, err, ErrSetExists)

	got, err := repo.GetSetByDate(ctx, day1.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, set.ID, got.ID)

	byID, err := repo.GetTemplates(ctx, []int64{set.EasyTemplateID, set.HardTemplateID})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
	assert.Equal(t, model.DifficultyHard, byID[set.HardTemplateID].Difficulty)
}

func TestChallengeRepository_Records(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewChallengeRepository(pool)
	templates := seedTemplates(t, repo)

	newSet := func(day time.Time) *model.DailyChallengeSet {
		set, err := repo.CreateSet(ctx, &model.DailyChallengeSet{
			Date:             day,
			EasyTemplateID:   templates[model.DifficultyEasy][0].ID,
			MediumTemplateID: templates[model.DifficultyMedium][0].ID,
			HardTemplateID:   templates[model.DifficultyHard][0].ID,
			CreatedAt:        day,
		})
		require.NoError(t, err)
		return set
	}
	records := func(set *model.DailyChallengeSet) []*model.UserChallengeRecord {
		var out []*model.UserChallengeRecord
		for _, d := range model.Difficulties() {
			out = append(out, &model.UserChallengeRecord{UserID: 1, SetID: set.ID, TemplateID: set.TemplateID(d), Difficulty: d, Target: 3})
		}
		return out
	}
	completeAndClaim := func(set *model.DailyChallengeSet, claim bool) {
		list, err := repo.ListRecords(ctx, 1, set.ID)
		require.NoError(t, err)
		for _, rec := range list {
			at := noon1
			rec.Progress, rec.Status, rec.CompletedAt = 3, model.StatusCompleted, &at
			require.NoError(t, repo.SaveProgress(ctx, rec))
			if claim {
				ok, err := repo.MarkClaimed(ctx, rec.ID, at)
				require.NoError(t, err)
				require.True(t, ok)
			}
		}
	}

	set1 := newSet(day1)
	n, err := repo.CreateRecords(ctx, records(set1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = repo.CreateRecords(ctx, records(set1))
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := repo.ListRecords(ctx, 1, set1.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, model.DifficultyEasy, list[0].Difficulty)
	assert.Equal(t, model.DifficultyHard, list[2].Difficulty)
	assert.Equal(t, model.StatusInProgress, list[0].Status)

	// claim requires completion
	ok, err := repo.MarkClaimed(ctx, list[0].ID, noon1)
	require.NoError(t, err)
	assert.False(t, ok)

	completeAndClaim(set1, true)

	// a second claim and further progress are both refused
	ok, err = repo.MarkClaimed(ctx, list[0].ID, noon1)
	require.NoError(t, err)
	assert.False(t, ok)
	list[0].Progress, list[0].Status = 1, model.StatusInProgress
	require.NoError(t, repo.SaveProgress(ctx, list[0]))
	rec, err := repo.GetRecord(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Progress)
	assert.True(t, rec.RewardClaimed)

	require.NoError(t, repo.UnmarkClaimed(ctx, rec.ID))
	rec, err = repo.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, rec.RewardClaimed)
	assert.Nil(t, rec.ClaimedAt)
	ok, err = repo.MarkClaimed(ctx, rec.ID, noon1)
	require.NoError(t, err)
	assert.True(t, ok)

	set2 := newSet(day1.AddDate(0, 0, 1))
	_, err = repo.CreateRecords(ctx, records(set2))
	require.NoError(t, err)
	completeAndClaim(set2, false)

	all, err := repo.PerfectDays(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2024-03-16", all[0].Format(dateLayout))

	claimed, err := repo.PerfectDays(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "2024-03-15", claimed[0].Format(dateLayout))

	count, err := repo.CountCompleted(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	_, err = repo.GetRecord(ctx, 999999)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

// ============================================================================
// ContentMetrics Tests
// ============================================================================

func TestContentMetrics(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	m := NewContentMetrics(pool)

	// 23:30 and 00:30 local time land on consecutive local days
	_, err := pool.Exec(ctx, `
		INSERT INTO diaries (user_id, word_count, like_count, created_at) VALUES
			(1, 300, 4, $1), (1, 900, 10, $2), (1, 100, 0, $3), (2, 5000, 0, $1)
	`, day1.Add(-30*time.Minute), day1.Add(30*time.Minute), day1.AddDate(0, 0, -3))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO works (user_id, like_count) VALUES (1, 25), (1, 7);
		INSERT INTO books (user_id, status) VALUES (1, 'finished'), (1, 'reading');
		INSERT INTO user_login_stats (user_id, consecutive_login_days) VALUES (1, 12);
	`)
	require.NoError(t, err)

	count, err := m.Count(ctx, 1, model.ContentDiary)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = m.Count(ctx, 1, model.ContentDiary, model.ContentWork)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	count, err = m.Count(ctx, 1, model.ContentBook)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	sum, err := m.Sum(ctx, 1, model.FieldWordCount, model.ContentDiary)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), sum)

	likes, err := m.Sum(ctx, 1, model.FieldLikes, model.ContentDiary, model.ContentWork, model.ContentReading)
	require.NoError(t, err)
	assert.Equal(t, int64(46), likes)

	peak, err := m.Max(ctx, 1, model.FieldLikes, model.ContentWork)
	require.NoError(t, err)
	assert.Equal(t, int64(25), peak)

	days, err := m.ActiveDates(ctx, 1, loc, model.ContentDiary)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-03-15", days[0].Format(dateLayout))
	assert.Equal(t, "2024-03-14", days[1].Format(dateLayout))
	assert.Equal(t, "2024-03-12", days[2].Format(dateLayout))

	streak, err := m.LoginStreak(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), streak)
	streak, err = m.LoginStreak(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, streak)

	_, err = m.Sum(ctx, 1, model.FieldDuration, model.ContentDiary)
	assert.ErrorIs(t, err, ErrUnknownMetric)
	_, err = m.Count(ctx, 1, "nonsense")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	_, err = m.Count(ctx, 1)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}
