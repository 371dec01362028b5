package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gamification-engine/internal/config"
	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/lock"
	"gamification-engine/internal/repository"
)

// baseTime is 10:00 on 2024-03-15 in the test location.
var (
	testLoc  = time.FixedZone("CST", 8*3600)
	baseTime = time.Date(2024, 3, 15, 10, 0, 0, 0, testLoc)
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) AddDays(n int) {
	c.mu.Lock()
	c.now = c.now.AddDate(0, 0, n)
	c.mu.Unlock()
}

func (c *fakeClock) Calendar() Calendar {
	return NewCalendar(c.Now, testLoc)
}

// memRules is an in-memory RuleStore.
type memRules struct {
	rules map[string]*model.PointRule
}

func newMemRules(rules ...model.PointRule) *memRules {
	m := &memRules{rules: make(map[string]*model.PointRule)}
	for i := range rules {
		r := rules[i]
		m.rules[r.ID] = &r
	}
	return m
}

func (m *memRules) GetRule(_ context.Context, id string) (*model.PointRule, error) {
	r, ok := m.rules[id]
	if !ok {
		return nil, repository.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

// memLedger is an in-memory LedgerStore that keeps balances the way the SQL
// implementation does, inside one critical section per Append.
type memLedger struct {
	mu       sync.Mutex
	entries  []*model.PointLogEntry
	balances map[int64]*model.UserPoints
	failNext error
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[int64]*model.UserPoints)}
}

func (m *memLedger) balance(userID int64, day time.Time) *model.UserPoints {
	b, ok := m.balances[userID]
	if !ok {
		b = &model.UserPoints{UserID: userID, TodayDate: day}
		m.balances[userID] = b
	}
	return b
}

func (m *memLedger) Append(_ context.Context, day time.Time, entries ...*model.PointLogEntry) ([]*model.Posting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}

	postings := make([]*model.Posting, 0, len(entries))
	for _, e := range entries {
		cp := *e
		cp.ID = int64(len(m.entries) + 1)
		m.entries = append(m.entries, &cp)

		b := m.balance(e.UserID, day)
		if !sameDay(b.TodayDate, day) {
			b.TodayPoints = 0
			b.TodayDate = day
		}
		b.Total += e.Points
		if e.Points > 0 {
			b.TodayPoints += e.Points
		}
		bc := *b
		postings = append(postings, &model.Posting{Entry: &cp, Balance: &bc})
	}
	return postings, nil
}

// Grant mirrors the partial unique index on reward targets.
func (m *memLedger) Grant(_ context.Context, day time.Time, e *model.PointLogEntry, stars int64) (*model.Posting, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, false, err
	}

	for _, have := range m.entries {
		if have.UserID == e.UserID && have.RuleID == nil && have.Points >= 0 &&
			have.TargetType != nil && *have.TargetType == *e.TargetType && *have.TargetID == *e.TargetID {
			bc := *m.balance(e.UserID, day)
			return &model.Posting{Balance: &bc}, false, nil
		}
	}

	cp := *e
	cp.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, &cp)

	b := m.balance(e.UserID, day)
	if !sameDay(b.TodayDate, day) {
		b.TodayPoints = 0
		b.TodayDate = day
	}
	b.Total += e.Points
	b.TodayPoints += e.Points
	b.Stars += stars
	bc := *b
	return &model.Posting{Entry: &cp, Balance: &bc}, true, nil
}

// grants counts the reward lines posted for a target.
func (m *memLedger) grants(userID int64, target model.Target) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.UserID == userID && e.RuleID == nil && e.TargetType != nil &&
			*e.TargetType == target.Type && *e.TargetID == target.ID {
			n++
		}
	}
	return n
}

func (m *memLedger) GetBalance(_ context.Context, userID int64) (*model.UserPoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return &model.UserPoints{UserID: userID}, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memLedger) SumEntries(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Points
		}
	}
	return sum, nil
}

func (m *memLedger) SumPositiveSince(_ context.Context, userID int64, ruleID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID && e.RuleID != nil && *e.RuleID == ruleID && e.Points > 0 && !e.CreatedAt.Before(since) {
			sum += e.Points
		}
	}
	return sum, nil
}

func (m *memLedger) PositiveByTarget(_ context.Context, targetType, targetID string) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[int64]int64)
	for _, e := range m.entries {
		if e.TargetType != nil && *e.TargetType == targetType && *e.TargetID == targetID && e.Points > 0 {
			sums[e.UserID] += e.Points
		}
	}
	return sums, nil
}

func (m *memLedger) ListEntries(_ context.Context, userID int64, limit int) ([]*model.PointLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PointLogEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memLedger) ResetToday(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range m.balances {
		if !sameDay(b.TodayDate, day) {
			b.TodayPoints = 0
			b.TodayDate = day
			n++
		}
	}
	return n, nil
}

func (m *memLedger) Mismatches(_ context.Context) ([]*model.BalanceMismatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[int64]int64)
	for _, e := range m.entries {
		sums[e.UserID] += e.Points
	}
	var out []*model.BalanceMismatch
	for id, b := range m.balances {
		if sums[id] != b.Total {
			out = append(out, &model.BalanceMismatch{UserID: id, Cached: b.Total, LedgerSum: sums[id]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memLedger) ActiveUserIDs(_ context.Context, since time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) && !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// corrupt overwrites a cached total without a ledger line.
func (m *memLedger) corrupt(userID, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance(userID, time.Time{}).Total = total
}

// memAchievements is an in-memory AchievementStore.
type memAchievements struct {
	mu       sync.Mutex
	progress map[int64]map[model.AchievementCode]*model.AchievementProgress
	unlocked map[int64]map[model.AchievementCode]*model.UserAchievement
}

func newMemAchievements() *memAchievements {
	return &memAchievements{
		progress: make(map[int64]map[model.AchievementCode]*model.AchievementProgress),
		unlocked: make(map[int64]map[model.AchievementCode]*model.UserAchievement),
	}
}

func (m *memAchievements) UpsertProgress(_ context.Context, p *model.AchievementProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progress[p.UserID] == nil {
		m.progress[p.UserID] = make(map[model.AchievementCode]*model.AchievementProgress)
	}
	cp := *p
	m.progress[p.UserID][p.Code] = &cp
	return nil
}

func (m *memAchievements) ListProgress(_ context.Context, userID int64) ([]*model.AchievementProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AchievementProgress
	for _, p := range m.progress[userID] {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memAchievements) Unlock(_ context.Context, userID int64, code model.AchievementCode, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unlocked[userID] == nil {
		m.unlocked[userID] = make(map[model.AchievementCode]*model.UserAchievement)
	}
	if _, ok := m.unlocked[userID][code]; ok {
		return false, nil
	}
	m.unlocked[userID][code] = &model.UserAchievement{UserID: userID, Code: code, UnlockedAt: at}
	return true, nil
}

func (m *memAchievements) ListUnlocked(_ context.Context, userID int64) (map[model.AchievementCode]*model.UserAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.AchievementCode]*model.UserAchievement, len(m.unlocked[userID]))
	for code, ua := range m.unlocked[userID] {
		cp := *ua
		out[code] = &cp
	}
	return out, nil
}

func (m *memAchievements) MarkRewarded(_ context.Context, userID int64, code model.AchievementCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ua, ok := m.unlocked[userID][code]; ok {
		ua.Rewarded = true
	}
	return nil
}

func (m *memAchievements) SetShowcased(_ context.Context, userID int64, code model.AchievementCode, on bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ua, ok := m.unlocked[userID][code]
	if !ok {
		return false, nil
	}
	ua.Showcased = on
	return true, nil
}

// memMetrics serves metric values from in-memory content rows.
type memMetrics struct {
	mu     sync.Mutex
	items  map[int64][]contentItem
	logins map[int64]int64
}

type contentItem struct {
	kind   model.ContentKind
	fields map[model.ContentField]int64
	at     time.Time
}

func newMemMetrics() *memMetrics {
	return &memMetrics{items: make(map[int64][]contentItem), logins: make(map[int64]int64)}
}

func (m *memMetrics) add(userID int64, kind model.ContentKind, at time.Time, fields map[model.ContentField]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = append(m.items[userID], contentItem{kind: kind, fields: fields, at: at})
}

func (m *memMetrics) each(userID int64, kinds []model.ContentKind, fn func(contentItem)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items[userID] {
		for _, k := range kinds {
			if it.kind == k {
				fn(it)
				break
			}
		}
	}
}

func (m *memMetrics) Count(_ context.Context, userID int64, kinds ...model.ContentKind) (int64, error) {
	var n int64
	m.each(userID, kinds, func(contentItem) { n++ })
	return n, nil
}

func (m *memMetrics) Sum(_ context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error) {
	var n int64
	m.each(userID, kinds, func(it contentItem) { n += it.fields[field] })
	return n, nil
}

func (m *memMetrics) Max(_ context.Context, userID int64, field model.ContentField, kinds ...model.ContentKind) (int64, error) {
	var n int64
	m.each(userID, kinds, func(it contentItem) { n = max(n, it.fields[field]) })
	return n, nil
}

func (m *memMetrics) ActiveDates(_ context.Context, userID int64, loc *time.Location, kinds ...model.ContentKind) ([]time.Time, error) {
	var days []time.Time
	m.each(userID, kinds, func(it contentItem) {
		t := it.at.In(loc)
		days = append(days, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	})
	return days, nil
}

func (m *memMetrics) LoginStreak(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins[userID], nil
}

// memChallenges is an in-memory ChallengeStore.
type memChallenges struct {
	mu        sync.Mutex
	templates []*model.ChallengeTemplate
	sets      []*model.DailyChallengeSet
	records   []*model.UserChallengeRecord

	// setBeforeCreate simulates another process winning the date key race.
	setBeforeCreate *model.DailyChallengeSet
	createSetCalls  int
}

func newMemChallenges(templates ...model.ChallengeTemplate) *memChallenges {
	m := &memChallenges{}
	for i := range templates {
		t := templates[i]
		t.ID = int64(i + 1)
		m.templates = append(m.templates, &t)
	}
	return m
}

func (m *memChallenges) ListActiveTemplates(_ context.Context, d model.Difficulty) ([]*model.ChallengeTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ChallengeTemplate
	for _, t := range m.templates {
		if t.Difficulty == d && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memChallenges) GetTemplates(_ context.Context, ids []int64) (map[int64]*model.ChallengeTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*model.ChallengeTemplate)
	for _, id := range ids {
		for _, t := range m.templates {
			if t.ID == id {
				out[id] = t
			}
		}
	}
	return out, nil
}

func (m *memChallenges) GetSetByDate(_ context.Context, day time.Time) (*model.DailyChallengeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sets {
		if sameDay(s.Date, day) {
			return s, nil
		}
	}
	return nil, repository.ErrSetNotFound
}

func (m *memChallenges) CreateSet(_ context.Context, set *model.DailyChallengeSet) (*model.DailyChallengeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createSetCalls++
	if m.setBeforeCreate != nil {
		winner := *m.setBeforeCreate
		winner.ID = int64(len(m.sets) + 1)
		m.sets = append(m.sets, &winner)
		m.setBeforeCreate = nil
	}
	for _, s := range m.sets {
		if sameDay(s.Date, set.Date) {
			return nil, repository.ErrSetExists
		}
	}
	cp := *set
	cp.ID = int64(len(m.sets) + 1)
	m.sets = append(m.sets, &cp)
	return &cp, nil
}

func (m *memChallenges) CreateRecords(ctx context.Context, records []*model.UserChallengeRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
outer:
	for _, r := range records {
		for _, have := range m.records {
			if have.UserID == r.UserID && have.SetID == r.SetID && have.Difficulty == r.Difficulty {
				continue outer
			}
		}
		cp := *r
		cp.ID = int64(len(m.records) + 1)
		m.records = append(m.records, &cp)
		n++
	}
	return n, nil
}

func (m *memChallenges) ListRecords(_ context.Context, userID, setID int64) ([]*model.UserChallengeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserChallengeRecord
	for _, r := range m.records {
		if r.UserID == userID && r.SetID == setID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memChallenges) GetRecord(_ context.Context, id int64) (*model.UserChallengeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (m *memChallenges) SaveProgress(_ context.Context, rec *model.UserChallengeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == rec.ID && r.Status == model.StatusInProgress {
			r.Progress = rec.Progress
			r.Status = rec.Status
			r.CompletedAt = rec.CompletedAt
		}
	}
	return nil
}

func (m *memChallenges) MarkClaimed(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.Status == model.StatusCompleted && !r.RewardClaimed {
			r.RewardClaimed = true
			r.ClaimedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memChallenges) UnmarkClaimed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.RewardClaimed = false
			r.ClaimedAt = nil
		}
	}
	return nil
}

func (m *memChallenges) setDate(id int64) time.Time {
	for _, s := range m.sets {
		if s.ID == id {
			return s.Date
		}
	}
	return time.Time{}
}

func (m *memChallenges) PerfectDays(_ context.Context, userID int64, claimedOnly bool) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perSet := make(map[int64]int)
	for _, r := range m.records {
		if r.UserID != userID || r.Status != model.StatusCompleted {
			continue
		}
		if claimedOnly && !r.RewardClaimed {
			continue
		}
		perSet[r.SetID]++
	}
	var days []time.Time
	for id, n := range perSet {
		if n == len(model.Difficulties()) {
			d := m.setDate(id)
			days = append(days, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days, nil
}

func (m *memChallenges) CountCompleted(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.UserID == userID && r.Status == model.StatusCompleted {
			n++
		}
	}
	return n, nil
}

// completeAll marks every record of a user in a set completed.
func (m *memChallenges) completeAll(userID, setID int64, at time.Time) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, r := range m.records {
		if r.UserID == userID && r.SetID == setID {
			r.Progress = r.Target
			r.Status = model.StatusCompleted
			r.CompletedAt = &at
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// recordingNotifier captures unlock notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	codes []model.AchievementCode
	err   error
}

func (n *recordingNotifier) AchievementUnlocked(_ context.Context, _ int64, def model.AchievementDefinition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, def.Code)
	return n.err
}

var errBoom = errors.New("boom")

// flakyRewarder fails the next fails grants of one target type, then passes
// through to the point service.
type flakyRewarder struct {
	*PointService
	mu         sync.Mutex
	failTarget string
	fails      int
}

func (f *flakyRewarder) failNext(targetType string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTarget = targetType
	f.fails = n
}

func (f *flakyRewarder) GrantOnce(ctx context.Context, userID int64, r Reward) (*Credit, bool, error) {
	f.mu.Lock()
	if f.fails > 0 && r.Target.Type == f.failTarget {
		f.fails--
		f.mu.Unlock()
		return nil, false, errBoom
	}
	f.mu.Unlock()
	return f.PointService.GrantOnce(ctx, userID, r)
}

// harness wires every engine over in-memory stores.
type harness struct {
	clock        *fakeClock
	rules        *memRules
	ledger       *memLedger
	store        *memAchievements
	metrics      *memMetrics
	challenges   *memChallenges
	notifier     *recordingNotifier
	points       *PointService
	rewards      *flakyRewarder
	userLock     *lock.UserLock
	achievements *AchievementService
	daily        *ChallengeService
	engine       *Engine
}

func testChallengeConfig() config.ChallengeConfig {
	return config.ChallengeConfig{
		Rewards:       config.RewardConfig{Easy: 10, Medium: 20, Hard: 30},
		StreakBonus:   map[int]int64{3: 20, 7: 50},
		ActiveDays:    7,
		FanoutWorkers: 4,
		FanoutTimeout: time.Minute,
		SeedSalt:      "test",
	}
}

func newHarness(rules []model.PointRule, templates []model.ChallengeTemplate) *harness {
	h := &harness{
		clock:      newFakeClock(baseTime),
		rules:      newMemRules(rules...),
		ledger:     newMemLedger(),
		store:      newMemAchievements(),
		metrics:    newMemMetrics(),
		challenges: newMemChallenges(templates...),
		notifier:   &recordingNotifier{},
	}
	cal := h.clock.Calendar()
	userLock := lock.NewUserLock(time.Second)
	h.userLock = userLock
	h.points = NewPointService(h.rules, h.ledger, userLock, cal)
	h.rewards = &flakyRewarder{PointService: h.points}
	h.achievements = NewAchievementService(h.store, h.metrics, h.challenges, h.rewards, h.notifier, userLock, cal)
	h.daily = NewChallengeService(h.challenges, h.ledger, h.rewards, userLock, cal, testChallengeConfig())
	h.engine = NewEngine(h.points, h.achievements, h.daily)
	return h
}
