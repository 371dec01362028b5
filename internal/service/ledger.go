package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/lock"
	"gamification-engine/internal/repository"
)

// RuleStore reads the point rule catalog.
type RuleStore interface {
	GetRule(ctx context.Context, id string) (*model.PointRule, error)
}

// LedgerStore persists ledger entries and cached balances.
// Append must write all entries and their balance updates atomically.
type LedgerStore interface {
	Append(ctx context.Context, day time.Time, entries ...*model.PointLogEntry) ([]*model.Posting, error)
	Grant(ctx context.Context, day time.Time, entry *model.PointLogEntry, stars int64) (*model.Posting, bool, error)
	GetBalance(ctx context.Context, userID int64) (*model.UserPoints, error)
	SumEntries(ctx context.Context, userID int64) (int64, error)
	SumPositiveSince(ctx context.Context, userID int64, ruleID string, since time.Time) (int64, error)
	PositiveByTarget(ctx context.Context, targetType, targetID string) (map[int64]int64, error)
	ListEntries(ctx context.Context, userID int64, limit int) ([]*model.PointLogEntry, error)
	ResetToday(ctx context.Context, day time.Time) (int64, error)
	Mismatches(ctx context.Context) ([]*model.BalanceMismatch, error)
}

// ApplyOptions carries the optional context of a rule application.
type ApplyOptions struct {
	Target      model.Target
	Description string
}

// Credit is the result of a ledger posting.
type Credit struct {
	Entry    *model.PointLogEntry
	NewTotal int64
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Sender   *Credit
	Receiver *Credit
}

const defaultHistoryLimit = 20

// PointService is the point ledger engine.
type PointService struct {
	rules    RuleStore
	ledger   LedgerStore
	userLock *lock.UserLock
	cal      Calendar
}

// NewPointService creates a new PointService instance.
func NewPointService(rules RuleStore, ledger LedgerStore, userLock *lock.UserLock, cal Calendar) *PointService {
	return &PointService{
		rules:    rules,
		ledger:   ledger,
		userLock: userLock,
		cal:      cal,
	}
}

// ApplyRule credits (or debits) a catalogued rule to a user.
// The daily cap check and the write are not atomic: concurrent calls for the same
// user and rule can overshoot the cap by a few points.
func (s *PointService) ApplyRule(ctx context.Context, ruleID string, userID int64, opts ApplyOptions) (*Credit, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}

	if rule.DailyCap > 0 {
		earned, err := s.ledger.SumPositiveSince(ctx, userID, rule.ID, s.cal.Today())
		if err != nil {
			return nil, fmt.Errorf("failed to check daily cap: %w", err)
		}
		if earned >= rule.DailyCap {
			return nil, ErrDailyCapReached
		}
	}

	desc := opts.Description
	if desc == "" {
		desc = rule.Description
	}
	entry := s.newEntry(userID, rule.Points, desc, opts.Target)
	entry.RuleID = &rule.ID

	return s.post(ctx, entry)
}

// ApplyWordCount applies the diary rule matching a word count.
func (s *PointService) ApplyWordCount(ctx context.Context, userID, words int64, opts ApplyOptions) (*Credit, error) {
	return s.ApplyRule(ctx, SelectWordCountRule(words), userID, opts)
}

// ApplyDirect posts a delta outside the rule catalog: admin adjustments, achievement
// rewards and challenge settlement. No cap applies.
func (s *PointService) ApplyDirect(ctx context.Context, userID, delta int64, target model.Target, description string) (*Credit, error) {
	if delta == 0 {
		return nil, ErrInvalidAmount
	}
	return s.post(ctx, s.newEntry(userID, delta, description, target))
}

// Reward is a one-time credit of points and stars, keyed by its target.
type Reward struct {
	Points      int64
	Stars       int64
	Target      model.Target
	Description string
}

// GrantOnce posts a reward unless the user already received one for the same
// target, so a retried settlement never pays twice. Points and stars land together.
// The bool reports whether this call posted it; NewTotal is the balance either way.
func (s *PointService) GrantOnce(ctx context.Context, userID int64, r Reward) (*Credit, bool, error) {
	if r.Points < 0 || r.Stars < 0 || !model.IsRewardTarget(r.Target.Type) {
		return nil, false, ErrInvalidAmount
	}

	entry := s.newEntry(userID, r.Points, r.Description, r.Target)
	posting, posted, err := s.ledger.Grant(ctx, s.cal.DayOf(entry.CreatedAt), entry, r.Stars)
	if err != nil {
		return nil, false, fmt.Errorf("failed to grant reward: %w", err)
	}
	if !posted {
		log.Debug().
			Int64("user_id", userID).
			Str("target_type", r.Target.Type).
			Str("target_id", r.Target.ID).
			Msg("Reward already granted")
		return &Credit{NewTotal: posting.Balance.Total}, false, nil
	}
	return &Credit{Entry: posting.Entry, NewTotal: posting.Balance.Total}, true, nil
}

// ReverseForContent claws back every positive credit earned by a content item,
// with one negative entry per user. Calling it twice reverses twice.
func (s *PointService) ReverseForContent(ctx context.Context, targetType, targetID string) (map[int64]int64, error) {
	sums, err := s.ledger.PositiveByTarget(ctx, targetType, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum content credits: %w", err)
	}
	if len(sums) == 0 {
		return map[int64]int64{}, nil
	}

	userIDs := make([]int64, 0, len(sums))
	for id := range sums {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	target := model.Target{Type: targetType, ID: targetID}
	desc := fmt.Sprintf("内容删除，撤销积分 %s#%s", targetType, targetID)
	entries := make([]*model.PointLogEntry, 0, len(userIDs))
	for _, id := range userIDs {
		entries = append(entries, s.newEntry(id, -sums[id], desc, target))
	}

	if _, err := s.ledger.Append(ctx, s.cal.DayOf(entries[0].CreatedAt), entries...); err != nil {
		return nil, fmt.Errorf("failed to reverse content credits: %w", err)
	}

	log.Info().
		Str("target_type", targetType).
		Str("target_id", targetID).
		Int("users", len(sums)).
		Msg("Content credits reversed")

	return sums, nil
}

// Transfer moves points between two users. Both legs land in one transaction.
func (s *PointService) Transfer(ctx context.Context, fromID, toID, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	var result *TransferResult
	err := s.userLock.WithLock(ctx, fromID, func() error {
		sender, err := s.ledger.GetBalance(ctx, fromID)
		if err != nil {
			return fmt.Errorf("failed to get sender balance: %w", err)
		}
		if sender.Total < amount {
			return ErrInsufficientBalance
		}

		out := s.newEntry(fromID, -amount, fmt.Sprintf("转账给用户 %d", toID),
			model.Target{Type: model.TargetTransfer, ID: strconv.FormatInt(toID, 10)})
		in := s.newEntry(toID, amount, fmt.Sprintf("收到用户 %d 的转账", fromID),
			model.Target{Type: model.TargetTransfer, ID: strconv.FormatInt(fromID, 10)})

		postings, err := s.ledger.Append(ctx, s.cal.DayOf(out.CreatedAt), out, in)
		if err != nil {
			return fmt.Errorf("failed to post transfer: %w", err)
		}
		result = &TransferResult{
			Sender:   &Credit{Entry: postings[0].Entry, NewTotal: postings[0].Balance.Total},
			Receiver: &Credit{Entry: postings[1].Entry, NewTotal: postings[1].Balance.Total},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Balance returns the cached balance. A cached total that disagrees with the ledger
// is logged for offline reconciliation and does not fail the read.
func (s *PointService) Balance(ctx context.Context, userID int64) (*model.UserPoints, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	sum, err := s.ledger.SumEntries(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to verify balance against ledger")
	} else if sum != balance.Total {
		log.Warn().
			Int64("user_id", userID).
			Int64("cached", balance.Total).
			Int64("ledger_sum", sum).
			Msg("Balance does not match ledger")
	}

	today := s.cal.Today()
	if !sameDay(balance.TodayDate, today) {
		balance.TodayPoints = 0
		balance.TodayDate = today
	}
	return balance, nil
}

// History returns the newest ledger lines of a user.
func (s *PointService) History(ctx context.Context, userID int64, limit int) ([]*model.PointLogEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.ledger.ListEntries(ctx, userID, limit)
}

// ResetDailyCounters restarts every "earned today" counter for day.
func (s *PointService) ResetDailyCounters(ctx context.Context, day time.Time) (int64, error) {
	n, err := s.ledger.ResetToday(ctx, s.cal.DayOf(day))
	if err != nil {
		return 0, err
	}
	log.Info().Int64("balances", n).Str("day", day.Format(time.DateOnly)).Msg("Daily point counters reset")
	return n, nil
}

// Reconcile lists every user whose cached total differs from the ledger sum.
func (s *PointService) Reconcile(ctx context.Context) ([]*model.BalanceMismatch, error) {
	mismatches, err := s.ledger.Mismatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mismatches {
		log.Warn().
			Int64("user_id", m.UserID).
			Int64("cached", m.Cached).
			Int64("ledger_sum", m.LedgerSum).
			Msg("Balance does not match ledger")
	}
	return mismatches, nil
}

func (s *PointService) newEntry(userID, delta int64, desc string, target model.Target) *model.PointLogEntry {
	e := &model.PointLogEntry{
		UserID:      userID,
		Points:      delta,
		Description: desc,
		CreatedAt:   s.cal.Now(),
	}
	if !target.IsZero() {
		e.TargetType = &target.Type
		e.TargetID = &target.ID
	}
	return e
}

func (s *PointService) post(ctx context.Context, entry *model.PointLogEntry) (*Credit, error) {
	postings, err := s.ledger.Append(ctx, s.cal.DayOf(entry.CreatedAt), entry)
	if err != nil {
		return nil, fmt.Errorf("failed to post ledger entry: %w", err)
	}
	p := postings[0]
	return &Credit{Entry: p.Entry, NewTotal: p.Balance.Total}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
