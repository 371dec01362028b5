// Package model defines the persisted rows and closed enums of the gamification engine.
package model

import "time"

// ConditionType is the closed set of conditions a point rule can carry.
type ConditionType string

const (
	ConditionNone      ConditionType = "none"
	ConditionWordCount ConditionType = "word_count"
	ConditionDuration  ConditionType = "duration"
	ConditionCount     ConditionType = "count"
	ConditionStatus    ConditionType = "status"
)

// PointRule is a catalogued point award or penalty.
type PointRule struct {
	ID             string        `db:"id"`
	Category       string        `db:"category"`
	Action         string        `db:"action"`
	Description    string        `db:"description"`
	ConditionType  ConditionType `db:"condition_type"`
	ConditionValue int64         `db:"condition_value"`
	Points         int64         `db:"points"`
	DailyCap       int64         `db:"daily_cap"` // 0 = unlimited
	Enabled        bool          `db:"enabled"`
}

// PointLogEntry is one immutable, signed ledger line.
// RuleID is nil for direct adjustments (admin, achievement rewards, challenge settlement, transfers).
type PointLogEntry struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	RuleID      *string   `db:"rule_id"`
	Points      int64     `db:"points"`
	Description string    `db:"description"`
	TargetType  *string   `db:"target_type"`
	TargetID    *string   `db:"target_id"`
	CreatedAt   time.Time `db:"created_at"`
}

// UserPoints is the denormalized per-user balance derived from the ledger.
type UserPoints struct {
	UserID      int64     `db:"user_id"`
	Total       int64     `db:"total"`
	TodayPoints int64     `db:"today_points"`
	TodayDate   time.Time `db:"today_date"`
	Stars       int64     `db:"stars"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Posting pairs an appended entry with the balance row it produced.
type Posting struct {
	Entry   *PointLogEntry
	Balance *UserPoints
}

// Target identifies the content item a ledger line was earned or spent on.
type Target struct {
	Type string
	ID   string
}

// IsZero reports whether no target is set.
func (t Target) IsZero() bool {
	return t.Type == "" && t.ID == ""
}

// Target types written by the engine itself. Content collaborators use their own (diary, work, ...).
const (
	TargetAchievement    = "achievement"
	TargetChallenge      = "challenge"
	TargetChallengeBonus = "challenge_streak"
	TargetTransfer       = "transfer"
	TargetAdmin          = "admin"
)

// IsRewardTarget reports whether entries for the target type are one-time rewards.
// The ledger keeps at most one non-negative direct entry per user and reward target.
func IsRewardTarget(targetType string) bool {
	switch targetType {
	case TargetAchievement, TargetChallenge, TargetChallengeBonus:
		return true
	}
	return false
}

// LeaderboardEntry is one row of a points ranking.
type LeaderboardEntry struct {
	UserID int64 `db:"user_id"`
	Points int64 `db:"points"`
}

// BalanceMismatch reports a user whose cached total disagrees with the ledger.
type BalanceMismatch struct {
	UserID    int64 `db:"user_id"`
	Cached    int64 `db:"total"`
	LedgerSum int64 `db:"ledger_sum"`
}

// ActionData is the small context payload content modules send with an action.
type ActionData struct {
	Count     int64
	WordCount int64
	Duration  int64 // minutes
}
