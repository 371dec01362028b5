package model

import "time"

// ChallengeType is the content area a challenge template belongs to.
type ChallengeType string

const (
	ChallengeDiary   ChallengeType = "DIARY"
	ChallengeStudy   ChallengeType = "STUDY"
	ChallengeWork    ChallengeType = "WORK"
	ChallengeLikes   ChallengeType = "LIKES"
	ChallengeReading ChallengeType = "READING"
	ChallengeSocial  ChallengeType = "SOCIAL"
)

// Difficulty is the tier of a daily challenge.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Difficulties lists the tiers in display order.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// ChallengeCondition decides how progress accumulates.
type ChallengeCondition string

const (
	ChallengeWordCount ChallengeCondition = "WORD_COUNT"
	ChallengeDuration  ChallengeCondition = "DURATION"
	ChallengeCount     ChallengeCondition = "COUNT"
	ChallengeAction    ChallengeCondition = "ACTION"
)

// ChallengeStatus is the state of a user's challenge record.
type ChallengeStatus string

const (
	StatusInProgress ChallengeStatus = "IN_PROGRESS"
	StatusCompleted  ChallengeStatus = "COMPLETED"
)

// ChallengeTemplate is an admin-editable challenge catalog entry.
type ChallengeTemplate struct {
	ID             int64              `db:"id"`
	Title          string             `db:"title"`
	Description    string             `db:"description"`
	Type           ChallengeType      `db:"type"`
	Difficulty     Difficulty         `db:"difficulty"`
	ConditionType  ChallengeCondition `db:"condition_type"`
	ConditionValue int64              `db:"condition_value"`
	RewardPoints   int64              `db:"reward_points"`
	RewardStars    int64              `db:"reward_stars"`
	Weight         int64              `db:"weight"`
	Active         bool               `db:"active"`
}

// DailyChallengeSet is the per-date selection of one template per difficulty.
type DailyChallengeSet struct {
	ID               int64     `db:"id"`
	Date             time.Time `db:"challenge_date"`
	EasyTemplateID   int64     `db:"easy_template_id"`
	MediumTemplateID int64     `db:"medium_template_id"`
	HardTemplateID   int64     `db:"hard_template_id"`
	CreatedAt        time.Time `db:"created_at"`
}

// TemplateID returns the template chosen for a difficulty.
func (s *DailyChallengeSet) TemplateID(d Difficulty) int64 {
	switch d {
	case DifficultyEasy:
		return s.EasyTemplateID
	case DifficultyMedium:
		return s.MediumTemplateID
	case DifficultyHard:
		return s.HardTemplateID
	}
	return 0
}

// UserChallengeRecord is a user's progress on one challenge of a daily set.
type UserChallengeRecord struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	SetID         int64           `db:"set_id"`
	TemplateID    int64           `db:"template_id"`
	Difficulty    Difficulty      `db:"difficulty"`
	Progress      int64           `db:"progress"`
	Target        int64           `db:"target"`
	Status        ChallengeStatus `db:"status"`
	CompletedAt   *time.Time      `db:"completed_at"`
	RewardClaimed bool            `db:"reward_claimed"`
	ClaimedAt     *time.Time      `db:"claimed_at"`
}

// ChallengeView is a record joined with its template for display.
type ChallengeView struct {
	Record   *UserChallengeRecord
	Template *ChallengeTemplate
}

// ChallengeStats summarises a user's challenge activity.
type ChallengeStats struct {
	CompletedToday int
	Claimable      int
	TotalCompleted int64
	CurrentStreak  int
}
