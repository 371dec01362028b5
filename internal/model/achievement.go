package model

import "time"

// AchievementCategory groups achievements for display.
type AchievementCategory string

const (
	CategoryCreation    AchievementCategory = "CREATION"
	CategoryLearning    AchievementCategory = "LEARNING"
	CategoryPersistence AchievementCategory = "PERSISTENCE"
	CategorySocial      AchievementCategory = "SOCIAL"
	CategorySpecial     AchievementCategory = "SPECIAL"
)

// Rarity is a display tier.
type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

// AchievementCondition is the family of metric an achievement is measured with.
type AchievementCondition string

const (
	AchievementCount     AchievementCondition = "COUNT"
	AchievementTotal     AchievementCondition = "TOTAL"
	AchievementStreak    AchievementCondition = "STREAK"
	AchievementThreshold AchievementCondition = "THRESHOLD"
)

// AchievementCode identifies an achievement definition.
type AchievementCode string

// AchievementDefinition is a static catalog entry.
type AchievementDefinition struct {
	Code         AchievementCode
	Name         string
	Description  string
	Category     AchievementCategory
	Rarity       Rarity
	Condition    AchievementCondition
	Target       int64
	RewardPoints int64
	RewardStars  int64
	Hidden       bool
	DisplayOrder int
	Metric       Metric
}

// AchievementProgress is the last computed metric value for a (user, achievement) pair.
type AchievementProgress struct {
	UserID       int64           `db:"user_id"`
	Code         AchievementCode `db:"code"`
	CurrentValue int64           `db:"current_value"`
	TargetValue  int64           `db:"target_value"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// UserAchievement is the unlock proof for a (user, achievement) pair.
type UserAchievement struct {
	UserID     int64           `db:"user_id"`
	Code       AchievementCode `db:"code"`
	UnlockedAt time.Time       `db:"unlocked_at"`
	Showcased  bool            `db:"showcased"`
	Rewarded   bool            `db:"rewarded"`
}

// AchievementStatus is a definition joined with one user's state.
type AchievementStatus struct {
	Definition AchievementDefinition
	Current    int64
	Unlocked   bool
	UnlockedAt *time.Time
	Showcased  bool
}

// ContentKind names a collaborator-owned content collection the metric reader can query.
type ContentKind string

const (
	ContentDiary    ContentKind = "diary"
	ContentWork     ContentKind = "work"
	ContentHomework ContentKind = "homework"
	ContentReading  ContentKind = "reading"
	ContentBook     ContentKind = "book"
	ContentStudy    ContentKind = "study"
	ContentMovie    ContentKind = "movie"
	ContentMusic    ContentKind = "music"
	ContentGame     ContentKind = "game"
)

// ContentField is a numeric column of a content collection.
type ContentField string

const (
	FieldWordCount ContentField = "word_count"
	FieldLikes     ContentField = "like_count"
	FieldDuration  ContentField = "duration"
)

// MetricSource selects how an achievement's current value is computed.
type MetricSource string

const (
	SourceContent          MetricSource = "content"
	SourceLoginStreak      MetricSource = "login_streak"
	SourcePerfectChallenge MetricSource = "perfect_challenge"
	SourceChallengeCount   MetricSource = "challenge_count"
	SourceMeta             MetricSource = "meta"
)

// Metric describes the metric function of one achievement.
// Kinds are summed together for TOTAL (e.g. likes across diaries and works).
type Metric struct {
	Source MetricSource
	Kinds  []ContentKind
	Field  ContentField
}
