// Package catalog holds the seeded point rules, achievement definitions and challenge
// templates, plus the fixed tables that map actions onto them.
package catalog

import "gamification-engine/internal/model"

// Point rule IDs referenced from code.
const (
	RuleDiaryLong      = "D003" // 1500+ words
	RuleDiaryStandard  = "D001" // 500+ words
	RuleDiaryShort     = "D002" // 100+ words
	RuleDiaryTooShort  = "D004" // penalty
	RuleHomeworkSubmit = "H001"
	RuleHomeworkGood   = "H002"
	RuleStudy          = "S001"
	RuleWorkPublish    = "W001"
	RuleWorkLiked      = "W002"
	RuleWorkForked     = "W003"
	RuleReadingLog     = "R001"
	RuleBookFinished   = "R002"
	RuleMovieLog       = "M001"
	RuleMusicLog       = "M002"
	RuleGamePlay       = "G001"
	RuleComment        = "C001"
	RuleDailyLogin     = "L001"
)

// PointRules is the seed for the point_rules table. Admin edits in the database win over it.
var PointRules = []model.PointRule{
	{ID: RuleDiaryLong, Category: "diary", Action: "publish", Description: "日记 1500 字以上", ConditionType: model.ConditionWordCount, ConditionValue: 1500, Points: 10, DailyCap: 20, Enabled: true},
	{ID: RuleDiaryStandard, Category: "diary", Action: "publish", Description: "日记 500 字以上", ConditionType: model.ConditionWordCount, ConditionValue: 500, Points: 5, DailyCap: 15, Enabled: true},
	{ID: RuleDiaryShort, Category: "diary", Action: "publish", Description: "日记 100 字以上", ConditionType: model.ConditionWordCount, ConditionValue: 100, Points: 2, DailyCap: 6, Enabled: true},
	{ID: RuleDiaryTooShort, Category: "diary", Action: "publish", Description: "日记不足 100 字", ConditionType: model.ConditionWordCount, ConditionValue: 0, Points: -2, Enabled: true},
	{ID: RuleHomeworkSubmit, Category: "homework", Action: "submit", Description: "按时提交作业", ConditionType: model.ConditionNone, Points: 3, DailyCap: 9, Enabled: true},
	{ID: RuleHomeworkGood, Category: "homework", Action: "grade", Description: "作业获评优秀", ConditionType: model.ConditionStatus, Points: 5, Enabled: true},
	{ID: RuleStudy, Category: "study", Action: "record", Description: "学习 30 分钟", ConditionType: model.ConditionDuration, ConditionValue: 30, Points: 2, DailyCap: 10, Enabled: true},
	{ID: RuleWorkPublish, Category: "work", Action: "publish", Description: "发布作品", ConditionType: model.ConditionNone, Points: 5, DailyCap: 15, Enabled: true},
	{ID: RuleWorkLiked, Category: "work", Action: "liked", Description: "作品被点赞", ConditionType: model.ConditionCount, ConditionValue: 1, Points: 1, DailyCap: 20, Enabled: true},
	{ID: RuleWorkForked, Category: "work", Action: "forked", Description: "作品被改编", ConditionType: model.ConditionCount, ConditionValue: 1, Points: 2, DailyCap: 10, Enabled: true},
	{ID: RuleReadingLog, Category: "reading", Action: "log", Description: "记录阅读", ConditionType: model.ConditionNone, Points: 2, DailyCap: 6, Enabled: true},
	{ID: RuleBookFinished, Category: "reading", Action: "finish", Description: "读完一本书", ConditionType: model.ConditionStatus, Points: 5, Enabled: true},
	{ID: RuleMovieLog, Category: "movie", Action: "log", Description: "记录观影", ConditionType: model.ConditionNone, Points: 1, DailyCap: 3, Enabled: true},
	{ID: RuleMusicLog, Category: "music", Action: "log", Description: "记录音乐", ConditionType: model.ConditionNone, Points: 1, DailyCap: 3, Enabled: true},
	{ID: RuleGamePlay, Category: "game", Action: "play", Description: "完成小游戏", ConditionType: model.ConditionNone, Points: 1, DailyCap: 5, Enabled: true},
	{ID: RuleComment, Category: "social", Action: "comment", Description: "发表评论", ConditionType: model.ConditionNone, Points: 1, DailyCap: 10, Enabled: true},
	{ID: RuleDailyLogin, Category: "system", Action: "login", Description: "每日登录", ConditionType: model.ConditionNone, Points: 1, DailyCap: 1, Enabled: true},
}

// WordCountTier maps a minimum word count onto a rule.
type WordCountTier struct {
	MinWords int64
	RuleID   string
}

// WordCountTiers is ordered by MinWords descending. Inputs below the last tier map to
// WordCountPenaltyRule.
var WordCountTiers = []WordCountTier{
	{MinWords: 1500, RuleID: RuleDiaryLong},
	{MinWords: 500, RuleID: RuleDiaryStandard},
	{MinWords: 100, RuleID: RuleDiaryShort},
}

// WordCountPenaltyRule is applied below the lowest tier.
const WordCountPenaltyRule = RuleDiaryTooShort

// actionRules is the default rule fired for an action that does not depend on a continuous input.
var actionRules = map[model.Action]string{
	model.ActionHomeworkSubmitted: RuleHomeworkSubmit,
	model.ActionStudyRecorded:     RuleStudy,
	model.ActionWorkPublished:     RuleWorkPublish,
	model.ActionWorkLiked:         RuleWorkLiked,
	model.ActionWorkForked:        RuleWorkForked,
	model.ActionReadingLogged:     RuleReadingLog,
	model.ActionBookFinished:      RuleBookFinished,
	model.ActionMovieLogged:       RuleMovieLog,
	model.ActionMusicLogged:       RuleMusicLog,
	model.ActionGamePlayed:        RuleGamePlay,
	model.ActionCommentPosted:     RuleComment,
	model.ActionLogin:             RuleDailyLogin,
}

// RuleForAction returns the default rule of an action. Diary publishing is word-count tiered
// and has no default.
func RuleForAction(a model.Action) (string, bool) {
	id, ok := actionRules[a]
	return id, ok
}
