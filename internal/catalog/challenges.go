package catalog

import "gamification-engine/internal/model"

// ChallengeTemplates is the seed for the challenge_templates table.
var ChallengeTemplates = []model.ChallengeTemplate{
	{Title: "小小日记", Description: "写一篇 100 字以上的日记", Type: model.ChallengeDiary, Difficulty: model.DifficultyEasy, ConditionType: model.ChallengeWordCount, ConditionValue: 100, RewardPoints: 5, Weight: 40, Active: true},
	{Title: "读书打卡", Description: "记录一次阅读", Type: model.ChallengeReading, Difficulty: model.DifficultyEasy, ConditionType: model.ChallengeAction, ConditionValue: 1, RewardPoints: 5, Weight: 30, Active: true},
	{Title: "学习一刻钟", Description: "学习 15 分钟", Type: model.ChallengeStudy, Difficulty: model.DifficultyEasy, ConditionType: model.ChallengeDuration, ConditionValue: 15, RewardPoints: 5, Weight: 30, Active: true},
	{Title: "热心评论", Description: "发表 2 条评论", Type: model.ChallengeSocial, Difficulty: model.DifficultyEasy, ConditionType: model.ChallengeCount, ConditionValue: 2, RewardPoints: 5, Weight: 20, Active: true},

	{Title: "认真日记", Description: "写一篇 500 字以上的日记", Type: model.ChallengeDiary, Difficulty: model.DifficultyMedium, ConditionType: model.ChallengeWordCount, ConditionValue: 500, RewardPoints: 10, RewardStars: 1, Weight: 35, Active: true},
	{Title: "专注学习", Description: "学习 45 分钟", Type: model.ChallengeStudy, Difficulty: model.DifficultyMedium, ConditionType: model.ChallengeDuration, ConditionValue: 45, RewardPoints: 10, RewardStars: 1, Weight: 35, Active: true},
	{Title: "作品发布", Description: "发布一个作品", Type: model.ChallengeWork, Difficulty: model.DifficultyMedium, ConditionType: model.ChallengeAction, ConditionValue: 1, RewardPoints: 10, RewardStars: 1, Weight: 30, Active: true},

	{Title: "长篇日记", Description: "写一篇 1500 字以上的日记", Type: model.ChallengeDiary, Difficulty: model.DifficultyHard, ConditionType: model.ChallengeWordCount, ConditionValue: 1500, RewardPoints: 20, RewardStars: 2, Weight: 30, Active: true},
	{Title: "学霸时间", Description: "学习 90 分钟", Type: model.ChallengeStudy, Difficulty: model.DifficultyHard, ConditionType: model.ChallengeDuration, ConditionValue: 90, RewardPoints: 20, RewardStars: 2, Weight: 30, Active: true},
	{Title: "阅读达人", Description: "记录 3 次阅读", Type: model.ChallengeReading, Difficulty: model.DifficultyHard, ConditionType: model.ChallengeCount, ConditionValue: 3, RewardPoints: 20, RewardStars: 2, Weight: 20, Active: true},
	{Title: "人气之星", Description: "作品获得 5 个赞", Type: model.ChallengeLikes, Difficulty: model.DifficultyHard, ConditionType: model.ChallengeCount, ConditionValue: 5, RewardPoints: 20, RewardStars: 2, Weight: 20, Active: true},
}

// challengeTypes lists the challenge types an action can make progress on.
var challengeTypes = map[model.Action][]model.ChallengeType{
	model.ActionDiaryPublished:    {model.ChallengeDiary},
	model.ActionStudyRecorded:     {model.ChallengeStudy},
	model.ActionHomeworkSubmitted: {model.ChallengeStudy},
	model.ActionWorkPublished:     {model.ChallengeWork},
	model.ActionWorkLiked:         {model.ChallengeLikes},
	model.ActionReadingLogged:     {model.ChallengeReading},
	model.ActionBookFinished:      {model.ChallengeReading},
	model.ActionCommentPosted:     {model.ChallengeSocial},
}

// Compatible reports whether an action counts toward a challenge type.
func Compatible(a model.Action, t model.ChallengeType) bool {
	for _, ct := range challengeTypes[a] {
		if ct == t {
			return true
		}
	}
	return false
}
