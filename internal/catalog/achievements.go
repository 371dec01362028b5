package catalog

import (
	"sort"

	"gamification-engine/internal/model"
)

// Achievement codes.
const (
	FirstDiary        model.AchievementCode = "FIRST_DIARY"
	DiaryWriter10     model.AchievementCode = "DIARY_WRITER_10"
	DiaryMaster100    model.AchievementCode = "DIARY_MASTER_100"
	DiaryStreak7      model.AchievementCode = "DIARY_STREAK_7"
	DiaryStreak30     model.AchievementCode = "DIARY_STREAK_30"
	WordSmith         model.AchievementCode = "WORD_SMITH_10K"
	FirstWork         model.AchievementCode = "FIRST_WORK"
	WorkCreator10     model.AchievementCode = "WORK_CREATOR_10"
	WorkCreator50     model.AchievementCode = "WORK_CREATOR_50"
	PopularWork       model.AchievementCode = "POPULAR_WORK"
	Likes100          model.AchievementCode = "LIKES_100"
	Homework10        model.AchievementCode = "HOMEWORK_10"
	StudyHours10      model.AchievementCode = "STUDY_HOURS_10"
	StudyStreak7      model.AchievementCode = "STUDY_STREAK_7"
	Bookworm10        model.AchievementCode = "BOOKWORM_10"
	Reader50          model.AchievementCode = "READER_50"
	MovieFan20        model.AchievementCode = "MOVIE_FAN_20"
	MusicFan20        model.AchievementCode = "MUSIC_FAN_20"
	LoginStreak7      model.AchievementCode = "LOGIN_STREAK_7"
	LoginStreak30     model.AchievementCode = "LOGIN_STREAK_30"
	ChallengeRookie   model.AchievementCode = "CHALLENGE_30"
	PerfectChallenge7 model.AchievementCode = "PERFECT_CHALLENGE_7"
	Legend            model.AchievementCode = "LEGEND"
)

func content(kinds ...model.ContentKind) model.Metric {
	return model.Metric{Source: model.SourceContent, Kinds: kinds}
}

func field(f model.ContentField, kinds ...model.ContentKind) model.Metric {
	return model.Metric{Source: model.SourceContent, Kinds: kinds, Field: f}
}

// Achievements is the static achievement catalog keyed by code.
var Achievements = map[model.AchievementCode]model.AchievementDefinition{
	FirstDiary:        {Code: FirstDiary, Name: "第一篇日记", Description: "发布第一篇日记", Category: model.CategoryCreation, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 1, RewardPoints: 5, DisplayOrder: 10, Metric: content(model.ContentDiary)},
	DiaryWriter10:     {Code: DiaryWriter10, Name: "日记达人", Description: "发布 10 篇日记", Category: model.CategoryCreation, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 10, RewardPoints: 20, RewardStars: 1, DisplayOrder: 11, Metric: content(model.ContentDiary)},
	DiaryMaster100:    {Code: DiaryMaster100, Name: "日记大师", Description: "发布 100 篇日记", Category: model.CategoryCreation, Rarity: model.RarityEpic, Condition: model.AchievementCount, Target: 100, RewardPoints: 100, RewardStars: 5, DisplayOrder: 12, Metric: content(model.ContentDiary)},
	DiaryStreak7:      {Code: DiaryStreak7, Name: "坚持一周", Description: "连续 7 天写日记", Category: model.CategoryPersistence, Rarity: model.RarityRare, Condition: model.AchievementStreak, Target: 7, RewardPoints: 30, RewardStars: 1, DisplayOrder: 20, Metric: content(model.ContentDiary)},
	DiaryStreak30:     {Code: DiaryStreak30, Name: "坚持一月", Description: "连续 30 天写日记", Category: model.CategoryPersistence, Rarity: model.RarityEpic, Condition: model.AchievementStreak, Target: 30, RewardPoints: 100, RewardStars: 5, DisplayOrder: 21, Metric: content(model.ContentDiary)},
	WordSmith:         {Code: WordSmith, Name: "万字作家", Description: "日记累计一万字", Category: model.CategoryCreation, Rarity: model.RarityRare, Condition: model.AchievementTotal, Target: 10000, RewardPoints: 50, RewardStars: 2, DisplayOrder: 13, Metric: field(model.FieldWordCount, model.ContentDiary)},
	FirstWork:         {Code: FirstWork, Name: "初次创作", Description: "发布第一个作品", Category: model.CategoryCreation, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 1, RewardPoints: 5, DisplayOrder: 30, Metric: content(model.ContentWork)},
	WorkCreator10:     {Code: WorkCreator10, Name: "小小创作者", Description: "发布 10 个作品", Category: model.CategoryCreation, Rarity: model.RarityRare, Condition: model.AchievementCount, Target: 10, RewardPoints: 20, RewardStars: 1, DisplayOrder: 31, Metric: content(model.ContentWork)},
	WorkCreator50:     {Code: WorkCreator50, Name: "创作之星", Description: "发布 50 个作品", Category: model.CategoryCreation, Rarity: model.RarityEpic, Condition: model.AchievementCount, Target: 50, RewardPoints: 80, RewardStars: 4, DisplayOrder: 32, Metric: content(model.ContentWork)},
	PopularWork:       {Code: PopularWork, Name: "人气作品", Description: "单个作品获得 50 个赞", Category: model.CategorySocial, Rarity: model.RarityRare, Condition: model.AchievementThreshold, Target: 50, RewardPoints: 30, RewardStars: 2, DisplayOrder: 40, Metric: field(model.FieldLikes, model.ContentWork)},
	Likes100:          {Code: Likes100, Name: "人缘王", Description: "日记、作品和阅读累计获得 100 个赞", Category: model.CategorySocial, Rarity: model.RarityRare, Condition: model.AchievementTotal, Target: 100, RewardPoints: 40, RewardStars: 2, DisplayOrder: 41, Metric: field(model.FieldLikes, model.ContentDiary, model.ContentWork, model.ContentReading)},
	Homework10:        {Code: Homework10, Name: "作业小能手", Description: "提交 10 次作业", Category: model.CategoryLearning, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 10, RewardPoints: 20, DisplayOrder: 50, Metric: content(model.ContentHomework)},
	StudyHours10:      {Code: StudyHours10, Name: "学习十小时", Description: "累计学习 600 分钟", Category: model.CategoryLearning, Rarity: model.RarityRare, Condition: model.AchievementTotal, Target: 600, RewardPoints: 30, RewardStars: 1, DisplayOrder: 51, Metric: field(model.FieldDuration, model.ContentStudy)},
	StudyStreak7:      {Code: StudyStreak7, Name: "学习不断线", Description: "连续 7 天学习", Category: model.CategoryPersistence, Rarity: model.RarityRare, Condition: model.AchievementStreak, Target: 7, RewardPoints: 30, RewardStars: 1, DisplayOrder: 22, Metric: content(model.ContentStudy)},
	Bookworm10:        {Code: Bookworm10, Name: "小书虫", Description: "读完 10 本书", Category: model.CategoryLearning, Rarity: model.RarityRare, Condition: model.AchievementCount, Target: 10, RewardPoints: 30, RewardStars: 1, DisplayOrder: 52, Metric: content(model.ContentBook)},
	Reader50:          {Code: Reader50, Name: "阅读记录家", Description: "记录 50 次阅读", Category: model.CategoryLearning, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 50, RewardPoints: 25, DisplayOrder: 53, Metric: content(model.ContentReading)},
	MovieFan20:        {Code: MovieFan20, Name: "电影迷", Description: "记录 20 部电影", Category: model.CategoryCreation, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 20, RewardPoints: 15, DisplayOrder: 60, Metric: content(model.ContentMovie)},
	MusicFan20:        {Code: MusicFan20, Name: "音乐迷", Description: "记录 20 首音乐", Category: model.CategoryCreation, Rarity: model.RarityCommon, Condition: model.AchievementCount, Target: 20, RewardPoints: 15, DisplayOrder: 61, Metric: content(model.ContentMusic)},
	LoginStreak7:      {Code: LoginStreak7, Name: "每天见", Description: "连续登录 7 天", Category: model.CategoryPersistence, Rarity: model.RarityCommon, Condition: model.AchievementStreak, Target: 7, RewardPoints: 20, DisplayOrder: 23, Metric: model.Metric{Source: model.SourceLoginStreak}},
	LoginStreak30:     {Code: LoginStreak30, Name: "全勤宝宝", Description: "连续登录 30 天", Category: model.CategoryPersistence, Rarity: model.RarityEpic, Condition: model.AchievementStreak, Target: 30, RewardPoints: 80, RewardStars: 3, DisplayOrder: 24, Metric: model.Metric{Source: model.SourceLoginStreak}},
	ChallengeRookie:   {Code: ChallengeRookie, Name: "挑战者", Description: "完成 30 个每日挑战", Category: model.CategoryPersistence, Rarity: model.RarityRare, Condition: model.AchievementCount, Target: 30, RewardPoints: 40, RewardStars: 2, DisplayOrder: 25, Metric: model.Metric{Source: model.SourceChallengeCount}},
	PerfectChallenge7: {Code: PerfectChallenge7, Name: "完美一周", Description: "连续 7 天完成全部三个每日挑战", Category: model.CategoryPersistence, Rarity: model.RarityEpic, Condition: model.AchievementStreak, Target: 7, RewardPoints: 70, RewardStars: 4, Hidden: true, DisplayOrder: 26, Metric: model.Metric{Source: model.SourcePerfectChallenge}},
	Legend:            {Code: Legend, Name: "传奇", Description: "解锁其他全部成就", Category: model.CategorySpecial, Rarity: model.RarityLegendary, Condition: model.AchievementCount, RewardPoints: 500, RewardStars: 20, Hidden: true, DisplayOrder: 99, Metric: model.Metric{Source: model.SourceMeta}},
}

// MetaAchievement is unlocked once every other achievement is unlocked. Its target
// is not stored on the definition; see MetaTarget.
const MetaAchievement = Legend

// MetaTarget is the number of unlocks the meta achievement requires.
func MetaTarget() int64 {
	return int64(len(Achievements) - 1)
}

// triggers maps an action onto the achievements it might affect.
var triggers = map[model.Action][]model.AchievementCode{
	model.ActionDiaryPublished:    {FirstDiary, DiaryWriter10, DiaryMaster100, DiaryStreak7, DiaryStreak30, WordSmith},
	model.ActionHomeworkSubmitted: {Homework10},
	model.ActionStudyRecorded:     {StudyHours10, StudyStreak7},
	model.ActionWorkPublished:     {FirstWork, WorkCreator10, WorkCreator50},
	model.ActionWorkLiked:         {PopularWork, Likes100},
	model.ActionDiaryLiked:        {Likes100},
	model.ActionReadingLiked:      {Likes100},
	model.ActionReadingLogged:     {Reader50},
	model.ActionBookFinished:      {Bookworm10},
	model.ActionMovieLogged:       {MovieFan20},
	model.ActionMusicLogged:       {MusicFan20},
	model.ActionLogin:             {LoginStreak7, LoginStreak30},
	model.ActionChallengeDone:     {ChallengeRookie, PerfectChallenge7},
}

// Triggered returns the achievements an action might affect.
func Triggered(a model.Action) []model.AchievementCode {
	return triggers[a]
}

// Achievement looks up a definition by code.
func Achievement(code model.AchievementCode) (model.AchievementDefinition, bool) {
	def, ok := Achievements[code]
	return def, ok
}

// OrderedAchievements returns all definitions in display order.
func OrderedAchievements() []model.AchievementDefinition {
	defs := make([]model.AchievementDefinition, 0, len(Achievements))
	for _, def := range Achievements {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].DisplayOrder < defs[j].DisplayOrder
	})
	return defs
}
