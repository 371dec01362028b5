package model

// Action is a content-producing event fired by a collaborator module.
type Action string

// Actions known to the engine. Trigger tables key on these values only.
const (
	ActionDiaryPublished    Action = "diary_published"
	ActionHomeworkSubmitted Action = "homework_submitted"
	ActionStudyRecorded     Action = "study_recorded"
	ActionWorkPublished     Action = "work_published"
	ActionWorkLiked         Action = "work_liked"
	ActionDiaryLiked        Action = "diary_liked"
	ActionReadingLiked      Action = "reading_liked"
	ActionWorkForked        Action = "work_forked"
	ActionReadingLogged     Action = "reading_logged"
	ActionBookFinished      Action = "book_finished"
	ActionMovieLogged       Action = "movie_logged"
	ActionMusicLogged       Action = "music_logged"
	ActionGamePlayed        Action = "game_played"
	ActionCommentPosted     Action = "comment_posted"
	ActionLogin             Action = "login"
	ActionChallengeDone     Action = "challenge_completed"
)

// Actions returns every known action.
func Actions() []Action {
	return []Action{
		ActionDiaryPublished, ActionHomeworkSubmitted, ActionStudyRecorded,
		ActionWorkPublished, ActionWorkLiked, ActionWorkForked,
		ActionDiaryLiked, ActionReadingLiked,
		ActionReadingLogged, ActionBookFinished, ActionMovieLogged,
		ActionMusicLogged, ActionGamePlayed, ActionCommentPosted,
		ActionLogin, ActionChallengeDone,
	}
}
