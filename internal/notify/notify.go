// Package notify announces achievement unlocks.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"gamification-engine/internal/config"
	"gamification-engine/internal/model"
)

// Notifier announces an unlocked achievement.
type Notifier interface {
	AchievementUnlocked(ctx context.Context, userID int64, def model.AchievementDefinition) error
}

// LogNotifier writes unlocks to the application log.
type LogNotifier struct{}

// AchievementUnlocked implements Notifier.
func (LogNotifier) AchievementUnlocked(_ context.Context, userID int64, def model.AchievementDefinition) error {
	log.Info().
		Int64("user_id", userID).
		Str("achievement", string(def.Code)).
		Str("rarity", string(def.Rarity)).
		Msg("Achievement unlock announced")
	return nil
}

// Sender is the part of *tele.Bot the Telegram notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier posts unlocks to a Telegram chat.
type TelegramNotifier struct {
	sender Sender
	chat   tele.ChatID
}

// NewTelegramNotifier creates a notifier posting to chatID through sender.
func NewTelegramNotifier(sender Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chat: tele.ChatID(chatID)}
}

// AchievementUnlocked implements Notifier.
func (n *TelegramNotifier) AchievementUnlocked(ctx context.Context, userID int64, def model.AchievementDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.sender.Send(n.chat, FormatUnlock(userID, def)); err != nil {
		return fmt.Errorf("failed to send unlock message: %w", err)
	}
	return nil
}

var rarityBadge = map[model.Rarity]string{
	model.RarityCommon:    "🥉",
	model.RarityRare:      "🥈",
	model.RarityEpic:      "🥇",
	model.RarityLegendary: "👑",
}

// FormatUnlock renders the announcement text.
func FormatUnlock(userID int64, def model.AchievementDefinition) string {
	badge, ok := rarityBadge[def.Rarity]
	if !ok {
		badge = "🏅"
	}
	msg := fmt.Sprintf("🎉 用户 %d 解锁成就 %s【%s】\n%s", userID, badge, def.Name, def.Description)
	if def.RewardPoints != 0 {
		msg += fmt.Sprintf("\n💰 奖励积分: %d", def.RewardPoints)
	}
	if def.RewardStars > 0 {
		msg += fmt.Sprintf("\n⭐ 奖励星星: %d", def.RewardStars)
	}
	return msg
}

// New builds the notifier selected by cfg: Telegram when enabled, the log otherwise.
func New(cfg config.NotifyConfig) (Notifier, error) {
	tg := cfg.Telegram
	if !tg.Enabled {
		return LogNotifier{}, nil
	}
	if tg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if tg.ChatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}

	bot, err := tele.NewBot(tele.Settings{Token: tg.Token})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramNotifier(bot, tg.ChatID), nil
}
