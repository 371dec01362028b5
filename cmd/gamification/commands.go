package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gamification-engine/internal/catalog"
	"gamification-engine/internal/model"
	"gamification-engine/internal/pkg/db"
	"gamification-engine/internal/service"
)

var (
	withContent bool
	topLimit    int
	topToday    bool

	eventWords    int64
	eventDuration int64
	eventCount    int64
	eventTarget   string
)

func init() {
	migrateCmd.Flags().BoolVar(&withContent, "with-content", false, "also create the content tables used by the metric reader")
	topCmd.Flags().IntVar(&topLimit, "limit", 10, "number of users to show")
	topCmd.Flags().BoolVar(&topToday, "today", false, "rank by points earned today instead of total")
	recordCmd.Flags().Int64Var(&eventWords, "words", 0, "word count of the content")
	recordCmd.Flags().Int64Var(&eventDuration, "duration", 0, "duration in minutes")
	recordCmd.Flags().Int64Var(&eventCount, "count", 0, "item count")
	recordCmd.Flags().StringVar(&eventTarget, "target", "", "content reference as type:id")

	rootCmd.AddCommand(migrateCmd, seedCmd, maintainCmd, reconcileCmd, todayCmd, topCmd, recordCmd, deleteCmd, claimCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		return db.Migrate(ctx, a.pool.Pool, withContent)
	}),
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the built-in point rules and challenge templates",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		var rules, templates int
		for i := range catalog.PointRules {
			created, err := a.rules.SeedRule(ctx, &catalog.PointRules[i])
			if err != nil {
				return err
			}
			if created {
				rules++
			}
		}
		for i := range catalog.ChallengeTemplates {
			created, err := a.challengeDB.SeedTemplate(ctx, &catalog.ChallengeTemplates[i])
			if err != nil {
				return err
			}
			if created {
				templates++
			}
		}
		log.Info().Int("rules", rules).Int("templates", templates).Msg("Catalog seeded")
		return nil
	}),
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the midnight rollover: reset daily counters and create the day's challenges",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if err := rollover(ctx, a, a.cal.Today()); err != nil {
			return err
		}
		for {
			next := a.cal.Today().AddDate(0, 0, 1)
			log.Info().Time("next_run", next).Msg("Waiting for next rollover")

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Info().Msg("Maintenance stopped")
				return nil
			case <-timer.C:
			}

			if err := rollover(ctx, a, next); err != nil {
				log.Error().Err(err).Time("day", next).Msg("Rollover failed")
			}
		}
	}),
}

func rollover(ctx context.Context, a *app, day time.Time) error {
	if _, err := a.points.ResetDailyCounters(ctx, day); err != nil {
		return fmt.Errorf("reset daily counters: %w", err)
	}
	if _, err := a.challenges.GetOrCreateSet(ctx, day); err != nil {
		return fmt.Errorf("create daily challenges: %w", err)
	}
	return nil
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare cached balances with the ledger",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		mismatches, err := a.points.Reconcile(ctx)
		if err != nil {
			return err
		}
		for _, m := range mismatches {
			fmt.Printf("user %d: cached %d, ledger %d\n", m.UserID, m.Cached, m.LedgerSum)
		}
		if len(mismatches) > 0 {
			return fmt.Errorf("%d balances disagree with the ledger", len(mismatches))
		}
		fmt.Println("all balances match the ledger")
		return nil
	}),
}

var todayCmd = &cobra.Command{
	Use:   "today [user-id]",
	Short: "Show today's challenges, for one user when given",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			set, err := a.challenges.GetOrCreateSet(ctx, a.cal.Today())
			if err != nil {
				return err
			}
			fmt.Printf("%s: easy #%d, medium #%d, hard #%d\n",
				set.Date.Format(time.DateOnly), set.EasyTemplateID, set.MediumTemplateID, set.HardTemplateID)
			return nil
		}

		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		view, err := a.challenges.Today(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", view.Date.Format(time.DateOnly))
		for _, c := range view.Challenges {
			claimed := ""
			if c.Record.RewardClaimed {
				claimed = " (claimed)"
			}
			fmt.Printf("  #%d [%s] %s %d/%d %s%s\n",
				c.Record.ID, c.Record.Difficulty, c.Template.Title,
				c.Record.Progress, c.Record.Target, c.Record.Status, claimed)
		}
		fmt.Printf("completed today %d, claimable %d, streak %d\n",
			view.Stats.CompletedToday, view.Stats.Claimable, view.Stats.CurrentStreak)
		return nil
	}),
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the points leaderboard",
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		var (
			entries []*model.LeaderboardEntry
			err     error
		)
		if topToday {
			entries, err = a.ranking.TopToday(ctx, topLimit)
		} else {
			entries, err = a.ranking.TopUsers(ctx, topLimit)
		}
		if err != nil {
			return err
		}
		for i, e := range entries {
			fmt.Printf("%2d. user %d  %d\n", i+1, e.UserID, e.Points)
		}
		return nil
	}),
}

var recordCmd = &cobra.Command{
	Use:   "record <user-id> <action>",
	Short: "Report a content action and run it through the engine",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		ev := service.Event{
			UserID: userID,
			Action: model.Action(args[1]),
			Data:   model.ActionData{Count: eventCount, WordCount: eventWords, Duration: eventDuration},
		}
		if eventTarget != "" {
			typ, id, ok := strings.Cut(eventTarget, ":")
			if !ok {
				return fmt.Errorf("target must be type:id, got %q", eventTarget)
			}
			ev.Target = model.Target{Type: typ, ID: id}
		}

		out, err := a.engine.Record(ctx, ev)
		if err != nil {
			return err
		}
		if out.Credit != nil {
			fmt.Printf("points %+d, total %d\n", out.Credit.Entry.Points, out.Credit.NewTotal)
		}
		if out.CapReached {
			fmt.Println("daily cap reached")
		}
		for _, def := range out.Unlocked {
			fmt.Printf("unlocked %s (%s)\n", def.Name, def.Code)
		}
		for _, rec := range out.Completed {
			fmt.Printf("completed challenge #%d\n", rec.ID)
		}
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete-content <type> <id>",
	Short: "Claw back the points earned from deleted content",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		reversed, err := a.engine.ContentDeleted(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		for userID, amount := range reversed {
			fmt.Printf("user %d: -%d\n", userID, amount)
		}
		return nil
	}),
}

var claimCmd = &cobra.Command{
	Use:   "claim <user-id> <record-id>",
	Short: "Claim the reward of a completed challenge",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		userID, err := parseID(args[0])
		if err != nil {
			return err
		}
		recordID, err := parseID(args[1])
		if err != nil {
			return err
		}
		res, err := a.challenges.ClaimReward(ctx, userID, recordID)
		if err != nil {
			return err
		}
		fmt.Printf("points %d, stars %d, streak %d (bonus %d), total %d\n",
			res.Points, res.Stars, res.Streak, res.StreakBonus, res.NewTotal)
		return nil
	}),
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
