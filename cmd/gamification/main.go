// Package main is the entry point for the gamification engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gamification-engine/internal/config"
	"gamification-engine/internal/notify"
	"gamification-engine/internal/pkg/db"
	"gamification-engine/internal/pkg/lock"
	"gamification-engine/internal/repository"
	"gamification-engine/internal/service"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "gamification",
	Short:         "Point ledger, achievements and daily challenges",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config", "directory containing config.yaml")
}

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// app holds the wired services shared by all subcommands.
type app struct {
	cfg          *config.Config
	pool         *db.Pool
	rules        *repository.RuleRepository
	challengeDB  *repository.ChallengeRepository
	cal          service.Calendar
	points       *service.PointService
	achievements *service.AchievementService
	challenges   *service.ChallengeService
	ranking      *service.RankingService
	engine       *service.Engine
}

// newApp loads configuration, connects to the database and wires every service.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Info().Msg("Configuration loaded successfully")

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// Initialize repositories
	ruleRepo := repository.NewRuleRepository(pool.Pool)
	pointsRepo := repository.NewPointsRepository(pool.Pool)
	achievementRepo := repository.NewAchievementRepository(pool.Pool)
	challengeRepo := repository.NewChallengeRepository(pool.Pool)
	metrics := repository.NewContentMetrics(pool.Pool)

	// Initialize services
	cal := service.NewCalendar(time.Now, loc)
	userLock := lock.NewUserLock(cfg.Lock.Timeout)

	points := service.NewPointService(ruleRepo, pointsRepo, userLock, cal)
	achievements := service.NewAchievementService(achievementRepo, metrics, challengeRepo, points, notifier, userLock, cal)
	challenges := service.NewChallengeService(challengeRepo, pointsRepo, points, userLock, cal, cfg.Challenge)

	return &app{
		cfg:          cfg,
		pool:         pool,
		rules:        ruleRepo,
		challengeDB:  challengeRepo,
		cal:          cal,
		points:       points,
		achievements: achievements,
		challenges:   challenges,
		ranking:      service.NewRankingService(pointsRepo, cal),
		engine:       service.NewEngine(points, achievements, challenges),
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

// withApp adapts a function taking the wired app into a cobra RunE.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}
