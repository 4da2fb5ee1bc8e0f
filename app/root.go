package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parts-pp/parts-pp-sub000/internal/repositories"
	"github.com/parts-pp/parts-pp-sub000/internal/routes"
	"github.com/parts-pp/parts-pp-sub000/pkg/config"
	applogger "github.com/parts-pp/parts-pp-sub000/pkg/logger"
	"github.com/parts-pp/parts-pp-sub000/pkg/telegram"
)

var rootCmd = &cobra.Command{
	Use:   "parts-pp",
	Short: "Spare-parts brokerage Telegram bot",
	Long: `A Telegram bot that brokers spare-parts orders between customers,
the admin team and subscribed traders, backed by a single xlsx workbook.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// application is everything a subcommand needs, built once from the
// environment.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	loggers *routes.Loggers
	storage *repositories.Workbook
	redis   *redis.Client
	comps   *routes.Components
}

func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := applogger.NewLogger(cfg.Log.Dir, cfg.Log.Debug)
	loggers := &routes.Loggers{
		Main:     logger.Named("main"),
		Order:    logger.Named("order"),
		Telegram: logger.Named("telegram"),
	}

	storage := repositories.NewWorkbook(cfg.Store.ExcelPath, logger.Named("store"))
	if err := storage.EnsureWorkbook(ctx); err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", cfg.Store.ExcelPath, err)
	}

	app := &application{cfg: cfg, logger: logger, loggers: loggers, storage: storage}

	var cacheRepo repositories.CacheRepositoryInterface
	if cfg.Redis.Address != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if _, err := app.redis.Ping(ctx).Result(); err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		cacheRepo = repositories.NewRedisCacheRepository(app.redis)
		logger.Info("conversation state in redis", zap.String("address", cfg.Redis.Address))
	} else {
		cacheRepo = repositories.NewMemoryCacheRepository()
		logger.Info("conversation state in memory")
	}

	tgService := telegram.NewService(cfg.Telegram.BotToken, loggers.Telegram, telegram.WithTimeout(cfg.Telegram.Timeout))
	app.comps = routes.NewComponents(cfg, storage, cacheRepo, tgService, loggers)
	return app, nil
}

func (a *application) close() {
	a.comps.Bus.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
