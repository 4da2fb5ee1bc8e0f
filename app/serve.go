package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parts-pp/parts-pp-sub000/internal/routes"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the Telegram webhook and run the reminder sweeper",
	RunE:  runServe,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Long-poll Telegram for updates and run the reminder sweeper",
	RunE:  runPoll,
}

func init() {
	rootCmd.AddCommand(serveCmd, pollCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			app.logger.Error("panic in http handler",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)))
			return err
		},
	}))
	routes.InitRouter(e, app.comps, app.loggers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + app.cfg.Server.Port
		app.logger.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if base := app.cfg.Telegram.WebhookBaseURL; base != "" {
		g.Go(func() error {
			if err := app.comps.Telegram.RegisterWebhook(ctx, base); err != nil {
				app.logger.Error("webhook registration failed", zap.Error(err))
			}
			return nil
		})
	}
	startBackground(ctx, g, app)

	if err := g.Wait(); err != nil {
		app.logger.Error("serve stopped with error", zap.Error(err))
		return err
	}
	app.logger.Info("serve shut down gracefully")
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("polling telegram for updates")
		return app.comps.Telegram.Poll(ctx)
	})
	startBackground(ctx, g, app)

	if err := g.Wait(); err != nil {
		app.logger.Error("poll stopped with error", zap.Error(err))
		return err
	}
	app.logger.Info("poll shut down gracefully")
	return nil
}

// startBackground runs the dedup cleanup and the sweeper schedule until ctx
// ends.
func startBackground(ctx context.Context, g *errgroup.Group, app *application) {
	g.Go(func() error {
		app.comps.Telegram.StartCleanup(ctx)
		return nil
	})
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
		if err != nil {
			return err
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(sweepInterval),
			gocron.NewTask(func() {
				fired, err := app.comps.Sweeper.RunOnce(ctx, time.Now().UTC())
				if err != nil {
					app.logger.Error("sweep failed", zap.Error(err))
					return
				}
				if fired > 0 {
					app.logger.Info("sweep sent reminders", zap.Int("count", fired))
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
		scheduler.Start()
		app.logger.Info("sweeper scheduled", zap.Duration("interval", sweepInterval))

		<-ctx.Done()
		return scheduler.Shutdown()
	})
}
