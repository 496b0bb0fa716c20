package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"eodmarker/config"
)

const shutdownTimeout = 15 * time.Second

// Run initializes and starts the application, blocking until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithField("environment", cfg.Environment).Info("Starting eodmarker...")

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	return serve(ctx, app)
}

func serve(ctx context.Context, app *App) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.Close(closeCtx)
	}()

	if err := app.Server.Start(); err != nil {
		return err
	}

	if err := app.Scheduler.Start(ctx); err != nil {
		shutdownServer(app)
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if marked, err := app.EOD.IsMarkedToday(ctx); err != nil {
		log.WithError(err).Warn("Could not read today's EOD status")
	} else {
		log.WithFields(log.Fields{
			"businessDate": app.Clock.Today().String(),
			"marked":       marked,
		}).Info("Today's EOD status")
	}

	// Wait for context cancellation
	<-ctx.Done()
	log.Info("Shutting down eodmarker...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Scheduler.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("Error stopping scheduler")
	}
	shutdownServer(app)

	log.Info("Shutdown completed")
	return nil
}

func shutdownServer(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Error shutting down HTTP server")
	}
}
