package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vincentbai/stepcoach/internal/auth"
	"github.com/vincentbai/stepcoach/internal/blobstore"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/guide"
	"github.com/vincentbai/stepcoach/internal/llm"
	"github.com/vincentbai/stepcoach/internal/logging"
	"github.com/vincentbai/stepcoach/internal/processor"
	"github.com/vincentbai/stepcoach/internal/recording"
	"github.com/vincentbai/stepcoach/internal/server"
	"github.com/vincentbai/stepcoach/internal/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the processing workers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := blobstore.New(cfg.ScreenshotDir())
	if err != nil {
		return err
	}
	signer, err := tokens.NewSigner([]byte(cfg.Auth.TokenSecret))
	if err != nil {
		return err
	}
	authenticator, err := auth.New([]byte(cfg.Auth.JWTSecret), signer)
	if err != nil {
		return err
	}
	provider, err := llm.New(cfg)
	if err != nil {
		return err
	}
	logging.Infof("using %s for instructions", provider.ID())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	steps := processor.New(db, blobs, provider, cfg.Processor.Concurrency)
	queue := processor.NewQueue(cfg.Processor.QueueSize)
	go queue.Run(ctx, func(ctx context.Context, id string) error {
		_, err := steps.Process(ctx, id)
		return err
	})

	// Anything left processing by a previous run is picked up immediately.
	sweeper := processor.NewSweeper(db, queue, cfg.StuckAfter())
	if _, err := sweeper.SweepBefore(ctx, time.Now()); err != nil {
		logging.Warnf("startup sweep failed: %v", err)
	}
	if err := sweeper.Start(cfg.Processor.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()

	srv := server.NewServer(server.Deps{
		DB:                db,
		Blobs:             blobs,
		Auth:              authenticator,
		Recorder:          recording.New(db, blobs, queue),
		Processor:         steps,
		Queue:             queue,
		Guide:             guide.New(provider),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		ExtensionTokenTTL: cfg.ExtensionTokenTTL(),
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
	}, cfg.Server.Address)
	return srv.Start(ctx)
}
