package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mossfeld/voicecast/internal/config"
	"github.com/mossfeld/voicecast/internal/datalayer"
	"github.com/mossfeld/voicecast/internal/repository"
	"github.com/mossfeld/voicecast/internal/schedule"
	"github.com/mossfeld/voicecast/internal/worker"
	"github.com/redis/go-redis/v9"
)

var dryRun = flag.Bool("dry-run", false, "Do not enqueue jobs, just print them to the terminal")

// The poll interval is deliberately shorter than the one-minute
// lookahead so no run time can slip between two polls.
const (
	pollInterval = 27 * time.Second
	lookahead    = time.Minute
)

func runAnnouncerForever() error {
	flag.Parse()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	ctx := context.Background()

	pgCfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}

	pool, err := datalayer.NewPostgresPool(ctx, pgCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	repo := repository.NewPostgresRepository(pool)

	var handler worker.JobHandler
	if *dryRun {
		handler = &worker.PrintingJobHandler{}
	} else {
		redisCfg, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		handler, err = worker.NewRedisJobHandler(rdb)
		if err != nil {
			return fmt.Errorf("failed to create job handler: %w", err)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		jobs, err := repo.PullDueJobs(ctx, time.Now().Add(lookahead))
		if err != nil {
			slog.Error("failed to pull due jobs", "error", err)
			continue
		}

		for _, job := range jobs {
			castJob := worker.CastJob{
				AnnouncementID: job.AnnouncementID,
				RecordingID:    job.RecordingID,
				RecordingName:  job.RecordingName,
				RunTime:        job.RunTime,
			}
			schedule.RunAt(ctx, job.RunTime, func(ctx context.Context) {
				if err := handler.HandleJobs(ctx, castJob); err != nil {
					slog.Error(
						"failed to hand off cast job",
						slog.String("announcementID", castJob.AnnouncementID),
						slog.Any("error", err),
					)
				}
			})
		}
	}
	return nil
}

func main() {
	if err := runAnnouncerForever(); err != nil {
		slog.Error("Announcer encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
