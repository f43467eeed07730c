package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mossfeld/voicecast/internal/audio"
	"github.com/mossfeld/voicecast/internal/broadcast"
	"github.com/mossfeld/voicecast/internal/config"
	"github.com/mossfeld/voicecast/internal/datalayer"
	"github.com/mossfeld/voicecast/internal/generator"
	"github.com/mossfeld/voicecast/internal/mp3"
	"github.com/mossfeld/voicecast/internal/repository"
	"github.com/mossfeld/voicecast/internal/stream"
	"github.com/mossfeld/voicecast/internal/transport"
	"github.com/mossfeld/voicecast/internal/worker"
	"github.com/redis/go-redis/v9"
)

// caster bundles everything needed to play one recording to the
// current listeners.
type caster struct {
	repo      *repository.PostgresRepository
	storage   datalayer.BlobStorage
	registry  *broadcast.Registry
	encoder   mp3.Encoder
	streamCfg *config.StreamConfig
	ids       generator.Generator[string]
}

func (c *caster) castRecording(ctx context.Context, rec repository.Recording) error {
	obj, err := c.storage.Get(ctx, rec.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to fetch recording %s: %w", rec.ID, err)
	}
	defer obj.Close()

	source, err := audio.DecodeWAV(obj)
	if err != nil {
		return fmt.Errorf("failed to decode recording %s: %w", rec.ID, err)
	}

	sessionID, err := c.ids.Next()
	if err != nil {
		return fmt.Errorf("failed to generate session ID: %w", err)
	}

	session, err := stream.NewSession(sessionID, c.encoder, c.registry, c.streamCfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return session.Cast(ctx, source)
}

func (c *caster) castByID(ctx context.Context, recordingID string) error {
	rec, err := c.repo.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("failed to look up recording %s: %w", recordingID, err)
	}
	return c.castRecording(ctx, rec)
}

func (c *caster) castDefault(ctx context.Context, nameOrID string) error {
	if nameOrID == "" {
		return fmt.Errorf("no default recording configured, set SERVER_DEFAULT_RECORDING")
	}
	rec, err := c.repo.GetRecordingByName(ctx, nameOrID)
	if errors.Is(err, repository.ErrNotFound) {
		rec, err = c.repo.GetRecording(ctx, nameOrID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up recording %q: %w", nameOrID, err)
	}
	return c.castRecording(ctx, rec)
}

// consumeCastJobs runs the Redis job loop until ctx is canceled.
func consumeCastJobs(ctx context.Context, receiver *worker.RedisJobReceiver, c *caster) {
	for {
		jobs, err := receiver.ReceiveJobs(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to receive cast jobs", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, job := range jobs {
			slog.Info("casting from announcement", "announcementID", job.AnnouncementID, "recordingID", job.RecordingID)
			if err := c.castByID(ctx, job.RecordingID); err != nil {
				slog.Error("announcement cast failed", "announcementID", job.AnnouncementID, "error", err)
			}
		}
	}
}

func runServer() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	streamCfg, err := config.NewStreamConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load stream config: %w", err)
	}

	serverCfg, err := config.NewServerConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pgCfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}

	pool, err := datalayer.NewPostgresPool(ctx, pgCfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	repo := repository.NewPostgresRepository(pool)

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure minio bucket: %w", err)
	}

	registry := broadcast.NewRegistry(slog.Default())
	defer registry.Shutdown()

	c := &caster{
		repo:      repo,
		storage:   storage,
		registry:  registry,
		encoder:   &mp3.FFmpegEncoder{},
		streamCfg: streamCfg,
		ids:       &generator.UUIDV4Generator{},
	}

	starter := transport.CastStarterFunc(func(ctx context.Context) error {
		return c.castDefault(ctx, serverCfg.DefaultRecording)
	})

	ws := transport.NewServer(registry, starter, slog.Default())

	// The Redis consumer is optional; without it only control-client
	// triggers start casts.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
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
		consumer, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		receiver, err := worker.NewRedisJobReceiver(rdb, consumer)
		if err != nil {
			return fmt.Errorf("failed to create job receiver: %w", err)
		}
		go consumeCastJobs(ctx, receiver, c)
	}

	httpServer := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: ws.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", serverCfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shut down cleanly", "error", err)
	}
	return nil
}

func main() {
	if err := runServer(); err != nil {
		slog.Error("server encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
