package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mossfeld/voicecast/internal/datalayer"
	"github.com/mossfeld/voicecast/internal/repository"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupRepository(t *testing.T) (context.Context, *pgxpool.Pool, *repository.PostgresRepository) {
	t.Helper()
	ctx := t.Context()

	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("voicecast"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	return ctx, pool, repository.NewPostgresRepository(pool)
}

func TestRepositoryRecordings(t *testing.T) {
	ctx, _, repo := setupRepository(t)

	rec := repository.Recording{
		ID:         "e281f5c0-c05f-423d-9add-c0ffee084f27",
		Name:       "morning-greeting",
		ObjectKey:  "recordings/e281f5c0-c05f-423d-9add-c0ffee084f27",
		FileSize:   16044,
		SampleRate: 8000,
		Channels:   1,
	}
	if err := repo.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("failed to save recording: %v", err)
	}

	t.Run("GetRecording returns what was saved", func(t *testing.T) {
		got, err := repo.GetRecording(ctx, rec.ID)
		if err != nil {
			t.Fatalf("failed to get recording: %v", err)
		}
		if got != rec {
			t.Errorf("recording does not match: got %+v, want %+v", got, rec)
		}
	})

	t.Run("GetRecordingByName returns what was saved", func(t *testing.T) {
		got, err := repo.GetRecordingByName(ctx, rec.Name)
		if err != nil {
			t.Fatalf("failed to get recording by name: %v", err)
		}
		if got.ID != rec.ID {
			t.Errorf("recording ID does not match: got %s, want %s", got.ID, rec.ID)
		}
	})

	t.Run("GetRecording reports missing rows", func(t *testing.T) {
		_, err := repo.GetRecording(ctx, "00000000-0000-4000-8000-000000000000")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveRecording upserts on conflicting ID", func(t *testing.T) {
		updated := rec
		updated.Name = "evening-greeting"
		if err := repo.SaveRecording(ctx, updated); err != nil {
			t.Fatalf("failed to upsert recording: %v", err)
		}
		got, err := repo.GetRecording(ctx, rec.ID)
		if err != nil {
			t.Fatalf("failed to get recording: %v", err)
		}
		if got.Name != "evening-greeting" {
			t.Errorf("recording name = %s, want evening-greeting", got.Name)
		}
	})

	t.Run("ListRecordings returns every recording", func(t *testing.T) {
		recordings, err := repo.ListRecordings(ctx)
		if err != nil {
			t.Fatalf("failed to list recordings: %v", err)
		}
		if len(recordings) != 1 {
			t.Errorf("expected 1 recording, got %d", len(recordings))
		}
	})
}

func TestRepositoryAnnouncements(t *testing.T) {
	ctx, pool, repo := setupRepository(t)

	rec := repository.Recording{
		ID:         "7f8d4a12-5b3e-4c91-8f2a-1d9e6b0c3a45",
		Name:       "lunch-call",
		ObjectKey:  "recordings/7f8d4a12-5b3e-4c91-8f2a-1d9e6b0c3a45",
		FileSize:   32000,
		SampleRate: 8000,
		Channels:   1,
	}
	if err := repo.SaveRecording(ctx, rec); err != nil {
		t.Fatalf("failed to save recording: %v", err)
	}

	announcement := repository.Announcement{
		ID:          "3c1b2f60-9a4d-4e7b-b8c5-2f6e1a0d9c83",
		RecordingID: rec.ID,
		Cron:        "* * * * *",
	}
	if err := repo.SaveAnnouncement(ctx, announcement); err != nil {
		t.Fatalf("failed to save announcement: %v", err)
	}

	t.Run("SaveAnnouncement materializes upcoming jobs", func(t *testing.T) {
		var count int
		err := pool.QueryRow(ctx,
			"SELECT count(*) FROM announcement_job WHERE announcement_id = $1",
			announcement.ID,
		).Scan(&count)
		if err != nil {
			t.Fatalf("failed to count jobs: %v", err)
		}
		if count != 5 {
			t.Errorf("expected 5 materialized jobs, got %d", count)
		}
	})

	t.Run("PullDueJobs claims each job exactly once", func(t *testing.T) {
		// The cron fires every minute, so everything materialized is
		// due within the next ten minutes.
		until := time.Now().Add(10 * time.Minute)

		jobs, err := repo.PullDueJobs(ctx, until)
		if err != nil {
			t.Fatalf("failed to pull due jobs: %v", err)
		}
		if len(jobs) == 0 {
			t.Fatal("expected due jobs, got none")
		}
		for _, job := range jobs {
			if job.AnnouncementID != announcement.ID {
				t.Errorf("job announcement ID = %s, want %s", job.AnnouncementID, announcement.ID)
			}
			if job.RecordingID != rec.ID {
				t.Errorf("job recording ID = %s, want %s", job.RecordingID, rec.ID)
			}
			if job.RecordingName != rec.Name {
				t.Errorf("job recording name = %s, want %s", job.RecordingName, rec.Name)
			}
		}

		claimed := make(map[int64]struct{}, len(jobs))
		for _, job := range jobs {
			claimed[job.ID] = struct{}{}
		}

		again, err := repo.PullDueJobs(ctx, until)
		if err != nil {
			t.Fatalf("failed to pull due jobs a second time: %v", err)
		}
		for _, job := range again {
			if _, ok := claimed[job.ID]; ok {
				t.Errorf("job %d was claimed twice", job.ID)
			}
		}
	})
}
