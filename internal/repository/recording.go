package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mossfeld/voicecast/internal/schedule"
)

// Recording is one uploaded voice message, stored in blob storage and
// cataloged here.
type Recording struct {
	ID         string
	Name       string
	ObjectKey  string
	FileSize   int64
	SampleRate int
	Channels   int
}

// Announcement schedules recurring casts of a recording via a cron
// expression.
type Announcement struct {
	ID          string
	RecordingID string
	Cron        string
}

// AnnouncementJob is one materialized run of an announcement.
type AnnouncementJob struct {
	ID             int64
	AnnouncementID string
	RecordingID    string
	RecordingName  string
	RunTime        time.Time
}

// RecordingStore is what the server and CLI need from the catalog.
type RecordingStore interface {
	SaveRecording(ctx context.Context, rec Recording) error
	GetRecording(ctx context.Context, id string) (Recording, error)
	GetRecordingByName(ctx context.Context, name string) (Recording, error)
	ListRecordings(ctx context.Context) ([]Recording, error)
}

var ErrNotFound = errors.New("not found")

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ RecordingStore = (*PostgresRepository)(nil)

func (r *PostgresRepository) SaveRecording(ctx context.Context, rec Recording) error {
	const query = `
	INSERT INTO recording (id, recording_name, object_key, file_size, sample_rate, channels)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		recording_name = EXCLUDED.recording_name,
		object_key = EXCLUDED.object_key,
		file_size = EXCLUDED.file_size,
		sample_rate = EXCLUDED.sample_rate,
		channels = EXCLUDED.channels
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Name, rec.ObjectKey, rec.FileSize, rec.SampleRate, rec.Channels,
	)
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRecording(ctx context.Context, id string) (Recording, error) {
	const query = `
	SELECT id, recording_name, object_key, file_size, sample_rate, channels
	FROM recording WHERE id = $1
	`
	return r.scanRecording(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetRecordingByName(ctx context.Context, name string) (Recording, error) {
	const query = `
	SELECT id, recording_name, object_key, file_size, sample_rate, channels
	FROM recording WHERE recording_name = $1
	`
	return r.scanRecording(r.db.QueryRow(ctx, query, name))
}

func (r *PostgresRepository) scanRecording(row pgx.Row) (Recording, error) {
	var rec Recording
	err := row.Scan(&rec.ID, &rec.Name, &rec.ObjectKey, &rec.FileSize, &rec.SampleRate, &rec.Channels)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	if err != nil {
		return Recording{}, fmt.Errorf("failed to scan recording: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) ListRecordings(ctx context.Context) ([]Recording, error) {
	const query = `
	SELECT id, recording_name, object_key, file_size, sample_rate, channels
	FROM recording ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []Recording
	for rows.Next() {
		var rec Recording
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.ObjectKey, &rec.FileSize, &rec.SampleRate, &rec.Channels); err != nil {
			return nil, fmt.Errorf("failed to scan recording row: %w", err)
		}
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}

// SaveAnnouncement stores the announcement and materializes its next
// few run times in the same transaction.
func (r *PostgresRepository) SaveAnnouncement(ctx context.Context, a Announcement) error {
	const announcementQuery = `
	INSERT INTO announcement (id, recording_id, cron)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET
		recording_id = EXCLUDED.recording_id,
		cron = EXCLUDED.cron
	`

	nextTimes, err := schedule.NextRunTimes(a.Cron, 5)
	if err != nil {
		return fmt.Errorf("failed to get next run times: %w", err)
	}

	const jobsQuery = `
	INSERT INTO announcement_job (announcement_id, run_time)
	SELECT $1, unnest($2::timestamptz[])
	ON CONFLICT (announcement_id, run_time) DO NOTHING
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	if _, err := tx.Exec(ctx, announcementQuery, a.ID, a.RecordingID, a.Cron); err != nil {
		return fmt.Errorf("failed to save announcement: %w", err)
	}

	if _, err := tx.Exec(ctx, jobsQuery, a.ID, nextTimes); err != nil {
		return fmt.Errorf("failed to save announcement jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// PullDueJobs claims every unclaimed job due before the cutoff and
// tops the claimed announcements back up with their next run times.
// A job is returned to exactly one caller.
func (r *PostgresRepository) PullDueJobs(ctx context.Context, until time.Time) ([]AnnouncementJob, error) {
	const claimQuery = `
	UPDATE announcement_job
	SET claimed = TRUE
	WHERE id IN (
		SELECT id FROM announcement_job
		WHERE NOT claimed AND run_time <= $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, announcement_id, run_time
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			fmt.Printf("failed to rollback transaction: %v\n", err)
		}
	}()

	rows, err := tx.Query(ctx, claimQuery, until)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}

	var jobs []AnnouncementJob
	for rows.Next() {
		var job AnnouncementJob
		if err := rows.Scan(&job.ID, &job.AnnouncementID, &job.RunTime); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const enrichQuery = `
	SELECT a.cron, r.id, r.recording_name
	FROM announcement a
	JOIN recording r ON r.id = a.recording_id
	WHERE a.id = $1
	`

	const refillQuery = `
	INSERT INTO announcement_job (announcement_id, run_time)
	SELECT $1, unnest($2::timestamptz[])
	ON CONFLICT (announcement_id, run_time) DO NOTHING
	`

	for i := range jobs {
		var cron string
		if err := tx.QueryRow(ctx, enrichQuery, jobs[i].AnnouncementID).Scan(&cron, &jobs[i].RecordingID, &jobs[i].RecordingName); err != nil {
			return nil, fmt.Errorf("failed to enrich job: %w", err)
		}
		nextTimes, err := schedule.NextRunTimes(cron, 5)
		if err != nil {
			return nil, fmt.Errorf("failed to compute next run times: %w", err)
		}
		if _, err := tx.Exec(ctx, refillQuery, jobs[i].AnnouncementID, nextTimes); err != nil {
			return nil, fmt.Errorf("failed to refill announcement jobs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return jobs, nil
}
