// Package worker hands cast jobs from the announcer to the streaming
// server over a Redis stream.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobStream = "voicecast_jobs"
	jobGroup  = "voicecast_cast_group"
)

// CastJob asks the server to cast one recording to its listeners.
type CastJob struct {
	AnnouncementID string
	RecordingID    string
	RecordingName  string
	RunTime        time.Time
}

type JobHandler interface {
	HandleJobs(ctx context.Context, jobs ...CastJob) error
}

type PrintingJobHandler struct{}

func (h *PrintingJobHandler) HandleJobs(ctx context.Context, jobs ...CastJob) error {
	for _, job := range jobs {
		slog.InfoContext(
			ctx,
			"Handling cast job",
			slog.String("announcementID", job.AnnouncementID),
			slog.String("recordingID", job.RecordingID),
			slog.String("recordingName", job.RecordingName),
			slog.String("runAt", job.RunTime.Format("2006-01-02 15:04:05")),
		)
	}
	return nil
}

type RedisJobHandler struct {
	client *redis.Client
}

func NewRedisJobHandler(client *redis.Client) (*RedisJobHandler, error) {
	err := client.XGroupCreateMkStream(context.Background(), jobStream, jobGroup, "$").Err()
	if err != nil && err != redis.Nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, err
	}

	return &RedisJobHandler{client: client}, nil
}

func (h *RedisJobHandler) HandleJobs(ctx context.Context, jobs ...CastJob) error {
	_, err := h.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: jobStream,
				Values: map[string]any{
					"announcementID": job.AnnouncementID,
					"recordingID":    job.RecordingID,
					"recordingName":  job.RecordingName,
					"runAt":          job.RunTime.Format(time.RFC3339),
				},
			})
		}
		return nil
	})
	return err
}

var (
	_ JobHandler = (*PrintingJobHandler)(nil)
	_ JobHandler = (*RedisJobHandler)(nil)
)

// RedisJobReceiver consumes cast jobs on the server side.
type RedisJobReceiver struct {
	client   *redis.Client
	consumer string
}

func NewRedisJobReceiver(client *redis.Client, consumer string) (*RedisJobReceiver, error) {
	err := client.XGroupCreateMkStream(context.Background(), jobStream, jobGroup, "$").Err()
	if err != nil && err != redis.Nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, err
	}
	return &RedisJobReceiver{client: client, consumer: consumer}, nil
}

// ReceiveJobs blocks until at least one job arrives, acknowledges what
// it read, and returns the parsed jobs.
func (r *RedisJobReceiver) ReceiveJobs(ctx context.Context) ([]CastJob, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    jobGroup,
		Consumer: r.consumer,
		Streams:  []string{jobStream, ">"},
		Count:    10,
		Block:    0,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from job stream: %w", err)
	}

	var jobs []CastJob
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			job, err := parseJob(msg.Values)
			if err != nil {
				slog.Warn("skipping malformed cast job", "messageID", msg.ID, "error", err)
			} else {
				jobs = append(jobs, job)
			}
			if err := r.client.XAck(ctx, jobStream, jobGroup, msg.ID).Err(); err != nil {
				return nil, fmt.Errorf("failed to ack job %s: %w", msg.ID, err)
			}
		}
	}
	return jobs, nil
}

func parseJob(values map[string]any) (CastJob, error) {
	var job CastJob
	var ok bool
	if job.AnnouncementID, ok = values["announcementID"].(string); !ok {
		return job, fmt.Errorf("missing announcementID")
	}
	if job.RecordingID, ok = values["recordingID"].(string); !ok {
		return job, fmt.Errorf("missing recordingID")
	}
	job.RecordingName, _ = values["recordingName"].(string)
	if raw, ok := values["runAt"].(string); ok {
		runAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return job, fmt.Errorf("bad runAt %q: %w", raw, err)
		}
		job.RunTime = runAt
	}
	return job, nil
}
