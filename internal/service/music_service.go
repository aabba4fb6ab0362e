package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/albumforge/api/internal/model"
	"github.com/albumforge/api/internal/queue"
	"github.com/albumforge/api/internal/store"
)

const TaskTypeGenerate = "generate:track"

// Service-level errors surfaced through handler response codes.
var (
	ErrNotRetryable = errors.New("latest job for track is not failed")
	ErrJobCompleted = errors.New("completed jobs cannot be restarted")
)

// MusicService owns job submission, status snapshots and the retry paths.
// The long provider call never happens here: submission persists a pending
// job and enqueues it, so endpoints return regardless of provider latency.
type MusicService struct {
	store       *store.JobStore
	asynqClient *asynq.Client
	queueCfg    queue.Config
}

func NewMusicService(jobStore *store.JobStore, asynqClient *asynq.Client, queueCfg queue.Config) *MusicService {
	return &MusicService{
		store:       jobStore,
		asynqClient: asynqClient,
		queueCfg:    queueCfg,
	}
}

// SubmitJob validates and persists a new pending generation job for a track.
// A track with a job already in flight is rejected, no row created.
func (s *MusicService) SubmitJob(ctx context.Context, trackID string, req *model.SubmitJobRequest) (*model.JobResponse, error) {
	platform := req.Params.Platform
	if platform == "" {
		platform = model.PlatformSuno
	}

	job := &model.GenerationJob{
		ID:        uuid.New().String(),
		TrackID:   trackID,
		AlbumID:   req.AlbumID,
		Status:    model.JobStatusPending,
		Platform:  platform,
		Params:    req.Params,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.store.CreateJob(ctx, job, false); err != nil {
		return nil, err
	}

	if err := s.enqueue(job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return jobResponse(job), nil
}

// RetryJob re-submits a track whose latest job failed. The failed row stays
// in history; the retry is a brand-new job with a fresh createdAt, so it
// joins the back of the FIFO queue.
func (s *MusicService) RetryJob(ctx context.Context, trackID string) (*model.JobResponse, error) {
	latest, err := s.store.LatestJobForTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if latest.Status != model.JobStatusFailed {
		return nil, ErrNotRetryable
	}
	return s.resubmit(ctx, latest, false)
}

// RetryAllFailed retries every track in an album whose latest job is failed.
// Idempotent under re-invocation: tracks already retried are pending again
// and fall out of the candidate set. One track's failure does not abort the
// rest; partial success is reported through the count.
func (s *MusicService) RetryAllFailed(ctx context.Context, albumID string) (*model.RetryAllResponse, error) {
	jobs, err := s.store.ListAlbumJobs(ctx, albumID)
	if err != nil {
		return nil, err
	}

	retried := 0
	for _, job := range queue.LatestPerTrack(jobs) {
		if job.Status != model.JobStatusFailed {
			continue
		}
		if _, err := s.resubmit(ctx, &job, false); err != nil {
			log.Printf("Bulk retry: track %s skipped: %v", job.TrackID, err)
			continue
		}
		retried++
	}

	return &model.RetryAllResponse{AlbumID: albumID, RetriedCount: retried}, nil
}

// RestartJob is the operator recovery path: it works on any non-completed
// job, superseding a pending/processing one so the track never has two
// active jobs. The new job's fresh createdAt sends it to the back of the
// queue.
func (s *MusicService) RestartJob(ctx context.Context, jobID string) (*model.JobResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == model.JobStatusCompleted {
		return nil, ErrJobCompleted
	}
	return s.resubmit(ctx, job, true)
}

// MarkJobFailed force-transitions a pending or processing job to failed with
// an operator-supplied message. Local bookkeeping only: an in-flight provider
// request is not cancelled, its late result is simply ignored.
func (s *MusicService) MarkJobFailed(ctx context.Context, jobID, message string) (*model.JobResponse, error) {
	err := s.store.FailJob(ctx, jobID, message,
		model.JobStatusPending, model.JobStatusProcessing)
	if err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return jobResponse(job), nil
}

// GetAlbumMusicStatus builds the album polling snapshot: latest job per
// track with display statuses and queue placements, plus the album's audio
// assets. Clients poll while HasActiveJobs and stop when it clears.
func (s *MusicService) GetAlbumMusicStatus(ctx context.Context, albumID string) (*model.AlbumMusicStatus, error) {
	jobs, err := s.store.ListAlbumJobs(ctx, albumID)
	if err != nil {
		return nil, err
	}

	assets, err := s.store.ListAlbumAssets(ctx, albumID)
	if err != nil {
		return nil, err
	}

	allActive, err := s.store.ListActiveJobs(ctx)
	if err != nil {
		return nil, err
	}

	latest := queue.LatestPerTrack(jobs)
	return queue.BuildAlbumStatus(albumID, latest, assets, allActive, time.Now(), s.queueCfg), nil
}

// resubmit creates the replacement job for a retry or restart.
func (s *MusicService) resubmit(ctx context.Context, prior *model.GenerationJob, supersede bool) (*model.JobResponse, error) {
	job := &model.GenerationJob{
		ID:        uuid.New().String(),
		TrackID:   prior.TrackID,
		AlbumID:   prior.AlbumID,
		Status:    model.JobStatusPending,
		Platform:  prior.Platform,
		Params:    prior.Params,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.store.CreateJob(ctx, job, supersede); err != nil {
		return nil, err
	}

	if err := s.enqueue(job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return jobResponse(job), nil
}

// enqueue hands the job to the worker queue. MaxRetry is zero on purpose:
// failed generations are never retried automatically, retry is an explicit
// user or operator action.
func (s *MusicService) enqueue(job *model.GenerationJob) error {
	payload := &model.GenerateJobPayload{
		JobID:   job.ID,
		TrackID: job.TrackID,
		AlbumID: job.AlbumID,
		Params:  job.Params,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeGenerate, data)
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("generate"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	return err
}

func jobResponse(job *model.GenerationJob) *model.JobResponse {
	return &model.JobResponse{
		JobID:         job.ID,
		TrackID:       job.TrackID,
		Status:        job.Status,
		Progress:      job.Progress,
		StatusMessage: job.StatusMessage,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
	}
}
