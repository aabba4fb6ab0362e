package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/albumforge/api/internal/model"
)

// CreateJob persists a new pending job and claims the track's single active
// slot. Returns ErrActiveJobExists when the track already has a job in flight,
// unless supersede is set, in which case the old job is force-failed first
// (restart semantics: same track, new job, fresh createdAt).
func (s *JobStore) CreateJob(ctx context.Context, job *model.GenerationJob, supersede bool) error {
	activeKey := trackActiveKey(job.TrackID)

	return s.watch(ctx, func(tx *redis.Tx) error {
		currentID, err := tx.Get(ctx, activeKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		var superseded *model.GenerationJob
		if currentID != "" {
			current, err := s.getJobTx(ctx, tx, currentID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if current != nil && current.IsActive() {
				if !supersede {
					return ErrActiveJobExists
				}
				msg := "superseded by restart"
				current.Status = model.JobStatusFailed
				current.ErrorMessage = &msg
				current.UpdatedAt = time.Now()
				superseded = current
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if superseded != nil {
				data, err := marshalJob(superseded)
				if err != nil {
					return err
				}
				pipe.Set(ctx, jobKey(superseded.ID), data, recordRetention)
				pipe.ZRem(ctx, activeQueueKey, superseded.ID)
			}

			data, err := marshalJob(job)
			if err != nil {
				return err
			}
			pipe.Set(ctx, jobKey(job.ID), data, recordRetention)
			pipe.Set(ctx, activeKey, job.ID, recordRetention)
			pipe.Set(ctx, trackLatestKey(job.TrackID), job.ID, recordRetention)
			pipe.ZAdd(ctx, activeQueueKey, redis.Z{
				Score:  float64(job.CreatedAt.UnixNano()),
				Member: job.ID,
			})
			pipe.ZAdd(ctx, albumJobsKey(job.AlbumID), redis.Z{
				Score:  float64(job.CreatedAt.UnixNano()),
				Member: job.ID,
			})
			pipe.SAdd(ctx, albumTracksKey(job.AlbumID), job.TrackID)
			pipe.Expire(ctx, albumJobsKey(job.AlbumID), recordRetention)
			pipe.Expire(ctx, albumTracksKey(job.AlbumID), recordRetention)
			return nil
		})
		return err
	}, activeKey)
}

// GetJob loads one job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshalJob(data)
}

func (s *JobStore) getJobTx(ctx context.Context, tx *redis.Tx, jobID string) (*model.GenerationJob, error) {
	data, err := tx.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return unmarshalJob(data)
}

// LatestJobForTrack returns the most recently created job for a track, or
// ErrNotFound if the track never had one.
func (s *JobStore) LatestJobForTrack(ctx context.Context, trackID string) (*model.GenerationJob, error) {
	jobID, err := s.redis.Get(ctx, trackLatestKey(trackID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

// ListActiveJobs returns every pending/processing job ordered by createdAt,
// oldest first. This is the FIFO order that queue positions derive from.
func (s *JobStore) ListActiveJobs(ctx context.Context) ([]model.GenerationJob, error) {
	ids, err := s.redis.ZRange(ctx, activeQueueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadJobs(ctx, ids)
}

// ListAlbumJobs returns all jobs recorded for an album, oldest first.
func (s *JobStore) ListAlbumJobs(ctx context.Context, albumID string) ([]model.GenerationJob, error) {
	ids, err := s.redis.ZRange(ctx, albumJobsKey(albumID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadJobs(ctx, ids)
}

// AlbumTracks returns the IDs of tracks that have had at least one job.
func (s *JobStore) AlbumTracks(ctx context.Context, albumID string) ([]string, error) {
	return s.redis.SMembers(ctx, albumTracksKey(albumID)).Result()
}

func (s *JobStore) loadJobs(ctx context.Context, ids []string) ([]model.GenerationJob, error) {
	jobs := make([]model.GenerationJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.GetJob(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired record still indexed; skip
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// ClaimPending transitions a pending job to processing on behalf of the
// worker. The claim is compare-and-set: it fails with ErrConflict when the
// job was failed or superseded while it sat in the queue, and additionally
// verifies the job still owns its track's active slot so a restarted track
// never runs twice.
func (s *JobStore) ClaimPending(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var claimed *model.GenerationJob

	err := s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusPending {
			return ErrConflict
		}
		activeID, err := tx.Get(ctx, trackActiveKey(job.TrackID)).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if activeID != job.ID {
			return ErrConflict
		}

		job.Status = model.JobStatusProcessing
		job.UpdatedAt = time.Now()

		data, err := marshalJob(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), data, recordRetention)
			return nil
		})
		if err == nil {
			claimed = job
		}
		return err
	}, jobKey(jobID))

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimHead claims the oldest pending job in the FIFO queue. Task delivery
// order can drift from createdAt order by milliseconds under concurrent
// submissions, so the worker claims the queue head instead of the job named
// in its task; one task delivery still corresponds to one drained job. Jobs
// already failed, superseded or expired are skipped. Returns ErrNotFound
// when nothing is claimable.
func (s *JobStore) ClaimHead(ctx context.Context) (*model.GenerationJob, error) {
	ids, err := s.redis.ZRange(ctx, activeQueueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		job, err := s.ClaimPending(ctx, id)
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, ErrNotFound
}

// RecordExternalTask stores the provider's task handle on a processing job.
func (s *JobStore) RecordExternalTask(ctx context.Context, jobID, externalTaskID string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusProcessing {
			return ErrConflict
		}
		job.ExternalTaskID = externalTaskID
		job.UpdatedAt = time.Now()

		data, err := marshalJob(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), data, recordRetention)
			return nil
		})
		return err
	}, jobKey(jobID))
}

// applyProgress merges a polled progress snapshot into a job. Progress must
// be monotonically non-decreasing while processing; a regression means a
// stale or out-of-order provider response and is dropped. Returns false when
// nothing changed.
func applyProgress(job *model.GenerationJob, progress int, message string) bool {
	if job.Status != model.JobStatusProcessing {
		return false
	}
	if progress < job.Progress {
		return false
	}
	if progress > 100 {
		progress = 100
	}
	if progress == job.Progress && (message == "" || message == job.StatusMessage) {
		return false
	}
	job.Progress = progress
	if message != "" {
		job.StatusMessage = message
	}
	return true
}

// UpdateProgress records a provider progress snapshot for a processing job.
// Stale and out-of-order updates are silently discarded.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress int, message string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !applyProgress(job, progress, message) {
			return nil
		}
		job.UpdatedAt = time.Now()

		data, err := marshalJob(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), data, recordRetention)
			return nil
		})
		return err
	}, jobKey(jobID))
}

// FailJob moves a job to failed from any of the allowed prior statuses.
// Terminal rows are released from the FIFO queue and the track's active slot.
func (s *JobStore) FailJob(ctx context.Context, jobID, errMsg string, from ...model.JobStatus) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !statusIn(job.Status, from) {
			return ErrConflict
		}

		job.Status = model.JobStatusFailed
		job.ErrorMessage = &errMsg
		job.UpdatedAt = time.Now()

		data, err := marshalJob(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), data, recordRetention)
			pipe.ZRem(ctx, activeQueueKey, job.ID)
			s.releaseTrackSlot(ctx, pipe, job)
			return nil
		})
		return err
	}, jobKey(jobID))
}

// releaseTrackSlot clears the track active pointer when it still belongs to
// this job. A restart may already have repointed it at a newer job.
func (s *JobStore) releaseTrackSlot(ctx context.Context, pipe redis.Pipeliner, job *model.GenerationJob) {
	activeID, err := s.redis.Get(ctx, trackActiveKey(job.TrackID)).Result()
	if err == nil && activeID == job.ID {
		pipe.Del(ctx, trackActiveKey(job.TrackID))
	}
}

func statusIn(status model.JobStatus, set []model.JobStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}
