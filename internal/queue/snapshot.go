package queue

import (
	"fmt"
	"sort"
	"time"

	"github.com/albumforge/api/internal/model"
)

// Config holds the wait-estimation knobs. AvgJobMinutes is an operational
// constant, not something the provider reports.
type Config struct {
	AvgJobMinutes int
	StuckAfter    time.Duration
}

// LatestPerTrack reduces a job history to the most recent job per track,
// which is the only job that matters for status and retry decisions.
func LatestPerTrack(jobs []model.GenerationJob) []model.GenerationJob {
	latest := make(map[string]model.GenerationJob)
	for _, job := range jobs {
		prev, ok := latest[job.TrackID]
		if !ok || job.CreatedAt.After(prev.CreatedAt) {
			latest[job.TrackID] = job
		}
	}

	out := make([]model.GenerationJob, 0, len(latest))
	for _, job := range latest {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// fifoOrder sorts active jobs by createdAt, the queue's only ordering contract.
func fifoOrder(active []model.GenerationJob) []model.GenerationJob {
	ordered := make([]model.GenerationJob, len(active))
	copy(ordered, active)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

// DisplayStatuses derives the client-facing status for every active job.
// Only the head-of-line job (smallest createdAt) is shown as processing,
// whatever its persisted status; everything behind it is shown as queued.
// The provider serves one generation at a time, and the display reflects
// that rather than raw row state.
func DisplayStatuses(active []model.GenerationJob) map[string]model.JobStatus {
	display := make(map[string]model.JobStatus, len(active))
	for i, job := range fifoOrder(active) {
		if i == 0 {
			display[job.ID] = model.JobStatusProcessing
		} else {
			display[job.ID] = model.JobStatusQueued
		}
	}
	return display
}

// Snapshots computes the queue placement and wait estimate for every active
// job. Position is the 1-based FIFO rank; the estimate is position times the
// configured average turnaround.
func Snapshots(active []model.GenerationJob, now time.Time, cfg Config) map[string]model.QueueSnapshot {
	ordered := fifoOrder(active)
	total := len(ordered)

	snapshots := make(map[string]model.QueueSnapshot, total)
	for i, job := range ordered {
		position := i + 1
		waitMinutes := position * cfg.AvgJobMinutes
		snapshots[job.ID] = model.QueueSnapshot{
			Position:                position,
			TotalInQueue:            total,
			EstimatedWaitMinutes:    waitMinutes,
			WaitDisplay:             WaitDisplay(waitMinutes),
			EstimatedCompletionTime: now.Add(time.Duration(waitMinutes) * time.Minute),
		}
	}
	return snapshots
}

// WaitDisplay renders a wait estimate for the UI. Anything under a minute is
// shown as "< 1 min" rather than "0 min".
func WaitDisplay(minutes int) string {
	if minutes < 1 {
		return "< 1 min"
	}
	return fmt.Sprintf("%d min", minutes)
}

// IsStuck flags a pending job that has sat in the queue past the configured
// threshold. Advisory only: nothing transitions automatically, an operator
// or a retry has to act.
func IsStuck(job *model.GenerationJob, now time.Time, cfg Config) bool {
	if job.Status != model.JobStatusPending {
		return false
	}
	return now.Sub(job.CreatedAt) >= cfg.StuckAfter
}

// BuildAlbumStatus assembles the polling snapshot for one album. albumJobs is
// the album's latest job per track; allActive is the system-wide active set
// that queue positions and the head-of-line rule derive from.
func BuildAlbumStatus(albumID string, albumJobs []model.GenerationJob, assets []model.AudioAsset, allActive []model.GenerationJob, now time.Time, cfg Config) *model.AlbumMusicStatus {
	display := DisplayStatuses(allActive)
	snapshots := Snapshots(allActive, now, cfg)

	status := &model.AlbumMusicStatus{
		AlbumID:    albumID,
		Jobs:       make([]model.JobStatusView, 0, len(albumJobs)),
		AudioFiles: assets,
	}

	for _, job := range albumJobs {
		view := model.JobStatusView{
			JobResponse: model.JobResponse{
				JobID:         job.ID,
				TrackID:       job.TrackID,
				Status:        job.Status,
				Progress:      job.Progress,
				StatusMessage: job.StatusMessage,
				ErrorMessage:  job.ErrorMessage,
				CreatedAt:     job.CreatedAt,
			},
			DisplayStatus: job.Status,
			Stuck:         IsStuck(&job, now, cfg),
		}

		if job.IsActive() {
			status.HasActiveJobs = true
			if ds, ok := display[job.ID]; ok {
				view.DisplayStatus = ds
			}
			if snap, ok := snapshots[job.ID]; ok {
				view.Queue = &snap
			}
		}

		switch view.DisplayStatus {
		case model.JobStatusProcessing:
			status.ProcessingCount++
		case model.JobStatusPending, model.JobStatusQueued:
			status.PendingCount++
		case model.JobStatusCompleted:
			status.CompletedCount++
		case model.JobStatusFailed:
			status.FailedCount++
		}

		status.Jobs = append(status.Jobs, view)
	}

	return status
}
