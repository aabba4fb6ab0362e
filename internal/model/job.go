package model

import "time"

// JobStatus is the persisted lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatusQueued is display-only: the queue view shows every active job
// behind the head of the line as queued. It is derived per request and never
// written to a job row.
const JobStatusQueued JobStatus = "queued"

// Platform identifies the external generation provider a job targets.
type Platform string

const (
	PlatformSuno Platform = "suno"
	PlatformMock Platform = "mock"
)

// GenerationJob is one generation attempt for a track. Retries and restarts
// create a new job; completed and failed rows stay in history for audit.
type GenerationJob struct {
	ID             string    `json:"id"`
	TrackID        string    `json:"trackId"`
	AlbumID        string    `json:"albumId"`
	Status         JobStatus `json:"status"`
	Progress       int       `json:"progress"`
	StatusMessage  string    `json:"statusMessage,omitempty"`
	ErrorMessage   *string   `json:"errorMessage,omitempty"`
	Platform       Platform  `json:"platform"`
	ExternalTaskID string    `json:"externalTaskId,omitempty"`
	// Params are kept on the row so retries can resubmit without the caller
	// re-sending prompt material.
	Params    GenerationParams `json:"params"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// IsActive reports whether the job still counts toward the track's single
// active slot and the FIFO queue.
func (j *GenerationJob) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}

// IsTerminal reports whether the job can no longer change state on its own.
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AudioAsset is a playable render of a track. Exactly one asset per track is
// active once generation has succeeded; regeneration deactivates the old one.
type AudioAsset struct {
	ID        string    `json:"id"`
	TrackID   string    `json:"trackId"`
	AlbumID   string    `json:"albumId"`
	FileURL   string    `json:"fileUrl"`
	Duration  float64   `json:"duration"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// GenerationParams carries the prompt material handed to the provider.
type GenerationParams struct {
	Prompt       string   `json:"prompt" validate:"required,min=1,max=2000"`
	Lyrics       string   `json:"lyrics,omitempty" validate:"max=5000"`
	Style        string   `json:"style,omitempty" validate:"max=200"`
	Title        string   `json:"title,omitempty" validate:"max=200"`
	Instrumental bool     `json:"instrumental,omitempty"`
	Platform     Platform `json:"platform,omitempty"`
}

// GenerateJobPayload is the asynq task body for a generation job.
type GenerateJobPayload struct {
	JobID   string           `json:"jobId"`
	TrackID string           `json:"trackId"`
	AlbumID string           `json:"albumId"`
	Params  GenerationParams `json:"params"`
}
