package model

import "time"

// SubmitJobRequest starts generation for a track.
type SubmitJobRequest struct {
	AlbumID string           `json:"albumId" validate:"required,uuid4"`
	Params  GenerationParams `json:"params" validate:"required"`
}

// JobResponse is the job view returned by submit/retry/admin endpoints.
type JobResponse struct {
	JobID         string    `json:"jobId"`
	TrackID       string    `json:"trackId"`
	Status        JobStatus `json:"status"`
	Progress      int       `json:"progress"`
	StatusMessage string    `json:"statusMessage,omitempty"`
	ErrorMessage  *string   `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// QueueSnapshot is the derived queue placement for one active job. It is
// recomputed on every status read and never persisted.
type QueueSnapshot struct {
	Position                int       `json:"position"`
	TotalInQueue            int       `json:"totalInQueue"`
	EstimatedWaitMinutes    int       `json:"estimatedWaitMinutes"`
	WaitDisplay             string    `json:"waitDisplay"`
	EstimatedCompletionTime time.Time `json:"estimatedCompletionTime"`
}

// JobStatusView is a job as shown to clients: DisplayStatus follows the
// head-of-line rule and may differ from the persisted status.
type JobStatusView struct {
	JobResponse
	DisplayStatus JobStatus      `json:"displayStatus"`
	Stuck         bool           `json:"stuck,omitempty"`
	Queue         *QueueSnapshot `json:"queueInfo,omitempty"`
}

// AlbumMusicStatus is the polling snapshot for one album.
type AlbumMusicStatus struct {
	AlbumID         string          `json:"albumId"`
	Jobs            []JobStatusView `json:"jobs"`
	AudioFiles      []AudioAsset    `json:"audioFiles"`
	PendingCount    int             `json:"pendingCount"`
	ProcessingCount int             `json:"processingCount"`
	CompletedCount  int             `json:"completedCount"`
	FailedCount     int             `json:"failedCount"`
	HasActiveJobs   bool            `json:"hasActiveJobs"`
}

// RetryAllResponse reports how many failed tracks a bulk retry touched.
type RetryAllResponse struct {
	AlbumID      string `json:"albumId"`
	RetriedCount int    `json:"retriedCount"`
}

// AdminFailRequest force-fails a job with an operator-supplied message.
type AdminFailRequest struct {
	Message string `json:"message" validate:"required,min=1,max=500"`
}
