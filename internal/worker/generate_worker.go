package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/albumforge/api/internal/client"
	"github.com/albumforge/api/internal/config"
	"github.com/albumforge/api/internal/model"
	"github.com/albumforge/api/internal/store"
	ws "github.com/albumforge/api/internal/websocket"
)

// GenerateWorker drives one generation job end to end: claim, provider
// submit, status polling, asset mirroring. The asynq server runs the
// generate queue with concurrency 1, so at most one job talks to the
// provider at a time; the store's compare-and-set claim is the correctness
// backstop against a second worker process.
type GenerateWorker struct {
	store     *store.JobStore
	generator client.MusicGenerator
	storage   client.StorageClient
	hub       *ws.Hub
	cfg       config.SchedulerConfig
}

func NewGenerateWorker(jobStore *store.JobStore, generator client.MusicGenerator, storage client.StorageClient, hub *ws.Hub, cfg config.SchedulerConfig) *GenerateWorker {
	return &GenerateWorker{
		store:     jobStore,
		generator: generator,
		storage:   storage,
		hub:       hub,
		cfg:       cfg,
	}
}

// ProcessTask handles one queued generation job.
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.GenerateJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	// Claim the FIFO head rather than the task's own job: asynq delivery
	// order can drift from createdAt order by milliseconds, and the head is
	// the job whose position the status API advertises as next. One task
	// still drains one job.
	job, err := w.store.ClaimHead(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("No claimable job for task (job %s superseded or done), dropping", payload.JobID)
			return nil
		}
		return err
	}

	log.Printf("Starting generation job %s (track %s)", job.ID, job.TrackID)

	if w.generator == nil || !w.generator.IsConfigured() {
		return w.processWithMock(ctx, job)
	}

	return w.processWithProvider(ctx, job)
}

// processWithProvider runs the real provider path.
func (w *GenerateWorker) processWithProvider(ctx context.Context, job *model.GenerationJob) error {
	w.updateProgress(ctx, job, 5, "Submitting to generator...")

	resp, err := w.generator.SubmitGeneration(ctx, &client.SubmitGenerationRequest{
		Prompt:           job.Params.Prompt,
		Lyrics:           job.Params.Lyrics,
		Style:            job.Params.Style,
		Title:            job.Params.Title,
		MakeInstrumental: job.Params.Instrumental,
	})
	if err != nil {
		// Provider rejected or unreachable at submit time: straight to
		// failed, next queued job advances immediately.
		w.failJob(ctx, job, fmt.Sprintf("Generation failed to start: %v", err))
		return err
	}

	if err := w.store.RecordExternalTask(ctx, job.ID, resp.TaskID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Printf("Job %s no longer processing, dropping", job.ID)
			return nil
		}
		return err
	}

	w.updateProgress(ctx, job, 10, "Generating music...")

	result, err := w.pollTask(ctx, job, resp.TaskID)
	if err != nil {
		w.failJob(ctx, job, err.Error())
		return err
	}

	return w.complete(ctx, job, result.AudioURL, result.Duration)
}

// pollTask polls the provider until the task reaches a terminal state,
// persisting each progress snapshot. The store drops regressed progress
// values, so duplicate and out-of-order provider responses are harmless.
func (w *GenerateWorker) pollTask(ctx context.Context, job *model.GenerationJob, taskID string) (*client.TaskStatus, error) {
	interval := time.Duration(w.cfg.ProviderPollSeconds) * time.Second
	maxWait := time.Duration(w.cfg.ProviderMaxWaitMinutes) * time.Minute
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		status, err := w.generator.QueryTask(ctx, taskID)
		if err != nil {
			log.Printf("Poll #%d (task=%s) error: %v", attempt, taskID, err)
			return nil, fmt.Errorf("generation status check failed: %v", err)
		}

		switch status.State {
		case client.TaskStateCompleted:
			return status, nil
		case client.TaskStateFailed:
			msg := status.Error
			if msg == "" {
				msg = "provider reported failure"
			}
			return nil, fmt.Errorf("generation failed: %s", msg)
		}

		w.updateProgress(ctx, job, status.Progress, status.Stage)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("generation timed out after %v", maxWait)
}

// processWithMock walks the pipeline with synthetic progress so development
// and e2e runs exercise the full lifecycle without a provider key.
func (w *GenerateWorker) processWithMock(ctx context.Context, job *model.GenerationJob) error {
	steps := []struct {
		progress int
		stage    string
		duration time.Duration
	}{
		{10, "Analyzing prompt...", 1 * time.Second},
		{30, "Composing melody...", 2 * time.Second},
		{55, "Rendering vocals...", 2 * time.Second},
		{80, "Mixing track...", 2 * time.Second},
		{95, "Finalizing...", 1 * time.Second},
	}

	for _, step := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.updateProgress(ctx, job, step.progress, step.stage)
		time.Sleep(step.duration)
	}

	mockURL := fmt.Sprintf("https://cdn.albumforge.io/audio/%s/%s.mp3", job.AlbumID, job.TrackID)
	return w.complete(ctx, job, mockURL, 180)
}

// complete mirrors the audio into durable storage when configured, then
// finishes the job. Completion activates the new asset and deactivates the
// previous one in the same store transaction.
func (w *GenerateWorker) complete(ctx context.Context, job *model.GenerationJob, audioURL string, duration float64) error {
	asset := &model.AudioAsset{
		ID:        uuid.New().String(),
		TrackID:   job.TrackID,
		AlbumID:   job.AlbumID,
		FileURL:   audioURL,
		Duration:  duration,
		CreatedAt: time.Now(),
	}

	if w.storage != nil {
		key := client.AudioAssetKey(job.AlbumID, job.TrackID, asset.ID)
		if mirrored, err := w.storage.Mirror(ctx, key, audioURL, "audio/mpeg"); err != nil {
			// Provider URL still works; keep it rather than failing the job.
			log.Printf("Asset mirror failed for job %s: %v", job.ID, err)
		} else {
			asset.FileURL = mirrored
		}
	}

	if err := w.store.CompleteJob(ctx, job.ID, asset); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Printf("Job %s was failed while finishing, result dropped", job.ID)
			return nil
		}
		w.failJob(ctx, job, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(job.AlbumID, job.ID, job.TrackID, asset)
	log.Printf("Generation job %s completed", job.ID)
	return nil
}

func (w *GenerateWorker) updateProgress(ctx context.Context, job *model.GenerationJob, progress int, stage string) {
	if err := w.store.UpdateProgress(ctx, job.ID, progress, stage); err != nil {
		log.Printf("Failed to update progress for job %s: %v", job.ID, err)
		return
	}
	w.hub.BroadcastProgress(job.AlbumID, job.ID, job.TrackID, progress, model.JobStatusProcessing, stage)
}

func (w *GenerateWorker) failJob(ctx context.Context, job *model.GenerationJob, errMsg string) {
	err := w.store.FailJob(ctx, job.ID, errMsg,
		model.JobStatusPending, model.JobStatusProcessing)
	if err != nil {
		log.Printf("Failed to mark job %s as failed: %v", job.ID, err)
	}
	w.hub.BroadcastError(job.AlbumID, job.ID, job.TrackID, "GENERATION_FAILED", errMsg)
}
