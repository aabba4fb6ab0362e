package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/albumforge/api/internal/model"
)

// Store errors. Handlers map these onto response codes.
var (
	ErrNotFound        = errors.New("job not found")
	ErrActiveJobExists = errors.New("generation already in progress for track")
	ErrConflict        = errors.New("job status changed concurrently")
)

// Job and asset records are kept for a week so failed attempts stay
// inspectable after retries.
const recordRetention = 7 * 24 * time.Hour

// JobStore is the single shared mutable resource of the pipeline. All status
// transitions go through compare-and-set so the worker, the poller and the
// retry paths cannot lose updates to each other.
type JobStore struct {
	redis *redis.Client
}

func NewJobStore(redisClient *redis.Client) *JobStore {
	return &JobStore{redis: redisClient}
}

// watch runs fn under optimistic concurrency control. A watched-key change
// aborts the EXEC with TxFailedErr; one retry against fresh state absorbs
// transient races, so e.g. two submits racing on a track resolve to
// ErrActiveJobExists instead of a raw transaction error. Contention that
// survives the retry surfaces as ErrConflict.
func (s *JobStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	err := s.redis.Watch(ctx, fn, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		err = s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
	}
	return err
}

func jobKey(id string) string         { return "job:" + id }
func trackActiveKey(id string) string { return "track:" + id + ":active" }
func trackLatestKey(id string) string { return "track:" + id + ":latest" }
func albumJobsKey(id string) string   { return "album:" + id + ":jobs" }
func albumTracksKey(id string) string { return "album:" + id + ":tracks" }
func assetKey(id string) string       { return "asset:" + id }
func trackAssetKey(id string) string  { return "track:" + id + ":asset" }
func albumAssetsKey(id string) string { return "album:" + id + ":assets" }

const activeQueueKey = "jobs:active"

func marshalJob(job *model.GenerationJob) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	return string(data), nil
}

func unmarshalJob(data []byte) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
