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

// CompleteJob moves a processing job to completed and activates its audio
// asset in the same transaction. Any previously active asset for the track is
// deactivated, so exactly one playable asset exists per track.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, asset *model.AudioAsset) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		job, err := s.getJobTx(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobStatusProcessing {
			return ErrConflict
		}

		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.UpdatedAt = time.Now()

		jobData, err := marshalJob(job)
		if err != nil {
			return err
		}

		// Deactivate the track's current asset, if any.
		var previous *model.AudioAsset
		prevID, err := s.redis.Get(ctx, trackAssetKey(job.TrackID)).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if prevID != "" {
			previous, err = s.GetAsset(ctx, prevID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		asset.IsActive = true

		assetData, err := json.Marshal(asset)
		if err != nil {
			return fmt.Errorf("failed to marshal asset: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), jobData, recordRetention)
			pipe.ZRem(ctx, activeQueueKey, job.ID)
			s.releaseTrackSlot(ctx, pipe, job)

			if previous != nil {
				previous.IsActive = false
				prevData, err := json.Marshal(previous)
				if err != nil {
					return err
				}
				pipe.Set(ctx, assetKey(previous.ID), prevData, recordRetention)
			}

			pipe.Set(ctx, assetKey(asset.ID), assetData, recordRetention)
			pipe.Set(ctx, trackAssetKey(asset.TrackID), asset.ID, recordRetention)
			pipe.SAdd(ctx, albumAssetsKey(asset.AlbumID), asset.ID)
			pipe.Expire(ctx, albumAssetsKey(asset.AlbumID), recordRetention)
			return nil
		})
		return err
	}, jobKey(jobID))
}

// GetAsset loads one audio asset by ID.
func (s *JobStore) GetAsset(ctx context.Context, assetID string) (*model.AudioAsset, error) {
	data, err := s.redis.Get(ctx, assetKey(assetID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var asset model.AudioAsset
	if err := json.Unmarshal(data, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset: %w", err)
	}
	return &asset, nil
}

// ActiveAssetForTrack returns the track's playable asset, or ErrNotFound.
func (s *JobStore) ActiveAssetForTrack(ctx context.Context, trackID string) (*model.AudioAsset, error) {
	assetID, err := s.redis.Get(ctx, trackAssetKey(trackID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetAsset(ctx, assetID)
}

// ListAlbumAssets returns every asset recorded for an album.
func (s *JobStore) ListAlbumAssets(ctx context.Context, albumID string) ([]model.AudioAsset, error) {
	ids, err := s.redis.SMembers(ctx, albumAssetsKey(albumID)).Result()
	if err != nil {
		return nil, err
	}

	assets := make([]model.AudioAsset, 0, len(ids))
	for _, id := range ids {
		asset, err := s.GetAsset(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, nil
}
