package playback

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/albumforge/api/internal/model"
)

// FetchStatus retrieves the album's current music status snapshot.
type FetchStatus func(ctx context.Context) (*model.AlbumMusicStatus, error)

// StatusPoller is a self-terminating poll loop. It refetches the album
// snapshot on an interval, re-evaluates the stop condition after every
// fetch, and cancels its own timer once no jobs are active. Start it again
// after a new submission.
type StatusPoller struct {
	fetch    FetchStatus
	interval time.Duration
	onUpdate func(*model.AlbumMusicStatus)

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewStatusPoller builds a poller. onUpdate runs after every successful
// fetch, including the final one that stops the loop.
func NewStatusPoller(fetch FetchStatus, interval time.Duration, onUpdate func(*model.AlbumMusicStatus)) *StatusPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusPoller{
		fetch:    fetch,
		interval: interval,
		onUpdate: onUpdate,
	}
}

// Start launches the loop. A second Start while running is a no-op, so
// submission handlers can call it unconditionally.
func (p *StatusPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	go p.loop(loopCtx)
}

// Stop cancels the loop if it is running.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *StatusPoller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.running = false
}

// Running reports whether the loop is active.
func (p *StatusPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *StatusPoller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if done := p.poll(ctx); done {
			p.mu.Lock()
			p.stopLocked()
			p.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.stopLocked()
			p.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

// poll runs one fetch and reports whether the loop should stop.
func (p *StatusPoller) poll(ctx context.Context) bool {
	status, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		log.Printf("Status poll failed: %v", err)
		return false
	}

	if p.onUpdate != nil {
		p.onUpdate(status)
	}

	return !status.HasActiveJobs
}

// ApplyAvailability projects a status snapshot onto a queue's readiness map:
// a track is playable once an audio asset with a file URL exists for it.
func ApplyAvailability(q *Queue, status *model.AlbumMusicStatus) {
	ready := make(map[string]bool, len(status.AudioFiles))
	for _, asset := range status.AudioFiles {
		if asset.IsActive && asset.FileURL != "" {
			ready[asset.TrackID] = true
		}
	}
	q.SetAvailability(ready)
}
