package playback

import "sync"

// Handle is a controllable playback surface for one track. The registry
// maps track identity to handles so the controller never has to search a
// rendered view tree for "the playing element".
type Handle interface {
	Play() error
	Pause() error
	SeekStart() error
}

// HandleRegistry owns the trackID -> handle mapping.
type HandleRegistry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{handles: make(map[string]Handle)}
}

func (r *HandleRegistry) Register(trackID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[trackID] = h
}

func (r *HandleRegistry) Unregister(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, trackID)
}

func (r *HandleRegistry) Get(trackID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[trackID]
	return h, ok
}

// Controller applies queue decisions to the registered handles.
type Controller struct {
	queue    *Queue
	registry *HandleRegistry
}

func NewController(queue *Queue, registry *HandleRegistry) *Controller {
	return &Controller{queue: queue, registry: registry}
}

// TrackEnded reacts to an end-of-track signal: restart in loop-one, advance
// when the next track is ready, otherwise leave playback stopped.
func (c *Controller) TrackEnded() error {
	decision := c.queue.OnTrackEnded()
	return c.apply(decision)
}

// SelectTrack handles a user clicking a track. Playback starts even without
// a ready asset; the handle reports its own error in that case.
func (c *Controller) SelectTrack(trackID string) error {
	decision, ok := c.queue.Select(trackID)
	if !ok {
		return nil
	}
	return c.apply(decision)
}

func (c *Controller) apply(decision Decision) error {
	switch decision.Action {
	case ActionRestart:
		h, ok := c.registry.Get(decision.TrackID)
		if !ok {
			return nil
		}
		if err := h.SeekStart(); err != nil {
			return err
		}
		return h.Play()
	case ActionPlay:
		if decision.Previous != "" && decision.Previous != decision.TrackID {
			if h, ok := c.registry.Get(decision.Previous); ok {
				_ = h.Pause()
			}
		}
		h, ok := c.registry.Get(decision.TrackID)
		if !ok {
			return nil
		}
		return h.Play()
	}
	return nil
}
