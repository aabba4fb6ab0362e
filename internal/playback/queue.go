package playback

import (
	"math/rand"
	"sync"
	"time"
)

// LoopMode controls what happens when the playing track ends.
type LoopMode string

const (
	LoopNone LoopMode = "none"
	LoopOne  LoopMode = "one"
	LoopAll  LoopMode = "all"
)

// Action is the playback decision for an end-of-track event.
type Action int

const (
	// ActionNone leaves playback where it is: either nothing remains, or
	// the next track has no playable asset yet.
	ActionNone Action = iota
	// ActionRestart replays the current track from time zero.
	ActionRestart
	// ActionPlay starts the track named in Decision.TrackID.
	ActionPlay
)

// Decision pairs an Action with the track it applies to. Previous names the
// track the cursor left, when it moved.
type Decision struct {
	Action   Action
	TrackID  string
	Previous string
}

// Queue is the play-order state for one album: an ordered sequence of track
// IDs, a cursor, and loop/shuffle modes. It is session-scoped value state
// with no durability contract; dropping it on exit is fine.
type Queue struct {
	mu sync.Mutex

	tracks       []string        // album index order
	order        []string        // current play order
	currentIndex int
	loopMode     LoopMode
	shuffled     bool
	ready        map[string]bool // trackID -> playable asset exists

	rng *rand.Rand
}

// NewQueue builds a linear queue over the given tracks.
func NewQueue(trackIDs []string) *Queue {
	q := &Queue{
		loopMode: LoopNone,
		ready:    make(map[string]bool),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	q.setTracksLocked(trackIDs)
	return q
}

// SetTracks replaces the underlying track set and rebuilds the order. The
// playing track keeps its identity: if it survives the change, the cursor
// follows it to its new position instead of resetting.
func (q *Queue) SetTracks(trackIDs []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setTracksLocked(trackIDs)
}

func (q *Queue) setTracksLocked(trackIDs []string) {
	q.tracks = make([]string, len(trackIDs))
	copy(q.tracks, trackIDs)
	q.rebuildLocked()
}

// SetShuffle toggles shuffle mode. Turning it on always deals a fresh
// permutation, never a cached one.
func (q *Queue) SetShuffle(on bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffled = on
	q.rebuildLocked()
}

// SetLoopMode changes the end-of-track behavior.
func (q *Queue) SetLoopMode(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loopMode = mode
}

// SetReady records whether a track has a playable asset. Fed from the
// status poller's audio availability.
func (q *Queue) SetReady(trackID string, ready bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready[trackID] = ready
}

// SetAvailability replaces the full readiness map in one call.
func (q *Queue) SetAvailability(ready map[string]bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = make(map[string]bool, len(ready))
	for id, ok := range ready {
		q.ready[id] = ok
	}
}

// Order returns a copy of the current play order.
func (q *Queue) Order() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

// Current returns the track under the cursor.
func (q *Queue) Current() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	return q.order[q.currentIndex], true
}

// LoopMode returns the active loop mode.
func (q *Queue) LoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loopMode
}

// Select moves the cursor to the clicked track and requests playback
// immediately. Manual selection is user intent, so it bypasses the
// ready-check; an unavailable track surfaces as a player error instead of a
// silent refusal.
func (q *Queue) Select(trackID string) (Decision, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := indexOf(q.order, trackID)
	if idx < 0 {
		return Decision{Action: ActionNone}, false
	}
	var previous string
	if len(q.order) > 0 && q.currentIndex != idx {
		previous = q.order[q.currentIndex]
	}
	q.currentIndex = idx
	return Decision{Action: ActionPlay, TrackID: trackID, Previous: previous}, true
}

// OnTrackEnded decides the next playback step when the current track's
// audio signals completion.
func (q *Queue) OnTrackEnded() Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return Decision{Action: ActionNone}
	}

	current := q.order[q.currentIndex]

	if q.loopMode == LoopOne {
		return Decision{Action: ActionRestart, TrackID: current}
	}

	next := q.currentIndex + 1
	if next >= len(q.order) {
		if q.loopMode != LoopAll {
			// end of queue, no wrap
			return Decision{Action: ActionNone}
		}
		next = 0
	}

	nextID := q.order[next]
	if !q.ready[nextID] {
		// Auto-advance never starts an unavailable track; stay on the
		// ended one.
		return Decision{Action: ActionNone}
	}

	q.currentIndex = next
	return Decision{Action: ActionPlay, TrackID: nextID, Previous: current}
}

// rebuildLocked recomputes the play order for the current track set and
// shuffle flag, then clamps the cursor. A playing track still present in the
// new order keeps the cursor.
func (q *Queue) rebuildLocked() {
	var playing string
	if len(q.order) > 0 && q.currentIndex < len(q.order) {
		playing = q.order[q.currentIndex]
	}

	q.order = make([]string, len(q.tracks))
	copy(q.order, q.tracks)

	if q.shuffled {
		q.rng.Shuffle(len(q.order), func(i, j int) {
			q.order[i], q.order[j] = q.order[j], q.order[i]
		})
	}

	q.currentIndex = 0
	if playing != "" {
		if idx := indexOf(q.order, playing); idx >= 0 {
			q.currentIndex = idx
		}
	}
	if q.currentIndex >= len(q.order) {
		q.currentIndex = 0
	}
}

func indexOf(order []string, trackID string) int {
	for i, id := range order {
		if id == trackID {
			return i
		}
	}
	return -1
}
