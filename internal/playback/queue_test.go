package playback

import (
	"sort"
	"testing"
)

func allReady(q *Queue, trackIDs []string) {
	for _, id := range trackIDs {
		q.SetReady(id, true)
	}
}

func TestQueue_LinearOrder(t *testing.T) {
	tracks := []string{"t1", "t2", "t3"}
	q := NewQueue(tracks)

	order := q.Order()
	if len(order) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(order))
	}
	for i, id := range tracks {
		if order[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, order[i])
		}
	}

	current, ok := q.Current()
	if !ok || current != "t1" {
		t.Errorf("expected cursor on t1, got %q (ok=%v)", current, ok)
	}
}

func TestQueue_ShuffleIsValidPermutation(t *testing.T) {
	tracks := []string{"t1", "t2", "t3", "t4", "t5"}
	q := NewQueue(tracks)
	q.SetShuffle(true)

	order := q.Order()
	if len(order) != len(tracks) {
		t.Fatalf("shuffle changed length: %d", len(order))
	}

	sorted := make([]string, len(order))
	copy(sorted, order)
	sort.Strings(sorted)
	for i, id := range tracks {
		if sorted[i] != id {
			t.Fatalf("shuffled order is not a permutation of the track set: %v", order)
		}
	}
}

func TestQueue_ShuffleOffRestoresAlbumOrder(t *testing.T) {
	tracks := []string{"t1", "t2", "t3", "t4"}
	q := NewQueue(tracks)
	q.SetShuffle(true)
	q.SetShuffle(false)

	order := q.Order()
	for i, id := range tracks {
		if order[i] != id {
			t.Errorf("position %d: expected %s, got %s", i, id, order[i])
		}
	}
}

func TestQueue_AdvanceInOrder(t *testing.T) {
	tracks := []string{"t1", "t2", "t3"}
	q := NewQueue(tracks)
	allReady(q, tracks)

	d := q.OnTrackEnded()
	if d.Action != ActionPlay || d.TrackID != "t2" {
		t.Errorf("expected play t2, got action=%v track=%s", d.Action, d.TrackID)
	}
	if d.Previous != "t1" {
		t.Errorf("expected previous t1, got %s", d.Previous)
	}
}

func TestQueue_EndOfQueueStopsWithoutLoop(t *testing.T) {
	tracks := []string{"t1", "t2"}
	q := NewQueue(tracks)
	allReady(q, tracks)

	q.OnTrackEnded() // t1 -> t2
	d := q.OnTrackEnded()
	if d.Action != ActionNone {
		t.Errorf("expected no action at end of queue, got %v", d.Action)
	}
	if current, _ := q.Current(); current != "t2" {
		t.Errorf("cursor should stay on last track, got %s", current)
	}
}

func TestQueue_LoopAllWraps(t *testing.T) {
	tracks := []string{"t1", "t2"}
	q := NewQueue(tracks)
	allReady(q, tracks)
	q.SetLoopMode(LoopAll)

	q.OnTrackEnded() // t1 -> t2
	d := q.OnTrackEnded()
	if d.Action != ActionPlay || d.TrackID != "t1" {
		t.Errorf("expected wrap to t1, got action=%v track=%s", d.Action, d.TrackID)
	}
}

func TestQueue_LoopOneRestartsSameTrack(t *testing.T) {
	tracks := []string{"t1", "t2"}
	q := NewQueue(tracks)
	allReady(q, tracks)
	q.SetLoopMode(LoopOne)

	for i := 0; i < 3; i++ {
		d := q.OnTrackEnded()
		if d.Action != ActionRestart || d.TrackID != "t1" {
			t.Fatalf("iteration %d: expected restart t1, got action=%v track=%s", i, d.Action, d.TrackID)
		}
	}
	if current, _ := q.Current(); current != "t1" {
		t.Errorf("cursor must not move in loop-one, got %s", current)
	}
}

func TestQueue_AutoAdvanceSkipsNothingWhenNextUnready(t *testing.T) {
	tracks := []string{"t1", "t2", "t3"}
	q := NewQueue(tracks)
	q.SetReady("t1", true)
	q.SetReady("t3", true)
	// t2 still generating

	d := q.OnTrackEnded()
	if d.Action != ActionNone {
		t.Errorf("expected no action while next track is unready, got %v", d.Action)
	}
	if current, _ := q.Current(); current != "t1" {
		t.Errorf("cursor must stay on t1, got %s", current)
	}

	// Once the asset lands, the same event advances.
	q.SetReady("t2", true)
	d = q.OnTrackEnded()
	if d.Action != ActionPlay || d.TrackID != "t2" {
		t.Errorf("expected play t2 after it became ready, got action=%v track=%s", d.Action, d.TrackID)
	}
}

func TestQueue_SelectBypassesReadyCheck(t *testing.T) {
	tracks := []string{"t1", "t2"}
	q := NewQueue(tracks)
	// nothing ready

	d, ok := q.Select("t2")
	if !ok {
		t.Fatal("expected select to succeed")
	}
	if d.Action != ActionPlay || d.TrackID != "t2" {
		t.Errorf("expected play t2, got action=%v track=%s", d.Action, d.TrackID)
	}
	if d.Previous != "t1" {
		t.Errorf("expected previous t1, got %s", d.Previous)
	}
	if current, _ := q.Current(); current != "t2" {
		t.Errorf("expected cursor on t2, got %s", current)
	}
}

func TestQueue_SelectUnknownTrack(t *testing.T) {
	q := NewQueue([]string{"t1"})
	if _, ok := q.Select("missing"); ok {
		t.Error("expected select of unknown track to report failure")
	}
}

func TestQueue_CursorFollowsPlayingTrackAcrossRebuild(t *testing.T) {
	tracks := []string{"t1", "t2", "t3"}
	q := NewQueue(tracks)
	allReady(q, tracks)
	q.Select("t2")

	q.SetShuffle(true)
	if current, _ := q.Current(); current != "t2" {
		t.Errorf("cursor should follow playing track through shuffle, got %s", current)
	}

	q.SetTracks([]string{"t2", "t3", "t4"})
	if current, _ := q.Current(); current != "t2" {
		t.Errorf("cursor should follow playing track through track-set change, got %s", current)
	}
}

func TestQueue_RebuildResetsCursorWhenPlayingTrackRemoved(t *testing.T) {
	q := NewQueue([]string{"t1", "t2", "t3"})
	q.Select("t3")

	q.SetTracks([]string{"t1", "t2"})
	if current, _ := q.Current(); current != "t1" {
		t.Errorf("expected cursor reset to head, got %s", current)
	}
}

func TestQueue_Empty(t *testing.T) {
	q := NewQueue(nil)
	if _, ok := q.Current(); ok {
		t.Error("empty queue should have no current track")
	}
	if d := q.OnTrackEnded(); d.Action != ActionNone {
		t.Errorf("empty queue should decide nothing, got %v", d.Action)
	}
}
