package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/albumforge/api/internal/model"
)

func TestSubmitGeneration(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	data := submitTrack(t, ta.app, "track-1", albumID)

	if data["status"] != "pending" {
		t.Errorf("expected pending status, got %v", data["status"])
	}
	if data["trackId"] != "track-1" {
		t.Errorf("expected trackId track-1, got %v", data["trackId"])
	}
	if data["jobId"] == "" || data["jobId"] == nil {
		t.Error("expected a jobId")
	}
	if data["progress"] != float64(0) {
		t.Errorf("expected progress 0, got %v", data["progress"])
	}
}

func TestSubmitGeneration_DuplicateRejected(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	submitTrack(t, ta.app, "track-1", albumID)

	resp, err := doAuthRequest(t, ta.app, "POST", "/api/tracks/track-1/generate", submitBody(albumID))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 409)

	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got: %v", result)
	}
	if errObj["code"] != "SUBMISSION_REJECTED" {
		t.Errorf("expected SUBMISSION_REJECTED, got %v", errObj["code"])
	}
}

func TestSubmitGeneration_ValidationErrors(t *testing.T) {
	ta := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing albumId", `{"params":{"prompt":"a song"}}`},
		{"albumId not uuid", `{"albumId":"not-a-uuid","params":{"prompt":"a song"}}`},
		{"missing prompt", `{"albumId":"` + newAlbumID() + `","params":{"title":"No Prompt"}}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := doAuthRequest(t, ta.app, "POST", "/api/tracks/track-1/generate", tt.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, 400)
		})
	}
}

func TestSubmitGeneration_Unauthorized(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/tracks/track-1/generate", submitBody(newAlbumID()), nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 401)
}

func TestAlbumMusicStatus_QueueOrdering(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	submitTrack(t, ta.app, "track-1", albumID)
	submitTrack(t, ta.app, "track-2", albumID)
	submitTrack(t, ta.app, "track-3", albumID)

	resp, err := doAuthRequest(t, ta.app, "GET", "/api/albums/"+albumID+"/music-status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["hasActiveJobs"] != true {
		t.Error("expected hasActiveJobs true")
	}
	if result["processingCount"] != float64(1) {
		t.Errorf("expected processingCount 1, got %v", result["processingCount"])
	}
	if result["pendingCount"] != float64(2) {
		t.Errorf("expected pendingCount 2, got %v", result["pendingCount"])
	}

	jobs, ok := result["jobs"].([]interface{})
	if !ok || len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got: %v", result["jobs"])
	}

	byTrack := make(map[string]map[string]interface{})
	for _, j := range jobs {
		job := j.(map[string]interface{})
		byTrack[job["trackId"].(string)] = job
	}

	// First submission is head of line and displays as processing.
	if byTrack["track-1"]["displayStatus"] != "processing" {
		t.Errorf("expected track-1 displayed processing, got %v", byTrack["track-1"]["displayStatus"])
	}
	for _, trackID := range []string{"track-2", "track-3"} {
		if byTrack[trackID]["displayStatus"] != "queued" {
			t.Errorf("expected %s displayed queued, got %v", trackID, byTrack[trackID]["displayStatus"])
		}
	}

	// Positions and wait estimates follow submission order.
	for i, trackID := range []string{"track-1", "track-2", "track-3"} {
		queueInfo, ok := byTrack[trackID]["queueInfo"].(map[string]interface{})
		if !ok {
			t.Fatalf("expected queueInfo for %s", trackID)
		}
		wantPos := float64(i + 1)
		if queueInfo["position"] != wantPos {
			t.Errorf("%s: expected position %v, got %v", trackID, wantPos, queueInfo["position"])
		}
		if queueInfo["totalInQueue"] != float64(3) {
			t.Errorf("%s: expected totalInQueue 3, got %v", trackID, queueInfo["totalInQueue"])
		}
		wantWait := float64((i + 1) * 3)
		if queueInfo["estimatedWaitMinutes"] != wantWait {
			t.Errorf("%s: expected wait %v min, got %v", trackID, wantWait, queueInfo["estimatedWaitMinutes"])
		}
	}
}

func TestAlbumMusicStatus_EmptyAlbum(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, "GET", "/api/albums/"+newAlbumID()+"/music-status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["hasActiveJobs"] != false {
		t.Error("expected hasActiveJobs false for empty album")
	}
}

func TestRetryTrack(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	data := submitTrack(t, ta.app, "track-1", albumID)
	jobID := data["jobId"].(string)

	// Retry of a non-failed job is rejected.
	resp, err := doAuthRequest(t, ta.app, "POST", "/api/tracks/track-1/retry", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 400)

	// Fail it through the admin endpoint, then retry succeeds.
	resp, err = doAuthRequest(t, ta.app, "POST", "/api/admin/jobs/"+jobID+"/fail", `{"message":"provider timeout"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	resp, err = doAuthRequest(t, ta.app, "POST", "/api/tracks/track-1/retry", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 202)

	retried := parseJSON(t, resp)
	if retried["status"] != "pending" {
		t.Errorf("expected retried job pending, got %v", retried["status"])
	}
	if retried["jobId"] == jobID {
		t.Error("retry must create a new job, not revive the failed one")
	}
}

func TestRetryTrack_NoHistory(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, "POST", "/api/tracks/"+uuid.NewString()+"/retry", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 404)
}

func TestRetryTrack_MovesToBackOfQueue(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	first := submitTrack(t, ta.app, "track-1", albumID)
	submitTrack(t, ta.app, "track-2", albumID)

	// Fail the head job and retry it: the replacement queues behind track-2.
	resp, err := doAuthRequest(t, ta.app, "POST", "/api/admin/jobs/"+first["jobId"].(string)+"/fail", `{"message":"stuck"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	resp, err = doAuthRequest(t, ta.app, "POST", "/api/tracks/track-1/retry", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 202)

	resp, err = doAuthRequest(t, ta.app, "GET", "/api/albums/"+albumID+"/music-status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	status := parseJSON(t, resp)

	for _, j := range status["jobs"].([]interface{}) {
		job := j.(map[string]interface{})
		queueInfo, _ := job["queueInfo"].(map[string]interface{})
		switch job["trackId"] {
		case "track-2":
			if job["displayStatus"] != "processing" {
				t.Errorf("expected track-2 promoted to head, got %v", job["displayStatus"])
			}
			if queueInfo == nil || queueInfo["position"] != float64(1) {
				t.Errorf("expected track-2 at position 1, got %v", queueInfo)
			}
		case "track-1":
			if job["displayStatus"] != "queued" {
				t.Errorf("expected retried track-1 queued, got %v", job["displayStatus"])
			}
			if queueInfo == nil || queueInfo["position"] != float64(2) {
				t.Errorf("expected track-1 at position 2, got %v", queueInfo)
			}
		}
	}
}

func TestRetryAllFailed(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	first := submitTrack(t, ta.app, "track-1", albumID)
	second := submitTrack(t, ta.app, "track-2", albumID)

	for _, data := range []map[string]interface{}{first, second} {
		resp, err := doAuthRequest(t, ta.app, "POST", "/api/admin/jobs/"+data["jobId"].(string)+"/fail", `{"message":"provider error"}`)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, 200)
	}

	resp, err := doAuthRequest(t, ta.app, "POST", "/api/albums/"+albumID+"/retry-failed", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["retriedCount"] != float64(2) {
		t.Errorf("expected retriedCount 2, got %v", result["retriedCount"])
	}

	// Second pass finds no failed latest jobs: the first pass already
	// replaced them with pending ones.
	resp, err = doAuthRequest(t, ta.app, "POST", "/api/albums/"+albumID+"/retry-failed", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result = parseJSON(t, resp)
	if result["retriedCount"] != float64(0) {
		t.Errorf("expected retriedCount 0 on second pass, got %v", result["retriedCount"])
	}
}

func TestRetryAllFailed_SkipsTracksWithNewerActiveJob(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	data := submitTrack(t, ta.app, "track-1", albumID)

	// Fail and resubmit manually: the failed row is history now, the
	// latest job for the track is active.
	resp, err := doAuthRequest(t, ta.app, "POST", "/api/admin/jobs/"+data["jobId"].(string)+"/fail", `{"message":"transient"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)
	submitTrack(t, ta.app, "track-1", albumID)

	resp, err = doAuthRequest(t, ta.app, "POST", "/api/albums/"+albumID+"/retry-failed", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["retriedCount"] != float64(0) {
		t.Errorf("expected no retries when latest jobs are active, got %v", result["retriedCount"])
	}
}

func TestAlbumMusicStatus_CompletedTrackExposesAudio(t *testing.T) {
	ta := setupApp(t)
	albumID := newAlbumID()

	data := submitTrack(t, ta.app, "track-1", albumID)
	jobID := data["jobId"].(string)

	ctx := context.Background()
	if _, err := ta.store.ClaimPending(ctx, jobID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	asset := &model.AudioAsset{
		ID:        uuid.NewString(),
		TrackID:   "track-1",
		AlbumID:   albumID,
		FileURL:   "https://cdn.example.com/track-1.mp3",
		Duration:  182.5,
		CreatedAt: time.Now().UTC(),
	}
	if err := ta.store.CompleteJob(ctx, jobID, asset); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	resp, err := doAuthRequest(t, ta.app, "GET", "/api/albums/"+albumID+"/music-status", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["hasActiveJobs"] != false {
		t.Error("expected hasActiveJobs false after completion")
	}
	if result["completedCount"] != float64(1) {
		t.Errorf("expected completedCount 1, got %v", result["completedCount"])
	}

	files, ok := result["audioFiles"].([]interface{})
	if !ok || len(files) != 1 {
		t.Fatalf("expected one audio file, got: %v", result["audioFiles"])
	}
	file := files[0].(map[string]interface{})
	if file["fileUrl"] != asset.FileURL {
		t.Errorf("expected file URL %s, got %v", asset.FileURL, file["fileUrl"])
	}
	if file["isActive"] != true {
		t.Error("expected the asset active")
	}

	jobs := result["jobs"].([]interface{})
	job := jobs[0].(map[string]interface{})
	if job["status"] != "completed" || job["progress"] != float64(100) {
		t.Errorf("expected completed at 100%%, got status=%v progress=%v", job["status"], job["progress"])
	}
	if _, hasQueue := job["queueInfo"]; hasQueue {
		t.Error("completed job should carry no queue info")
	}
}

func TestHealthEndpoint(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, 200)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("expected ok, got %v", result["status"])
	}
}
