package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/albumforge/api/internal/auth"
	"github.com/albumforge/api/internal/handler"
	"github.com/albumforge/api/internal/middleware"
	"github.com/albumforge/api/internal/queue"
	"github.com/albumforge/api/internal/service"
	"github.com/albumforge/api/internal/store"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app   *fiber.App
	store *store.JobStore
}

// setupApp creates a Fiber app identical to main.go, minus the asynq worker
// server. Jobs stay in their persisted state until a test moves them through
// the store or the admin endpoints, which makes queue ordering assertions
// deterministic.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	t.Cleanup(func() { redisClient.Close() })

	// Queue positions are global, so each test starts from an empty DB.
	if err := redisClient.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush test Redis DB: %v", err)
	}

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	jobStore := store.NewJobStore(redisClient)
	queueCfg := queue.Config{
		AvgJobMinutes: 3,
		StuckAfter:    20 * time.Minute,
	}
	musicService := service.NewMusicService(jobStore, asynqClient, queueCfg)

	// Handlers
	musicHandler := handler.NewMusicHandler(musicService, validate)
	adminHandler := handler.NewAdminHandler(musicService, validate)
	authHandler := handler.NewAuthHandler(testJWTSecret)

	// Auth middleware — direct HMAC mode, no gateway
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// Base routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": false,
				"storage":  false,
				"auth":     true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	tracks := api.Group("/tracks")
	tracks.Post("/:trackId/generate", rateLimiter.SubmitLimit(10000), musicHandler.Submit)
	tracks.Post("/:trackId/retry", rateLimiter.RetryLimit(10000), musicHandler.Retry)

	albums := api.Group("/albums")
	albums.Get("/:albumId/music-status", musicHandler.AlbumStatus)
	albums.Post("/:albumId/retry-failed", rateLimiter.RetryLimit(10000), musicHandler.RetryAllFailed)

	admin := api.Group("/admin")
	admin.Post("/jobs/:jobId/restart", adminHandler.Restart)
	admin.Post("/jobs/:jobId/fail", adminHandler.MarkFailed)

	return &testApp{app: app, store: jobStore}
}

// generateToken creates an HMAC session token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.NewToken("test-user-123", "test@example.com", testJWTSecret)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// newAlbumID returns a fresh uuid4 string for request bodies.
func newAlbumID() string {
	return uuid.NewString()
}

// submitBody builds a minimal valid generation request for the given album.
func submitBody(albumID string) string {
	return `{"albumId":"` + albumID + `","params":{"prompt":"An upbeat synth-pop track about summer","style":"synth-pop","title":"Summer Lights"}}`
}

// submitTrack submits a generation job and returns the parsed data payload.
func submitTrack(t *testing.T, app *fiber.App, trackID, albumID string) map[string]interface{} {
	t.Helper()
	resp, err := doAuthRequest(t, app, "POST", "/api/tracks/"+trackID+"/generate", submitBody(albumID))
	if err != nil {
		t.Fatalf("submit request failed: %v", err)
	}
	assertStatus(t, resp, 202)
	return parseJSON(t, resp)
}
