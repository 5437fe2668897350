package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/auth"
	"github.com/youtubelmm/api/internal/handler"
	"github.com/youtubelmm/api/internal/middleware"
	"github.com/youtubelmm/api/internal/queue"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/store"
	"github.com/youtubelmm/api/internal/validate"
)

const testJWTSecret = "test-secret-for-e2e"

// ownerSeq hands every test its own owner so rate limit windows left in redis
// by earlier runs do not leak in.
var ownerSeq atomic.Int64

func init() {
	ownerSeq.Store(time.Now().UnixNano() % 1_000_000_000)
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	verifier *auth.HMACVerifier
	owner    int64
}

// setupApp wires the API the way the api command does, against a local redis
// and a throwaway SQLite database. Artifact storage is left unconfigured.
func setupApp(t *testing.T, tasksPerHour int) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	st, err := store.Open("sqlite://" + filepath.Join(t.TempDir(), "e2e.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	tasks := service.NewTaskService(st, queue.NewDispatcher(asynqClient, 3600), log)
	progress := service.NewProgressService(redisClient, log)
	verifier := auth.NewHMACVerifier(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New()
	handler.Routes{
		Auth:       middleware.NewAuthMiddleware(verifier).Authenticate(),
		TaskLimit:  rateLimiter.TaskLimit(tasksPerHour),
		Tasks:      handler.NewTaskHandler(tasks, progress, service.NewArtifactService(nil), validate.New()),
		Health:     handler.NewHealthHandler(map[string]handler.Pinger{"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }}, map[string]bool{"artifacts": false}),
		AuthVerify: handler.NewAuthHandler(verifier),
	}.Register(app)

	return &testApp{app: app, verifier: verifier, owner: ownerSeq.Add(1)}
}

// generateToken creates an HMAC JWT for the app's owner.
func (ta *testApp) generateToken(t *testing.T) string {
	t.Helper()
	signed, err := ta.verifier.Issue(ta.owner, time.Hour)
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
func (ta *testApp) doAuthRequest(t *testing.T, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(ta.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + ta.generateToken(t),
	})
}

// submit posts url and returns the decoded body.
func (ta *testApp) submit(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := ta.doAuthRequest(t, http.MethodPost, "/api/tasks", fmt.Sprintf(`{"url": %q}`, url))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp, parseJSON(t, resp)
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
