package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/radarcache/radarcache/internal/cache"
	"github.com/radarcache/radarcache/internal/metrics"
	"github.com/radarcache/radarcache/internal/radar"
	"github.com/radarcache/radarcache/internal/store"
	"github.com/radarcache/radarcache/internal/workflow"
)

const testFrames = 3

// errRunner fails every acquisition immediately so background updates
// triggered by handlers never mutate the seeded cache.
type errRunner struct{}

func (errRunner) Run(ctx context.Context, loc radar.Location, folder, requestID, debugDir string,
	reporter workflow.Reporter, rec *metrics.RunRecorder) ([]radar.Frame, radar.ObservationMetadata, error) {
	return nil, radar.ObservationMetadata{}, errors.New("agent unavailable")
}

func newTestApp(t *testing.T) (*fiber.App, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), testFrames, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	svc := cache.New(fs, radar.NewActiveRegistry(), metrics.NewEstimator(20), errRunner{}, cache.Config{
		Validity:         15 * time.Minute,
		FrameCount:       testFrames,
		Concurrency:      1,
		Timezone:         time.UTC,
		BaseOverhead:     10 * time.Second,
		TileRenderWait:   3 * time.Second,
		PerFrameOverhead: 2 * time.Second,
	})

	t.Cleanup(svc.Wait)

	app := fiber.New()
	RegisterRoutes(app, svc)
	return app, fs
}

func seedCompleteFolder(t *testing.T, fs *store.FileStore, name string, obsTime time.Time) string {
	t.Helper()
	path, err := fs.CreateFolder(name)
	if err != nil {
		t.Fatal(err)
	}
	frames := make([]radar.Frame, 0, testFrames)
	for i := 0; i < testFrames; i++ {
		if _, err := fs.WriteFrame(path, i, []byte("png-bytes")); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, radar.Frame{Index: i, MinutesAgo: (testFrames - 1 - i) * 5})
	}
	if err := fs.WriteMetadata(path, radar.ObservationMetadata{ObservationTime: obsTime}); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteManifest(path, frames); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCurrentRequiresLocation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/current?suburb=Sydney", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestCurrentNotYetAvailable(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/current?suburb=Sydney&state=NSW", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}

	var body struct {
		Message string             `json:"message"`
		Update  cache.UpdateStatus `json:"update"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Update.Triggered {
		t.Errorf("empty cache should trigger an update, got %+v", body.Update)
	}
}

func TestCurrentServesFreshCache(t *testing.T) {
	app, fs := newTestApp(t)

	obs := time.Now().UTC().Truncate(time.Second)
	key := radar.Location{Suburb: "Sydney", State: "NSW"}.Key()
	seedCompleteFolder(t, fs, radar.FolderName(key, obs), obs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/current?suburb=Sydney&state=NSW", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Folder string             `json:"folder"`
		Frames []radar.Frame      `json:"frames"`
		Update cache.UpdateStatus `json:"update"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Folder != radar.FolderName(key, obs) {
		t.Errorf("folder = %q, want %q", body.Folder, radar.FolderName(key, obs))
	}
	if len(body.Frames) != testFrames {
		t.Errorf("frames = %d, want %d", len(body.Frames), testFrames)
	}
	if !body.Update.CacheValid {
		t.Errorf("fresh cache should report cacheIsValid, got %+v", body.Update)
	}
}

func TestFrameEndpoint(t *testing.T) {
	app, fs := newTestApp(t)

	obs := time.Now().UTC().Truncate(time.Second)
	key := radar.Location{Suburb: "Sydney", State: "NSW"}.Key()
	seedCompleteFolder(t, fs, radar.FolderName(key, obs), obs)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/frame/1?suburb=Sydney&state=NSW", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "png-bytes" {
		t.Errorf("frame body = %q, want seeded image bytes", data)
	}

	// Out-of-range index.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/radar/frame/9?suburb=Sydney&state=NSW", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestFrameEndpointNoCache(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/radar/frame/0?suburb=Perth&state=WA", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestSeriesRangeValidation(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/radar/series?suburb=Sydney&state=NSW&from=2026-01-10T12:00:00Z&to=2026-01-10T11:00:00Z", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Malformed time value.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/radar/series?suburb=Sydney&state=NSW&from=yesterday", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestDeleteLocation(t *testing.T) {
	app, fs := newTestApp(t)

	obs := time.Now().UTC().Truncate(time.Second)
	key := radar.Location{Suburb: "Sydney", State: "NSW"}.Key()
	seedCompleteFolder(t, fs, radar.FolderName(key, obs), obs)
	seedCompleteFolder(t, fs, radar.FolderName(key, obs.Add(-time.Hour)), obs.Add(-time.Hour))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/radar?suburb=Sydney&state=NSW", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", body.Deleted)
	}

	if _, err := fs.ListFolders(key); err != nil {
		t.Fatalf("ListFolders after delete: %v", err)
	}
}
