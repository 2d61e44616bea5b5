package drivers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAgentDriverCaptureFrame(t *testing.T) {
	var gotPath string
	var gotIndex int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotIndex = body.Index

		json.NewEncoder(w).Encode(map[string]interface{}{
			"image":      base64.StdEncoding.EncodeToString([]byte("png-bytes")),
			"minutesAgo": 15,
		})
	}))
	defer srv.Close()

	d := NewAgentDriver(srv.Client(), srv.URL)
	cf, err := d.CaptureFrame(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/v1/capture_frame" {
		t.Errorf("path = %q", gotPath)
	}
	if gotIndex != 3 {
		t.Errorf("index = %d", gotIndex)
	}
	if string(cf.Image) != "png-bytes" || cf.MinutesAgo != 15 {
		t.Errorf("captured = %+v", cf)
	}
}

func TestAgentDriverReadObservation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"observationTime": "2026-01-10T12:00:00+11:00",
			"forecastTime":    "2026-01-10T12:10:00+11:00",
			"weatherStation":  "Terrey Hills",
			"distance":        8.2,
		})
	}))
	defer srv.Close()

	d := NewAgentDriver(srv.Client(), srv.URL)
	meta, err := d.ReadObservation(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	wantObs := time.Date(2026, 1, 10, 1, 0, 0, 0, time.UTC)
	if !meta.ObservationTime.Equal(wantObs) {
		t.Errorf("observationTime = %v, want %v", meta.ObservationTime, wantObs)
	}
	if meta.ObservationTime.Location() != time.UTC {
		t.Error("observation time must be normalized to UTC")
	}
	if meta.WeatherStation != "Terrey Hills" || meta.Distance != 8.2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestAgentDriverServerErrorRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewAgentDriver(srv.Client(), srv.URL)
	if err := d.LoadHomepage(context.Background()); err == nil {
		t.Fatal("expected failure after retries")
	}
	// MaxRetries=2 means three attempts in total.
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}
