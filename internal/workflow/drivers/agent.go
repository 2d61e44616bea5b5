package drivers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/radarcache/radarcache/internal/radar"
	"github.com/radarcache/radarcache/internal/workflow"
)

// AgentDriver implements workflow.Driver against a companion browser-agent
// process over HTTP. The agent owns the actual browser session (element
// lookup, navigation, screenshots); this client just issues page commands.
//
// Repeated agent failures trip the circuit breaker, so the cache layer keeps
// serving last good data instead of hammering a broken browser.
type AgentDriver struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewAgentDriver(client *http.Client, baseURL string) *AgentDriver {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "browser-agent",
		MaxRequests: 2,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &AgentDriver{
		name:    "browser-agent",
		baseURL: baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (d *AgentDriver) Name() string {
	return d.name
}

// command posts a page command to the agent and decodes the JSON reply into
// out when out is non-nil.
func (d *AgentDriver) command(ctx context.Context, action string, payload, out interface{}) error {
	buildRequest := func() (*http.Request, error) {
		var body bytes.Buffer
		if payload != nil {
			if err := json.NewEncoder(&body).Encode(payload); err != nil {
				return nil, err
			}
		}
		u := fmt.Sprintf("%s/v1/%s", d.baseURL, action)
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, d.httpCfg, d.circuit, buildRequest)
	if err != nil {
		return fmt.Errorf("agent %s: %w", action, err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agent %s: decode response: %w", action, err)
	}
	return nil
}

func (d *AgentDriver) Warmup(ctx context.Context) error {
	return d.command(ctx, "warmup", nil, nil)
}

func (d *AgentDriver) LoadHomepage(ctx context.Context) error {
	return d.command(ctx, "load_homepage", nil, nil)
}

func (d *AgentDriver) OpenSearch(ctx context.Context) error {
	return d.command(ctx, "open_search", nil, nil)
}

func (d *AgentDriver) SearchLocation(ctx context.Context, query string) error {
	return d.command(ctx, "search", map[string]string{"query": query}, nil)
}

func (d *AgentDriver) SelectFirstResult(ctx context.Context) error {
	return d.command(ctx, "select_first_result", nil, nil)
}

func (d *AgentDriver) OpenRadar(ctx context.Context) error {
	return d.command(ctx, "open_radar", nil, nil)
}

func (d *AgentDriver) WaitMapReady(ctx context.Context) error {
	return d.command(ctx, "wait_map_ready", nil, nil)
}

func (d *AgentDriver) PauseSlideshow(ctx context.Context) error {
	return d.command(ctx, "pause_slideshow", nil, nil)
}

func (d *AgentDriver) SelectFrame(ctx context.Context, index int) error {
	return d.command(ctx, "select_frame", map[string]int{"index": index}, nil)
}

func (d *AgentDriver) CaptureFrame(ctx context.Context, index int) (workflow.CapturedFrame, error) {
	var payload struct {
		Image      string `json:"image"` // base64-encoded PNG
		MinutesAgo int    `json:"minutesAgo"`
	}
	if err := d.command(ctx, "capture_frame", map[string]int{"index": index}, &payload); err != nil {
		return workflow.CapturedFrame{}, err
	}
	img, err := base64.StdEncoding.DecodeString(payload.Image)
	if err != nil {
		return workflow.CapturedFrame{}, fmt.Errorf("agent capture_frame: decode image: %w", err)
	}
	return workflow.CapturedFrame{Image: img, MinutesAgo: payload.MinutesAgo}, nil
}

func (d *AgentDriver) ReadObservation(ctx context.Context) (radar.ObservationMetadata, error) {
	var payload struct {
		ObservationTime string  `json:"observationTime"`
		ForecastTime    string  `json:"forecastTime"`
		WeatherStation  string  `json:"weatherStation"`
		Distance        float64 `json:"distance"`
	}
	if err := d.command(ctx, "observation", nil, &payload); err != nil {
		return radar.ObservationMetadata{}, err
	}

	obs, err := time.Parse(time.RFC3339, payload.ObservationTime)
	if err != nil {
		return radar.ObservationMetadata{}, fmt.Errorf("agent observation: bad observationTime: %w", err)
	}
	fc, err := time.Parse(time.RFC3339, payload.ForecastTime)
	if err != nil {
		// Forecast time is informational; fall back to the observation time.
		fc = obs
	}

	return radar.ObservationMetadata{
		ObservationTime: obs.UTC(),
		ForecastTime:    fc.UTC(),
		WeatherStation:  payload.WeatherStation,
		Distance:        payload.Distance,
	}, nil
}
