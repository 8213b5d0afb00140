package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/plant-controller/internal/camera"
	"github.com/sweeney/plant-controller/internal/metrics"
	"github.com/sweeney/plant-controller/internal/mqtt"
	"github.com/sweeney/plant-controller/internal/photos"
	"github.com/sweeney/plant-controller/internal/sensor"
	"github.com/sweeney/plant-controller/internal/status"
	"github.com/sweeney/plant-controller/internal/watering"
)

const testKey = "s3cret"

var fakeJPEG = []byte("\xff\xd8fake-frame\xff\xd9")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingPump struct {
	mu     sync.Mutex
	pulses int
	fail   string
}

func (p *countingPump) Pulse(time.Duration) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulses++
	if p.fail != "" {
		return false, p.fail
	}
	return true, "ok"
}

func (p *countingPump) Mock() bool { return true }

func (p *countingPump) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pulses
}

type fixedSensors struct{ snap sensor.Snapshot }

func (f fixedSensors) ReadAll() sensor.Snapshot { return f.snap }

// fakeCamera writes fakeJPEG on success and leaves a partial file on failure.
type fakeCamera struct {
	mu       sync.Mutex
	err      error
	frames   [][]byte
	health   camera.Health
	captures int
}

func (c *fakeCamera) Capture(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures++
	if c.err != nil {
		os.WriteFile(path, []byte("partial"), 0o644)
		return "", c.err
	}
	if err := os.WriteFile(path, fakeJPEG, 0o644); err != nil {
		return "", err
	}
	return camera.SourceCommand, nil
}

func (c *fakeCamera) Stream(ctx context.Context, fn func([]byte) error) error {
	if len(c.frames) == 0 {
		return camera.ErrCaptureUnavailable
	}
	for _, f := range c.frames {
		if err := fn(f); err != nil {
			return err
		}
	}
	return errors.New("stream ended")
}

func (c *fakeCamera) Health() camera.Health { return c.health }

func (c *fakeCamera) captureCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

type env struct {
	srv     *Server
	clock   *testClock
	pump    *countingPump
	policy  *watering.Policy
	camera  *fakeCamera
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	dir     string
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 5, 10, 9, 0, 0, 0, time.Local)}
	pump := &countingPump{}
	policy := watering.New(watering.Config{APIKey: testKey, DailyLimit: 30, Cooldown: 60 * time.Second}, pump, clk.now)

	dir := t.TempDir()
	store, err := photos.New(dir)
	if err != nil {
		t.Fatalf("photos.New: %v", err)
	}
	tr := status.NewTracker(clk.now(), status.Config{
		PollMs:        5000,
		HeartbeatMs:   900000,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":8000",
		PumpMock:      true,
		PumpPin:       17,
		DailyLimitSec: 30,
		CooldownSec:   60,
		CameraMode:    "auto",
		APIKeySet:     true,
	})
	cam := &fakeCamera{health: camera.Health{Providers: []string{camera.SourceCommand}, StillTool: "rpicam-still"}}
	pub := mqtt.NewFakePublisher()

	soil, temp, hum := 42.0, 21.5, 55.0
	srv := New(":0", Deps{
		Tracker: tr,
		Policy:  policy,
		Sensors: fixedSensors{sensor.Snapshot{Soil: &soil, Light: 120.5, Temperature: &temp, Humidity: &hum, Touch: true}},
		Camera:  cam,
		Photos:  store,
		Metrics: metrics.New(),

		Publisher:     pub,
		MQTTStatus:    pub,
		StreamEnabled: true,
		Now:           clk.now,
	})
	return &env{srv: srv, clock: clk, pump: pump, policy: policy, camera: cam, pub: pub, tracker: tr, dir: dir}
}

func (e *env) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *env) water(sec string) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/water?api_key="+testKey+"&sec="+url.QueryEscape(sec))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusEndpoint(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	st := decode[SensorStatus](t, rec)
	if st.Humidity == nil || *st.Humidity != 42 {
		t.Errorf("humidity: got %v, want 42", st.Humidity)
	}
	if st.Temperature == nil || *st.Temperature != 21.5 {
		t.Errorf("temperature: got %v, want 21.5", st.Temperature)
	}
	if st.Light != 120.5 {
		t.Errorf("light: got %v, want 120.5", st.Light)
	}
	if !st.Touch {
		t.Error("expected touch=true")
	}
	if st.DailySec != 0 || st.LastWaterAt != nil {
		t.Errorf("fresh quota: daily=%v last=%v", st.DailySec, st.LastWaterAt)
	}
	if snap := e.tracker.Snapshot(); snap.Sensors == nil {
		t.Error("tracker not updated with sensor reading")
	}
}

func TestStatusNullClimate(t *testing.T) {
	e := newTestEnv(t)
	e.srv.Sensors = fixedSensors{sensor.Snapshot{}}

	rec := e.do(http.MethodGet, "/status")
	body := rec.Body.String()
	for _, want := range []string{`"temperature":null`, `"env_humi":null`, `"humidity":null`, `"last_water_at":null`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestWaterSuccess(t *testing.T) {
	e := newTestEnv(t)
	rec := e.water("2")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	resp := decode[WaterResponse](t, rec)
	if !resp.OK || resp.Message != "watered 2.0s" || resp.DailySec != 2 || !resp.Mock {
		t.Errorf("response: got %+v", resp)
	}
	if e.pump.count() != 1 {
		t.Errorf("pulses: got %d, want 1", e.pump.count())
	}

	waters := e.pub.Waters()
	if len(waters) != 1 || waters[0].Seconds != 2 {
		t.Errorf("published water events: %+v", waters)
	}

	snap := e.tracker.Snapshot()
	if snap.Watering.Count != 1 || snap.Watering.DailySeconds != 2 {
		t.Errorf("tracker watering: %+v", snap.Watering)
	}

	st := decode[SensorStatus](t, e.do(http.MethodGet, "/status"))
	want := e.clock.now().Format(status.LastWaterLayout)
	if st.LastWaterAt == nil || *st.LastWaterAt != want {
		t.Errorf("last_water_at: got %v, want %s", st.LastWaterAt, want)
	}
}

func TestWaterFormBody(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/water", strings.NewReader("api_key="+testKey+"&sec=2.25"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	resp := decode[WaterResponse](t, rec)
	if resp.Message != "watered 2.25s" {
		t.Errorf("message: got %q, want watered 2.25s", resp.Message)
	}
}

func TestWaterHeaderKey(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/water?sec=1", nil)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestWaterScenario(t *testing.T) {
	e := newTestEnv(t)

	rec := e.water("10")
	if rec.Code != http.StatusOK {
		t.Fatalf("step 1: got %d", rec.Code)
	}

	rec = e.water("5")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("step 2: got %d, want 429", rec.Code)
	}
	if er := decode[ErrorResponse](t, rec); er.Error != "cooldown" || er.OK {
		t.Errorf("step 2: got %+v, want cooldown", er)
	}
	if ra := rec.Header().Get("Retry-After"); ra != "60" {
		t.Errorf("step 2 Retry-After: got %q, want 60", ra)
	}

	e.clock.advance(61 * time.Second)
	if rec = e.water("10"); rec.Code != http.StatusOK {
		t.Fatalf("step 3: got %d", rec.Code)
	}

	e.clock.advance(61 * time.Second)
	rec = e.water("10")
	if rec.Code != http.StatusOK {
		t.Fatalf("step 4: got %d", rec.Code)
	}
	if resp := decode[WaterResponse](t, rec); resp.DailySec != 30 {
		t.Errorf("step 4: daily_sec got %v, want 30", resp.DailySec)
	}

	e.clock.advance(61 * time.Second)
	rec = e.water("1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("step 5: got %d, want 429", rec.Code)
	}
	if er := decode[ErrorResponse](t, rec); er.Error != "daily_limit" || er.RetryAt == "" {
		t.Errorf("step 5: got %+v, want daily_limit with retry_at", er)
	}
	if e.pump.count() != 3 {
		t.Errorf("pulses: got %d, want 3", e.pump.count())
	}
}

func TestWaterPumpFailure(t *testing.T) {
	e := newTestEnv(t)
	e.pump.fail = "gpio busy"

	rec := e.water("2")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rec.Code)
	}
	if er := decode[ErrorResponse](t, rec); er.Error != "gpio busy" {
		t.Errorf("error: got %q", er.Error)
	}
	if len(e.pub.Waters()) != 0 {
		t.Error("failed pulse was published")
	}
}

func TestWrongKeyRejectedEverywhere(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/water?sec=2"},
		{http.MethodGet, "/camera/capture"},
		{http.MethodPost, "/camera/capture"},
		{http.MethodGet, "/camera/stream"},
		{http.MethodGet, "/camera/mjpeg"},
	}
	for _, key := range []string{"", "wrong"} {
		for _, tt := range tests {
			e := newTestEnv(t)
			e.camera.frames = [][]byte{fakeJPEG}
			target := tt.path
			if key != "" {
				sep := "?"
				if strings.Contains(target, "?") {
					sep = "&"
				}
				target += sep + "api_key=" + key
			}

			rec := e.do(tt.method, target)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s %s: got %d, want 401", tt.method, target, rec.Code)
				continue
			}
			if er := decode[ErrorResponse](t, rec); er.Error != "unauthorized" {
				t.Errorf("%s %s: error got %q", tt.method, target, er.Error)
			}
			if e.pump.count() != 0 || e.camera.captureCount() != 0 {
				t.Errorf("%s %s: hardware touched", tt.method, target)
			}
			if daily, last := e.policy.Usage(); daily != 0 || !last.IsZero() {
				t.Errorf("%s %s: quota mutated", tt.method, target)
			}
			if len(e.pub.Payloads) != 0 {
				t.Errorf("%s %s: published %d payloads", tt.method, target, len(e.pub.Payloads))
			}
			if entries, _ := os.ReadDir(e.dir); len(entries) != 0 {
				t.Errorf("%s %s: wrote %d files", tt.method, target, len(entries))
			}
		}
	}
}

func TestCapturePost(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/camera/capture?api_key="+testKey)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	resp := decode[CaptureResponse](t, rec)
	if !resp.OK || resp.Placeholder || !strings.HasPrefix(resp.URL, "/photos/photo_") {
		t.Errorf("response: got %+v", resp)
	}

	got, err := os.ReadFile(filepath.Join(e.dir, strings.TrimPrefix(resp.URL, "/photos/")))
	if err != nil || !bytes.Equal(got, fakeJPEG) {
		t.Errorf("stored photo: %q, %v", got, err)
	}
	if snap := e.tracker.Snapshot(); snap.Camera.LastSource != camera.SourceCommand {
		t.Errorf("LastSource: got %q", snap.Camera.LastSource)
	}

	served := e.do(http.MethodGet, resp.URL)
	if served.Code != http.StatusOK || !bytes.Equal(served.Body.Bytes(), fakeJPEG) {
		t.Errorf("GET %s: %d %q", resp.URL, served.Code, served.Body.String())
	}
}

func TestCaptureGetRedirects(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/camera/capture?api_key="+testKey)

	if rec.Code != http.StatusFound {
		t.Fatalf("status: got %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/photos/photo_") {
		t.Errorf("Location: got %q", loc)
	}
}

func TestCaptureFallsBackToPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	e.camera.err = errors.New("no camera detected")

	rec := e.do(http.MethodPost, "/camera/capture?api_key="+testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	resp := decode[CaptureResponse](t, rec)
	if !resp.Placeholder || !strings.HasPrefix(resp.URL, "/photos/placeholder_") {
		t.Errorf("response: got %+v", resp)
	}
	if !strings.Contains(resp.Error, "no camera detected") {
		t.Errorf("error: got %q", resp.Error)
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "placeholder_") {
		t.Fatalf("photos dir: %v", entries)
	}
	f, err := os.Open(filepath.Join(e.dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := jpeg.Decode(f); err != nil {
		t.Errorf("placeholder is not a JPEG: %v", err)
	}
}

func TestStreamInline(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/camera/stream?api_key="+testKey)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Content-Type") != "image/jpeg" {
		t.Errorf("Content-Type: got %q", h.Get("Content-Type"))
	}
	if h.Get("Cache-Control") != "no-store, no-cache, must-revalidate, max-age=0" {
		t.Errorf("Cache-Control: got %q", h.Get("Cache-Control"))
	}
	if h.Get("Pragma") != "no-cache" {
		t.Errorf("Pragma: got %q", h.Get("Pragma"))
	}
	if !bytes.Equal(rec.Body.Bytes(), fakeJPEG) {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestCameraHealth(t *testing.T) {
	e := newTestEnv(t)
	resetAt := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	e.camera.health = camera.Health{
		Providers:   []string{camera.SourceNative, camera.SourceCommand},
		NativeTool:  "rpicam-vid",
		StillTool:   "rpicam-still",
		Initialized: true,
		Native: &camera.NativeHealth{
			State:       camera.StateReady,
			Initialized: true,
			Breaker:     "closed",
			LastReset:   camera.ResetResult{At: resetAt, OK: false, Err: errors.New("kill: no such process")},
		},
	}

	rec := e.do(http.MethodGet, "/camera/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	resp := decode[CameraHealthResponse](t, rec)
	c := resp.Camera
	if !resp.OK || !c.APIKeySet || !c.DriverAvailable || !c.SingletonInitialized || !c.PhotosDirWritable {
		t.Errorf("flags: got %+v", c)
	}
	if len(c.Providers) != 2 || c.Breaker != "closed" || c.NativeTool != "rpicam-vid" {
		t.Errorf("providers/breaker: got %+v", c)
	}
	if c.LastReset == nil || c.LastReset.OK || c.LastReset.At != "2026-05-10T08:00:00Z" || c.LastReset.Error == "" {
		t.Errorf("last_reset: got %+v", c.LastReset)
	}
	if e.camera.captureCount() != 0 {
		t.Error("health check captured a photo")
	}
}

func TestCameraHealthNoCamera(t *testing.T) {
	e := newTestEnv(t)
	e.camera.health = camera.Health{}

	body := e.do(http.MethodGet, "/camera/health").Body.String()
	for _, want := range []string{`"driver_available":false`, `"providers":[]`, `"last_reset":null`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
}

func TestMJPEG(t *testing.T) {
	e := newTestEnv(t)
	e.camera.frames = [][]byte{fakeJPEG, fakeJPEG}

	rec := e.do(http.MethodGet, "/camera/mjpeg?api_key="+testKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if n := strings.Count(rec.Body.String(), "--frame\r\n"); n != 2 {
		t.Errorf("parts: got %d, want 2", n)
	}
}

func TestMJPEGDisabled(t *testing.T) {
	e := newTestEnv(t)
	e.srv.StreamEnabled = false

	rec := e.do(http.MethodGet, "/camera/mjpeg?api_key="+testKey)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
	if er := decode[ErrorResponse](t, rec); er.Error != "camera_stream_disabled" {
		t.Errorf("error: got %q", er.Error)
	}
}

func TestMJPEGUnavailable(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/camera/mjpeg?api_key="+testKey)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodOptions, "/water")

	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-API-Key") {
		t.Errorf("Allow-Headers: got %q", got)
	}
	if e.pump.count() != 0 {
		t.Error("preflight pulsed the pump")
	}
}

func TestCORSOnResponses(t *testing.T) {
	e := newTestEnv(t)
	if got := e.do(http.MethodGet, "/status").Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin: got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(http.MethodGet, "/water?api_key="+testKey); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /water: got %d, want 405", rec.Code)
	}
	if e.pump.count() != 0 {
		t.Error("GET /water pulsed the pump")
	}
}

func TestIndexJSON(t *testing.T) {
	e := newTestEnv(t)
	e.pub.Connected = true
	e.water("3")

	rec := e.do(http.MethodGet, "/index.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	sj := decode[status.StatusJSON](t, rec)
	if sj.Status.Watering.DailySeconds != 3 || sj.Status.Watering.Count != 1 {
		t.Errorf("watering: got %+v", sj.Status.Watering)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected")
	}
	if len(sj.Status.Camera.Providers) != 1 {
		t.Errorf("camera providers: got %v", sj.Status.Camera.Providers)
	}
}

func TestIndexHTML(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodGet, "/status")

	for _, path := range []string{"/", "/index.html"} {
		rec := e.do(http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d", path, rec.Code)
			continue
		}
		body := rec.Body.String()
		for _, want := range []string{"<title>Plant Controller</title>", "42.0%", "tcp://192.168.1.200:1883"} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: missing %q", path, want)
			}
		}
	}
}

func TestUnknownPath(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(http.MethodGet, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.water("2")
	e.water("2")
	e.do(http.MethodPost, "/camera/capture?api_key="+testKey)

	body := e.do(http.MethodGet, "/metrics").Body.String()
	for _, want := range []string{
		`plant_water_requests_total{result="ok"} 1`,
		`plant_water_requests_total{result="cooldown"} 1`,
		`plant_camera_captures_total{source="command"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestListenAndShutdown(t *testing.T) {
	e := newTestEnv(t)
	ts := httptest.NewServer(e.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
