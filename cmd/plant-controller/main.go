// Command plant-controller waters a pot plant on request, reads its sensors,
// takes photos and publishes what it does to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/plant-controller/internal/camera"
	"github.com/sweeney/plant-controller/internal/config"
	"github.com/sweeney/plant-controller/internal/gpio"
	"github.com/sweeney/plant-controller/internal/history"
	"github.com/sweeney/plant-controller/internal/logic"
	"github.com/sweeney/plant-controller/internal/metrics"
	"github.com/sweeney/plant-controller/internal/mqtt"
	"github.com/sweeney/plant-controller/internal/photos"
	"github.com/sweeney/plant-controller/internal/pump"
	"github.com/sweeney/plant-controller/internal/sensor"
	"github.com/sweeney/plant-controller/internal/status"
	"github.com/sweeney/plant-controller/internal/watering"
	"github.com/sweeney/plant-controller/internal/web"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file (real environment wins)")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides HTTP_ADDR)")
	watch := flag.Duration("watch", 200*time.Millisecond, "Touch and soil sampling interval (0 to disable)")
	debounce := flag.Duration("debounce", time.Second, "Time an input must hold before a transition is reported")
	poll := flag.Duration("poll", time.Minute, "Sensor publish interval (0 to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	printState := flag.Bool("print-state", false, "Print one sensor reading and exit")

	flag.Parse()

	if err := run(*envFile, *httpAddr, *watch, *debounce, *poll, *heartbeat, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(envFile, httpAddr string, watch, debounce, poll, heartbeat time.Duration, printState bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	m := metrics.New()

	sensors, closeSensors := openSensors(cfg, m)
	defer closeSensors()

	if printState {
		printSnapshot(os.Stdout, sensors.ReadAll())
		return nil
	}

	log.Printf("config: mock_sensors=%v pump_mock=%v pump_pin=%d active_low=%v daily_limit=%gs cooldown=%v camera=%s photos=%s api_key=%s",
		cfg.MockSensors, cfg.PumpMock, cfg.PumpPin, cfg.PumpActiveLow, cfg.DailyLimitSec, cfg.Cooldown,
		cfg.CameraMode, cfg.PhotosDir, cfg.Redacted())

	// Deferred in reverse: HTTP shutdown, camera close, pump cleanup.
	ctrl := openPump(cfg)
	defer ctrl.Cleanup()
	pumpOK, pumpMsg := ctrl.Init()
	if pumpOK {
		log.Printf("pump: ready (%s)", pumpMsg)
	} else {
		log.Printf("pump: init failed, watering will fail: %s", pumpMsg)
	}

	nativeOpts := camera.DefaultNativeOptions()
	nativeOpts.OnReset = m.CameraReset
	cam := camera.NewService(camera.Options{Mode: cfg.CameraMode, Native: nativeOpts})
	defer func() {
		if err := cam.Close(); err != nil {
			log.Printf("camera: close: %v", err)
		}
	}()
	go cam.Warm(context.Background())

	store, err := photos.New(cfg.PhotosDir)
	if err != nil {
		return err
	}
	var mirror photos.Mirror
	if cfg.PhotoS3.Enabled() {
		s3, err := photos.NewS3Mirror(cfg.PhotoS3)
		if err != nil {
			log.Printf("photos: mirror disabled: %v", err)
		} else {
			s3.OnError = m.PhotoMirrorError
			defer s3.Wait()
			mirror = s3
			log.Printf("photos: mirroring to %s/%s", cfg.PhotoS3.Endpoint, cfg.PhotoS3.Bucket)
		}
	}

	policy := watering.New(watering.Config{
		APIKey:     cfg.APIKey,
		DailyLimit: cfg.DailyLimitSec,
		Cooldown:   cfg.Cooldown,
	}, ctrl, nil)

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:        poll.Milliseconds(),
		HeartbeatMs:   heartbeat.Milliseconds(),
		Broker:        cfg.MQTTBroker,
		HTTPAddr:      cfg.HTTPAddr,
		MockSensors:   cfg.MockSensors,
		PumpMock:      cfg.PumpMock,
		PumpPin:       cfg.PumpPin,
		DailyLimitSec: cfg.DailyLimitSec,
		CooldownSec:   cfg.Cooldown.Seconds(),
		CameraMode:    string(cfg.CameraMode),
		APIKeySet:     cfg.APIKeySet(),
	})
	tracker.SetPump(pumpStatus(pumpOK, pumpMsg, ctrl.LastRelease()))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if cfg.MQTTBroker != "" {
		rp := mqtt.NewRealPublisher(cfg.MQTTBroker, clientID())
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	var recorder history.Recorder = history.Discard{}
	if cfg.Influx.Enabled() {
		if cfg.Influx.Host == "" {
			cfg.Influx.Host = hostname()
		}
		influx, err := history.NewInflux(cfg.Influx)
		if err != nil {
			log.Printf("history: disabled: %v", err)
		} else {
			recorder = influx
			log.Printf("history: writing to %s bucket %s", cfg.Influx.URL, cfg.Influx.Bucket)
		}
	}
	defer recorder.Close()

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(mqttStatus.IsConnected())
	snap := tracker.Snapshot()
	if err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}); err != nil {
		log.Printf("mqtt: publish startup event: %v", err)
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, web.Deps{
			Tracker:       tracker,
			Policy:        policy,
			Sensors:       sensors,
			Camera:        cam,
			Photos:        store,
			Metrics:       m,
			Mirror:        mirror,
			Publisher:     publisher,
			MQTTStatus:    mqttStatus,
			History:       recorder,
			StreamEnabled: cfg.CameraStreamEnabled,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http: server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("http: shutdown: %v", err)
			}
		}()
		log.Printf("http: listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: watch=%v debounce=%v poll=%v heartbeat=%v broker=%q", watch, debounce, poll, heartbeat, cfg.MQTTBroker)

	watchC, stopWatch := ticker(watch)
	defer stopWatch()
	pollC, stopPoll := ticker(poll)
	defer stopPoll()
	heartbeatC, stopHeartbeat := ticker(heartbeat)
	defer stopHeartbeat()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		sensors:    sensors,
		inputs:     sensors,
		detector:   logic.NewDetector(debounce),
		policy:     policy,
		pump:       ctrl,
		camera:     cam,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		history:    recorder,
		metrics:    m,
		pumpOK:     pumpOK,
		pumpMsg:    pumpMsg,
	}
	return d.runLoop(time.Now, watchC, pollC, heartbeatC, sigCh)
}

// ticker returns a nil channel for a zero interval, which never fires.
func ticker(every time.Duration) (<-chan time.Time, func()) {
	if every <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(every)
	return t.C, t.Stop
}

// sensorSource reads both the full snapshot and the fast digital inputs.
type sensorSource interface {
	sensor.Reader
	sensor.InputReader
}

func openSensors(cfg config.Config, m *metrics.Metrics) (sensorSource, func()) {
	if cfg.MockSensors {
		log.Printf("sensor: mock mode on")
		return sensor.NewMockReader(nil), func() {}
	}
	hw := sensor.OpenHardware(sensor.HardwareConfig{
		TouchPin:        cfg.TouchPin,
		TouchActiveHigh: cfg.TouchActiveHigh,
		SoilPin:         cfg.SoilPin,
		SoilWetHigh:     cfg.SoilWetHigh,
		DHTPin:          cfg.DHTPin,
		I2CBus:          cfg.I2CBus,
	}, m.SensorError)
	return hw, func() {
		if err := hw.Close(); err != nil {
			log.Printf("sensor: close: %v", err)
		}
	}
}

// openPump requests the pump line. A line that cannot be requested leaves
// the controller without a pin, so Init reports the failure.
func openPump(cfg config.Config) *pump.Controller {
	pc := pump.Config{Pin: cfg.PumpPin, ActiveLow: cfg.PumpActiveLow, Mock: cfg.PumpMock}
	if cfg.PumpMock {
		return pump.New(pc, nil)
	}
	out, err := gpio.NewRealOutput(cfg.PumpPin)
	if err != nil {
		log.Printf("pump: open pin %d: %v", cfg.PumpPin, err)
		return pump.New(pc, nil)
	}
	return pump.New(pc, out)
}

func pumpStatus(ok bool, msg string, rel pump.ReleaseResult) status.Pump {
	p := status.Pump{Ready: ok, InitMessage: msg, LastRelease: string(rel.State)}
	if rel.Err != nil {
		p.ReleaseError = rel.Err.Error()
	}
	return p
}

// hostname returns the machine name, or "" when it cannot be read.
func hostname() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

func clientID() string {
	if host := hostname(); host != "" {
		return "plant-controller-" + host
	}
	return "plant-controller"
}

func printSnapshot(w io.Writer, s sensor.Snapshot) {
	opt := func(v *float64) string {
		if v == nil {
			return "n/a"
		}
		return fmt.Sprintf("%.1f", *v)
	}
	touch := "no"
	if s.Touch {
		touch = "yes"
	}
	fmt.Fprintf(w, "soil: %s%%, light: %.1f lx, temperature: %s C, humidity: %s%%, touch: %s\n",
		opt(s.Soil), s.Light, opt(s.Temperature), opt(s.Humidity), touch)
}

// daemon is the state driven by the main loop.
type daemon struct {
	sensors    sensor.Reader
	inputs     sensor.InputReader
	detector   *logic.Detector
	policy     *watering.Policy
	pump       interface{ LastRelease() pump.ReleaseResult }
	camera     interface{ Health() camera.Health }
	tracker    *status.Tracker
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	history    history.Recorder
	metrics    *metrics.Metrics

	pumpOK  bool
	pumpMsg string
}

func (d *daemon) runLoop(now func() time.Time, watch, poll, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.refresh()
			snap := d.tracker.Snapshot()
			if err := d.publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}); err != nil {
				log.Printf("mqtt: publish shutdown event: %v", err)
			}
			return nil

		case <-watch:
			d.watchInputs(now())

		case <-poll:
			d.pollSensors(now())

		case <-heartbeat:
			t := now()
			d.refresh()
			if net := readNetworkInfo(); net != nil {
				d.tracker.SetNetwork(net)
			}
			snap := d.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v daily=%.1fs waterings=%d mqtt=%v",
				snap.Uptime().Truncate(time.Second), snap.Watering.DailySeconds, snap.Watering.Count, snap.MQTTConnected)
			if err := d.publisher.PublishSystem(mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}); err != nil {
				log.Printf("mqtt: heartbeat publish: %v", err)
			}
		}
	}
}

// watchInputs samples touch and soil and reports debounced transitions.
func (d *daemon) watchInputs(t time.Time) {
	in := d.inputs.ReadInputs()
	events := d.detector.Process(logic.Input{Touch: in.Touch, Soil: in.Soil, Time: t})
	for _, event := range events {
		log.Printf("event: %s (touch=%s dry=%s)", event.Type, event.Touch, event.Dry)
		d.metrics.PlantEvent(string(event.Type))
		if err := d.publisher.PublishEvent(event); err != nil {
			log.Printf("mqtt: publish event: %v", err)
		}
	}
	if len(events) > 0 {
		d.tracker.SetEvents(d.detector.EventCountsSnapshot())
	}
}

// pollSensors takes a reading and fans it out to the tracker, metrics, MQTT
// and history. The daily gauge is refreshed too so it drops at midnight.
func (d *daemon) pollSensors(t time.Time) {
	snap := d.sensors.ReadAll()
	d.tracker.SetSensors(t, snap)
	d.metrics.SensorValues(snap)

	daily, last := d.policy.Usage()
	d.tracker.SetUsage(daily, last)
	d.metrics.DailySeconds(daily)

	if err := d.publisher.PublishSensors(t, snap); err != nil {
		log.Printf("mqtt: publish sensors: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.history.RecordSensors(ctx, t, snap); err != nil {
		log.Printf("history: %v", err)
	}
}

// refresh pulls live component state into the tracker.
func (d *daemon) refresh() {
	d.tracker.SetUsage(d.policy.Usage())
	d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	d.tracker.SetPump(pumpStatus(d.pumpOK, d.pumpMsg, d.pump.LastRelease()))
	h := d.camera.Health()
	c := status.Camera{Providers: h.Providers, Initialized: h.Initialized}
	if h.Native != nil {
		c.Breaker = h.Native.Breaker
	}
	d.tracker.SetCamera(c)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
