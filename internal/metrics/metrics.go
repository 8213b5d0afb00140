// Package metrics holds the Prometheus collectors for the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/plant-controller/internal/sensor"
)

// Water request results.
const (
	ResultOK           = "ok"
	ResultUnauthorized = "unauthorized"
	ResultCooldown     = "cooldown"
	ResultDailyLimit   = "daily_limit"
	ResultPumpError    = "pump_error"
)

// Metrics owns a registry and the daemon's collectors.
type Metrics struct {
	registry *prometheus.Registry

	waterRequests     *prometheus.CounterVec
	waterSeconds      prometheus.Counter
	waterDaily        prometheus.Gauge
	cameraCaptures    *prometheus.CounterVec
	cameraResets      *prometheus.CounterVec
	sensorReadErrors  *prometheus.CounterVec
	sensorValue       *prometheus.GaugeVec
	photoMirrorErrors prometheus.Counter
	plantEvents       *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		waterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_water_requests_total",
			Help: "Watering requests by result",
		}, []string{"result"}),
		waterSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_water_seconds_total",
			Help: "Seconds of pump run time since start",
		}),
		waterDaily: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_water_daily_seconds",
			Help: "Seconds of pump run time used today",
		}),
		cameraCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_camera_captures_total",
			Help: "Photos captured by source (native, command, placeholder)",
		}, []string{"source"}),
		cameraResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_camera_resets_total",
			Help: "Camera hard resets by result",
		}, []string{"result"}),
		sensorReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_sensor_read_errors_total",
			Help: "Failed sensor reads by sensor",
		}, []string{"sensor"}),
		sensorValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plant_sensor_value",
			Help: "Last sensor reading (soil %, light lux, temperature C, humidity %, touch 0/1)",
		}, []string{"sensor"}),
		photoMirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_photo_mirror_errors_total",
			Help: "Failed photo uploads to object storage",
		}),
		plantEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_events_total",
			Help: "Debounced touch and soil transitions by type",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.waterRequests,
		m.waterSeconds,
		m.waterDaily,
		m.cameraCaptures,
		m.cameraResets,
		m.sensorReadErrors,
		m.sensorValue,
		m.photoMirrorErrors,
		m.plantEvents,
	)
	return m
}

// Registry returns the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WaterRequest counts a watering request outcome.
func (m *Metrics) WaterRequest(result string) {
	m.waterRequests.WithLabelValues(result).Inc()
}

// Watered records an accepted pulse.
func (m *Metrics) Watered(seconds, dailySeconds float64) {
	m.waterSeconds.Add(seconds)
	m.waterDaily.Set(dailySeconds)
}

// DailySeconds sets today's usage, e.g. after a day rollover.
func (m *Metrics) DailySeconds(v float64) {
	m.waterDaily.Set(v)
}

// CameraCapture counts a photo by source.
func (m *Metrics) CameraCapture(source string) {
	m.cameraCaptures.WithLabelValues(source).Inc()
}

// CameraReset counts a hard reset.
func (m *Metrics) CameraReset(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.cameraResets.WithLabelValues(result).Inc()
}

// SensorError counts a failed read.
func (m *Metrics) SensorError(name string, _ error) {
	m.sensorReadErrors.WithLabelValues(name).Inc()
}

// SensorValues exports a reading. Missing values are removed rather than zeroed.
func (m *Metrics) SensorValues(s sensor.Snapshot) {
	setOrDelete := func(name string, v *float64) {
		if v == nil {
			m.sensorValue.DeleteLabelValues(name)
			return
		}
		m.sensorValue.WithLabelValues(name).Set(*v)
	}
	setOrDelete("soil", s.Soil)
	setOrDelete("temperature", s.Temperature)
	setOrDelete("humidity", s.Humidity)
	m.sensorValue.WithLabelValues("light").Set(s.Light)
	touch := 0.0
	if s.Touch {
		touch = 1
	}
	m.sensorValue.WithLabelValues("touch").Set(touch)
}

// PhotoMirrorError counts a failed upload.
func (m *Metrics) PhotoMirrorError(error) {
	m.photoMirrorErrors.Inc()
}

// PlantEvent counts a touch or soil transition.
func (m *Metrics) PlantEvent(eventType string) {
	m.plantEvents.WithLabelValues(eventType).Inc()
}
