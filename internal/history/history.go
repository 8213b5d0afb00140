// Package history writes sensor readings and watering events to InfluxDB.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/plant-controller/internal/sensor"
)

// Measurement names.
const (
	MeasurementSensors = "plant_sensors"
	MeasurementWater   = "plant_water"
)

// Recorder stores history.
type Recorder interface {
	RecordSensors(ctx context.Context, at time.Time, snap sensor.Snapshot) error
	RecordWater(ctx context.Context, at time.Time, seconds, dailySeconds float64, mock bool) error
	Close()
}

// Config selects the InfluxDB bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	Host   string // tag identifying this rig
}

// Enabled reports whether every connection field is set.
func (c Config) Enabled() bool {
	return c.URL != "" && c.Token != "" && c.Org != "" && c.Bucket != ""
}

// Influx writes points with the blocking write API.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	host     string
}

// NewInflux connects lazily; no request is made until the first write.
func NewInflux(cfg Config) (*Influx, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClientWithOptions(
		strings.TrimRight(cfg.URL, "/"),
		cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(10),
	)
	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		host:     cfg.Host,
	}, nil
}

// RecordSensors writes one sensor reading.
func (i *Influx) RecordSensors(ctx context.Context, at time.Time, snap sensor.Snapshot) error {
	if err := i.writeAPI.WritePoint(ctx, sensorPoint(i.host, at, snap)); err != nil {
		return fmt.Errorf("influx write sensors: %w", err)
	}
	return nil
}

// RecordWater writes one accepted pulse.
func (i *Influx) RecordWater(ctx context.Context, at time.Time, seconds, dailySeconds float64, mock bool) error {
	if err := i.writeAPI.WritePoint(ctx, waterPoint(i.host, at, seconds, dailySeconds, mock)); err != nil {
		return fmt.Errorf("influx write water: %w", err)
	}
	return nil
}

// Close releases the client.
func (i *Influx) Close() {
	i.client.Close()
}

func tags(host string) map[string]string {
	if host == "" {
		return map[string]string{}
	}
	return map[string]string{"host": host}
}

// sensorPoint omits fields whose sensor failed.
func sensorPoint(host string, at time.Time, snap sensor.Snapshot) *write.Point {
	fields := map[string]interface{}{
		"light": snap.Light,
		"touch": snap.Touch,
	}
	if snap.Soil != nil {
		fields["soil"] = *snap.Soil
	}
	if snap.Temperature != nil {
		fields["temperature"] = *snap.Temperature
	}
	if snap.Humidity != nil {
		fields["humidity"] = *snap.Humidity
	}
	return influxdb2.NewPoint(MeasurementSensors, tags(host), fields, at)
}

func waterPoint(host string, at time.Time, seconds, dailySeconds float64, mock bool) *write.Point {
	fields := map[string]interface{}{
		"seconds":   seconds,
		"daily_sec": dailySeconds,
		"mock":      mock,
	}
	return influxdb2.NewPoint(MeasurementWater, tags(host), fields, at)
}

// Discard is the Recorder used when history is disabled.
type Discard struct{}

func (Discard) RecordSensors(context.Context, time.Time, sensor.Snapshot) error { return nil }
func (Discard) RecordWater(context.Context, time.Time, float64, float64, bool) error {
	return nil
}
func (Discard) Close() {}
