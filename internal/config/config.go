// Package config loads daemon settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeney/plant-controller/internal/camera"
	"github.com/sweeney/plant-controller/internal/gpio"
	"github.com/sweeney/plant-controller/internal/history"
	"github.com/sweeney/plant-controller/internal/photos"
)

// DefaultAPIKey is the placeholder key shipped in examples. It is treated as unset.
const DefaultAPIKey = "CHANGE_ME"

// Error is a configuration value that could not be used.
type Error struct {
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds runtime configuration.
type Config struct {
	MockSensors bool
	PumpMock    bool
	APIKey      string

	PumpPin       int
	PumpActiveLow bool
	DailyLimitSec float64
	Cooldown      time.Duration

	DHTPin          int
	SoilPin         int
	TouchPin        int
	SoilWetHigh     bool
	TouchActiveHigh bool
	I2CBus          string

	PhotosDir           string
	CameraMode          camera.Mode
	CameraStreamEnabled bool

	HTTPAddr   string
	MQTTBroker string

	Influx  history.Config
	PhotoS3 photos.S3Config
}

// APIKeySet reports whether a real key has been configured.
func (c Config) APIKeySet() bool {
	return c.APIKey != "" && c.APIKey != DefaultAPIKey
}

// Load reads envFile if it exists, then the environment. Variables already
// set in the environment take precedence over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		MockSensors: p.flag("MOCK_SENSORS", true),
		PumpMock:    p.flag("PUMP_MOCK", true),
		APIKey:      p.str("WATER_API_KEY", DefaultAPIKey),

		PumpPin:       p.pin("PUMP_PIN", gpio.DefaultPinPump),
		PumpActiveLow: p.flag("PUMP_ACTIVE_LOW", true),
		DailyLimitSec: p.seconds("DAILY_LIMIT_SEC", 30),
		Cooldown:      time.Duration(p.seconds("COOLDOWN_SEC", 60) * float64(time.Second)),

		DHTPin:          p.pin("DHT_PIN", gpio.DefaultPinDHT),
		SoilPin:         p.pin("SOIL_PIN", gpio.DefaultPinSoil),
		TouchPin:        p.pin("TOUCH_PIN", gpio.DefaultPinTouch),
		SoilWetHigh:     p.flag("SOIL_WET_HIGH", true),
		TouchActiveHigh: p.flag("TOUCH_ACTIVE_HIGH", true),
		I2CBus:          p.str("I2C_BUS", ""),

		PhotosDir:           p.str("PHOTOS_DIR", "./photos"),
		CameraStreamEnabled: p.flag("CAMERA_STREAM_ENABLED", false),

		HTTPAddr:   p.str("HTTP_ADDR", ":8000"),
		MQTTBroker: p.str("MQTT_BROKER", ""),

		Influx: history.Config{
			URL:    p.str("INFLUX_URL", ""),
			Token:  p.str("INFLUX_TOKEN", ""),
			Org:    p.str("INFLUX_ORG", ""),
			Bucket: p.str("INFLUX_BUCKET", ""),
			Host:   p.str("INFLUX_HOST", ""),
		},
		PhotoS3: photos.S3Config{
			Endpoint:      p.str("PHOTO_S3_ENDPOINT", ""),
			Bucket:        p.str("PHOTO_S3_BUCKET", ""),
			Prefix:        p.str("PHOTO_S3_PREFIX", ""),
			AccessKeyFile: p.str("PHOTO_S3_ACCESS_KEY_FILE", ""),
			SecretKeyFile: p.str("PHOTO_S3_SECRET_KEY_FILE", ""),
			Region:        p.str("PHOTO_S3_REGION", ""),
		},
	}

	mode := p.str("CAMERA_MODE", string(camera.ModeAuto))
	if m, err := camera.ParseMode(strings.ToLower(mode)); err != nil {
		p.fail("CAMERA_MODE", mode, err)
	} else {
		cfg.CameraMode = m
	}

	if !cfg.PumpMock && cfg.SoilPin == cfg.PumpPin {
		p.fail("SOIL_PIN", strconv.Itoa(cfg.SoilPin), errors.New("same pin as PUMP_PIN"))
	}

	if len(p.errs) > 0 {
		return cfg, errors.Join(p.errs...)
	}
	return cfg, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, &Error{Key: key, Value: value, Err: err})
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

// flag accepts 1/0, true/false, yes/no, on/off.
func (p *parser) flag(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	p.fail(key, v, errors.New("not a boolean"))
	return def
}

func (p *parser) pin(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if n < 0 || n > 27 {
		p.fail(key, v, errors.New("BCM pin out of range 0-27"))
		return def
	}
	return n
}

func (p *parser) seconds(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(key, v, errors.New("must be a non-negative number"))
		return def
	}
	if f > maxSeconds {
		p.fail(key, v, fmt.Errorf("must be at most %d", int64(maxSeconds)))
		return def
	}
	return f
}

// maxSeconds keeps durations far below the time.Duration overflow.
const maxSeconds = 365 * 24 * 60 * 60

// Redacted returns the API key suitable for logs.
func (c Config) Redacted() string {
	if !c.APIKeySet() {
		return "(unset)"
	}
	return "(set)"
}
