package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/plant-controller/internal/metrics"
	"github.com/sweeney/plant-controller/internal/mqtt"
	"github.com/sweeney/plant-controller/internal/status"
	"github.com/sweeney/plant-controller/internal/watering"
)

// SensorStatus is the /status response.
type SensorStatus struct {
	Humidity    *float64 `json:"humidity"` // soil wetness percent
	Temperature *float64 `json:"temperature"`
	Light       float64  `json:"light"`
	EnvHumidity *float64 `json:"env_humi"`
	Touch       bool     `json:"touch"`
	DailySec    float64  `json:"daily_sec"`
	LastWaterAt *string  `json:"last_water_at"`
}

// WaterResponse is the /water success response.
type WaterResponse struct {
	OK       bool    `json:"ok"`
	Message  string  `json:"message"`
	DailySec float64 `json:"daily_sec"`
	Mock     bool    `json:"mock"`
}

// ErrorResponse is returned by every endpoint on failure.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	RetryAt string `json:"retry_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{OK: false, Error: msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.Now()
	snap := s.Sensors.ReadAll()
	s.Tracker.SetSensors(now, snap)
	s.Metrics.SensorValues(snap)

	daily, last := s.Policy.Usage()
	writeJSON(w, http.StatusOK, SensorStatus{
		Humidity:    snap.Soil,
		Temperature: snap.Temperature,
		Light:       snap.Light,
		EnvHumidity: snap.Humidity,
		Touch:       snap.Touch,
		DailySec:    status.Round1(daily),
		LastWaterAt: status.FormatLastWater(last),
	})
}

func (s *Server) handleWater(w http.ResponseWriter, r *http.Request) {
	res, err := s.Policy.Request(apiKey(r), r.FormValue("sec"))
	if err != nil {
		s.waterError(w, err)
		return
	}

	log.Printf("water: pulsed %.1fs (daily %.1fs, mock=%v)", res.Seconds, res.DailySeconds, res.Mock)
	s.Metrics.WaterRequest(metrics.ResultOK)
	s.Metrics.Watered(res.Seconds, res.DailySeconds)
	s.Tracker.RecordWater(res.At, res.DailySeconds)
	if err := s.Publisher.PublishWater(mqtt.WaterEvent{
		Timestamp:    res.At,
		Seconds:      res.Seconds,
		DailySeconds: res.DailySeconds,
		Mock:         res.Mock,
	}); err != nil {
		log.Printf("mqtt: publish water: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.History.RecordWater(ctx, res.At, res.Seconds, res.DailySeconds, res.Mock); err != nil {
		log.Printf("history: %v", err)
	}

	writeJSON(w, http.StatusOK, WaterResponse{
		OK:       true,
		Message:  "watered " + formatSeconds(res.Seconds) + "s",
		DailySec: status.Round1(res.DailySeconds),
		Mock:     res.Mock,
	})
}

func (s *Server) waterError(w http.ResponseWriter, err error) {
	var rl *watering.RateLimitError
	var hw *watering.HardwareError
	switch {
	case errors.Is(err, watering.ErrUnauthorized):
		s.Metrics.WaterRequest(metrics.ResultUnauthorized)
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &rl):
		result := metrics.ResultCooldown
		if errors.Is(err, watering.ErrDailyLimit) {
			result = metrics.ResultDailyLimit
		}
		s.Metrics.WaterRequest(result)
		retry := int(math.Ceil(rl.RetryAt.Sub(s.Now()).Seconds()))
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			OK:      false,
			Error:   rl.Reason.Error(),
			RetryAt: rl.RetryAt.Format(time.RFC3339),
		})
	case errors.As(err, &hw):
		s.Metrics.WaterRequest(metrics.ResultPumpError)
		log.Printf("water: pump error: %v", hw)
		writeError(w, http.StatusInternalServerError, hw.Msg)
	default:
		log.Printf("water: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// formatSeconds prints whole values with one decimal ("2.0") and keeps
// fractional values as given ("2.25").
func formatSeconds(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// authorized writes a 401 and returns false when the key is wrong.
func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.Policy.Authorized(apiKey(r)) {
		return true
	}
	writeError(w, http.StatusUnauthorized, "unauthorized")
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
