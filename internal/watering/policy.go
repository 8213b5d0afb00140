// Package watering gates pump pulses behind an API key, a per-day time quota
// and a cooldown between waterings.
//
// Checks run in a fixed order: key, clamp, day rollover, cooldown, quota,
// hardware. Requests are serialized end to end, pulse included, so two
// concurrent requests can never both pass the quota check or drive the pump
// at the same time. Usage does not wait for an in-flight pulse.
package watering

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Duration limits for a single request, in seconds.
const (
	MinSeconds     = 0.5
	MaxSeconds     = 10.0
	DefaultSeconds = 2.0
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrCooldown     = errors.New("cooldown")
	ErrDailyLimit   = errors.New("daily_limit")
)

// RateLimitError is returned when a request is refused by the cooldown or the
// daily quota. It unwraps to ErrCooldown or ErrDailyLimit.
type RateLimitError struct {
	Reason  error
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (retry at %s)", e.Reason, e.RetryAt.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return e.Reason }

// HardwareError carries the pump's failure message.
type HardwareError struct {
	Msg string
}

func (e *HardwareError) Error() string { return e.Msg }

// Pump is the part of the pump controller the policy needs.
type Pump interface {
	Pulse(d time.Duration) (ok bool, msg string)
	Mock() bool
}

// Config holds the policy limits.
type Config struct {
	APIKey     string
	DailyLimit float64 // seconds per calendar day
	Cooldown   time.Duration
}

// Result describes an accepted watering.
type Result struct {
	Seconds      float64
	DailySeconds float64
	Mock         bool
	At           time.Time
}

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) day {
	y, m, d := t.Date()
	return day{y, m, d}
}

// Policy holds the daily quota and cooldown state.
type Policy struct {
	cfg  Config
	pump Pump
	now  func() time.Time

	gate sync.Mutex // serializes Request end to end, pulse included

	mu        sync.Mutex // guards the fields below; never held across a pulse
	dailySec  float64
	today     day
	lastWater time.Time // zero until the first successful pulse
}

// New creates a Policy. now may be nil to use time.Now.
func New(cfg Config, pump Pump, now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{
		cfg:   cfg,
		pump:  pump,
		now:   now,
		today: dayOf(now()),
	}
}

// Authorized reports whether key matches the configured API key.
func (p *Policy) Authorized(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(p.cfg.APIKey)) == 1
}

// KeySet reports whether an API key other than the placeholder is configured.
func (p *Policy) KeySet() bool {
	return p.cfg.APIKey != "" && p.cfg.APIKey != "CHANGE_ME"
}

// ParseSeconds converts a raw request value into a pulse length. Empty or
// malformed input yields DefaultSeconds; everything else is clamped into
// [MinSeconds, MaxSeconds].
func ParseSeconds(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSeconds
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(sec) {
		return DefaultSeconds
	}
	return math.Max(MinSeconds, math.Min(sec, MaxSeconds))
}

// Request authorizes, checks limits and pulses the pump.
func (p *Policy) Request(key, rawSeconds string) (Result, error) {
	if !p.Authorized(key) {
		return Result{}, ErrUnauthorized
	}
	sec := ParseSeconds(rawSeconds)

	p.gate.Lock()
	defer p.gate.Unlock()

	if err := p.check(sec); err != nil {
		return Result{}, err
	}

	d := time.Duration(sec * float64(time.Second))
	if ok, msg := p.pump.Pulse(d); !ok {
		return Result{}, &HardwareError{Msg: msg}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.rollover(now)
	p.dailySec += sec
	p.lastWater = now

	return Result{
		Seconds:      sec,
		DailySeconds: p.dailySec,
		Mock:         p.pump.Mock(),
		At:           p.lastWater,
	}, nil
}

// check applies the day rollover, cooldown and quota. Caller holds p.gate.
func (p *Policy) check(sec float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.rollover(now)

	if !p.lastWater.IsZero() && now.Sub(p.lastWater) < p.cfg.Cooldown {
		return &RateLimitError{Reason: ErrCooldown, RetryAt: p.lastWater.Add(p.cfg.Cooldown)}
	}
	if p.dailySec+sec > p.cfg.DailyLimit {
		return &RateLimitError{Reason: ErrDailyLimit, RetryAt: nextMidnight(now)}
	}
	return nil
}

// Usage returns today's total and the time of the last successful pulse
// (zero if none), applying the day rollover first.
func (p *Policy) Usage() (dailySeconds float64, lastWater time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollover(p.now())
	return p.dailySec, p.lastWater
}

// Limits returns the configured daily limit and cooldown.
func (p *Policy) Limits() (dailyLimit float64, cooldown time.Duration) {
	return p.cfg.DailyLimit, p.cfg.Cooldown
}

// rollover resets the daily total when the calendar date has changed.
// Caller must hold p.mu.
func (p *Policy) rollover(now time.Time) {
	if d := dayOf(now); d != p.today {
		p.dailySec = 0
		p.today = d
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
