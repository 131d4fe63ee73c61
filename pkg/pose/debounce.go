package pose

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

//Clock tells the debouncer what time it is. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

//SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

//DebounceState is the state of a Debouncer.
type DebounceState int

const (
	Idle DebounceState = iota
	Suppressing
)

func (s DebounceState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Suppressing:
		return "suppressing"
	default:
		return "unknown"
	}
}

//ActionEvent is a debounced detection of the watched label.
type ActionEvent struct {
	ID         string    `json:"id" db:"id"`
	Label      string    `json:"label" db:"label"`
	Confidence float64   `json:"confidence" db:"confidence"`
	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
}

//DebounceConfig configures a Debouncer. Non-positive fields take the utils defaults, config.Validate
//rejects them before they get here.
type DebounceConfig struct {
	Label     string
	Threshold float64
	Cooldown  time.Duration
	Clock     Clock
}

func (c DebounceConfig) withDefaults() DebounceConfig {
	if c.Label == "" {
		c.Label = utils.DefaultWatchedLabel
	}
	if c.Threshold <= 0 {
		c.Threshold = utils.DefaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = utils.DefaultCooldown
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	return c
}

//Debouncer fires at most one ActionEvent per cooldown for the watched label. A result fires when the
//debouncer is Idle, the label matches and the confidence is strictly above the threshold. Results seen
//while Suppressing are ignored and do not extend the cooldown.
type Debouncer struct {
	cfg         DebounceConfig
	suppressing bool
	lastFired   time.Time
}

func NewDebouncer(cfg DebounceConfig) *Debouncer {
	return &Debouncer{cfg: cfg.withDefaults()}
}

//Observe feeds one classification result. It returns the fired event and true on an Idle to
//Suppressing transition.
func (d *Debouncer) Observe(label string, confidence float64) (ActionEvent, bool) {
	now := d.cfg.Clock.Now()
	d.expire(now)

	if d.suppressing {
		return ActionEvent{}, false
	}
	if label != d.cfg.Label || !(confidence > d.cfg.Threshold) {
		return ActionEvent{}, false
	}

	d.suppressing = true
	d.lastFired = now

	return ActionEvent{
		ID:         ulid.Make().String(),
		Label:      label,
		Confidence: confidence,
		DetectedAt: now,
	}, true
}

//State returns the current state, returning to Idle once the cooldown has elapsed.
func (d *Debouncer) State() DebounceState {
	d.expire(d.cfg.Clock.Now())
	if d.suppressing {
		return Suppressing
	}
	return Idle
}

func (d *Debouncer) Config() DebounceConfig {
	return d.cfg
}

func (d *Debouncer) expire(now time.Time) {
	if d.suppressing && now.Sub(d.lastFired) >= d.cfg.Cooldown {
		d.suppressing = false
	}
}
