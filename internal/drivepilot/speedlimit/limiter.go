package speedlimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
)

// ModuleName identifies the speed limiting module on the bus.
const ModuleName = "speed-limiting"

// DefaultRampRate is the speed change applied per second of simulated
// time, in km/h.
const DefaultRampRate = 10.0

// speedZones maps zone types to their base limits in km/h.
var speedZones = map[string]float64{
	"city":         50.0,
	"highway":      120.0,
	"school":       30.0,
	"construction": 40.0,
}

// weatherFactors scales the zone limit down for adverse conditions.
var weatherFactors = map[string]float64{
	"clear":      1.0,
	"rain":       0.8,
	"heavy_rain": 0.6,
	"snow":       0.5,
	"fog":        0.7,
}

// SpeedChange is the payload of speed_adjusted events.
type SpeedChange struct {
	OldSpeed    float64
	NewSpeed    float64
	TargetSpeed float64
}

// Limiter ramps the shared vehicle speed toward a target derived from the
// current zone limit, weather and traffic factors, and an optional
// regulatory ceiling. The ramp is linear, not a dynamics model.
type Limiter struct {
	mu         sync.Mutex
	pub        core.Publisher
	enabled    bool
	limit      float64 // current zone limit, km/h
	weather    float64 // multiplier
	traffic    float64 // multiplier, 0.5 to 1.0
	regionCap  float64 // km/h, 0 means no ceiling
	target     float64
	rampRate   float64 // km/h per second
	lastUpdate time.Time
}

var _ core.Module = (*Limiter)(nil)

func New() *Limiter {
	l := &Limiter{
		enabled:  true,
		limit:    speedZones["city"],
		weather:  1.0,
		traffic:  1.0,
		rampRate: DefaultRampRate,
	}
	l.recalcLocked()
	return l
}

func (l *Limiter) Name() string { return ModuleName }

func (l *Limiter) Setup(pub core.Publisher) error {
	l.pub = pub
	return nil
}

// Update ramps the shared vehicle speed toward the target. The ramp defers
// to an emergency hold on the vehicle state: while a stop is in force the
// tick produces no speed output.
func (l *Limiter) Update(now time.Time, vehicle *core.VehicleState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var dt float64
	if !l.lastUpdate.IsZero() {
		dt = now.Sub(l.lastUpdate).Seconds()
	}
	l.lastUpdate = now

	if !l.enabled || dt <= 0 {
		return
	}

	old, cur, changed := vehicle.Ramp(l.target, l.rampRate*dt)
	if !changed {
		return
	}
	l.pub.Publish(core.NewEvent(core.EventSpeedAdjusted, ModuleName, SpeedChange{
		OldSpeed:    old,
		NewSpeed:    cur,
		TargetSpeed: l.target,
	}))
}

// SetSpeedZone switches to a named zone type and recomputes the target.
func (l *Limiter) SetSpeedZone(zone string) error {
	limit, ok := speedZones[zone]
	if !ok {
		return fmt.Errorf("unknown speed zone: %q", zone)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.limit
	if old == limit {
		return nil
	}
	l.limit = limit
	l.recalcLocked()
	l.notifyLimitChangeLocked(old, limit)
	return nil
}

// SimulateZoneEntry applies an explicit new speed limit, bypassing the
// named zone table.
func (l *Limiter) SimulateZoneEntry(limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.limit
	l.limit = limit
	l.recalcLocked()
	l.notifyLimitChangeLocked(old, limit)
}

// SetWeatherCondition applies a named weather factor.
func (l *Limiter) SetWeatherCondition(condition string) error {
	factor, ok := weatherFactors[condition]
	if !ok {
		return fmt.Errorf("unknown weather condition: %q", condition)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.weather == factor {
		return nil
	}
	l.weather = factor
	l.recalcLocked()
	core.PublishAlert(l.pub, core.NewAlert(
		"weather_speed_adjustment",
		core.SeverityInfo,
		fmt.Sprintf("Speed adjusted for %s weather conditions", condition),
		ModuleName,
	))
	return nil
}

// SetTrafficDensity applies a traffic factor, clamped to [0.5, 1.0].
// Changes smaller than 0.1 are ignored to avoid target churn.
func (l *Limiter) SetTrafficDensity(density float64) {
	if density < 0.5 {
		density = 0.5
	} else if density > 1.0 {
		density = 1.0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	diff := l.traffic - density
	if diff < 0.1 && diff > -0.1 {
		return
	}
	l.traffic = density
	l.recalcLocked()
}

// SetRegionCap applies a regulatory maximum speed in km/h; zero removes
// the ceiling. Wired to compliance-mode changes by the orchestrator.
func (l *Limiter) SetRegionCap(maxSpeed float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regionCap = maxSpeed
	l.recalcLocked()
}

func (l *Limiter) Enable() {
	l.mu.Lock()
	l.enabled = true
	l.mu.Unlock()
}

func (l *Limiter) Disable() {
	l.mu.Lock()
	l.enabled = false
	l.mu.Unlock()
}

// TargetSpeed returns the current target after all adjustments.
func (l *Limiter) TargetSpeed() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

// CurrentLimit returns the base zone limit before adjustments.
func (l *Limiter) CurrentLimit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *Limiter) Status() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"enabled":            l.enabled,
		"current_limit":      l.limit,
		"target_speed":       l.target,
		"weather_adjustment": l.weather,
		"traffic_adjustment": l.traffic,
		"region_cap":         l.regionCap,
		"ramp_rate":          l.rampRate,
	}
}

// recalcLocked recomputes the target speed. Caller holds l.mu.
func (l *Limiter) recalcLocked() {
	target := l.limit * l.weather * l.traffic
	if l.regionCap > 0 && target > l.regionCap {
		target = l.regionCap
	}
	if target < 0 {
		target = 0
	}
	l.target = target
}

func (l *Limiter) notifyLimitChangeLocked(old, new float64) {
	direction := "increased"
	if new < old {
		direction = "reduced"
	}
	core.PublishAlert(l.pub, core.NewAlert(
		"speed_limit_change",
		core.SeverityInfo,
		fmt.Sprintf("Speed limit %s from %.0f to %.0f km/h", direction, old, new),
		ModuleName,
	))
}
