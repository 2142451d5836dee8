package obstacle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
)

// ModuleName identifies the obstacle detection module on the bus.
const ModuleName = "obstacle-detection"

const (
	// DefaultDetectionRange is the maximum tracked distance in meters.
	DefaultDetectionRange = 100.0
	// DefaultConfidenceThreshold gates admission to the tracked set.
	DefaultConfidenceThreshold = 0.7
)

// ObjectType classifies a detected obstacle.
type ObjectType string

const (
	ObjectPedestrian ObjectType = "pedestrian"
	ObjectVehicle    ObjectType = "vehicle"
	ObjectAnimal     ObjectType = "animal"
	ObjectStatic     ObjectType = "static_object"
)

// typeDetectability scales fusion confidence per object class. Unknown
// classes fall back to 0.7.
var typeDetectability = map[ObjectType]float64{
	ObjectVehicle:    1.0,
	ObjectPedestrian: 0.85,
	ObjectAnimal:     0.75,
	ObjectStatic:     0.9,
}

// Obstacle is one tracked detection.
type Obstacle struct {
	Type       ObjectType
	Distance   float64 // meters
	Bearing    float64 // degrees relative to vehicle heading
	Velocity   float64 // m/s
	Confidence float64 // 0.0 to 1.0
	DetectedAt time.Time
}

// Detector maintains the tracked obstacle set and applies the response
// policy once per admitted detection. The fusion confidence stands in for
// multi-sensor data fusion; it is distance- and class-dependent with
// uniform noise.
type Detector struct {
	mu        sync.Mutex
	pub       core.Publisher
	vehicle   *core.VehicleState
	enabled   bool
	rangeM    float64
	threshold float64
	tracked   []Obstacle

	// noise perturbs fusion confidence; tests substitute a fixed value.
	noise func() float64

	lastUpdate time.Time
}

var _ core.Module = (*Detector)(nil)

func New(vehicle *core.VehicleState) *Detector {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Detector{
		vehicle:   vehicle,
		enabled:   true,
		rangeM:    DefaultDetectionRange,
		threshold: DefaultConfidenceThreshold,
		noise:     func() float64 { return rng.Float64()*0.2 - 0.1 },
	}
}

func (d *Detector) Name() string { return ModuleName }

func (d *Detector) Setup(pub core.Publisher) error {
	d.pub = pub
	return nil
}

// Update moves every tracked obstacle by the relative closing velocity and
// drops entries whose distance leaves (0, range].
func (d *Detector) Update(now time.Time, vehicle *core.VehicleState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var dt float64
	if !d.lastUpdate.IsZero() {
		dt = now.Sub(d.lastUpdate).Seconds()
	}
	d.lastUpdate = now

	if !d.enabled {
		return
	}

	vehicleMps := vehicle.Snapshot().Speed / 3.6

	kept := d.tracked[:0]
	for _, obs := range d.tracked {
		closing := vehicleMps - obs.Velocity
		obs.Distance -= closing * dt
		if obs.Distance > 0 && obs.Distance <= d.rangeM {
			kept = append(kept, obs)
		}
	}
	d.tracked = kept
	metrics.ObstaclesTracked.Set(float64(len(d.tracked)))

	if len(d.tracked) > 0 {
		snapshot := make([]Obstacle, len(d.tracked))
		copy(snapshot, d.tracked)
		d.pub.Publish(core.NewEvent(core.EventObstaclesDetected, ModuleName, snapshot))
	}
}

// AddObstacle injects a synthetic detection. It is admitted to the tracked
// set only when the fusion confidence clears the threshold; the response
// policy runs once on admission. Reports whether the obstacle was admitted.
func (d *Detector) AddObstacle(objectType ObjectType, distance, bearing, velocity float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled || distance < 0 {
		return false
	}
	confidence := d.fusionConfidenceLocked(distance, objectType)
	return d.admitLocked(Obstacle{
		Type:       objectType,
		Distance:   distance,
		Bearing:    bearing,
		Velocity:   velocity,
		Confidence: confidence,
		DetectedAt: time.Now(),
	}, false)
}

// SimulatePedestrian injects a pedestrian; a crossing pedestrian moves at
// walking speed dead ahead.
func (d *Detector) SimulatePedestrian(distance float64, crossing bool) bool {
	velocity := 0.0
	bearing := randBearing(45)
	if crossing {
		velocity = 1.4
		bearing = 0.0
	}
	return d.AddObstacle(ObjectPedestrian, distance, bearing, velocity)
}

// SimulateAnimal injects an animal; at night the fusion confidence is
// further degraded and the slow-down alert escalates to critical.
func (d *Detector) SimulateAnimal(distance float64, night bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled || distance < 0 {
		return false
	}

	confidence := d.fusionConfidenceLocked(distance, ObjectAnimal)
	if night {
		confidence *= 0.8
	}
	return d.admitLocked(Obstacle{
		Type:       ObjectAnimal,
		Distance:   distance,
		Bearing:    randBearing(30),
		Velocity:   0.5 + rand.Float64()*2.5,
		Confidence: confidence,
		DetectedAt: time.Now(),
	}, night)
}

// SimulateStaticObject injects a stationary object; size scales the fusion
// confidence (small 0.7, medium 1.0, large 1.2).
func (d *Detector) SimulateStaticObject(distance float64, size string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.enabled || distance < 0 {
		return false
	}

	modifier := 1.0
	switch size {
	case "small":
		modifier = 0.7
	case "large":
		modifier = 1.2
	}
	confidence := d.fusionConfidenceLocked(distance, ObjectStatic) * modifier
	if confidence > 1.0 {
		confidence = 1.0
	}
	return d.admitLocked(Obstacle{
		Type:       ObjectStatic,
		Distance:   distance,
		Confidence: confidence,
		DetectedAt: time.Now(),
	}, false)
}

// SetDetectionRange adjusts the maximum tracked distance in meters.
func (d *Detector) SetDetectionRange(meters float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if meters > 0 {
		d.rangeM = meters
	}
}

// SetConfidenceThreshold adjusts the admission threshold, clamped to [0, 1].
func (d *Detector) SetConfidenceThreshold(threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}
	d.threshold = threshold
}

func (d *Detector) Enable() {
	d.mu.Lock()
	d.enabled = true
	d.mu.Unlock()
}

// Disable stops detection and clears the tracked set.
func (d *Detector) Disable() {
	d.mu.Lock()
	d.enabled = false
	d.tracked = nil
	d.mu.Unlock()
	metrics.ObstaclesTracked.Set(0)
}

// Tracked returns a copy of the tracked obstacle set.
func (d *Detector) Tracked() []Obstacle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Obstacle, len(d.tracked))
	copy(out, d.tracked)
	return out
}

// ClearObstacles empties the tracked set.
func (d *Detector) ClearObstacles() {
	d.mu.Lock()
	d.tracked = nil
	d.mu.Unlock()
	metrics.ObstaclesTracked.Set(0)
}

func (d *Detector) Status() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"enabled":              d.enabled,
		"detection_range":      d.rangeM,
		"confidence_threshold": d.threshold,
		"obstacles_count":      len(d.tracked),
	}
}

// fusionConfidenceLocked combines distance bands, class detectability and
// noise into a synthetic confidence score, clamped to [0, 1].
func (d *Detector) fusionConfidenceLocked(distance float64, objectType ObjectType) float64 {
	confidence := 0.9

	switch {
	case distance > 100:
		confidence *= 0.6
	case distance > 50:
		confidence *= 0.8
	}

	factor, ok := typeDetectability[objectType]
	if !ok {
		factor = 0.7
	}
	confidence *= factor

	confidence += d.noise()
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// admitLocked gates an obstacle on the confidence threshold and, when
// admitted, runs the response policy once. Caller holds d.mu.
func (d *Detector) admitLocked(obs Obstacle, night bool) bool {
	if obs.Confidence < d.threshold {
		return false
	}
	d.tracked = append(d.tracked, obs)
	metrics.ObstaclesTracked.Set(float64(len(d.tracked)))
	d.respondLocked(obs, night)
	return true
}

// respondLocked applies the distance- and class-based response policy.
// Caller holds d.mu.
func (d *Detector) respondLocked(obs Obstacle, night bool) {
	switch obs.Type {
	case ObjectPedestrian:
		if obs.Distance < 20 && obs.Velocity > 0 {
			d.emergencyStopLocked(obs)
		} else if obs.Distance < 50 {
			core.PublishAlert(d.pub, core.NewAlert(
				"obstacle_warning",
				core.SeverityWarning,
				"Pedestrian detected ahead",
				ModuleName,
			))
		}
	case ObjectAnimal:
		if obs.Distance < 30 {
			severity := core.SeverityWarning
			message := fmt.Sprintf("Reducing speed - %s detected", obs.Type)
			if night {
				severity = core.SeverityCritical
				message += " (night conditions)"
			}
			core.PublishAlert(d.pub, core.NewAlert("slow_down", severity, message, ModuleName))
		}
	case ObjectStatic:
		if obs.Distance < 25 {
			core.PublishAlert(d.pub, core.NewAlert(
				"navigation_required",
				core.SeverityInfo,
				fmt.Sprintf("Navigation adjustment needed - %s ahead", obs.Type),
				ModuleName,
			))
		}
	}
}

// emergencyStopLocked zeroes the vehicle speed under the shared guard and
// raises the hold that masks the speed ramp. Caller holds d.mu.
func (d *Detector) emergencyStopLocked(obs Obstacle) {
	d.vehicle.ForceStop()
	metrics.EmergencyStopsTotal.Inc()

	core.PublishAlert(d.pub, core.NewAlert(
		"emergency_stop",
		core.SeverityCritical,
		fmt.Sprintf("Emergency stop triggered - %s at %.1fm", obs.Type, obs.Distance),
		ModuleName,
	))
	d.pub.Publish(core.NewEvent(core.EventEmergencyStop, ModuleName, obs))
}

func randBearing(spread float64) float64 {
	return rand.Float64()*2*spread - spread
}
