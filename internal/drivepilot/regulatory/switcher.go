package regulatory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
)

// ModuleName identifies the regulatory mode module on the bus.
const ModuleName = "regulatory-mode"

// RegionChange is the payload of region_changed events.
type RegionChange struct {
	OldRegion string
	NewRegion string
}

// ComplianceChange is the payload of compliance_mode_changed events. The
// orchestrator forwards MaxSpeed to the speed limiter as a ceiling.
type ComplianceChange struct {
	Region          string
	AllowedFeatures []string
	MaxSpeed        float64
}

// Switcher re-evaluates the regulatory region from the GPS position on
// every tick and gates feature activation on the current allow-list.
type Switcher struct {
	mu      sync.Mutex
	pub     core.Publisher
	enabled bool
	current Region
}

var _ core.Module = (*Switcher)(nil)

func New() *Switcher {
	return &Switcher{
		enabled: true,
		current: regions["US"],
	}
}

func (s *Switcher) Name() string { return ModuleName }

func (s *Switcher) Setup(pub core.Publisher) error {
	s.pub = pub
	return nil
}

// Update re-resolves the region whenever the vehicle has a GPS fix.
func (s *Switcher) Update(now time.Time, vehicle *core.VehicleState) {
	pos := vehicle.Snapshot().Position
	if pos.IsZero() {
		return
	}
	s.EvaluatePosition(pos.Lat, pos.Lon)
}

// EvaluatePosition resolves the region for a coordinate and applies a
// region change when the result differs from the current region.
func (s *Switcher) EvaluatePosition(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}

	next := RegionForPosition(lat, lon)
	if next.Code == s.current.Code {
		return
	}
	s.changeRegionLocked(next)
}

// SimulateBorderCrossing forces a region change between two known codes.
func (s *Switcher) SimulateBorderCrossing(from, to string) error {
	if _, ok := regions[from]; !ok {
		return fmt.Errorf("unknown region code: %q", from)
	}
	next, ok := regions[to]
	if !ok {
		return fmt.Errorf("unknown region code: %q", to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = regions[from]
	s.changeRegionLocked(next)
	return nil
}

// CheckFeatureAllowed reports whether a feature may be activated here.
// With the module disabled every feature is allowed.
func (s *Switcher) CheckFeatureAllowed(feature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return true
	}
	return s.current.Allows(feature)
}

// AttemptFeatureActivation is the guarded activation check: it reports the
// outcome and emits an alert either way, never an error.
func (s *Switcher) AttemptFeatureActivation(feature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return true
	}

	if s.current.Allows(feature) {
		core.PublishAlert(s.pub, core.NewAlert(
			"feature_activation",
			core.SeverityInfo,
			fmt.Sprintf("Feature '%s' activated", feature),
			ModuleName,
		))
		return true
	}

	core.PublishAlert(s.pub, core.NewAlert(
		"feature_blocked",
		core.SeverityWarning,
		fmt.Sprintf("Feature '%s' not available in %s", feature, s.current.Name),
		ModuleName,
	))
	s.pub.Publish(core.NewEvent(core.EventFeatureBlocked, ModuleName, feature))
	return false
}

// CurrentRegion returns the active region.
func (s *Switcher) CurrentRegion() Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// AllowedFeatures lists the features permitted in the current region.
func (s *Switcher) AllowedFeatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.current.AllowedFeatures))
	copy(out, s.current.AllowedFeatures)
	return out
}

// BlockedFeatures lists catalog features missing from the current
// allow-list.
func (s *Switcher) BlockedFeatures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return blockedLocked(s.current)
}

func (s *Switcher) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.mu.Unlock()
}

func (s *Switcher) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()
}

func (s *Switcher) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"enabled":          s.enabled,
		"region":           s.current.Code,
		"region_name":      s.current.Name,
		"allowed_features": append([]string(nil), s.current.AllowedFeatures...),
		"blocked_features": blockedLocked(s.current),
		"max_speed":        s.current.MaxSpeed,
	}
}

// changeRegionLocked adopts the new region, emits the region-change events
// and one alert per non-empty feature-delta set. Caller holds s.mu.
func (s *Switcher) changeRegionLocked(next Region) {
	old := s.current
	s.current = next

	s.pub.Publish(core.NewEvent(core.EventRegionChanged, ModuleName, RegionChange{
		OldRegion: old.Code,
		NewRegion: next.Code,
	}))
	s.pub.Publish(core.NewEvent(core.EventComplianceModeChanged, ModuleName, ComplianceChange{
		Region:          next.Code,
		AllowedFeatures: append([]string(nil), next.AllowedFeatures...),
		MaxSpeed:        next.MaxSpeed,
	}))
	core.PublishAlert(s.pub, core.NewAlert(
		"region_change",
		core.SeverityInfo,
		fmt.Sprintf("Regulatory region changed from %s to %s", old.Name, next.Name),
		ModuleName,
	))

	var newlyBlocked, newlyAllowed []string
	for _, f := range old.AllowedFeatures {
		if !next.Allows(f) {
			newlyBlocked = append(newlyBlocked, f)
		}
	}
	for _, f := range next.AllowedFeatures {
		if !old.Allows(f) {
			newlyAllowed = append(newlyAllowed, f)
		}
	}

	if len(newlyBlocked) > 0 {
		core.PublishAlert(s.pub, core.NewAlert(
			"features_disabled",
			core.SeverityWarning,
			fmt.Sprintf("Features disabled in %s: %s", next.Name, strings.Join(newlyBlocked, ", ")),
			ModuleName,
		))
	}
	if len(newlyAllowed) > 0 {
		core.PublishAlert(s.pub, core.NewAlert(
			"features_enabled",
			core.SeverityInfo,
			fmt.Sprintf("Features enabled in %s: %s", next.Name, strings.Join(newlyAllowed, ", ")),
			ModuleName,
		))
	}
}

func blockedLocked(r Region) []string {
	var blocked []string
	for _, f := range allFeatures {
		if !r.Allows(f) {
			blocked = append(blocked, f)
		}
	}
	return blocked
}
