package core

import "sync"

// stationaryThreshold is the speed below which the vehicle counts as
// stationary, in km/h.
const stationaryThreshold = 1.0

// Position is a GPS coordinate pair.
type Position struct {
	Lat float64
	Lon float64
}

// IsZero reports whether no GPS fix has been set yet.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// VehicleState is the shared mutable vehicle record. It is written by the
// speed-limiting module on every tick and by foreground stimulus calls, so
// every access goes through a single guard.
//
// The emergency-hold flag is the precedence rule between obstacle response
// and the speed ramp: while held, Ramp is a no-op. An explicit SetSpeed
// releases the hold.
type VehicleState struct {
	mu            sync.Mutex
	speed         float64 // km/h, never negative
	position      Position
	heading       float64 // degrees
	emergencyHold bool
}

// Snapshot is an immutable copy of the vehicle state used for event
// payloads and module reads.
type Snapshot struct {
	Speed         float64
	Position      Position
	Heading       float64
	Stationary    bool
	EmergencyHold bool
}

func NewVehicleState() *VehicleState {
	return &VehicleState{}
}

func (s *VehicleState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Speed:         s.speed,
		Position:      s.position,
		Heading:       s.heading,
		Stationary:    s.speed < stationaryThreshold,
		EmergencyHold: s.emergencyHold,
	}
}

// SetSpeed applies a foreground speed stimulus. Negative values clamp to
// zero. Setting the speed explicitly releases an emergency hold.
func (s *VehicleState) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	s.speed = speed
	s.emergencyHold = false
}

func (s *VehicleState) SetPosition(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = Position{Lat: lat, Lon: lon}
}

func (s *VehicleState) SetHeading(heading float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heading = heading
}

// Ramp moves the speed toward target by at most maxDelta km/h and reports
// the old and new values. It refuses to act while an emergency hold is in
// force, keeping the stop authoritative for the tick that set it.
func (s *VehicleState) Ramp(target, maxDelta float64) (old, cur float64, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emergencyHold {
		return s.speed, s.speed, false
	}

	old = s.speed
	diff := target - s.speed
	switch {
	case diff > maxDelta:
		diff = maxDelta
	case diff < -maxDelta:
		diff = -maxDelta
	}
	if diff > -0.1 && diff < 0.1 {
		return old, old, false
	}

	s.speed = old + diff
	if s.speed < 0 {
		s.speed = 0
	}
	return old, s.speed, true
}

// ForceStop zeroes the speed and raises the emergency hold.
func (s *VehicleState) ForceStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = 0
	s.emergencyHold = true
}

// EmergencyHold reports whether an emergency stop is masking the ramp.
func (s *VehicleState) EmergencyHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emergencyHold
}
