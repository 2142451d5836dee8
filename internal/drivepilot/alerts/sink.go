package alerts

import (
	"sync"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
)

// Sink buffers alert events surfaced by feature modules until a caller
// retrieves or clears them.
type Sink struct {
	mu  sync.Mutex
	buf []core.Alert
}

func NewSink() *Sink {
	return &Sink{}
}

// HandleEvent is the bus handler; wire it with Subscribe(core.EventAlert, ...).
// Events whose payload is not an Alert are ignored.
func (s *Sink) HandleEvent(event core.Event) error {
	alert, ok := event.Payload.(core.Alert)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.buf = append(s.buf, alert)
	s.mu.Unlock()
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity)).Inc()
	return nil
}

// Get returns the buffered alerts in arrival order, optionally clearing
// the buffer in the same critical section.
func (s *Sink) Get(clear bool) []core.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Alert, len(s.buf))
	copy(out, s.buf)
	if clear {
		s.buf = s.buf[:0]
	}
	return out
}

// Clear drops all buffered alerts.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
}

// Len reports the number of buffered alerts.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}
