package ota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/drivepilot-io/drivepilot/internal/drivepilot/core"
	"github.com/drivepilot-io/drivepilot/internal/pkg/metrics"
	fsmutil "github.com/drivepilot-io/drivepilot/internal/pkg/util/fsm"
)

// ModuleName identifies the OTA update module on the bus.
const ModuleName = "ota-update"

// Status is the OTA phase, backed by a strict state machine: no phase may
// be skipped or revisited except via rollback back to idle.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusValidating  Status = "validating"
	StatusInstalling  Status = "installing"
	StatusSuccess     Status = "success"
	StatusRolledBack  Status = "rolled_back"
)

const (
	// EventStart begins an update; guarded by the signature check.
	EventStart = "event_start"
	// EventDownloaded fires when download progress reaches 1.0.
	EventDownloaded = "event_downloaded"
	// EventValidated fires when validation progress reaches 1.0.
	EventValidated = "event_validated"
	// EventInstalled fires when installation progress reaches 1.0.
	EventInstalled = "event_installed"
	// EventRollback aborts an in-flight update.
	EventRollback = "event_rollback"
	// EventFinalize returns a terminal state to idle.
	EventFinalize = "event_finalize"
)

// PhaseDurations sets how long each simulated phase takes. A zero duration
// completes the phase on the next tick.
type PhaseDurations struct {
	Download time.Duration
	Validate time.Duration
	Install  time.Duration
}

// DefaultPhaseDurations mirrors the reference behavior: a ten second
// download, two second validation, ten second install.
func DefaultPhaseDurations() PhaseDurations {
	return PhaseDurations{
		Download: 10 * time.Second,
		Validate: 2 * time.Second,
		Install:  10 * time.Second,
	}
}

// UpdateInfo describes an available update package.
type UpdateInfo struct {
	Version     string
	SizeMB      float64
	Description string
	Signature   string
	DownloadURL string
}

// StatusReport is the payload of ota_status events.
type StatusReport struct {
	Status   Status
	Progress float64
	Version  string
}

// Manager drives the OTA phase state machine. The signature check is a
// fixed in-memory whitelist, not real cryptography.
type Manager struct {
	mu      sync.Mutex
	pub     core.Publisher
	machine *fsm.FSM
	enabled bool

	durations PhaseDurations
	clock     func() time.Time

	currentVersion string
	backupVersion  string
	targetVersion  string

	progress        float64
	phaseStart      time.Time
	simulateFailure bool

	signatures map[string]string
}

var _ core.Module = (*Manager)(nil)

func New(durations PhaseDurations) *Manager {
	m := &Manager{
		enabled:        true,
		durations:      durations,
		clock:          time.Now,
		currentVersion: "1.0.0",
		backupVersion:  "1.0.0",
		signatures: map[string]string{
			"2.0.0": "sha256:abc123def456",
			"1.1.0": "sha256:fed456cba321",
		},
	}

	events := fsm.Events{
		{Name: EventStart, Src: []string{string(StatusIdle)}, Dst: string(StatusDownloading)},
		{Name: EventDownloaded, Src: []string{string(StatusDownloading)}, Dst: string(StatusValidating)},
		{Name: EventValidated, Src: []string{string(StatusValidating)}, Dst: string(StatusInstalling)},
		{Name: EventInstalled, Src: []string{string(StatusInstalling)}, Dst: string(StatusSuccess)},
		{Name: EventRollback, Src: []string{
			string(StatusDownloading), string(StatusValidating), string(StatusInstalling),
		}, Dst: string(StatusRolledBack)},
		{Name: EventFinalize, Src: []string{
			string(StatusSuccess), string(StatusRolledBack),
		}, Dst: string(StatusIdle)},
	}

	callbacks := fsm.Callbacks{
		// Guard: an invalid signature cancels the transition, leaving idle.
		"before_" + EventStart: fsmutil.WrapEvent(m.guardSignature),
	}

	m.machine = fsm.NewFSM(string(StatusIdle), events, callbacks)
	return m
}

func (m *Manager) Name() string { return ModuleName }

func (m *Manager) Setup(pub core.Publisher) error {
	m.pub = pub
	return nil
}

// guardSignature checks the package signature against the whitelist before
// the start transition is allowed.
func (m *Manager) guardSignature(ctx context.Context, e *fsm.Event) error {
	version, _ := e.Args[0].(string)
	signature, _ := e.Args[1].(string)
	if signature == "" || m.signatures[version] != signature {
		e.Cancel(fmt.Errorf("invalid signature for version %s", version))
	}
	return nil
}

// StartUpdate begins an update toward version. It is rejected, with a
// critical alert and no state transition, when another update is in flight,
// the module is disabled, or the signature is not whitelisted. The
// simulateFailure flag makes validation or installation fail for testing.
func (m *Manager) StartUpdate(version, signature string, simulateFailure bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.statusLocked() != StatusIdle {
		m.notifyErrorLocked("Update already in progress or system disabled")
		return false
	}

	if err := m.machine.Event(context.Background(), EventStart, version, signature); err != nil {
		m.notifyErrorLocked(fmt.Sprintf("Invalid signature for version %s", version))
		return false
	}

	m.targetVersion = version
	m.simulateFailure = simulateFailure
	m.enterPhaseLocked(m.clock())
	m.notifyStatusLocked(fmt.Sprintf("Starting update to version %s", version))
	return true
}

// Update advances the in-flight phase against elapsed time. Progress is a
// monotonic fraction within a phase and resets to zero on entry.
func (m *Manager) Update(now time.Time, vehicle *core.VehicleState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}

	switch m.statusLocked() {
	case StatusDownloading:
		m.progress = phaseProgress(now, m.phaseStart, m.durations.Download)
		if m.progress >= 1.0 {
			m.advanceLocked(EventDownloaded, now, "Download complete, validating package")
		}
	case StatusValidating:
		m.progress = phaseProgress(now, m.phaseStart, m.durations.Validate)
		if m.progress >= 1.0 {
			if m.simulateFailure {
				m.rollbackLocked(now, "Package validation failed")
			} else {
				m.advanceLocked(EventValidated, now, "Validation complete, installing update")
			}
		}
	case StatusInstalling:
		m.progress = phaseProgress(now, m.phaseStart, m.durations.Install)
		if m.progress >= 1.0 {
			if m.simulateFailure {
				m.rollbackLocked(now, "Installation failed")
			} else {
				m.completeLocked(now)
			}
		}
	}
}

// SimulateNetworkFailure rolls back an update that is downloading or
// installing; it is a no-op in any other phase.
func (m *Manager) SimulateNetworkFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.statusLocked() {
	case StatusDownloading, StatusInstalling:
		m.rollbackLocked(m.clock(), "Network failure during update")
	}
}

// SimulatePowerFailure rolls back an update that is installing.
func (m *Manager) SimulatePowerFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusLocked() == StatusInstalling {
		m.rollbackLocked(m.clock(), "Power failure during installation")
	}
}

// CheckForUpdates returns a canned available update while idle, nil
// otherwise.
func (m *Manager) CheckForUpdates() *UpdateInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || m.statusLocked() != StatusIdle {
		return nil
	}
	return &UpdateInfo{
		Version:     "2.0.0",
		SizeMB:      100.0,
		Description: "Bug fixes and performance improvements",
		Signature:   "sha256:abc123def456",
		DownloadURL: "https://updates.example.com/v2.0.0.pkg",
	}
}

func (m *Manager) Enable() {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()
}

func (m *Manager) Disable() {
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// CurrentStatus returns the current phase.
func (m *Manager) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// CurrentVersion returns the installed firmware version.
func (m *Manager) CurrentVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentVersion
}

// BackupVersion returns the version held on the backup partition.
func (m *Manager) BackupVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupVersion
}

// Progress returns the fraction of the current phase completed.
func (m *Manager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

func (m *Manager) Status() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"enabled":         m.enabled,
		"status":          string(m.statusLocked()),
		"current_version": m.currentVersion,
		"backup_version":  m.backupVersion,
		"target_version":  m.targetVersion,
		"progress":        m.progress,
	}
}

func (m *Manager) statusLocked() Status {
	return Status(m.machine.Current())
}

// enterPhaseLocked stamps the phase start exactly once per entry and
// resets progress. Caller holds m.mu.
func (m *Manager) enterPhaseLocked(now time.Time) {
	m.phaseStart = now
	m.progress = 0
}

func (m *Manager) advanceLocked(event string, now time.Time, message string) {
	if err := m.machine.Event(context.Background(), event); err != nil {
		return
	}
	m.enterPhaseLocked(now)
	m.notifyStatusLocked(message)
}

// completeLocked finishes a successful update: the backup partition takes
// the old version, the target becomes current, and the machine settles
// back to idle.
func (m *Manager) completeLocked(now time.Time) {
	if err := m.machine.Event(context.Background(), EventInstalled); err != nil {
		return
	}
	m.backupVersion = m.currentVersion
	m.currentVersion = m.targetVersion
	m.progress = 1.0

	m.notifyStatusLocked(fmt.Sprintf("Update completed successfully to version %s", m.currentVersion))
	m.pub.Publish(core.NewEvent(core.EventOTASuccess, ModuleName, StatusReport{
		Status:   StatusSuccess,
		Progress: 1.0,
		Version:  m.currentVersion,
	}))

	m.finalizeLocked(now)
}

// rollbackLocked aborts the in-flight update, leaving the pre-update
// version authoritative, and settles back to idle.
func (m *Manager) rollbackLocked(now time.Time, reason string) {
	if err := m.machine.Event(context.Background(), EventRollback); err != nil {
		return
	}
	m.progress = 1.0
	metrics.OTARollbacksTotal.Inc()

	core.PublishAlert(m.pub, core.NewAlert(
		"ota_rollback",
		core.SeverityWarning,
		fmt.Sprintf("Update rolled back: %s", reason),
		ModuleName,
	))
	m.pub.Publish(core.NewEvent(core.EventOTARollback, ModuleName, StatusReport{
		Status:   StatusRolledBack,
		Progress: 1.0,
		Version:  m.currentVersion,
	}))

	m.finalizeLocked(now)
}

func (m *Manager) finalizeLocked(now time.Time) {
	if err := m.machine.Event(context.Background(), EventFinalize); err != nil {
		return
	}
	m.enterPhaseLocked(now)
	m.targetVersion = ""
	m.simulateFailure = false
	m.publishStatusEventLocked()
}

// notifyStatusLocked emits an info alert and an ota_status event for the
// current phase. Caller holds m.mu.
func (m *Manager) notifyStatusLocked(message string) {
	core.PublishAlert(m.pub, core.NewAlert("ota_status", core.SeverityInfo, message, ModuleName))
	m.publishStatusEventLocked()
}

func (m *Manager) notifyErrorLocked(message string) {
	core.PublishAlert(m.pub, core.NewAlert("ota_error", core.SeverityCritical, message, ModuleName))
	m.pub.Publish(core.NewEvent(core.EventOTAFailed, ModuleName, message))
}

func (m *Manager) publishStatusEventLocked() {
	m.pub.Publish(core.NewEvent(core.EventOTAStatus, ModuleName, StatusReport{
		Status:   m.statusLocked(),
		Progress: m.progress,
		Version:  m.currentVersion,
	}))
}

// phaseProgress is the monotonic fraction of a phase elapsed by now. A
// non-positive duration completes immediately.
func phaseProgress(now, start time.Time, duration time.Duration) float64 {
	if duration <= 0 {
		return 1.0
	}
	p := float64(now.Sub(start)) / float64(duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
