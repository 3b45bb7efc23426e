package hub

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultIdleTimeout is how long a session may sit without activity
	// before the supervisor reclaims it.
	DefaultIdleTimeout = 60 * time.Minute

	// DefaultSweepInterval is how often idle sessions are checked.
	DefaultSweepInterval = 60 * time.Second

	// SystemInitiator marks ends performed by the hub itself.
	SystemInitiator = "system"
)

// Supervisor periodically force-ends sessions that have been inactive longer
// than the idle timeout. It mutates registry state directly, independent of
// any connection.
type Supervisor struct {
	registry      *Registry
	idleTimeout   time.Duration
	sweepInterval time.Duration
	stopCh        chan struct{}
	running       bool
}

// NewSupervisor creates an idle-timeout supervisor for the registry.
func NewSupervisor(registry *Registry, idleTimeout, sweepInterval time.Duration) *Supervisor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	return &Supervisor{
		registry:      registry,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the sweep loop.
func (sv *Supervisor) Start() error {
	if sv.running {
		return fmt.Errorf("supervisor is already running")
	}

	sv.running = true
	go sv.run()

	log.Info().
		Dur("idle_timeout", sv.idleTimeout).
		Dur("sweep_interval", sv.sweepInterval).
		Msg("Idle-timeout supervisor started")

	return nil
}

// Stop stops the sweep loop.
func (sv *Supervisor) Stop() error {
	if !sv.running {
		return fmt.Errorf("supervisor is not running")
	}

	close(sv.stopCh)
	sv.running = false

	log.Info().Msg("Idle-timeout supervisor stopped")

	return nil
}

// IsRunning returns whether the sweep loop is active.
func (sv *Supervisor) IsRunning() bool {
	return sv.running
}

// IdleTimeout returns the configured idle timeout.
func (sv *Supervisor) IdleTimeout() time.Duration {
	return sv.idleTimeout
}

func (sv *Supervisor) run() {
	ticker := time.NewTicker(sv.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sv.SweepNow()
		case <-sv.stopCh:
			return
		}
	}
}

// SweepNow ends every session whose last activity is older than the idle
// timeout. Blocking is not activity: a session that aged out while a party
// was parked in listen or wait_response is reclaimed all the same, and the
// parked party releases with a timeout result.
func (sv *Supervisor) SweepNow() {
	r := sv.registry
	now := r.clock()

	r.mu.Lock()
	var stale []string
	for name, s := range r.sessions {
		if now.Sub(s.lastActivity) > sv.idleTimeout {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		log.Warn().
			Str("session", name).
			Dur("idle_timeout", sv.idleTimeout).
			Msg("Session timed out from inactivity")
		r.endLocked(name, SystemInitiator, ReasonTimeout)
	}
	r.mu.Unlock()
}
