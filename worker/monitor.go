package worker

import (
	"os"
	"sync"
	"time"

	"github.com/jahorta/soasim/fleetlog"
)

// ParentMonitor watches the parent runner process and triggers shutdown
// when it dies without an orderly pipe close (e.g. the parent was force
// killed). The parent PID is captured at creation time; when the OS
// re-parents this process the PPID changes and the callback fires.
type ParentMonitor struct {
	parentPID     int
	checkInterval time.Duration
	shutdownFunc  func()
	log           *fleetlog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewParentMonitor creates a monitor that calls shutdownFunc when the
// parent process dies.
func NewParentMonitor(log *fleetlog.Logger, shutdownFunc func()) *ParentMonitor {
	return &ParentMonitor{
		parentPID:     os.Getppid(),
		checkInterval: 2 * time.Second,
		shutdownFunc:  shutdownFunc,
		log:           log,
		stopChan:      make(chan struct{}),
	}
}

// Start begins monitoring in a background goroutine.
func (pm *ParentMonitor) Start() {
	go pm.monitorLoop()
}

// Stop stops the monitor goroutine. Safe to call multiple times.
func (pm *ParentMonitor) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

func (pm *ParentMonitor) monitorLoop() {
	ticker := time.NewTicker(pm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			currentPPID := os.Getppid()
			if currentPPID != pm.parentPID {
				pm.log.Warnf("parent process died (ppid %d -> %d), shutting down", pm.parentPID, currentPPID)
				pm.shutdownFunc()
				return
			}
		case <-pm.stopChan:
			return
		}
	}
}
