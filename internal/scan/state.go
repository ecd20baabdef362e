// Package scan implements C5 (the five-phase incremental scan engine) and
// C6 (the single-writer progress state manager) from spec.md §4.5-§4.6.
package scan

import (
	"fmt"
	"sync"
	"time"

	"github.com/hysonger/LatteAlbum/internal/models"
)

// ProgressMessage is the wire format broadcast to WebSocket subscribers
// and returned by the REST status endpoint (spec.md §6).
type ProgressMessage struct {
	Scanning           bool    `json:"scanning"`
	Phase              *string `json:"phase"`
	TotalFiles         uint64  `json:"totalFiles"`
	SuccessCount       uint64  `json:"successCount"`
	FailureCount       uint64  `json:"failureCount"`
	ProgressPercentage string  `json:"progressPercentage"`
	Status             string  `json:"status"`
	FilesToAdd         uint64  `json:"filesToAdd"`
	FilesToUpdate      uint64  `json:"filesToUpdate"`
	FilesToDelete      uint64  `json:"filesToDelete"`
	StartTime          *string `json:"startTime"`
}

type state struct {
	phase         models.ScanPhase
	scanning      bool
	totalFiles    uint64
	successCount  uint64
	failureCount  uint64
	filesToAdd    uint64
	filesToUpdate uint64
	filesToDelete uint64
	startTime     *string
}

// update is the closed set of typed messages C6 accepts, mirroring
// original_source's ProgressUpdate enum (websocket/scan_state.rs).
type update interface{ apply(*state) }

type setPhase struct{ phase models.ScanPhase }
type setTotal struct{ n uint64 }
type incrementSuccess struct{}
type incrementFailure struct{}
type setFileCounts struct{ add, upd, del uint64 }
type resetCounters struct{}
type started struct{}
type completed struct{}
type errored struct{}
type cancelled struct{}

func (u setPhase) apply(s *state)       { s.phase = u.phase }
func (u setTotal) apply(s *state)       { s.totalFiles = u.n }
func (incrementSuccess) apply(s *state) { s.successCount++ }
func (incrementFailure) apply(s *state) { s.failureCount++ }
func (u setFileCounts) apply(s *state) {
	s.filesToAdd, s.filesToUpdate, s.filesToDelete = u.add, u.upd, u.del
}
func (resetCounters) apply(s *state) { s.successCount, s.failureCount = 0, 0 }
func (started) apply(s *state) {
	s.scanning = true
	now := time.Now().UTC().Format(time.RFC3339)
	s.startTime = &now
	s.successCount, s.failureCount = 0, 0
}
func (completed) apply(s *state) { s.scanning = false; s.phase = models.PhaseCompleted }
func (errored) apply(s *state)   { s.scanning = false; s.phase = models.PhaseError }
func (cancelled) apply(s *state) { s.scanning = false; s.phase = models.PhaseCancelled }

// StateManager is C6: the sole owner of ScanState, mutated only by its
// worker goroutine draining a buffered channel of updates. Callers never
// touch the state directly, matching the "only one writer" invariant from
// spec.md §4.6.
type StateManager struct {
	mu    sync.RWMutex
	state state

	updates chan update

	subMu    sync.Mutex
	subs     map[int]chan ProgressMessage
	nextSub  int

	lastReported uint64
	interval     uint64
}

// NewStateManager starts the worker goroutine. interval is spec.md §6's
// WS_PROGRESS_INTERVAL (default 10): a broadcast is forced every interval
// additional processed files even without a phase change.
func NewStateManager(interval int) *StateManager {
	if interval <= 0 {
		interval = 10
	}
	m := &StateManager{
		state:   state{phase: models.PhaseIdle},
		updates: make(chan update, 1000),
		subs:    make(map[int]chan ProgressMessage),
		interval: uint64(interval),
	}
	go m.run()
	return m
}

func (m *StateManager) run() {
	for u := range m.updates {
		m.mu.Lock()
		u.apply(&m.state)

		processed := m.state.successCount + m.state.failureCount
		_, isTerminal := u.(completed)
		_, isErr := u.(errored)
		_, isCancel := u.(cancelled)
		_, isPhase := u.(setPhase)
		_, isStart := u.(started)
		terminal := isTerminal || isErr || isCancel

		shouldSend := isPhase || isStart || terminal ||
			(processed >= m.lastReported+m.interval)

		if shouldSend {
			msg := m.snapshotLocked()
			m.lastReported = processed
			if terminal {
				// spec.md §4.6: reset to idle immediately after a terminal
				// broadcast so new subscribers never see stale completion.
				m.state = state{phase: models.PhaseIdle}
				m.lastReported = 0
			}
			m.mu.Unlock()
			m.broadcast(msg)
			continue
		}
		m.mu.Unlock()
	}
}

func statusFromPhase(p models.ScanPhase) string {
	switch p {
	case models.PhaseIdle:
		return "idle"
	case models.PhaseCollecting, models.PhaseCounting, models.PhaseProcessing, models.PhaseWriting, models.PhaseDeleting:
		return "progress"
	case models.PhaseCompleted:
		return "completed"
	case models.PhaseError:
		return "error"
	case models.PhaseCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// snapshotLocked builds a ProgressMessage from the current state. Caller
// must hold m.mu.
func (m *StateManager) snapshotLocked() ProgressMessage {
	s := m.state
	processed := s.successCount + s.failureCount
	pct := "0.00"
	if s.totalFiles > 0 {
		pct = fmt.Sprintf("%.2f", float64(processed)/float64(s.totalFiles)*100)
	}
	phase := string(s.phase)
	return ProgressMessage{
		Scanning:           s.scanning,
		Phase:              &phase,
		TotalFiles:         s.totalFiles,
		SuccessCount:       s.successCount,
		FailureCount:       s.failureCount,
		ProgressPercentage: pct,
		Status:             statusFromPhase(s.phase),
		FilesToAdd:         s.filesToAdd,
		FilesToUpdate:      s.filesToUpdate,
		FilesToDelete:      s.filesToDelete,
		StartTime:          s.startTime,
	}
}

// Snapshot returns the current state as a ProgressMessage, for the REST
// status endpoint.
func (m *StateManager) Snapshot() ProgressMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe registers a channel that receives every broadcast message.
// The returned cancel func must be called when the subscriber goes away.
func (m *StateManager) Subscribe() (<-chan ProgressMessage, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan ProgressMessage, 16)
	m.subs[id] = ch
	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *StateManager) broadcast(msg ProgressMessage) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber: drop rather than block the single writer.
		}
	}
}

// The business-logic-facing API (spec.md §4.6's typed update messages).

func (m *StateManager) SetPhase(p models.ScanPhase)        { m.send(setPhase{p}) }
func (m *StateManager) SetTotal(n uint64)                  { m.send(setTotal{n}) }
func (m *StateManager) IncrementSuccess()                  { m.send(incrementSuccess{}) }
func (m *StateManager) IncrementFailure()                  { m.send(incrementFailure{}) }
func (m *StateManager) SetFileCounts(add, upd, del uint64) { m.send(setFileCounts{add, upd, del}) }
func (m *StateManager) ResetCounters()                     { m.send(resetCounters{}) }
func (m *StateManager) Started()                           { m.send(started{}) }
func (m *StateManager) Completed()                         { m.send(completed{}) }
func (m *StateManager) Error()                             { m.send(errored{}) }
func (m *StateManager) Cancelled()                         { m.send(cancelled{}) }

func (m *StateManager) send(u update) {
	select {
	case m.updates <- u:
	default:
		// Queue full: drop rather than block the caller (matches
		// original_source's try_send semantics).
	}
}
