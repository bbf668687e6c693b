package console

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/session"
	"github.com/ameet2r/workout/internal/timer"
)

const maxLogLines = 1000

// Snapshot is everything the view renders for the open session.
type Snapshot struct {
	SessionID     string
	Name          string
	Exercises     []models.SessionExercise
	Current       int
	Inputs        session.SetInput
	Pending       []models.TimerRun
	Timer         timer.State
	OneRepMaxMode bool
	OneRepMax     *session.OneRepMax
	Readings      int
	Totals        models.Totals
	Finished      bool
	Sensor        sensor.Status
	Message       string
}

// StatusSource is the part of the connector the console displays.
type StatusSource interface {
	Status() sensor.Status
	ListenStatus(ch chan<- sensor.Status) func()
}

// Model collects log lines and session state for the view. Session state is
// re-read on every refresh tick because the timer counts down on its own.
type Model struct {
	logger *log.Logger
	sensor StatusSource

	logEvent      *events.ChannelEvent[string]
	snapshotEvent *events.ChannelEvent[Snapshot]
	closeEvent    *events.ChannelEvent[struct{}]

	logMu    sync.RWMutex
	logLines []string

	mu      sync.RWMutex
	session *session.Session
	message string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewModel(hr StatusSource, logger *log.Logger, uiLogChan <-chan string, refresh time.Duration) *Model {
	if hr == nil {
		panic("Model: status source cannot be nil")
	}
	if logger == nil {
		panic("Model: logger cannot be nil")
	}
	if uiLogChan == nil {
		panic("Model: uiLogChan cannot be nil")
	}
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		logger:        logger,
		sensor:        hr,
		logEvent:      events.NewChannelEvent[string](false),
		snapshotEvent: events.NewChannelEvent[Snapshot](true),
		closeEvent:    events.NewChannelEvent[struct{}](true),
		logLines:      make([]string, 0, maxLogLines),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { m.readFromLogChannel(uiLogChan) })

	m.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { m.refreshLoop(refresh) })

	return m
}

func (m *Model) Shutdown() {
	m.cancel()
	m.wg.Wait()
	m.logger.Println("Model: Shutdown complete")
}

func (m *Model) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *Model) ListenToSnapshot(ch chan<- Snapshot) func() {
	return m.snapshotEvent.Listen(ch)
}

func (m *Model) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeEvent.Listen(ch)
}

func (m *Model) RequestCloseApplication() {
	m.closeEvent.Notify(struct{}{})
}

// SetSession swaps the session view the console shows. nil clears it.
func (m *Model) SetSession(s *session.Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	m.Refresh()
}

// SetMessage shows the outcome of the last command.
func (m *Model) SetMessage(msg string) {
	m.mu.Lock()
	m.message = msg
	m.mu.Unlock()
	m.Refresh()
}

func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.session
	snap := Snapshot{Message: m.message}
	m.mu.RUnlock()

	snap.Sensor = m.sensor.Status()
	if s == nil {
		return snap
	}
	info := s.Info()
	snap.SessionID = info.ID
	if info.Name != nil {
		snap.Name = *info.Name
	}
	snap.Exercises = s.Exercises()
	snap.Current, _, _ = s.Current()
	snap.Inputs = s.Inputs()
	snap.Pending = s.PendingTimerRuns()
	snap.Timer = s.TimerState()
	snap.OneRepMaxMode = s.OneRepMaxMode()
	if orm, ok := s.OneRepMax(); ok {
		snap.OneRepMax = &orm
	}
	snap.Readings = len(s.Readings())
	snap.Totals = s.Totals()
	snap.Finished = s.Finished()
	return snap
}

func (m *Model) Refresh() {
	m.snapshotEvent.Notify(m.Snapshot())
}

// GetLogTail returns the last n lines of logs
func (m *Model) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n >= len(m.logLines) {
		result := make([]string, len(m.logLines))
		copy(result, m.logLines)
		return result
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

func (m *Model) appendLog(line string) {
	m.logMu.Lock()
	if len(m.logLines) >= maxLogLines {
		m.logLines = append(m.logLines[:0], m.logLines[1:]...)
	}
	m.logLines = append(m.logLines, line)
	m.logMu.Unlock()

	m.logEvent.Notify(line)
}

func (m *Model) readFromLogChannel(uiLogChan <-chan string) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case line, ok := <-uiLogChan:
			if !ok {
				return
			}
			m.appendLog(line)
		}
	}
}

func (m *Model) refreshLoop(interval time.Duration) {
	defer m.wg.Done()

	statusCh := make(chan sensor.Status, 1)
	unregister := m.sensor.ListenStatus(statusCh)
	defer unregister()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-statusCh:
			m.Refresh()
		case <-ticker.C:
			m.Refresh()
		}
	}
}
