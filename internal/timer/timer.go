package timer

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/models"
)

var (
	ErrInvalidDuration = errors.New("timer duration must be positive")
	ErrShutdown        = errors.New("timer is shut down")
)

type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusStopped:
		return "stopped"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// State is a snapshot of the countdown. TimerIndex is -1 when no timer has
// been started.
type State struct {
	Status           Status
	TimerIndex       int
	PlannedSeconds   int
	RemainingSeconds int
	StartedAt        time.Time
}

func (s State) Running() bool {
	return s.Status == StatusRunning
}

// Ticker is the subset of *time.Ticker the loop needs. Tests substitute a
// channel they drive by hand.
type Ticker interface {
	Chan() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) Chan() <-chan time.Time { return t.C }

func newStdTicker() Ticker {
	t := time.NewTicker(time.Second)
	t.Stop() // started on the first Start
	return stdTicker{t}
}

// Signaler announces a completed countdown (bell, flash). Failures are
// logged and otherwise ignored.
type Signaler interface {
	Signal(run models.TimerRun) error
}

type SignalerFunc func(run models.TimerRun) error

func (f SignalerFunc) Signal(run models.TimerRun) error { return f(run) }

type Options struct {
	Now       func() time.Time
	NewTicker func() Ticker
	Signaler  Signaler
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdRestart
)

type command struct {
	kind    commandKind
	index   int
	seconds int
	reply   chan *models.TimerRun
}

// Timer runs at most one countdown at a time. Commands and one-second ticks
// are handled by a single goroutine in arrival order.
type Timer struct {
	logger   *log.Logger
	now      func() time.Time
	ticker   Ticker
	signaler Signaler

	mu    sync.RWMutex
	state State

	runEvent   *events.CallbackEvent[models.TimerRun]
	stateEvent *events.ChannelEvent[State]

	cmdChan      chan command
	doneChan     chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func New(logger *log.Logger, opts Options) *Timer {
	if logger == nil {
		panic("Timer: logger cannot be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newStdTicker
	}

	t := &Timer{
		logger:     logger,
		now:        opts.Now,
		ticker:     opts.NewTicker(),
		signaler:   opts.Signaler,
		state:      State{Status: StatusIdle, TimerIndex: -1},
		runEvent:   events.NewCallbackEvent[models.TimerRun](false),
		stateEvent: events.NewChannelEvent[State](true),
		cmdChan:    make(chan command),
		doneChan:   make(chan struct{}),
	}

	t.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { t.runLoop() })
	return t
}

func (t *Timer) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ListenRuns registers fn for every finished run, completed or stopped, and
// returns its unsubscribe func. fn is called on the timer goroutine before
// the state leaves Running.
func (t *Timer) ListenRuns(fn func(models.TimerRun)) func() {
	return t.runEvent.Listen(fn)
}

// ListenState delivers a snapshot on every transition and tick.
func (t *Timer) ListenState(ch chan<- State) func() {
	return t.stateEvent.Listen(ch)
}

// Start begins a countdown. A running countdown is stopped first and its run
// is returned.
func (t *Timer) Start(index, seconds int) (*models.TimerRun, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	return t.send(command{kind: cmdStart, index: index, seconds: seconds})
}

// Stop ends the running countdown early and returns its run, or nil when
// nothing was running.
func (t *Timer) Stop() *models.TimerRun {
	run, _ := t.send(command{kind: cmdStop})
	return run
}

// Restart is Stop followed by Start.
func (t *Timer) Restart(index, seconds int) (*models.TimerRun, error) {
	if seconds <= 0 {
		return nil, ErrInvalidDuration
	}
	return t.send(command{kind: cmdRestart, index: index, seconds: seconds})
}

// Shutdown stops the loop. Safe to call multiple times.
func (t *Timer) Shutdown() {
	t.shutdownOnce.Do(func() {
		close(t.doneChan)
		t.wg.Wait()
		t.logger.Printf("Timer: Shutdown complete")
	})
}

func (t *Timer) send(cmd command) (*models.TimerRun, error) {
	cmd.reply = make(chan *models.TimerRun, 1)
	select {
	case t.cmdChan <- cmd:
	case <-t.doneChan:
		return nil, ErrShutdown
	}
	return <-cmd.reply, nil
}

func (t *Timer) runLoop() {
	defer t.wg.Done()
	defer t.ticker.Stop()

	for {
		select {
		case <-t.doneChan:
			return

		case cmd := <-t.cmdChan:
			cmd.reply <- t.handleCommand(cmd)

		case <-t.ticker.Chan():
			t.handleTick()
		}
	}
}

func (t *Timer) handleCommand(cmd command) *models.TimerRun {
	switch cmd.kind {
	case cmdStop:
		return t.stopRunning()
	case cmdStart, cmdRestart:
		stopped := t.stopRunning()
		t.begin(cmd.index, cmd.seconds)
		return stopped
	}
	return nil
}

func (t *Timer) begin(index, seconds int) {
	t.mu.Lock()
	t.state = State{
		Status:           StatusRunning,
		TimerIndex:       index,
		PlannedSeconds:   seconds,
		RemainingSeconds: seconds,
		StartedAt:        t.now(),
	}
	state := t.state
	t.mu.Unlock()

	t.ticker.Reset(time.Second)
	t.logger.Printf("Timer: started timer %d for %ds", index, seconds)
	t.stateEvent.Notify(state)
}

func (t *Timer) stopRunning() *models.TimerRun {
	t.mu.RLock()
	state := t.state
	t.mu.RUnlock()
	if !state.Running() {
		return nil
	}

	t.ticker.Stop()
	run := models.TimerRun{
		TimerIndex:     state.TimerIndex,
		StartedAt:      state.StartedAt,
		PlannedSeconds: state.PlannedSeconds,
		ActualSeconds:  state.PlannedSeconds - state.RemainingSeconds,
		Completed:      false,
	}
	t.finish(run, StatusStopped)
	t.logger.Printf("Timer: stopped timer %d after %ds of %ds", run.TimerIndex, run.ActualSeconds, run.PlannedSeconds)
	return &run
}

func (t *Timer) handleTick() {
	t.mu.Lock()
	if t.state.Status != StatusRunning {
		t.mu.Unlock()
		return
	}
	t.state.RemainingSeconds--
	state := t.state
	t.mu.Unlock()

	if state.RemainingSeconds > 0 {
		t.stateEvent.Notify(state)
		return
	}

	t.ticker.Stop()
	run := models.TimerRun{
		TimerIndex:     state.TimerIndex,
		StartedAt:      state.StartedAt,
		PlannedSeconds: state.PlannedSeconds,
		ActualSeconds:  state.PlannedSeconds,
		Completed:      true,
	}
	t.finish(run, StatusCompleted)
	t.logger.Printf("Timer: timer %d completed (%ds)", run.TimerIndex, run.PlannedSeconds)
	t.signal(run)
}

// finish publishes run while the state still reads Running, then moves to
// status. Listeners that check State() therefore never see a finished
// countdown whose run has not been delivered.
func (t *Timer) finish(run models.TimerRun, status Status) {
	t.runEvent.Notify(run)

	t.mu.Lock()
	t.state.Status = status
	if status == StatusCompleted {
		t.state.RemainingSeconds = 0
	}
	state := t.state
	t.mu.Unlock()

	t.stateEvent.Notify(state)
}

func (t *Timer) signal(run models.TimerRun) {
	if t.signaler == nil {
		return
	}
	go_func_utils.Guard(t.logger, "Timer: completion signal", func() {
		if err := t.signaler.Signal(run); err != nil {
			t.logger.Printf("Timer: completion signal failed: %v", err)
		}
	})
}
