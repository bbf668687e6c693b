package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/session"
	"github.com/ameet2r/workout/internal/store"
)

const helpText = `ex N                      select exercise N
add [REPS [WEIGHT|- [RPE]]] log a set (blank fields use the pre-filled values)
del E S                   delete set S of exercise E
timer start N|stop|restart N
1rm on|off                one-rep-max mode
hr connect|disconnect|reconnect
name TEXT | notes TEXT
reload                    close and reopen the session view
complete [hr]             finish the session, optionally uploading heart rate
cancel                    delete the session
quit`

// Opener opens session views. *session.Manager satisfies it.
type Opener interface {
	Open(ctx context.Context, sessionID string) (*session.Session, error)
}

// Sensor is the connector surface the console drives.
type Sensor interface {
	StatusSource
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect() error
}

// Controller turns command lines into session and sensor operations and
// reports the outcome through the model.
type Controller struct {
	model     *Model
	opener    Opener
	sensor    Sensor
	logger    *log.Logger
	sessionID string

	mu      sync.Mutex
	session *session.Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(model *Model, opener Opener, hr Sensor, logger *log.Logger, sessionID string) *Controller {
	if model == nil {
		panic("Controller: model cannot be nil")
	}
	if opener == nil {
		panic("Controller: opener cannot be nil")
	}
	if hr == nil {
		panic("Controller: sensor cannot be nil")
	}
	if logger == nil {
		panic("Controller: logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		model:     model,
		opener:    opener,
		sensor:    hr,
		logger:    logger,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Open loads the session view for the controller's session id.
func (c *Controller) Open(ctx context.Context) error {
	s, err := c.opener.Open(ctx, c.sessionID)
	if err != nil {
		c.model.SetMessage(errorMessage(err))
		return err
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.model.SetSession(s)
	c.model.SetMessage(fmt.Sprintf("Session %s opened. Type help for commands.", s.ID()))
	return nil
}

// Session returns the open session view, or nil.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Submit runs line on a background goroutine so slow store or sensor calls
// do not block the UI.
func (c *Controller) Submit(line string) {
	c.wg.Add(1)
	go_func_utils.SafeGo(c.logger, func() {
		defer c.wg.Done()
		if err := c.Execute(c.ctx, line); err != nil {
			c.logger.Printf("Controller: %q failed: %v", line, err)
		}
	})
}

// OnEscapeKey handles when the Escape key is pressed
func (c *Controller) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

// Shutdown waits for submitted commands and closes the session view. The
// sensor connection is left alone; it belongs to the process.
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
	c.logger.Println("Controller: Shutdown complete")
}

// Execute runs one command line. The outcome is also shown as the model's
// message.
func (c *Controller) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	msg, err := c.dispatch(ctx, fields[0], fields[1:], strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
	if err != nil {
		c.model.SetMessage(errorMessage(err))
		return err
	}
	c.model.SetMessage(msg)
	return nil
}

func (c *Controller) dispatch(ctx context.Context, cmd string, args []string, rest string) (string, error) {
	switch cmd {
	case "help", "?":
		return helpText, nil
	case "quit", "q":
		c.model.RequestCloseApplication()
		return "Bye.", nil
	case "hr":
		return c.heartRate(ctx, args)
	case "reload":
		return c.reload(ctx)
	}

	s := c.Session()
	if s == nil {
		return "", errors.New("no session open")
	}

	switch cmd {
	case "ex":
		n, err := oneBased(args, 0)
		if err != nil {
			return "", err
		}
		if err := s.ChangeExercise(n); err != nil {
			return "", err
		}
		return fmt.Sprintf("Exercise %d selected.", n+1), nil
	case "add":
		return c.addSet(s, args)
	case "del":
		e, err := oneBased(args, 0)
		if err != nil {
			return "", err
		}
		set, err := oneBased(args, 1)
		if err != nil {
			return "", err
		}
		if err := s.DeleteSet(e, set); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted set %d of exercise %d.", set+1, e+1), nil
	case "timer":
		return c.timer(s, args)
	case "1rm":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return "", fmt.Errorf("%w: usage 1rm on|off", session.ErrInvalidInput)
		}
		if err := s.SetOneRepMaxMode(ctx, args[0] == "on"); err != nil {
			return "", err
		}
		return "One-rep-max mode " + args[0] + ".", nil
	case "name":
		if err := s.SetName(rest); err != nil {
			return "", err
		}
		return "Name updated.", nil
	case "notes":
		if err := s.SetNotes(rest); err != nil {
			return "", err
		}
		return "Notes updated.", nil
	case "complete":
		opts := session.CompleteOptions{IncludeHeartRate: len(args) > 0 && args[0] == "hr"}
		summary, err := s.Complete(ctx, opts)
		if err != nil {
			return "", err
		}
		return completionMessage(summary), nil
	case "cancel":
		if err := s.Cancel(ctx); err != nil {
			return "", err
		}
		return "Session cancelled.", nil
	}
	return "", fmt.Errorf("%w: unknown command %q (try help)", session.ErrInvalidInput, cmd)
}

func (c *Controller) addSet(s *session.Session, args []string) (string, error) {
	in := s.Inputs()
	if len(args) > 0 {
		reps, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("%w: reps %q", session.ErrInvalidInput, args[0])
		}
		in.Reps = &reps
	}
	if len(args) > 1 {
		if args[1] == "-" {
			in.Weight = nil
		} else {
			w, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return "", fmt.Errorf("%w: weight %q", session.ErrInvalidInput, args[1])
			}
			in.Weight = &w
		}
	}
	if len(args) > 2 {
		rpe, err := strconv.Atoi(args[2])
		if err != nil {
			return "", fmt.Errorf("%w: rpe %q", session.ErrInvalidInput, args[2])
		}
		in.RPE = &rpe
	}

	set, err := s.AddSet(in)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Logged %d reps", set.Reps)
	if set.Weight != nil {
		msg += fmt.Sprintf(" @ %s", formatWeight(*set.Weight))
	}
	if n := len(set.TimerRuns); n > 0 {
		msg += fmt.Sprintf(" with %d timer run(s)", n)
	}
	return msg + ".", nil
}

func (c *Controller) timer(s *session.Session, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: usage timer start N|stop|restart N", session.ErrInvalidInput)
	}
	switch args[0] {
	case "start", "restart":
		n, err := oneBased(args, 1)
		if err != nil {
			return "", err
		}
		if args[0] == "start" {
			err = s.StartTimer(n)
		} else {
			err = s.RestartTimer(n)
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Timer %d running.", n+1), nil
	case "stop":
		run := s.StopTimer()
		if run == nil {
			return "No timer running.", nil
		}
		return fmt.Sprintf("Timer stopped after %ds.", run.ActualSeconds), nil
	}
	return "", fmt.Errorf("%w: unknown timer action %q", session.ErrInvalidInput, args[0])
}

func (c *Controller) heartRate(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: usage hr connect|disconnect|reconnect", session.ErrInvalidInput)
	}
	var err error
	switch args[0] {
	case "connect":
		err = c.sensor.Connect(ctx)
	case "reconnect":
		err = c.sensor.Reconnect(ctx)
	case "disconnect":
		err = c.sensor.Disconnect()
	default:
		return "", fmt.Errorf("%w: unknown hr action %q", session.ErrInvalidInput, args[0])
	}
	if err != nil {
		return "", err
	}
	st := c.sensor.Status()
	if st.State == sensor.StateConnected {
		return fmt.Sprintf("Heart rate monitor %s connected.", displayName(st)), nil
	}
	return "Heart rate monitor " + st.State.String() + ".", nil
}

// reload drops the session view and opens a fresh one from the cache and
// store. The sensor connection carries over.
func (c *Controller) reload(ctx context.Context) (string, error) {
	c.mu.Lock()
	old := c.session
	c.session = nil
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	c.model.SetSession(nil)
	if err := c.Open(ctx); err != nil {
		return "", err
	}
	return "Session reloaded.", nil
}

func oneBased(args []string, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing number", session.ErrInvalidInput)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q is not a positive number", session.ErrInvalidInput, args[i])
	}
	return n - 1, nil
}

func completionMessage(s session.Summary) string {
	msg := fmt.Sprintf("Session complete: %d sets, %d reps, volume %s, %s.",
		s.Sets, s.Reps, formatWeight(s.Volume), s.Duration.Round(time.Second))
	if s.HeartRate != nil {
		msg += fmt.Sprintf(" Heart rate avg %d max %d (%d chunks).",
			s.HeartRate.AvgHeartRate, s.HeartRate.MaxHeartRate, s.Chunks)
	}
	return msg
}

// errorMessage picks the text shown for a failed command.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, sensor.ErrUnsupported), errors.Is(err, sensor.ErrDeviceNotFound),
		errors.Is(err, sensor.ErrPermissionDenied), errors.Is(err, sensor.ErrNoDeviceHandle),
		errors.Is(err, sensor.ErrBusy):
		return sensor.UserMessage(err)
	case errors.Is(err, store.ErrNotFound):
		return "Session not found."
	case errors.Is(err, store.ErrUnauthorized):
		return "Not authorized. Check the store token."
	case isStoreFailure(err):
		return "Could not reach the server. Your sets are saved locally; try again. (" + err.Error() + ")"
	}
	return "Error: " + err.Error()
}

func isStoreFailure(err error) bool {
	for _, known := range []error{session.ErrRepsRequired, session.ErrInvalidInput, session.ErrTimerRunning,
		session.ErrSessionFinished, session.ErrIndexOutOfRange, session.ErrNoTimer, session.ErrCompletionInProgress} {
		if errors.Is(err, known) {
			return false
		}
	}
	return store.IsRetryable(err)
}
