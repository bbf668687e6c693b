package console

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/models"
)

// View is the terminal front end: a status header, the exercise list, the
// last command's message, the log tail and a command line.
type View struct {
	app        *tview.Application
	screen     tcell.Screen
	model      *Model
	controller *Controller
	logger     *log.Logger

	statusView    *tview.TextView
	exerciseView  *tview.TextView
	messageView   *tview.TextView
	logView       *tview.TextView
	input         *tview.InputField
	lastLogHeight int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewView(model *Model, controller *Controller, logger *log.Logger) (*View, error) {
	if model == nil {
		panic("View: model cannot be nil")
	}
	if controller == nil {
		panic("View: controller cannot be nil")
	}
	if logger == nil {
		panic("View: logger cannot be nil")
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("creating terminal screen: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		app:        tview.NewApplication().SetScreen(screen),
		screen:     screen,
		model:      model,
		controller: controller,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	v.initialize()
	v.setupKeyboardHandlers()
	v.setupEventListeners()

	v.wg.Add(1)
	go_func_utils.SafeGo(logger, func() { v.monitorLogResize() })
	return v, nil
}

// Signal rings the terminal bell when a countdown completes. It satisfies
// timer.Signaler.
func (v *View) Signal(run models.TimerRun) error {
	v.model.SetMessage(fmt.Sprintf("Timer %d finished (%ds).", run.TimerIndex+1, run.PlannedSeconds))
	return v.screen.Beep()
}

func (v *View) initialize() {
	v.statusView = tview.NewTextView().SetDynamicColors(true)
	v.statusView.SetBorder(true).SetTitle(" Session ")

	v.exerciseView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	v.exerciseView.SetBorder(true).SetTitle(" Exercises ")

	v.messageView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true)
	v.messageView.SetBorder(true).SetTitle(" Message ")

	v.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	v.logView.SetBorder(true).SetTitle(" Logs ")

	v.input = tview.NewInputField().
		SetLabel("> ").
		SetFieldBackgroundColor(tcell.ColorDefault)
	v.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := strings.TrimSpace(v.input.GetText())
		v.input.SetText("")
		if line != "" {
			v.controller.Submit(line)
		}
	})

	top := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(v.exerciseView, 0, 3, false).
		AddItem(v.messageView, 0, 2, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(v.statusView, 5, 0, false).
		AddItem(top, 0, 3, false).
		AddItem(v.logView, 0, 1, false).
		AddItem(v.input, 1, 0, true)

	v.app.SetRoot(root, true).SetFocus(v.input)
}

func (v *View) setupKeyboardHandlers() {
	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			v.controller.OnEscapeKey()
			return nil
		case tcell.KeyPgUp, tcell.KeyPgDn:
			row, col := v.exerciseView.GetScrollOffset()
			if event.Key() == tcell.KeyPgUp {
				row = max(0, row-5)
			} else {
				row += 5
			}
			v.exerciseView.ScrollTo(row, col)
			return nil
		}
		return event
	})
}

func (v *View) setupEventListeners() {
	snapshotChan := make(chan Snapshot, 1)
	snapshotUnregister := v.model.ListenToSnapshot(snapshotChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer snapshotUnregister()
		for {
			select {
			case <-v.ctx.Done():
				return
			case snap, ok := <-snapshotChan:
				if !ok {
					return
				}
				v.app.QueueUpdateDraw(func() {
					v.statusView.SetText(renderStatus(snap))
					v.exerciseView.SetText(renderExercises(snap))
					v.messageView.SetText(snap.Message)
				})
			}
		}
	})

	logChan := make(chan string, 1)
	logUnregister := v.model.ListenToLog(logChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer logUnregister()
		for {
			select {
			case <-v.ctx.Done():
				return
			case _, ok := <-logChan:
				if !ok {
					return
				}
				v.updateLogDisplay()
			}
		}
	})

	closeChan := make(chan struct{}, 1)
	closeUnregister := v.model.ListenToCloseApplication(closeChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer closeUnregister()
		select {
		case <-v.ctx.Done():
		case <-closeChan:
			v.app.Stop()
		}
	})
}

// monitorLogResize redraws the log tail when the panel height changes.
func (v *View) monitorLogResize() {
	defer v.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-ticker.C:
			_, _, _, height := v.logView.GetInnerRect()
			if height != v.lastLogHeight {
				v.lastLogHeight = height
				v.updateLogDisplay()
			}
		}
	}
}

func (v *View) updateLogDisplay() {
	v.app.QueueUpdateDraw(func() {
		_, _, _, height := v.logView.GetInnerRect()
		if height <= 0 {
			height = 10
		}
		v.logView.SetText(strings.Join(v.model.GetLogTail(height), "\n"))
	})
}

// Run blocks until the application is stopped.
func (v *View) Run() error {
	return v.app.Run()
}

func (v *View) Shutdown() {
	v.cancel()
	v.app.Stop()
	v.wg.Wait()
	v.logger.Println("View: Shutdown complete")
}
