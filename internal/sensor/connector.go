package sensor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ameet2r/workout/internal/bt"
	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/go_func_utils"
	"github.com/ameet2r/workout/internal/models"
)

type State int

const (
	StateUnsupported State = iota
	StateDisconnected
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUnsupported:
		return "unsupported"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AddressStore persists the last successfully connected address so the
// picker can prefer it next time.
type AddressStore interface {
	PreferredAddress() string
	SetPreferredAddress(address string)
}

type Config struct {
	// PickerTimeout bounds the scan that stands in for the device picker.
	PickerTimeout time.Duration
	// PickerSettle is how long the picker keeps listening after the first
	// candidate appears, so a stronger signal can win.
	PickerSettle    time.Duration
	ConnectTimeout  time.Duration
	WatchdogTimeout time.Duration
	// PreferredAddress overrides the stored address when set.
	PreferredAddress string
}

func (c *Config) setDefaults() {
	if c.PickerTimeout <= 0 {
		c.PickerTimeout = 15 * time.Second
	}
	if c.PickerSettle <= 0 {
		c.PickerSettle = 1500 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = 10 * time.Second
	}
}

type Options struct {
	Now              func() time.Time
	WatchdogInterval time.Duration
	Addresses        AddressStore
}

// Status is a snapshot for display.
type Status struct {
	State      State
	Address    string
	DeviceName string
	Location   string
	Current    int
	HasCurrent bool
	Stale      bool
	LastError  error
}

// Connector owns the heart-rate link. It is created once per process and
// shared by every session view so the device handle and subscription
// outlive any one view.
type Connector struct {
	manager bt.BTManagerInterface
	logger  *log.Logger
	config  Config
	now     func() time.Time
	prefs   AddressStore

	opMu sync.Mutex // held for the duration of connect/reconnect/disconnect

	mu            sync.RWMutex
	state         State
	device        bt.BTDevice
	subscribed    bool
	location      string
	current       int
	hasCurrent    bool
	lastReadingAt time.Time
	stale         bool
	lastErr       error

	readingEvent *events.CallbackEvent[models.HeartRateReading]
	stateEvent   *events.ChannelEvent[Status]

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewConnector enables the adapter. If that fails the connector stays in
// StateUnsupported and every operation returns ErrUnsupported.
func NewConnector(manager bt.BTManagerInterface, logger *log.Logger, config Config, opts Options) *Connector {
	if manager == nil {
		panic("Connector: manager cannot be nil")
	}
	if logger == nil {
		panic("Connector: logger cannot be nil")
	}
	config.setDefaults()
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connector{
		manager:      manager,
		logger:       logger,
		config:       config,
		now:          opts.Now,
		prefs:        opts.Addresses,
		state:        StateDisconnected,
		readingEvent: events.NewCallbackEvent[models.HeartRateReading](false),
		stateEvent:   events.NewChannelEvent[Status](true),
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := manager.Enable(); err != nil {
		c.logger.Printf("Connector: bluetooth unavailable: %v", err)
		c.state = StateUnsupported
		c.lastErr = fmt.Errorf("%w: %v", ErrUnsupported, err)
		return c
	}

	connectedCh := make(chan []bt.BTDevice, 8)
	unlisten := manager.ListenToConnectedDevices(connectedCh)
	c.wg.Add(2)
	go_func_utils.SafeGo(logger, func() {
		defer c.wg.Done()
		defer unlisten()
		c.watchLink(connectedCh)
	})
	go_func_utils.SafeGo(logger, func() {
		defer c.wg.Done()
		c.runWatchdog(opts.WatchdogInterval)
	})
	return c
}

func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Current returns the latest accepted reading.
func (c *Connector) Current() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.hasCurrent
}

// LastError is the classified error of the last failed operation, cleared
// by the next success.
func (c *Connector) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Connector) HasDeviceHandle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.device != nil
}

func (c *Connector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

func (c *Connector) statusLocked() Status {
	s := Status{
		State:      c.state,
		Location:   c.location,
		Current:    c.current,
		HasCurrent: c.hasCurrent,
		Stale:      c.stale,
		LastError:  c.lastErr,
	}
	if c.device != nil {
		s.Address = c.device.GetAddressString()
		s.DeviceName = c.device.GetLocalName()
	}
	return s
}

// ListenReadings registers fn for every accepted reading and returns its
// unsubscribe func.
func (c *Connector) ListenReadings(fn func(models.HeartRateReading)) func() {
	return c.readingEvent.Listen(fn)
}

func (c *Connector) ListenStatus(ch chan<- Status) func() {
	return c.stateEvent.Listen(ch)
}

// Connect runs the picker, opens a link and subscribes to heart-rate
// measurements. It is a no-op when already connected.
func (c *Connector) Connect(ctx context.Context) error {
	if c.State() == StateUnsupported {
		return ErrUnsupported
	}
	if !c.opMu.TryLock() {
		return ErrBusy
	}
	defer c.opMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}

	c.setState(StateConnecting, nil)
	device, err := c.pick(ctx)
	if err != nil {
		return c.fail("connect", err)
	}
	c.logger.Printf("Connector: picked %s (%s)", device.GetLocalName(), device.GetAddressString())

	if err := c.link(ctx, device); err != nil {
		return c.fail("connect", err)
	}

	c.mu.Lock()
	c.device = device
	c.mu.Unlock()
	c.connected(device)
	if c.prefs != nil {
		c.prefs.SetPreferredAddress(device.GetAddressString())
	}
	return nil
}

// Reconnect reopens the link to the held device without scanning. It is a
// no-op when the link and subscription are already live.
func (c *Connector) Reconnect(ctx context.Context) error {
	if c.State() == StateUnsupported {
		return ErrUnsupported
	}
	if !c.opMu.TryLock() {
		return ErrBusy
	}
	defer c.opMu.Unlock()

	c.mu.RLock()
	device := c.device
	live := c.state == StateConnected && c.subscribed
	c.mu.RUnlock()

	if device == nil {
		c.setError(ErrNoDeviceHandle)
		return ErrNoDeviceHandle
	}
	if live && device.IsConnected() {
		c.logger.Printf("Connector: reconnect skipped, %s already live", device.GetAddressString())
		return nil
	}

	c.setState(StateConnecting, nil)
	if err := c.link(ctx, device); err != nil {
		return c.fail("reconnect", err)
	}
	c.connected(device)
	return nil
}

// Disconnect unsubscribes, closes the link and forgets the device handle.
func (c *Connector) Disconnect() error {
	if c.State() == StateUnsupported {
		return ErrUnsupported
	}
	if !c.opMu.TryLock() {
		return ErrBusy
	}
	defer c.opMu.Unlock()

	c.mu.Lock()
	device := c.device
	subscribed := c.subscribed
	c.device = nil
	c.subscribed = false
	c.location = ""
	c.mu.Unlock()

	var err error
	if device != nil {
		if subscribed && device.IsConnected() {
			if uerr := device.DisableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement); uerr != nil {
				c.logger.Printf("Connector: unsubscribe failed: %v", uerr)
			}
		}
		if derr := c.manager.Disconnect(device); derr != nil {
			c.logger.Printf("Connector: disconnect failed: %v", derr)
			err = fmt.Errorf("disconnecting %s: %w", device.GetAddressString(), derr)
		}
		c.logger.Printf("Connector: disconnected from %s", device.GetAddressString())
	}
	c.setState(StateDisconnected, nil)
	return err
}

// Shutdown stops the background goroutines. The link itself is left to the
// BT manager's own shutdown.
func (c *Connector) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.logger.Printf("Connector: Shutdown complete")
	})
}

// pick scans for heart-rate devices. The preferred address wins as soon as
// it is seen; otherwise the strongest signal after the settle window.
func (c *Connector) pick(ctx context.Context) (bt.BTDevice, error) {
	preferred := c.config.PreferredAddress
	if preferred == "" && c.prefs != nil {
		preferred = c.prefs.PreferredAddress()
	}

	listCh := make(chan []bt.BTDevice, 8)
	unlisten := c.manager.ListenToDeviceList(listCh)
	defer unlisten()

	c.manager.StartScan([]string{bt.ServiceUUIDHeartRate})
	defer func() {
		if err := c.manager.StopScan(); err != nil {
			c.logger.Printf("Connector: stop scan failed: %v", err)
		}
	}()

	timeout := time.NewTimer(c.config.PickerTimeout)
	defer timeout.Stop()
	var settleTimer *time.Timer
	var settle <-chan time.Time
	defer func() {
		if settleTimer != nil {
			settleTimer.Stop()
		}
	}()

	var best bt.BTDevice
	var bestRSSI int16
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.ctx.Done():
			return nil, context.Canceled
		case <-timeout.C:
			if best != nil {
				return best, nil
			}
			return nil, fmt.Errorf("%w after scanning for %v", ErrDeviceNotFound, c.config.PickerTimeout)
		case <-settle:
			return best, nil
		case devices := <-listCh:
			for _, d := range devices {
				if !d.HasServiceUUID(bt.ServiceUUIDHeartRate) {
					continue
				}
				if preferred != "" && d.GetAddressString() == preferred {
					return d, nil
				}
				rssi, err := d.GetScanRSSI()
				if err != nil {
					continue
				}
				if best == nil || rssi > bestRSSI {
					best, bestRSSI = d, rssi
				}
			}
			if best != nil && settleTimer == nil {
				settleTimer = time.NewTimer(c.config.PickerSettle)
				settle = settleTimer.C
			}
		}
	}
}

// link opens the connection if needed and subscribes.
func (c *Connector) link(ctx context.Context, device bt.BTDevice) error {
	if !device.IsConnected() {
		if err := c.manager.Connect(device); err != nil {
			return fmt.Errorf("connecting to %s: %w", device.GetAddressString(), err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
		err := device.WaitForConnection(waitCtx)
		cancel()
		if err != nil {
			c.dropLink(device)
			return err
		}
	}

	err := device.EnableNotifications(bt.ServiceUUIDHeartRate, bt.CharUUIDHeartRateMeasurement, c.onNotification)
	if err != nil {
		c.dropLink(device)
		return fmt.Errorf("subscribing to heart rate: %w", err)
	}

	location := ""
	if buf, err := device.ReadCharacteristic(bt.ServiceUUIDHeartRate, bt.CharUUIDBodySensorLocation); err == nil && len(buf) > 0 {
		location = bt.BodySensorLocationName(buf[0])
	}
	c.mu.Lock()
	c.location = location
	c.mu.Unlock()
	return nil
}

func (c *Connector) dropLink(device bt.BTDevice) {
	if err := c.manager.Disconnect(device); err != nil {
		c.logger.Printf("Connector: closing half-open link failed: %v", err)
	}
}

func (c *Connector) connected(device bt.BTDevice) {
	c.mu.Lock()
	c.subscribed = true
	c.lastReadingAt = c.now()
	c.stale = false
	c.mu.Unlock()
	c.setState(StateConnected, nil)
	c.logger.Printf("Connector: connected to %s", device.GetAddressString())
}

func (c *Connector) fail(op string, err error) error {
	err = classify(err)
	c.logger.Printf("Connector: %s failed: %v", op, err)
	c.mu.Lock()
	c.subscribed = false
	c.mu.Unlock()
	c.setState(StateDisconnected, err)
	return err
}

func (c *Connector) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	status := c.statusLocked()
	c.mu.Unlock()
	c.stateEvent.Notify(status)
}

// setState moves to state and records err as the last error (nil clears it).
func (c *Connector) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.lastErr = err
	status := c.statusLocked()
	c.mu.Unlock()
	c.stateEvent.Notify(status)
}

func (c *Connector) onNotification(buf []byte) {
	bpm, err := DecodeHeartRate(buf)
	if err != nil {
		c.logger.Printf("Connector: dropping measurement: %v", err)
		return
	}
	if bpm == 0 {
		// straps report 0 without skin contact
		return
	}

	now := c.now()
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.current = bpm
	c.hasCurrent = true
	c.lastReadingAt = now
	c.stale = false
	c.mu.Unlock()

	c.readingEvent.Notify(models.HeartRateReading{Timestamp: now, BPM: bpm})
}

// watchLink notices unexpected link loss. The handle is kept so Reconnect
// can reopen it.
func (c *Connector) watchLink(connectedCh <-chan []bt.BTDevice) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case devices := <-connectedCh:
			c.handleConnectedDevices(devices)
		}
	}
}

func (c *Connector) handleConnectedDevices(devices []bt.BTDevice) {
	c.mu.Lock()
	if c.state != StateConnected || c.device == nil {
		c.mu.Unlock()
		return
	}
	addr := c.device.GetAddressString()
	for _, d := range devices {
		if d.GetAddressString() == addr {
			c.mu.Unlock()
			return
		}
	}
	if c.device.IsConnected() {
		// stale list from before a reconnect
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.subscribed = false
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("Connector: link to %s lost", addr)
	c.stateEvent.Notify(status)
}

func (c *Connector) runWatchdog(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.checkLiveness()
		}
	}
}

// checkLiveness logs once per silent stretch. It never changes State.
func (c *Connector) checkLiveness() {
	c.mu.Lock()
	if c.state != StateConnected || c.stale {
		c.mu.Unlock()
		return
	}
	silent := c.now().Sub(c.lastReadingAt)
	if silent <= c.config.WatchdogTimeout {
		c.mu.Unlock()
		return
	}
	c.stale = true
	status := c.statusLocked()
	c.mu.Unlock()

	c.logger.Printf("Connector: no heart rate reading for %v while connected", silent.Round(time.Second))
	c.stateEvent.Notify(status)
}
