package bt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/go_func_utils"
)

// Errors the mock reports mirror the wording of the BlueZ D-Bus errors so
// callers classify them the same way as real failures.
var (
	errMockUnsupported  = errors.New("org.bluez.Error.NotReady: no default adapter")
	errMockNotPermitted = errors.New("org.bluez.Error.NotPermitted: Not permitted")
)

type MockBTManagerConfig struct {
	Devices []MockBTDeviceConfig
	// NotifyPeriod is the interval between simulated measurements. Zero
	// disables the periodic sender; tests trigger notifications by hand.
	NotifyPeriod time.Duration
	// ControlAddr starts the control API on this address when set.
	ControlAddr string
	Unsupported bool
}

// DefaultMockDevices returns two straps with different signal strengths.
func DefaultMockDevices() []MockBTDeviceConfig {
	return []MockBTDeviceConfig{
		{Address: "00:11:22:33:44:01", LocalName: "Mock HR Strap", RSSI: -50, HeartRate: 72,
			ServiceUUIDs: []string{ServiceUUIDHeartRate}},
		{Address: "00:11:22:33:44:02", LocalName: "Mock HR Band", RSSI: -70, HeartRate: 64,
			ServiceUUIDs: []string{ServiceUUIDHeartRate}},
	}
}

// MockBTManager implements BTManagerInterface over MockBTDevices.
type MockBTManager struct {
	logger      *log.Logger
	config      MockBTManagerConfig
	mockDevices []*MockBTDevice

	mu                   sync.RWMutex
	scanning             bool
	scanFilter           []string
	scanCount            int
	connectCount         int
	denyPermission       bool
	notificationsRunning bool
	notifyCancel         context.CancelFunc

	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ BTManagerInterface = (*MockBTManager)(nil)

func NewMockBTManager(logger *log.Logger, config MockBTManagerConfig) *MockBTManager {
	if logger == nil {
		panic("MockBTManager: logger cannot be nil")
	}
	if config.Devices == nil {
		config.Devices = DefaultMockDevices()
	}

	devices := make([]*MockBTDevice, 0, len(config.Devices))
	for _, dc := range config.Devices {
		devices = append(devices, NewMockBTDevice(logger, dc))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MockBTManager{
		logger:                logger,
		config:                config,
		mockDevices:           devices,
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *MockBTManager) Enable() error {
	if m.config.Unsupported {
		return fmt.Errorf("enabling bluetooth adapter: %w", errMockUnsupported)
	}
	m.logger.Printf("MockBTManager: enabled with %d mock devices", len(m.mockDevices))

	if m.config.ControlAddr != "" && m.server == nil {
		m.server = &http.Server{Addr: m.config.ControlAddr, Handler: m.ControlHandler()}
		m.wg.Add(1)
		go_func_utils.SafeGo(m.logger, func() {
			defer m.wg.Done()
			m.logger.Printf("MockBTManager: control API on http://%s", m.config.ControlAddr)
			if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.logger.Printf("MockBTManager: control API error: %v", err)
			}
		})
	}

	m.connectedDevicesEvent.Notify([]BTDevice{})
	return nil
}

func (m *MockBTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	if dev := m.device(addressString); dev != nil {
		return dev
	}
	return nil
}

func (m *MockBTManager) device(address string) *MockBTDevice {
	for _, dev := range m.mockDevices {
		if dev.address == address {
			return dev
		}
	}
	return nil
}

func (m *MockBTManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	m.scanning = true
	m.scanFilter = append([]string(nil), serviceUuidFilter...)
	m.scanCount++
	m.mu.Unlock()
	m.logger.Printf("MockBTManager: starting scan, filter %v", serviceUuidFilter)

	m.scanDeviceListEvent.Notify(m.GetScanDevices())

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				if !m.IsScanning() {
					return
				}
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

func (m *MockBTManager) StopScan() error {
	m.mu.Lock()
	m.scanning = false
	m.mu.Unlock()
	m.scanDeviceListEvent.Reset()
	return nil
}

func (m *MockBTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

func (m *MockBTManager) Connect(device BTDevice) error {
	m.mu.Lock()
	deny := m.denyPermission
	m.mu.Unlock()
	if deny {
		return errMockNotPermitted
	}

	dev := m.device(device.GetAddressString())
	if dev == nil {
		return fmt.Errorf("org.bluez.Error.DoesNotExist: device %s not found", device.GetAddressString())
	}

	m.mu.Lock()
	m.connectCount++
	m.mu.Unlock()

	dev.setConnected(true)
	m.startNotifications()
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
	return nil
}

func (m *MockBTManager) Disconnect(device BTDevice) error {
	dev := m.device(device.GetAddressString())
	if dev == nil {
		return fmt.Errorf("unknown device %s", device.GetAddressString())
	}
	dev.setConnected(false)
	m.afterDisconnect()
	return nil
}

// DropLink simulates the strap going out of range.
func (m *MockBTManager) DropLink(address string) error {
	dev := m.device(address)
	if dev == nil {
		return fmt.Errorf("unknown device %s", address)
	}
	m.logger.Printf("MockBTManager: dropping link to %s", address)
	dev.setConnected(false)
	m.afterDisconnect()
	return nil
}

func (m *MockBTManager) afterDisconnect() {
	connected := m.GetConnectedDevices()
	m.connectedDevicesEvent.Notify(connected)
	if len(connected) == 0 {
		m.stopNotifications()
	}
}

// SetPermissionDenied makes every following Connect fail with a
// permission error.
func (m *MockBTManager) SetPermissionDenied(deny bool) {
	m.mu.Lock()
	m.denyPermission = deny
	m.mu.Unlock()
}

// ScanCount and ConnectCount let tests assert which platform calls ran.
func (m *MockBTManager) ScanCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanCount
}

func (m *MockBTManager) ConnectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectCount
}

func (m *MockBTManager) GetMockDevices() []*MockBTDevice {
	return m.mockDevices
}

func (m *MockBTManager) startNotifications() {
	if m.config.NotifyPeriod <= 0 {
		return
	}
	m.mu.Lock()
	if m.notificationsRunning {
		m.mu.Unlock()
		return
	}
	m.notificationsRunning = true
	notifyCtx, notifyCancel := context.WithCancel(m.ctx)
	m.notifyCancel = notifyCancel
	m.mu.Unlock()

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.notificationsRunning = false
			m.mu.Unlock()
		}()

		ticker := time.NewTicker(m.config.NotifyPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-notifyCtx.Done():
				return
			case <-ticker.C:
				for _, dev := range m.mockDevices {
					if dev.IsConnected() {
						dev.TriggerHeartRateNotification()
					}
				}
			}
		}
	})
}

func (m *MockBTManager) stopNotifications() {
	m.mu.Lock()
	if m.notifyCancel != nil {
		m.notifyCancel()
		m.notifyCancel = nil
	}
	m.mu.Unlock()
}

func (m *MockBTManager) GetConnectedDevices() []BTDevice {
	connected := make([]BTDevice, 0)
	for _, dev := range m.mockDevices {
		if dev.IsConnected() {
			connected = append(connected, dev)
		}
	}
	return connected
}

func (m *MockBTManager) GetScanDevices() []BTDevice {
	m.mu.RLock()
	scanning := m.scanning
	filter := m.scanFilter
	m.mu.RUnlock()

	devices := make([]BTDevice, 0)
	if !scanning {
		return devices
	}
	for _, dev := range m.mockDevices {
		if len(filter) == 0 {
			devices = append(devices, dev)
			continue
		}
		for _, uuid := range filter {
			if dev.HasServiceUUID(uuid) {
				devices = append(devices, dev)
				break
			}
		}
	}
	return devices
}

func (m *MockBTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *MockBTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *MockBTManager) Shutdown() {
	m.logger.Println("MockBTManager: Shutting down")
	m.stopNotifications()
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Printf("MockBTManager: error shutting down control API: %v", err)
		}
		cancel()
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("MockBTManager: Shutdown complete")
}

// ControlHandler exposes the simulation over HTTP:
//
//	GET  /api/devices
//	POST /api/devices/{address}/heart-rate?bpm=N
//	POST /api/devices/{address}/trigger
//	POST /api/devices/{address}/drop
//	POST /api/permission?deny=true|false
func (m *MockBTManager) ControlHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/devices", m.handleListDevices)
	r.Route("/api/devices/{address}", func(r chi.Router) {
		r.Post("/heart-rate", m.handleSetHeartRate)
		r.Post("/trigger", m.handleTrigger)
		r.Post("/drop", m.handleDrop)
	})
	r.Post("/api/permission", m.handlePermission)
	return r
}

func (m *MockBTManager) handleListDevices(w http.ResponseWriter, r *http.Request) {
	states := make([]MockDeviceState, 0, len(m.mockDevices))
	for _, dev := range m.mockDevices {
		states = append(states, dev.snapshot())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(states)
}

func (m *MockBTManager) deviceFromRequest(w http.ResponseWriter, r *http.Request) *MockBTDevice {
	dev := m.device(chi.URLParam(r, "address"))
	if dev == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
	}
	return dev
}

func (m *MockBTManager) handleSetHeartRate(w http.ResponseWriter, r *http.Request) {
	dev := m.deviceFromRequest(w, r)
	if dev == nil {
		return
	}
	bpm, err := strconv.ParseUint(r.URL.Query().Get("bpm"), 10, 16)
	if err != nil {
		http.Error(w, "bpm must be an integer in 0..65535", http.StatusBadRequest)
		return
	}
	dev.SetHeartRate(uint16(bpm))
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockBTManager) handleTrigger(w http.ResponseWriter, r *http.Request) {
	dev := m.deviceFromRequest(w, r)
	if dev == nil {
		return
	}
	dev.TriggerHeartRateNotification()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockBTManager) handleDrop(w http.ResponseWriter, r *http.Request) {
	dev := m.deviceFromRequest(w, r)
	if dev == nil {
		return
	}
	m.DropLink(dev.address)
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockBTManager) handlePermission(w http.ResponseWriter, r *http.Request) {
	deny, err := strconv.ParseBool(r.URL.Query().Get("deny"))
	if err != nil {
		http.Error(w, "deny must be a boolean", http.StatusBadRequest)
		return
	}
	m.SetPermissionDenied(deny)
	w.WriteHeader(http.StatusNoContent)
}
