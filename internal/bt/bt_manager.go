package bt

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/go_func_utils"

	"tinygo.org/x/bluetooth"
)

// BTManagerInterface is what the sensor connector needs from the platform.
type BTManagerInterface interface {
	Enable() error
	GetBTDeviceByAddressString(addressString string) BTDevice
	StartScan(serviceUuidFilter []string)
	StopScan() error
	IsScanning() bool
	Connect(device BTDevice) error
	Disconnect(device BTDevice) error
	GetConnectedDevices() []BTDevice
	GetScanDevices() []BTDevice
	ListenToDeviceList(ch chan<- []BTDevice) func()
	ListenToConnectedDevices(ch chan<- []BTDevice) func()
	Shutdown()
}

var _ BTManagerInterface = (*BTManager)(nil)

type BTManager struct {
	adapter               *bluetooth.Adapter
	logger                *log.Logger
	scanTimeout           time.Duration
	mu                    sync.RWMutex
	devicesByAddress      map[string]*btDeviceImpl
	scanning              bool
	scanContextCancel     context.CancelFunc
	scanDeviceListEvent   *events.ChannelEvent[[]BTDevice]
	connectedDevicesEvent *events.ChannelEvent[[]BTDevice]
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
}

func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, scanTimeout time.Duration) *BTManager {
	if adapter == nil {
		panic("BTManager: adapter cannot be nil")
	}
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if scanTimeout <= 0 {
		scanTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:               adapter,
		logger:                logger,
		scanTimeout:           scanTimeout,
		devicesByAddress:      make(map[string]*btDeviceImpl),
		scanDeviceListEvent:   events.NewChannelEvent[[]BTDevice](true),
		connectedDevicesEvent: events.NewChannelEvent[[]BTDevice](true),
		ctx:                   ctx,
		cancel:                cancel,
	}
}

func (m *BTManager) GetBTDeviceByAddressString(addressString string) BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if device, ok := m.devicesByAddress[addressString]; ok {
		return device
	}
	return nil
}

// getBTDeviceImpl must be called with mu held.
func (m *BTManager) getBTDeviceImpl(address bluetooth.Address) (*btDeviceImpl, bool) {
	addressStr := address.String()
	if d, ok := m.devicesByAddress[addressStr]; ok {
		return d, false
	}
	d := newBtDeviceImpl(m.logger, address, m.scanTimeout)
	m.devicesByAddress[addressStr] = d
	return d, true
}

// Enable powers up the adapter. An error here means the platform has no
// usable Bluetooth stack.
func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		m.mu.Lock()
		d, _ := m.getBTDeviceImpl(device.Address)
		m.mu.Unlock()

		if connected {
			m.logger.Printf("BTManager: device connected: %s", device.Address.String())
			d.setConnectedDevice(&device)
			d.setState(Connected)
		} else {
			m.logger.Printf("BTManager: device disconnected: %s", device.Address.String())
			d.setConnectedDevice(nil)
			d.setState(Disconnected)
		}
		m.emitConnectedDevicesChange()
	})

	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	return nil
}

func (m *BTManager) StartScan(serviceUuidFilter []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filterSet := make(map[string]struct{}, len(serviceUuidFilter))
	for _, filter := range serviceUuidFilter {
		filterSet[filter] = struct{}{}
	}
	m.logger.Printf("BTManager: starting scan, filter %v", serviceUuidFilter)

	if m.scanning && m.scanContextCancel != nil {
		m.logger.Printf("BTManager: restarting running scan")
		m.scanContextCancel()
	}
	m.scanning = true
	scanCtx, cancel := context.WithCancel(m.ctx)
	m.scanContextCancel = cancel

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		m.cleanupStaleDevices(scanCtx)
	})

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()

		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				return
			default:
			}

			if len(filterSet) > 0 {
				found := false
				for _, uuid := range result.ServiceUUIDs() {
					if _, ok := filterSet[uuid.String()]; ok {
						found = true
						break
					}
				}
				if !found {
					return
				}
			}

			m.mu.Lock()
			d, newObj := m.getBTDeviceImpl(result.Address)
			m.mu.Unlock()

			d.setScanResult(&result, time.Now())
			if newObj {
				d.setServiceUUIDs(result.ServiceUUIDs())
				m.logger.Printf("BTManager: found %s (%s) [RSSI: %d]", d.GetLocalName(), result.Address.String(), result.RSSI)
			}
		})
		if err != nil {
			m.logger.Printf("BTManager: scan error: %v", err)
		}
	})

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() {
		defer m.wg.Done()

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case <-ticker.C:
				m.scanDeviceListEvent.Notify(m.GetScanDevices())
			}
		}
	})
}

// cleanupStaleDevices forgets devices that stopped advertising. Connected
// devices stay, since the connector keeps using their handle.
func (m *BTManager) cleanupStaleDevices(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var removed []string
			m.mu.Lock()
			for addr, d := range m.devicesByAddress {
				if !d.IsConnected() && time.Since(d.getScanLastSeen()) > m.scanTimeout {
					delete(m.devicesByAddress, addr)
					removed = append(removed, addr)
				}
			}
			m.mu.Unlock()
			for _, addr := range removed {
				m.logger.Printf("BTManager: device timeout: %s (not seen for %v)", addr, m.scanTimeout)
			}
		}
	}
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanContextCancel != nil {
		m.scanContextCancel()
		m.scanContextCancel = nil
	}
	// a later scan must not replay this scan's results
	m.scanDeviceListEvent.Reset()
	return m.adapter.StopScan()
}

func (m *BTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Connect opens a link. Completion is reported through the connect handler;
// callers wait with BTDevice.WaitForConnection.
func (m *BTManager) Connect(device BTDevice) error {
	d, err := m.lookup(device)
	if err != nil {
		return err
	}
	m.logger.Printf("BTManager: connecting to %s", d.GetAddressString())

	d.setState(Connecting)
	if _, err := m.adapter.Connect(d.address, bluetooth.ConnectionParams{}); err != nil {
		d.setState(Disconnected)
		return err
	}
	return nil
}

func (m *BTManager) Disconnect(device BTDevice) error {
	d, err := m.lookup(device)
	if err != nil {
		return err
	}
	inner := d.getConnectedDevice()
	if inner == nil {
		d.setState(Disconnected)
		return nil
	}
	m.logger.Printf("BTManager: disconnecting from %s", d.GetAddressString())
	return inner.Disconnect()
}

// lookup resolves a handle, re-registering a device that aged out of the
// scan table while the caller still held it.
func (m *BTManager) lookup(device BTDevice) (*btDeviceImpl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := device.GetAddressString()
	if d, ok := m.devicesByAddress[addr]; ok {
		return d, nil
	}
	if d, ok := device.(*btDeviceImpl); ok {
		m.devicesByAddress[addr] = d
		return d, nil
	}
	return nil, fmt.Errorf("unknown device %s", addr)
}

func (m *BTManager) GetConnectedDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDevices(func(d *btDeviceImpl) bool { return d.IsConnected() })
}

func (m *BTManager) GetScanDevices() []BTDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterDevices(func(d *btDeviceImpl) bool { return d.IsRecentlyScanned() })
}

// filterDevices must be called with mu held. Results are sorted by address
// so listeners see a stable order.
func (m *BTManager) filterDevices(keep func(*btDeviceImpl) bool) []BTDevice {
	addrs := make([]string, 0, len(m.devicesByAddress))
	for addr, d := range m.devicesByAddress {
		if keep(d) {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	result := make([]BTDevice, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, m.devicesByAddress[addr])
	}
	return result
}

func (m *BTManager) ListenToDeviceList(ch chan<- []BTDevice) func() {
	return m.scanDeviceListEvent.Listen(ch)
}

func (m *BTManager) ListenToConnectedDevices(ch chan<- []BTDevice) func() {
	return m.connectedDevicesEvent.Listen(ch)
}

func (m *BTManager) emitConnectedDevicesChange() {
	m.connectedDevicesEvent.Notify(m.GetConnectedDevices())
}

// Shutdown disconnects everything and waits for the scan goroutines.
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: Shutting down")
	for _, dev := range m.GetConnectedDevices() {
		if err := m.Disconnect(dev); err != nil {
			m.logger.Printf("BTManager: error disconnecting from %v: %v", dev.GetAddressString(), err)
		}
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BTManager: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: Shutdown complete")
}
