package bt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// MockBTDevice simulates a heart-rate strap for running without hardware.
type MockBTDevice struct {
	logger       *log.Logger
	address      string
	localName    string
	rssi         int16
	serviceUUIDs []string

	mu                sync.RWMutex
	state             BTDeviceState
	heartRate         uint16
	sensorLocation    byte
	heartRateCallback func([]byte)
}

// MockDeviceState is the control API view of a mock device.
type MockDeviceState struct {
	Address      string `json:"address"`
	LocalName    string `json:"localName"`
	HeartRate    uint16 `json:"heartRate"`
	Connected    bool   `json:"connected"`
	Subscribed   bool   `json:"subscribed"`
	RSSI         int16  `json:"rssi"`
	ServiceCount int    `json:"serviceCount"`
}

type MockBTDeviceConfig struct {
	Address      string
	LocalName    string
	RSSI         int16
	HeartRate    uint16
	ServiceUUIDs []string
}

func NewMockBTDevice(logger *log.Logger, config MockBTDeviceConfig) *MockBTDevice {
	if logger == nil {
		panic("MockBTDevice: logger cannot be nil")
	}
	hr := config.HeartRate
	if hr == 0 {
		hr = 70
	}
	return &MockBTDevice{
		logger:         logger,
		address:        config.Address,
		localName:      config.LocalName,
		rssi:           config.RSSI,
		serviceUUIDs:   append([]string(nil), config.ServiceUUIDs...),
		state:          Disconnected,
		heartRate:      hr,
		sensorLocation: 1,
	}
}

func (m *MockBTDevice) GetAddressString() string { return m.address }

func (m *MockBTDevice) GetScanRSSI() (int16, error) { return m.rssi, nil }

func (m *MockBTDevice) GetLocalName() string { return m.localName }

func (m *MockBTDevice) IsRecentlyScanned() bool { return true }

func (m *MockBTDevice) IsConnected() bool {
	return m.GetState() == Connected
}

func (m *MockBTDevice) GetState() BTDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MockBTDevice) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.IsConnected() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for connection to %s: %w", m.address, ctx.Err())
		}
	}
}

func (m *MockBTDevice) EnableNotifications(serviceUuid, characteristicUuid string, callbackFunc func(buf []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return ErrNotConnected
	}
	if !m.hasServiceUUIDLocked(serviceUuid) || characteristicUuid != CharUUIDHeartRateMeasurement {
		return fmt.Errorf("characteristic %s not found in service %s", characteristicUuid, serviceUuid)
	}
	m.heartRateCallback = callbackFunc
	m.logger.Printf("MockBTDevice [%s]: heart rate notifications enabled", m.localName)
	return nil
}

func (m *MockBTDevice) DisableNotifications(serviceUuid, characteristicUuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Connected {
		return ErrNotConnected
	}
	m.heartRateCallback = nil
	m.logger.Printf("MockBTDevice [%s]: heart rate notifications disabled", m.localName)
	return nil
}

func (m *MockBTDevice) ReadCharacteristic(serviceUuid, characteristicUuid string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected {
		return nil, ErrNotConnected
	}
	if serviceUuid == ServiceUUIDHeartRate && characteristicUuid == CharUUIDBodySensorLocation {
		return []byte{m.sensorLocation}, nil
	}
	return nil, fmt.Errorf("characteristic %s not found in service %s", characteristicUuid, serviceUuid)
}

func (m *MockBTDevice) GetServiceUUIDs() []string {
	return append([]string(nil), m.serviceUUIDs...)
}

func (m *MockBTDevice) HasServiceUUID(uuid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasServiceUUIDLocked(uuid)
}

func (m *MockBTDevice) hasServiceUUIDLocked(uuid string) bool {
	for _, u := range m.serviceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

func (m *MockBTDevice) SetHeartRate(bpm uint16) {
	m.mu.Lock()
	m.heartRate = bpm
	m.mu.Unlock()
}

// IsSubscribed reports whether a heart rate callback is registered.
func (m *MockBTDevice) IsSubscribed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heartRateCallback != nil
}

// TriggerHeartRateNotification sends one measurement. Rates above 255 use
// the 16-bit encoding.
func (m *MockBTDevice) TriggerHeartRateNotification() {
	m.mu.RLock()
	callback := m.heartRateCallback
	hr := m.heartRate
	m.mu.RUnlock()

	if callback == nil {
		return
	}
	if hr > 0xff {
		callback([]byte{0x01, byte(hr), byte(hr >> 8)})
		return
	}
	callback([]byte{0x00, byte(hr)})
}

func (m *MockBTDevice) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.state = Connected
	} else {
		m.state = Disconnected
		m.heartRateCallback = nil
	}
	m.logger.Printf("MockBTDevice [%s]: state -> %s", m.localName, m.state)
}

func (m *MockBTDevice) snapshot() MockDeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MockDeviceState{
		Address:      m.address,
		LocalName:    m.localName,
		HeartRate:    m.heartRate,
		Connected:    m.state == Connected,
		Subscribed:   m.heartRateCallback != nil,
		RSSI:         m.rssi,
		ServiceCount: len(m.serviceUUIDs),
	}
}
