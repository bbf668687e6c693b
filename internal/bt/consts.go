package bt

// Bluetooth SIG assigned numbers used by the heart-rate connector.
const (
	ServiceUUIDHeartRate         = "0000180d-0000-1000-8000-00805f9b34fb"
	CharUUIDHeartRateMeasurement = "00002a37-0000-1000-8000-00805f9b34fb"
	CharUUIDBodySensorLocation   = "00002a38-0000-1000-8000-00805f9b34fb"
)

// BodySensorLocationName maps the 0x2A38 value to a label.
func BodySensorLocationName(v byte) string {
	switch v {
	case 0:
		return "other"
	case 1:
		return "chest"
	case 2:
		return "wrist"
	case 3:
		return "finger"
	case 4:
		return "hand"
	case 5:
		return "ear lobe"
	case 6:
		return "foot"
	}
	return "unknown"
}
