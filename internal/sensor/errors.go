package sensor

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrUnsupported      = errors.New("bluetooth is not available")
	ErrDeviceNotFound   = errors.New("heart rate monitor not found")
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	ErrNoDeviceHandle   = errors.New("no device handle held")
	ErrBusy             = errors.New("connection attempt in progress")
)

// classify maps platform errors onto the connector's error classes.
// Unrecognised errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnsupported, ErrDeviceNotFound, ErrPermissionDenied, ErrNoDeviceHandle, ErrBusy} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission) || containsAny(msg,
		"notpermitted", "not permitted", "accessdenied", "access denied", "notauthorized", "not authorized", "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsAny(msg, "doesnotexist", "device not found", "no such device"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	return err
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// UserMessage is the text shown next to the connector controls.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupported):
		return "Bluetooth is not available on this system."
	case errors.Is(err, ErrDeviceNotFound):
		return "No heart rate monitor found. Make sure it is on and nearby."
	case errors.Is(err, ErrPermissionDenied):
		return "Bluetooth permission denied. Allow access and try again."
	case errors.Is(err, ErrNoDeviceHandle):
		return "No monitor paired yet. Connect first."
	case errors.Is(err, ErrBusy):
		return "A connection attempt is already in progress."
	}
	return fmt.Sprintf("Heart rate monitor error: %v", err)
}
