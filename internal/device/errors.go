package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrSnapshotLoad) {
//	    // keep stale data, surface a banner
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrSnapshotLoad is returned when the bulk device fetch fails.
	// The previous collection is left untouched.
	ErrSnapshotLoad = errors.New("device: snapshot load failed")
)
